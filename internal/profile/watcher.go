package profile

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/home"
	"github.com/fsnotify/fsnotify"
)

// WatchTargets holds callbacks fired when the active profile's on-disk
// state changes. This is a supplement to spec.md §4.5 (SPEC_FULL.md
// §4.B), adapted from the teacher's internal/config/watcher.go hot-reload
// pattern: long-running consumers (a monitor, a dashboard) can react to
// profile edits without restarting.
type WatchTargets struct {
	// OnCurrentChange fires when the "current" marker file changes
	// (i.e. a different profile was activated).
	OnCurrentChange func()
	// OnActiveProfileChange fires when the active profile's YAML file
	// itself is written.
	OnActiveProfileChange func(name string)
}

// Watcher monitors a Home's profile state using fsnotify, mirroring the
// teacher's single background-goroutine event loop.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	home      *home.Home
	done      chan struct{}
}

// NewWatcher watches <Home>/current and <Home>/configs for changes.
func NewWatcher(h *home.Home, targets WatchTargets) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating profile watcher: %w", err)
	}

	if err := fw.Add(h.Root); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching home %s: %w", h.Root, err)
	}
	if err := fw.Add(h.ConfigsDir()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching configs dir %s: %w", h.ConfigsDir(), err)
	}

	w := &Watcher{fsWatcher: fw, home: h, done: make(chan struct{})}
	go w.processEvents(targets)

	slog.Info("profile watcher started", "home", h.Root)
	return w, nil
}

func (w *Watcher) processEvents(targets WatchTargets) {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			name := filepath.Base(event.Name)
			switch {
			case name == "current":
				slog.Info("profile current marker changed, triggering reload")
				if targets.OnCurrentChange != nil {
					targets.OnCurrentChange()
				}
			case strings.HasSuffix(name, ".yaml"):
				profileName := strings.TrimSuffix(name, ".yaml")
				if current, _, _ := readTrimmed(w.home.CurrentFile()); profileName != current {
					continue
				}
				slog.Info("profile file changed", "profile", profileName)
				if targets.OnActiveProfileChange != nil {
					targets.OnActiveProfileChange(profileName)
				}
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("profile watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher goroutine. Safe to call multiple times.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.fsWatcher.Close()
}
