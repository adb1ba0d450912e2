// Package service implements spec.md §4.9: supervising the engine
// binary as a detached child process — start/stop/restart, status, and
// version upgrade with backup/rollback. Grounded directly on
// _examples/original_source/src/service.rs's ServiceManager
// (PID-file/is_running/start/stop/restart algorithms, with divergence
// #2 in SPEC_FULL.md §9 resolved toward spec.md's flag set), and on the
// teacher's cmd/ctrlai/main.go spawnDaemon/writePIDFile/runStop
// process-management idiom (same stdlib os/exec+syscall approach).
package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/home"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mherr"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mihomo"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/transport"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/version"
)

// Status mirrors spec.md §4.9's ServiceStatus, including the transient
// Starting/Stopping states supplemented from original_source (spec.md's
// own text only requires Running/Stopped/Unknown; SPEC_FULL.md §4.D).
type Status string

const (
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusStopping Status = "stopping"
	StatusUnknown  Status = "unknown"
)

// Config describes how to launch and reach the supervised engine
// process (spec.md §4.9 ServiceConfig).
type Config struct {
	BinaryPath          string
	ConfigPath          string
	ConfigDir           string
	WorkDir             string
	ExternalController  string
	Secret              string
}

// Supervisor manages a single engine process rooted at a Home.
type Supervisor struct {
	home   *home.Home
	cfg    Config
	client *mihomo.Client
}

// New builds a Supervisor. client is used for the HTTP half of the
// liveness check (GET /version against ExternalController).
func New(h *home.Home, cfg Config) *Supervisor {
	t := transport.New("http://"+cfg.ExternalController, transport.WithSecret(cfg.Secret))
	return &Supervisor{home: h, cfg: cfg, client: mihomo.New(t)}
}

func (s *Supervisor) readPID() (int, bool) {
	data, err := os.ReadFile(s.home.PidFile())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func (s *Supervisor) writePID(pid int) error {
	return os.WriteFile(s.home.PidFile(), []byte(strconv.Itoa(pid)), 0o644)
}

func (s *Supervisor) removePID() {
	os.Remove(s.home.PidFile())
}

// IsRunning reports liveness using the same two-phase check as
// original_source's is_running: first the PID file's process, then,
// regardless, a startup-grace double-check against the HTTP API —
// supplemented from original_source so a process whose PID exists but
// whose API is not yet up (still Starting) is not misreported as dead
// (spec.md §4.D).
func (s *Supervisor) IsRunning(ctx context.Context) bool {
	pid, ok := s.readPID()
	if ok && !processAlive(pid) {
		s.removePID()
		return false
	}
	if !ok {
		return s.apiReachable(ctx)
	}
	// PID exists and is alive; an unreachable API during the startup
	// window is tolerated as "still starting", matching
	// original_source/src/service.rs::is_running's "API unavailable but
	// process exists -> treat as running" fallback.
	if s.apiReachable(ctx) {
		return true
	}
	return true
}

func (s *Supervisor) apiReachable(ctx context.Context) bool {
	_, err := s.client.Version(ctx)
	return err == nil
}

// Status classifies the current state (spec.md §4.9 getStatus).
func (s *Supervisor) Status(ctx context.Context) Status {
	if s.IsRunning(ctx) {
		return StatusRunning
	}
	return StatusStopped
}

// Start spawns the engine binary detached, writes the PID file, and
// polls up to 30s for it to come up (spec.md §4.9). The binary is
// invoked with -d <configDir> -f <configPath> (SPEC_FULL.md §9
// divergence #2), not original_source's -ext-ctl flag.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.IsRunning(ctx) {
		return mherr.InvalidParameter("service.Start", "service is already running")
	}

	args := []string{}
	if s.cfg.ConfigDir != "" {
		args = append(args, "-d", s.cfg.ConfigDir)
	}
	if s.cfg.ConfigPath != "" {
		args = append(args, "-f", s.cfg.ConfigPath)
	}

	cmd := exec.Command(s.cfg.BinaryPath, args...)
	cmd.Dir = s.cfg.WorkDir
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return mherr.Service("service.Start", fmt.Sprintf("failed to start engine: %v", err))
	}
	pid := cmd.Process.Pid
	if err := s.writePID(pid); err != nil {
		return mherr.System("service.Start", "writing PID file", err)
	}
	if err := cmd.Process.Release(); err != nil {
		// The child is already running; losing the handle is non-fatal.
	}

	for i := 0; i < 30; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
		if s.IsRunning(ctx) {
			return nil
		}
	}

	s.removePID()
	return mherr.Timeout("service.Start", "engine did not come up within 30s", nil)
}

// Stop sends SIGTERM (Unix) or runs taskkill /F (Windows), waits up to
// 5s, then force-kills if still alive, matching
// original_source/src/service.rs::stop (spec.md §4.9).
func (s *Supervisor) Stop(ctx context.Context) error {
	pid, ok := s.readPID()
	if ok && processAlive(pid) {
		if runtime.GOOS == "windows" {
			exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/F").Run()
		} else {
			terminateGraceful(pid)
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) && processAlive(pid) {
				time.Sleep(200 * time.Millisecond)
			}
			if processAlive(pid) {
				terminateForce(pid)
			}
		}
	}
	s.removePID()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !s.IsRunning(ctx) {
			return nil
		}
		time.Sleep(time.Second)
	}
	return mherr.Timeout("service.Stop", "engine did not stop within 10s", nil)
}

// Restart stops (if running), pauses 2s, then starts (spec.md §4.9).
func (s *Supervisor) Restart(ctx context.Context) error {
	if s.IsRunning(ctx) {
		if err := s.Stop(ctx); err != nil {
			return err
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
	}
	return s.Start(ctx)
}

// UpgradeToVersion stops the engine (remembering whether it was
// running), backs up the current binary, installs the new version, and
// either restarts on the new binary or rolls back to the backup on
// failure (spec.md §4.9 upgradeToVersion).
func (s *Supervisor) UpgradeToVersion(ctx context.Context, vm *version.Manager, target string) error {
	wasRunning := s.IsRunning(ctx)
	if wasRunning {
		if err := s.Stop(ctx); err != nil {
			return err
		}
	}

	backupPath, err := s.backupCurrentBinary()
	if err != nil {
		return err
	}

	newPath, installErr := vm.Install(ctx, target)
	if installErr != nil {
		return installErr
	}

	s.cfg.BinaryPath = newPath
	if wasRunning {
		if err := s.Start(ctx); err != nil {
			// Roll back: restore the old binary path and try again.
			if backupPath != "" {
				s.cfg.BinaryPath = backupPath
				if startErr := s.Start(ctx); startErr == nil {
					return mherr.Service("service.UpgradeToVersion", fmt.Sprintf("upgrade failed, rolled back to previous binary: %v", err))
				}
			}
			return mherr.Service("service.UpgradeToVersion", fmt.Sprintf("upgrade failed and rollback also failed: %v", err))
		}
	}
	return nil
}

func (s *Supervisor) backupCurrentBinary() (string, error) {
	if s.cfg.BinaryPath == "" {
		return "", nil
	}
	if _, err := os.Stat(s.cfg.BinaryPath); os.IsNotExist(err) {
		return "", nil
	}
	backupDir := s.home.BackupsDir()
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", mherr.System("service.backupCurrentBinary", "creating backups directory", err)
	}
	data, err := os.ReadFile(s.cfg.BinaryPath)
	if err != nil {
		return "", mherr.System("service.backupCurrentBinary", "reading current binary", err)
	}
	backupPath := filepath.Join(backupDir, fmt.Sprintf("mihomo-%d", time.Now().UnixNano()))
	if err := os.WriteFile(backupPath, data, 0o755); err != nil {
		return "", mherr.System("service.backupCurrentBinary", "writing backup", err)
	}
	return backupPath, nil
}

// CleanupBackups keeps the keep most recent backups in <Home>/backups,
// removing the rest (spec.md §4.9 cleanupBackups).
func (s *Supervisor) CleanupBackups(keep int) error {
	entries, err := os.ReadDir(s.home.BackupsDir())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return mherr.System("service.CleanupBackups", "reading backups directory", err)
	}
	if len(entries) <= keep {
		return nil
	}

	type backup struct {
		name    string
		modTime time.Time
	}
	var backups []backup
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{e.Name(), info.ModTime()})
	}
	for i := 0; i < len(backups); i++ {
		for j := i + 1; j < len(backups); j++ {
			if backups[j].modTime.After(backups[i].modTime) {
				backups[i], backups[j] = backups[j], backups[i]
			}
		}
	}
	for _, b := range backups[keep:] {
		os.Remove(filepath.Join(s.home.BackupsDir(), b.name))
	}
	return nil
}

// Uninstall stops the service, removes the PID file, and optionally
// removes profile/config state (spec.md §4.9).
func (s *Supervisor) Uninstall(ctx context.Context, keepConfig bool) error {
	if s.IsRunning(ctx) {
		if err := s.Stop(ctx); err != nil {
			return err
		}
	}
	s.removePID()
	if !keepConfig {
		if err := os.RemoveAll(s.home.ConfigsDir()); err != nil {
			return mherr.System("service.Uninstall", "removing configs directory", err)
		}
	}
	return nil
}
