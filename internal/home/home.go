// Package home resolves the per-instance on-disk root described in
// spec.md §6.2/§6.4 and glossed as "Home" throughout the spec: the
// directory under which profiles, installed versions, backups, and the
// PID file live.
package home

import (
	"os"
	"path/filepath"
)

// EnvOverride is the environment variable that, when set, takes
// precedence over the computed default (spec.md §6.2, resolving
// divergence #6 against original_source, which only ever reads $HOME).
const EnvOverride = "MIHOMO_HOME"

// DefaultSubdir is appended to $HOME when MIHOMO_HOME is unset.
const DefaultSubdir = ".config/mihomo-rs"

// Resolve returns the Home directory: $MIHOMO_HOME if set and non-empty,
// else "$HOME/.config/mihomo-rs". It does not create the directory.
func Resolve() (string, error) {
	if v := os.Getenv(EnvOverride); v != "" {
		return v, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(h, filepath.FromSlash(DefaultSubdir)), nil
}

// Home wraps a resolved root and exposes the on-disk layout from
// spec.md §6.2 as typed path accessors. Injecting Home explicitly into
// every manager constructor (rather than re-reading the environment at
// call time) follows spec.md §9's "Global state via the Home resolver"
// design note.
type Home struct {
	Root string
}

// New resolves the Home root; it does not create it (see Ensure).
func New() (*Home, error) {
	root, err := Resolve()
	if err != nil {
		return nil, err
	}
	return WithRoot(root), nil
}

// WithRoot builds a Home pinned to an explicit root, bypassing env
// resolution — used by tests and by hosts that manage multiple Homes.
func WithRoot(root string) *Home {
	return &Home{Root: root}
}

// Ensure creates the Home root directory (and configs/versions/backups
// subdirectories) if missing.
func (h *Home) Ensure() error {
	for _, dir := range []string{h.Root, h.ConfigsDir(), h.VersionsDir(), h.BackupsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (h *Home) CurrentFile() string       { return filepath.Join(h.Root, "current") }
func (h *Home) ConfigsDir() string        { return filepath.Join(h.Root, "configs") }
func (h *Home) ProfilePath(name string) string {
	return filepath.Join(h.ConfigsDir(), name+".yaml")
}
func (h *Home) DefaultFile() string  { return filepath.Join(h.Root, "default") }
func (h *Home) VersionsDir() string  { return filepath.Join(h.Root, "versions") }
func (h *Home) VersionDir(v string) string {
	return filepath.Join(h.VersionsDir(), v)
}
func (h *Home) BackupsDir() string { return filepath.Join(h.Root, "backups") }
func (h *Home) PidFile() string    { return filepath.Join(h.Root, "mihomo.pid") }
func (h *Home) CLIConfigFile() string { return filepath.Join(h.Root, "cli.yaml") }
func (h *Home) MonitorDBFile() string { return filepath.Join(h.Root, "monitor.db") }
