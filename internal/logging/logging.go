// Package logging configures the process-wide structured logger.
// mihomoctl follows the teacher's pervasive bare slog.Info/Warn/Error
// call style throughout internal/* (see e.g.
// CirtusX-ctrl-ai-v1/internal/config/watcher.go,
// internal/engine/engine.go) rather than threading a *slog.Logger
// value through every constructor; this package only adds what the
// teacher itself never needed — a verbose/quiet switch driven by the
// CLI's -v flag (SPEC_FULL.md §4.B).
package logging

import (
	"log/slog"
	"os"
)

// Setup installs the process-wide default logger: a text handler on
// stderr at Info level, or Debug level when verbose is true.
func Setup(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
