package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestSetupVerboseEnablesDebugLevel(t *testing.T) {
	Setup(true)
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug level enabled when verbose")
	}
}

func TestSetupQuietDisablesDebugLevel(t *testing.T) {
	Setup(false)
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug level disabled by default")
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info level enabled by default")
	}
}
