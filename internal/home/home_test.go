package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveEnvOverride(t *testing.T) {
	t.Setenv(EnvOverride, "/tmp/custom-home")
	got, err := Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/custom-home" {
		t.Fatalf("got %q, want /tmp/custom-home", got)
	}
}

func TestResolveDefaultFallsBackToHome(t *testing.T) {
	t.Setenv(EnvOverride, "")
	got, err := Resolve()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(os.Getenv("HOME"), ".config", "mihomo-rs")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestLayoutPaths(t *testing.T) {
	h := WithRoot("/root-test")
	if h.CurrentFile() != "/root-test/current" {
		t.Fatalf("unexpected current file: %s", h.CurrentFile())
	}
	if h.ProfilePath("default") != "/root-test/configs/default.yaml" {
		t.Fatalf("unexpected profile path: %s", h.ProfilePath("default"))
	}
	if h.VersionDir("v1.18.0") != "/root-test/versions/v1.18.0" {
		t.Fatalf("unexpected version dir: %s", h.VersionDir("v1.18.0"))
	}
	if h.PidFile() != "/root-test/mihomo.pid" {
		t.Fatalf("unexpected pid file: %s", h.PidFile())
	}
}
