package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NonexistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load with nonexistent file should not error: %v", err)
	}

	if cfg.DefaultURL != "127.0.0.1:9090" {
		t.Errorf("default url: expected 127.0.0.1:9090, got %q", cfg.DefaultURL)
	}
	if cfg.DefaultSecret != "" {
		t.Errorf("default secret: expected empty, got %q", cfg.DefaultSecret)
	}
	if cfg.Verbose {
		t.Error("default verbose: expected false")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cli.yaml")
	data := `
defaultUrl: "10.0.0.5:9999"
defaultSecret: "s3cr3t"
verbose: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DefaultURL != "10.0.0.5:9999" {
		t.Errorf("url: expected 10.0.0.5:9999, got %q", cfg.DefaultURL)
	}
	if cfg.DefaultSecret != "s3cr3t" {
		t.Errorf("secret: expected s3cr3t, got %q", cfg.DefaultSecret)
	}
	if !cfg.Verbose {
		t.Error("verbose: expected true")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cli.yaml")
	if err := os.WriteFile(path, []byte(`{{{invalid yaml`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cli.yaml")
	data := `
verbose: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if !cfg.Verbose {
		t.Error("verbose overridden: expected true")
	}
	if cfg.DefaultURL != "127.0.0.1:9090" {
		t.Errorf("url should retain default, got %q", cfg.DefaultURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: *applyDefaults(), wantErr: false},
		{name: "empty url", cfg: Config{DefaultURL: ""}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(&tt.cfg)
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWriteDefault_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cli.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not created: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load after WriteDefault: %v", err)
	}

	if cfg.DefaultURL != "127.0.0.1:9090" {
		t.Errorf("roundtrip url: expected 127.0.0.1:9090, got %q", cfg.DefaultURL)
	}
}
