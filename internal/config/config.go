// Package config handles loading, validating, and writing mihomoctl's
// own CLI preferences from <Home>/cli.yaml — the default controller
// URL/secret and verbosity, not the mihomo engine's own proxy
// configuration (that lives under internal/profile).
//
// See SPEC_FULL.md §4.B.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is mihomoctl's own CLI preference file.
type Config struct {
	DefaultURL    string `yaml:"defaultUrl"`
	DefaultSecret string `yaml:"defaultSecret"`
	Verbose       bool   `yaml:"verbose"`
}

// Load reads and parses cli.yaml from the given path.
// If the file doesn't exist, returns defaults (not an error).
// Invalid YAML or validation failures return an error.
func Load(path string) (*Config, error) {
	cfg := applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No preferences file yet — defaults apply until one is
			// written or flags are set explicitly.
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes a default cli.yaml with all fields populated and
// a comment header. Used by first-run setup when no preferences file
// exists yet.
func WriteDefault(path string) error {
	cfg := applyDefaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	header := `# mihomoctl CLI preferences
#
# defaultUrl: external-controller address used when -u/--url is not given
# defaultSecret: API secret used when -s/--secret is not given
# verbose: enable debug-level logging by default

`
	return os.WriteFile(path, []byte(header+string(data)), 0o644)
}

// applyDefaults returns a Config with all fields set to their defaults.
func applyDefaults() *Config {
	return &Config{
		DefaultURL:    "127.0.0.1:9090",
		DefaultSecret: "",
		Verbose:       false,
	}
}

// validate checks the config for logical errors after parsing.
func validate(cfg *Config) error {
	if cfg.DefaultURL == "" {
		return fmt.Errorf("defaultUrl must not be empty")
	}
	return nil
}
