package main

import (
	"os"

	cliconfig "github.com/DINGDANGMAOUP/mihomo-rs/internal/config"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/home"
)

// loadCLIConfig loads mihomoctl's own preferences from <Home>/cli.yaml,
// writing a default file on first run.
func loadCLIConfig(h *home.Home) (*cliconfig.Config, error) {
	path := h.CLIConfigFile()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := cliconfig.WriteDefault(path); err != nil {
			return nil, err
		}
	}
	return cliconfig.Load(path)
}
