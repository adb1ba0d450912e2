package main

import (
	"fmt"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/home"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/profile"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/service"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/version"
)

// openSupervisor builds a service.Supervisor wired to the default
// installed engine binary and the active config profile.
func openSupervisor(h *home.Home) (*service.Supervisor, error) {
	vm := version.New(h)
	binaryPath, err := vm.GetBinaryPath("")
	if err != nil {
		return nil, err
	}

	pm := profile.New(h)
	if err := pm.EnsureDefaultConfig(); err != nil {
		return nil, err
	}
	activeName, err := activeProfileName(pm)
	if err != nil {
		return nil, err
	}
	controller, err := pm.EnsureExternalController()
	if err != nil {
		return nil, err
	}

	addr, secret, err := resolveController(h)
	if err != nil {
		return nil, err
	}
	if addr == "" {
		addr = controller
	}

	cfg := service.Config{
		BinaryPath:         binaryPath,
		ConfigPath:         h.ProfilePath(activeName),
		ConfigDir:          h.ConfigsDir(),
		WorkDir:            h.Root,
		ExternalController: addr,
		Secret:             secret,
	}
	return service.New(h, cfg), nil
}

func activeProfileName(pm *profile.Manager) (string, error) {
	profiles, err := pm.List()
	if err != nil {
		return "", err
	}
	for _, p := range profiles {
		if p.Active {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("no active config profile")
}
