// Command mihomoctl is the control-plane CLI for a local mihomo engine
// instance: installing/upgrading the engine binary, managing config
// profiles, starting/stopping the supervised process, switching
// proxies, inspecting rules and connections, and watching telemetry.
//
// Architecture overview:
//
//	mihomoctl (this CLI) --HTTP/WS--> mihomo engine (external-controller)
//	    |                                  |
//	    +-- internal/version (install)     +-- /proxies /rules /connections
//	    +-- internal/profile (config)       +-- /traffic /memory (streams)
//	    +-- internal/service (supervise)
//	    +-- internal/proxymgr (select/test)
//	    +-- internal/rules (match/validate)
//	    +-- internal/monitor (health/events)
//
// See spec.md §6.4 for the full subcommand surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliconfig "github.com/DINGDANGMAOUP/mihomo-rs/internal/config"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/home"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/logging"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mihomo"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/transport"
)

// Build-time variables injected via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

// Global flags shared by every subcommand (spec.md §6.4).
var (
	flagURL     string
	flagSecret  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "mihomoctl",
	Short: "mihomoctl — control plane for a local mihomo engine",
	Long: `mihomoctl installs and supervises a mihomo engine binary, manages its
config profiles, switches and tests proxies, inspects the rule table and
active connections, and watches engine telemetry.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose := flagVerbose
		if !verbose {
			if h, err := home.New(); err == nil {
				if c, err := cliconfig.Load(h.CLIConfigFile()); err == nil && c.Verbose {
					verbose = true
				}
			}
		}
		logging.Setup(verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagURL, "url", "u", "", "external-controller address (default from cli.yaml or 127.0.0.1:9090)")
	rootCmd.PersistentFlags().StringVarP(&flagSecret, "secret", "s", "", "API secret (default from cli.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(defaultCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(listRemoteCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(monitorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openHome resolves the Home root, creating it if absent.
func openHome() (*home.Home, error) {
	h, err := home.New()
	if err != nil {
		return nil, err
	}
	if err := h.Ensure(); err != nil {
		return nil, err
	}
	return h, nil
}

// resolveController returns the external-controller address and secret
// to dial: the -u/-s flags take precedence over cli.yaml's defaults
// (spec.md §6.4). The active profile's external-controller setting is
// not consulted.
func resolveController(h *home.Home) (addr, secret string, err error) {
	cliCfg, err := loadCLIConfig(h)
	if err != nil {
		return "", "", err
	}
	addr = cliCfg.DefaultURL
	secret = cliCfg.DefaultSecret

	if flagURL != "" {
		addr = flagURL
	}
	if flagSecret != "" {
		secret = flagSecret
	}
	return addr, secret, nil
}

// newClient builds a mihomo.Client pointed at the resolved controller.
func newClient(h *home.Home) (*mihomo.Client, error) {
	addr, secret, err := resolveController(h)
	if err != nil {
		return nil, err
	}
	t := transport.New("http://"+addr, transport.WithSecret(secret))
	return mihomo.New(t), nil
}
