package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/profile"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/version"
)

// serviceCmd groups process-supervision and install-lifecycle
// subcommands under one namespace (spec.md §6.4 `service {...}`).
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Engine process and install lifecycle management",
}

var serviceInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the default config profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		pm := profile.New(h)
		if err := pm.EnsureDefaultConfig(); err != nil {
			return err
		}
		if _, err := pm.EnsureExternalController(); err != nil {
			return err
		}
		fmt.Println("initialized default config profile")
		return nil
	},
}

var serviceVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Inspect installed/available engine versions",
}

var serviceVersionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listCmd.RunE(cmd, args)
	},
}

var serviceVersionDownloadCmd = &cobra.Command{
	Use:   "download <version>",
	Short: "Download and install a version without changing the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		vm := version.New(h)
		if _, err := vm.Install(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("downloaded %s\n", args[0])
		return nil
	},
}

var serviceVersionLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the latest stable release version",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		vm := version.New(h)
		releases, err := vm.FetchReleases(context.Background(), 0)
		if err != nil {
			return err
		}
		for _, r := range releases {
			if !r.Prerelease {
				fmt.Println(r.Version)
				return nil
			}
		}
		return fmt.Errorf("no stable release found")
	},
}

var serviceVersionCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the default engine version",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		vm := version.New(h)
		def, err := vm.GetDefault()
		if err != nil {
			return err
		}
		if def == "" {
			return fmt.Errorf("no default version set")
		}
		fmt.Println(def)
		return nil
	},
}

var upgradeVersionFlag string

var serviceUpgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade the engine binary, restarting if it was running",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		sup, err := openSupervisor(h)
		if err != nil {
			return err
		}
		vm := version.New(h)

		target := upgradeVersionFlag
		if target == "" {
			target, err = vm.InstallChannel(context.Background(), version.ChannelStable)
			if err != nil {
				return err
			}
		}
		if err := sup.UpgradeToVersion(context.Background(), vm, target); err != nil {
			return err
		}
		if err := vm.SetDefault(target); err != nil {
			return err
		}
		fmt.Printf("upgraded to %s\n", target)
		return nil
	},
}

var uninstallKeepConfig bool
var uninstallConfirm bool

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop the engine and remove its config state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !uninstallConfirm {
			return fmt.Errorf("refusing to uninstall without --confirm")
		}
		h, err := openHome()
		if err != nil {
			return err
		}
		sup, err := openSupervisor(h)
		if err != nil {
			return err
		}
		if err := sup.Uninstall(context.Background(), uninstallKeepConfig); err != nil {
			return err
		}
		fmt.Println("uninstalled")
		return nil
	},
}

var cleanupKeep int

var serviceCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old binary backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		sup, err := openSupervisor(h)
		if err != nil {
			return err
		}
		if err := sup.CleanupBackups(cleanupKeep); err != nil {
			return err
		}
		fmt.Printf("kept %d most recent backups\n", cleanupKeep)
		return nil
	},
}

func init() {
	serviceUpgradeCmd.Flags().StringVar(&upgradeVersionFlag, "version", "", "target version (default: latest stable)")
	serviceUninstallCmd.Flags().BoolVar(&uninstallKeepConfig, "keep-config", false, "keep config profiles")
	serviceUninstallCmd.Flags().BoolVar(&uninstallConfirm, "confirm", false, "required to confirm uninstall")
	serviceCleanupCmd.Flags().IntVar(&cleanupKeep, "keep", 5, "number of most recent backups to keep")

	serviceVersionCmd.AddCommand(serviceVersionListCmd)
	serviceVersionCmd.AddCommand(serviceVersionDownloadCmd)
	serviceVersionCmd.AddCommand(serviceVersionLatestCmd)
	serviceVersionCmd.AddCommand(serviceVersionCurrentCmd)

	serviceCmd.AddCommand(serviceInitCmd)
	serviceCmd.AddCommand(&cobra.Command{Use: "start", Short: "Start the supervised engine process", RunE: runEngineStart})
	serviceCmd.AddCommand(&cobra.Command{Use: "stop", Short: "Stop the supervised engine process", RunE: runEngineStop})
	serviceCmd.AddCommand(&cobra.Command{Use: "restart", Short: "Restart the supervised engine process", RunE: runEngineRestart})
	serviceCmd.AddCommand(&cobra.Command{Use: "status", Short: "Show the supervised engine process's status", RunE: runEngineStatus})
	serviceCmd.AddCommand(serviceVersionCmd)
	serviceCmd.AddCommand(serviceUpgradeCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceCleanupCmd)
}
