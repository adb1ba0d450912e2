package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/version"
)

var installCmd = &cobra.Command{
	Use:   "install [version|stable|beta|nightly]",
	Short: "Install an engine version and make it the default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		vm := version.New(h)
		ctx := context.Background()

		target := "stable"
		if len(args) == 1 {
			target = args[0]
		}

		installed := target
		switch target {
		case "stable", "beta", "nightly":
			installed, err = vm.InstallChannel(ctx, version.Channel(target))
		default:
			_, err = vm.Install(ctx, target)
		}
		if err != nil {
			return err
		}

		if err := vm.SetDefault(installed); err != nil {
			return err
		}
		fmt.Printf("installed %s and set as default\n", installed)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Install the latest stable release and set it as default",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		vm := version.New(h)
		installed, err := vm.InstallChannel(context.Background(), version.ChannelStable)
		if err != nil {
			return err
		}
		if err := vm.SetDefault(installed); err != nil {
			return err
		}
		fmt.Printf("updated to %s\n", installed)
		return nil
	},
}

var defaultCmd = &cobra.Command{
	Use:   "default <version>",
	Short: "Set the default installed engine version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		vm := version.New(h)
		if err := vm.SetDefault(args[0]); err != nil {
			return err
		}
		fmt.Printf("default version set to %s\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed engine versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		vm := version.New(h)
		versions, err := vm.ListInstalled()
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("no versions installed")
			return nil
		}
		for _, v := range versions {
			marker := " "
			if v.IsDefault {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, v.Version)
		}
		return nil
	},
}

var listRemoteLimit int

var listRemoteCmd = &cobra.Command{
	Use:   "list-remote",
	Short: "List available engine releases",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		vm := version.New(h)
		releases, err := vm.FetchReleases(context.Background(), listRemoteLimit)
		if err != nil {
			return err
		}
		for _, r := range releases {
			tag := ""
			if r.Prerelease {
				tag = " (prerelease)"
			}
			fmt.Printf("%s%s\n", r.Version, tag)
		}
		return nil
	},
}

func init() {
	listRemoteCmd.Flags().IntVar(&listRemoteLimit, "limit", 0, "maximum number of releases to fetch (0 = no limit)")
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <version>",
	Short: "Remove an installed engine version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		vm := version.New(h)
		if err := vm.Uninstall(args[0]); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}
