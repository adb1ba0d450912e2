package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/profile"
)

// configCmd manages named engine config profiles under <Home>/configs
// (spec.md §6.4 `config {list|use|show|delete}`).
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage engine config profiles",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List config profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		pm := profile.New(h)
		profiles, err := pm.List()
		if err != nil {
			return err
		}
		for _, p := range profiles {
			marker := " "
			if p.Active {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, p.Name)
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <profile>",
	Short: "Activate a config profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		pm := profile.New(h)
		if err := pm.SetCurrent(args[0]); err != nil {
			return err
		}
		fmt.Printf("active profile set to %s\n", args[0])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [profile]",
	Short: "Print a config profile's contents (default: active profile)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		pm := profile.New(h)

		name := ""
		if len(args) == 1 {
			name = args[0]
		} else {
			profiles, err := pm.List()
			if err != nil {
				return err
			}
			for _, p := range profiles {
				if p.Active {
					name = p.Name
				}
			}
		}
		if name == "" {
			return fmt.Errorf("no active profile and none given")
		}

		body, err := pm.Load(name)
		if err != nil {
			return err
		}
		fmt.Print(string(body))
		return nil
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete <profile>",
	Short: "Delete a config profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		pm := profile.New(h)
		if err := pm.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted profile %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configUseCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configDeleteCmd)
}
