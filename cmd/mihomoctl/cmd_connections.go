package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// connectionsCmd inspects/closes active connections (spec.md §6.4
// `connections [{close <id>|close-all}]`).
var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "Inspect and close active connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		client, err := newClient(h)
		if err != nil {
			return err
		}
		resp, err := client.Connections(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("active: %d\n", len(resp.Connections))
		for _, c := range resp.Connections {
			fmt.Printf("%s\t%s\t%s -> %s\n", c.ID, c.Metadata.Network, c.Metadata.Host, c.Metadata.DestinationIP)
		}
		return nil
	},
}

var connectionsCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a single connection by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		client, err := newClient(h)
		if err != nil {
			return err
		}
		if err := client.CloseConnection(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("closed %s\n", args[0])
		return nil
	},
}

var connectionsCloseAllCmd = &cobra.Command{
	Use:   "close-all",
	Short: "Close every active connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		client, err := newClient(h)
		if err != nil {
			return err
		}
		ctx := context.Background()
		resp, err := client.Connections(ctx)
		if err != nil {
			return err
		}
		var failed int
		for _, c := range resp.Connections {
			if err := client.CloseConnection(ctx, c.ID); err != nil {
				failed++
			}
		}
		fmt.Printf("closed %d connections (%d failed)\n", len(resp.Connections)-failed, failed)
		return nil
	},
}

func init() {
	connectionsCmd.AddCommand(connectionsCloseCmd)
	connectionsCmd.AddCommand(connectionsCloseAllCmd)
}
