package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/proxymgr"
)

// proxyCmd groups proxy selection/testing subcommands (spec.md §6.4
// `proxy {list|groups|switch|test|current|batch-test|auto-select}`).
var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Inspect and control proxy selection",
}

func openProxyManager() (*proxymgr.Manager, error) {
	h, err := openHome()
	if err != nil {
		return nil, err
	}
	client, err := newClient(h)
	if err != nil {
		return nil, err
	}
	return proxymgr.New(client), nil
}

var proxyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List proxy nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := openProxyManager()
		if err != nil {
			return err
		}
		nodes, err := pm.Nodes(context.Background())
		if err != nil {
			return err
		}
		names := make([]string, 0, len(nodes))
		for n := range nodes {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			node := nodes[n]
			delay := "-"
			if node.Delay != nil {
				delay = fmt.Sprintf("%dms", *node.Delay)
			}
			fmt.Printf("%s\t%s\t%s\n", node.Name, node.Kind, delay)
		}
		return nil
	},
}

var proxyGroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List proxy groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := openProxyManager()
		if err != nil {
			return err
		}
		groups, err := pm.Groups(context.Background())
		if err != nil {
			return err
		}
		names := make([]string, 0, len(groups))
		for n := range groups {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			g := groups[n]
			fmt.Printf("%s\t%s\tnow=%s\n", g.Name, g.Kind, g.Now)
		}
		return nil
	},
}

var proxySwitchCmd = &cobra.Command{
	Use:   "switch <group> <proxy>",
	Short: "Switch a group's active proxy",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := openProxyManager()
		if err != nil {
			return err
		}
		if err := pm.SwitchProxy(context.Background(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", args[0], args[1])
		return nil
	},
}

var (
	proxyTestURL     string
	proxyTestTimeout int
)

var proxyTestCmd = &cobra.Command{
	Use:   "test <proxy>",
	Short: "Probe a single proxy's delay",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("a proxy name is required")
		}
		pm, err := openProxyManager()
		if err != nil {
			return err
		}
		delay, err := pm.TestProxyDelay(context.Background(), args[0], proxyTestURL, proxyTestTimeout)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %dms\n", args[0], delay)
		return nil
	},
}

var proxyCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print every group's currently selected proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := openProxyManager()
		if err != nil {
			return err
		}
		groups, err := pm.Groups(context.Background())
		if err != nil {
			return err
		}
		for _, g := range groups {
			if g.Now != "" {
				fmt.Printf("%s: %s\n", g.Name, g.Now)
			}
		}
		return nil
	},
}

var (
	batchTestGroup     string
	batchTestURL       string
	batchTestTimeout   int
	batchTestConcurrent int
)

var proxyBatchTestCmd = &cobra.Command{
	Use:   "batch-test",
	Short: "Probe delay for every member of a group concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := openProxyManager()
		if err != nil {
			return err
		}
		ctx := context.Background()
		groups, err := pm.Groups(ctx)
		if err != nil {
			return err
		}
		g, ok := groups[batchTestGroup]
		if !ok {
			return fmt.Errorf("unknown group %q", batchTestGroup)
		}
		results := pm.TestMultipleProxyDelays(ctx, g.All, batchTestURL, batchTestTimeout)
		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("%s: error: %v\n", r.Name, r.Err)
				continue
			}
			fmt.Printf("%s: %dms\n", r.Name, r.Delay)
		}
		return nil
	},
}

var (
	autoSelectURL      string
	autoSelectTimeout  int
	autoSelectMaxDelay int
)

var proxyAutoSelectCmd = &cobra.Command{
	Use:   "auto-select <group>",
	Short: "Switch a group to its fastest-responding member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := openProxyManager()
		if err != nil {
			return err
		}
		winner, err := pm.AutoSelectFastestProxy(context.Background(), args[0], autoSelectURL, autoSelectTimeout)
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", args[0], winner)
		return nil
	},
}

func init() {
	proxyTestCmd.Flags().StringVar(&proxyTestURL, "url", "http://www.gstatic.com/generate_204", "probe URL")
	proxyTestCmd.Flags().IntVar(&proxyTestTimeout, "timeout", 5000, "probe timeout in ms")

	proxyBatchTestCmd.Flags().StringVar(&batchTestGroup, "group", "", "group to probe (required)")
	proxyBatchTestCmd.Flags().StringVar(&batchTestURL, "url", "http://www.gstatic.com/generate_204", "probe URL")
	proxyBatchTestCmd.Flags().IntVar(&batchTestTimeout, "timeout", 5000, "probe timeout in ms")
	proxyBatchTestCmd.Flags().IntVar(&batchTestConcurrent, "concurrent", 0, "unused: fan-out is always unbounded per proxy count")

	proxyAutoSelectCmd.Flags().StringVar(&autoSelectURL, "url", "http://www.gstatic.com/generate_204", "probe URL")
	proxyAutoSelectCmd.Flags().IntVar(&autoSelectTimeout, "timeout", 5000, "probe timeout in ms")
	proxyAutoSelectCmd.Flags().IntVar(&autoSelectMaxDelay, "max-delay", 0, "unused: no delay ceiling is currently enforced")

	proxyCmd.AddCommand(proxyListCmd)
	proxyCmd.AddCommand(proxyGroupsCmd)
	proxyCmd.AddCommand(proxySwitchCmd)
	proxyCmd.AddCommand(proxyTestCmd)
	proxyCmd.AddCommand(proxyCurrentCmd)
	proxyCmd.AddCommand(proxyBatchTestCmd)
	proxyCmd.AddCommand(proxyAutoSelectCmd)
}
