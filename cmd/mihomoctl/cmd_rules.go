package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mihomo"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/rules"
)

// rulesCmd groups rule-table inspection subcommands (spec.md §6.4
// `rules {list|stats|reload|validate|match|find-by-proxy|find-by-type|provider}`).
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate the engine's rule table",
}

func openRuleEngine() (*rules.Engine, error) {
	h, err := openHome()
	if err != nil {
		return nil, err
	}
	client, err := newClient(h)
	if err != nil {
		return nil, err
	}
	return rules.New(client), nil
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in evaluation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		re, err := openRuleEngine()
		if err != nil {
			return err
		}
		rs, err := re.Rules(context.Background())
		if err != nil {
			return err
		}
		for _, r := range rs {
			fmt.Printf("%s,%s,%s\n", r.Kind, r.Payload, r.Target)
		}
		return nil
	},
}

var rulesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize rule counts by type and target proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		re, err := openRuleEngine()
		if err != nil {
			return err
		}
		stats, err := re.GetRuleStats(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("total: %d\n", stats.TotalRules)
		for kind, count := range stats.TypeCounts {
			fmt.Printf("  %s: %d\n", kind, count)
		}
		for proxy, count := range stats.ProxyCounts {
			fmt.Printf("  -> %s: %d\n", proxy, count)
		}
		return nil
	},
}

var rulesReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Force-refresh the cached rule table",
	RunE: func(cmd *cobra.Command, args []string) error {
		re, err := openRuleEngine()
		if err != nil {
			return err
		}
		if err := re.Refresh(context.Background()); err != nil {
			return err
		}
		fmt.Println("rules reloaded")
		return nil
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <rule>",
	Short: "Validate a rule line of the form TYPE,PAYLOAD,PROXY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parsed, err := rules.ValidateRule(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("ok: %s,%s,%s\n", parsed.Kind, parsed.Payload, parsed.Target)
		return nil
	},
}

var matchPort int

var rulesMatchCmd = &cobra.Command{
	Use:   "match <host>",
	Short: "Evaluate a host (and optional port) against the rule table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		re, err := openRuleEngine()
		if err != nil {
			return err
		}
		rule, proxy, ok, err := re.MatchRule(context.Background(), rules.Target{Host: args[0], Port: matchPort})
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("no match")
			return nil
		}
		fmt.Printf("matched %s,%s -> %s\n", rule.Kind, rule.Payload, proxy)
		return nil
	},
}

var rulesFindByProxyCmd = &cobra.Command{
	Use:   "find-by-proxy <name>",
	Short: "List rules that target a given proxy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		re, err := openRuleEngine()
		if err != nil {
			return err
		}
		rs, err := re.FindRulesByProxy(context.Background(), args[0])
		if err != nil {
			return err
		}
		for _, r := range rs {
			fmt.Printf("%s,%s,%s\n", r.Kind, r.Payload, r.Target)
		}
		return nil
	},
}

var rulesFindByTypeCmd = &cobra.Command{
	Use:   "find-by-type <type>",
	Short: "List rules of a given kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		re, err := openRuleEngine()
		if err != nil {
			return err
		}
		rs, err := re.FindRulesByKind(context.Background(), mihomo.RuleKind(args[0]))
		if err != nil {
			return err
		}
		for _, r := range rs {
			fmt.Printf("%s,%s,%s\n", r.Kind, r.Payload, r.Target)
		}
		return nil
	},
}

// rulesProviderCmd wraps the engine's rule-provider endpoints
// (spec.md §6.1, §6.4 `rules provider {list|update|health-check}`).
var rulesProviderCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage rule providers",
}

var rulesProviderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured rule providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		client, err := newClient(h)
		if err != nil {
			return err
		}
		info, err := client.RuleProviders(context.Background())
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var rulesProviderUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Force a rule provider to refresh",
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
		if err := client.UpdateRuleProvider(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("updated rule provider %s\n", args[0])
		return nil
	},
}

var rulesProviderHealthCheckCmd = &cobra.Command{
	Use:   "health-check <name>",
	Short: "Trigger a health check for a rule provider",
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
		if err := client.HealthCheckRuleProvider(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("health-checked rule provider %s\n", args[0])
		return nil
	},
}

func init() {
	rulesMatchCmd.Flags().IntVar(&matchPort, "port", 0, "destination port to match against DST-PORT rules")

	rulesProviderCmd.AddCommand(rulesProviderListCmd)
	rulesProviderCmd.AddCommand(rulesProviderUpdateCmd)
	rulesProviderCmd.AddCommand(rulesProviderHealthCheckCmd)

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesStatsCmd)
	rulesCmd.AddCommand(rulesReloadCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesMatchCmd)
	rulesCmd.AddCommand(rulesFindByProxyCmd)
	rulesCmd.AddCommand(rulesFindByTypeCmd)
	rulesCmd.AddCommand(rulesProviderCmd)
}
