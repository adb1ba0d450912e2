package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/monitor"
)

var (
	monitorIntervalSeconds int
	monitorDurationSeconds int
)

// monitorCmd runs the telemetry sampling loop in the foreground,
// printing a status line on every tick until interrupted or the
// optional --duration elapses (spec.md §6.4 `monitor [--interval S]
// [--duration S]`, grounded on original_source/src/monitor.rs's
// monitor_loop).
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch engine health and telemetry",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		client, err := newClient(h)
		if err != nil {
			return err
		}

		cfg := monitor.DefaultConfig()
		if monitorIntervalSeconds > 0 {
			cfg.Interval = time.Duration(monitorIntervalSeconds) * time.Second
		}
		cfg.DBPath = h.MonitorDBFile()

		m, err := monitor.WithConfig(client, cfg)
		if err != nil {
			return err
		}
		defer m.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		if monitorDurationSeconds > 0 {
			var durCancel context.CancelFunc
			ctx, durCancel = context.WithTimeout(ctx, time.Duration(monitorDurationSeconds)*time.Second)
			defer durCancel()
		}

		if err := m.Start(ctx); err != nil {
			return err
		}
		defer m.Stop()

		fmt.Fprintf(os.Stderr, "monitoring (interval=%s); press Ctrl+C to stop\n", cfg.Interval)

		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				status, err := m.GetSystemStatus(ctx)
				if err != nil {
					fmt.Fprintf(os.Stderr, "status check failed: %v\n", err)
					continue
				}
				fmt.Printf("[%s] health=%s connections=%d up=%d down=%d mem=%d/%d\n",
					time.Now().Format(time.RFC3339),
					status.Health, status.ActiveConnections,
					status.Traffic.Up, status.Traffic.Down,
					status.Memory.InUse, status.Memory.OSLimit)
			}
		}
	},
}

func init() {
	monitorCmd.Flags().IntVar(&monitorIntervalSeconds, "interval", 0, "sampling interval in seconds (default 10s)")
	monitorCmd.Flags().IntVar(&monitorDurationSeconds, "duration", 0, "stop after this many seconds (0 = run until interrupted)")
}
