package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func runEngineStart(cmd *cobra.Command, args []string) error {
	h, err := openHome()
	if err != nil {
		return err
	}
	sup, err := openSupervisor(h)
	if err != nil {
		return err
	}
	if err := sup.Start(context.Background()); err != nil {
		return err
	}
	fmt.Println("engine started")
	return nil
}

func runEngineStop(cmd *cobra.Command, args []string) error {
	h, err := openHome()
	if err != nil {
		return err
	}
	sup, err := openSupervisor(h)
	if err != nil {
		return err
	}
	if err := sup.Stop(context.Background()); err != nil {
		return err
	}
	fmt.Println("engine stopped")
	return nil
}

func runEngineRestart(cmd *cobra.Command, args []string) error {
	h, err := openHome()
	if err != nil {
		return err
	}
	sup, err := openSupervisor(h)
	if err != nil {
		return err
	}
	if err := sup.Restart(context.Background()); err != nil {
		return err
	}
	fmt.Println("engine restarted")
	return nil
}

func runEngineStatus(cmd *cobra.Command, args []string) error {
	h, err := openHome()
	if err != nil {
		return err
	}
	sup, err := openSupervisor(h)
	if err != nil {
		return err
	}
	fmt.Println(sup.Status(context.Background()))
	return nil
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the supervised engine process",
	RunE:  runEngineStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the supervised engine process",
	RunE:  runEngineStop,
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the supervised engine process",
	RunE:  runEngineRestart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the supervised engine process's status",
	RunE:  runEngineStatus,
}
