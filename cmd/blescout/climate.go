package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var climateCmd = &cobra.Command{
	Use:   "climate",
	Short: "Read one temperature/humidity sample from a sensor",
	Long: `Connect to a climate sensor, subscribe to its temperature and humidity
characteristics, and print the first complete reading.`,
	RunE: runClimate,
}

func init() {
	addTargetFlags(climateCmd)
}

func runClimate(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entry, err := e.resolveTarget(ctx, cmd)
	if err != nil {
		return err
	}

	reading, err := e.manager.ReadClimate(ctx, entry.ID)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s): %s\n", entry.Record.Name, entry.Record.MAC, reading)
	return nil
}
