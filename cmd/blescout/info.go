package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Read a device's standard metadata",
	Long: `Connect to a device and read its GAP, Device Information, and Battery
characteristics. Characteristics the device does not expose are reported
individually without failing the whole command.`,
	RunE: runInfo,
}

func init() {
	addTargetFlags(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
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

	details, err := e.manager.DescribeDevice(ctx, entry.ID)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	fmt.Printf("%s %s (%s)\n\n", bold.Sprint("Device:"), details.Name, details.MAC)
	for _, attr := range details.Attributes {
		if attr.Err != nil {
			fmt.Printf("  %-44s %s\n", attr.Label+":", color.RedString("unavailable (%v)", attr.Err))
			continue
		}
		fmt.Printf("  %-44s %s\n", attr.Label+":", attr.Value)
	}
	return nil
}
