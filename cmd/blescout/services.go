package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dkrol/blescout/internal/gatt"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List a device's GATT services and characteristics",
	RunE:  runServices,
}

func init() {
	addTargetFlags(servicesCmd)
}

func runServices(cmd *cobra.Command, args []string) error {
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

	services, err := e.manager.ListServices(ctx, entry.ID)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	fmt.Printf("%s %s (%s)\n\n", bold.Sprint("Device:"), entry.Record.Name, entry.Record.MAC)
	for _, svc := range services {
		name := gatt.KnownServiceName(svc.UUID)
		if name != "" {
			fmt.Printf("Service %s (%s)\n", color.CyanString(svc.UUID), name)
		} else {
			fmt.Printf("Service %s\n", color.CyanString(svc.UUID))
		}
		for _, char := range svc.Characteristics {
			label := ""
			if n := gatt.KnownCharacteristicName(char.UUID); n != "" {
				label = " (" + n + ")"
			}
			fmt.Printf("  %s  [%s]%s\n", char.UUID, char.Properties, label)
		}
	}
	fmt.Printf("\n%d service(s).\n", len(services))
	return nil
}
