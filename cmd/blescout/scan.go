package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dkrol/blescout/internal/registry"
	"github.com/dkrol/blescout/internal/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover nearby BLE devices",
	Long: `Scan for BLE advertisements and list every discovered device with its
process-local ID, address, name, and signal strength.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().Duration("window", 0, "Scan window duration (0 uses config)")
	scanCmd.Flags().Int("attempts", 0, "Number of scan windows (0 uses config)")
	scanCmd.Flags().String("name", "", "Only list devices whose name contains this substring")
	scanCmd.Flags().String("stop-name", "", "Stop scanning early once --stop-count devices with this exact name are found")
	scanCmd.Flags().Int("stop-count", 0, "Device count for --stop-name")
}

func runScan(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := e.scanOptions()
	if window, _ := cmd.Flags().GetDuration("window"); window > 0 {
		opts.Window = window
	}
	if attempts, _ := cmd.Flags().GetInt("attempts"); attempts > 0 {
		opts.Attempts = attempts
	}
	stopName, _ := cmd.Flags().GetString("stop-name")
	stopCount, _ := cmd.Flags().GetInt("stop-count")
	opts.StopAfter = scan.StopCondition{Name: stopName, Count: stopCount}

	// Print discoveries live while the windows run; the full table follows.
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case ev := <-e.scanner.Events():
				if ev.Type == scan.EventNew {
					fmt.Printf("[%d] %s  %s (%d dBm)\n", ev.ID, ev.MAC, ev.Name, ev.RSSI)
				}
			case <-done:
				return
			}
		}
	}()

	err = e.scanner.Scan(ctx, opts)
	close(done)
	<-finished
	if err != nil {
		return err
	}
	fmt.Println()

	pattern, _ := cmd.Flags().GetString("name")
	var entries []registry.Entry
	if pattern != "" {
		entries = e.registry.ListByName(pattern)
	} else {
		entries = e.registry.List()
	}

	printDeviceTable(entries)
	return nil
}

func printDeviceTable(entries []registry.Entry) {
	if len(entries) == 0 {
		fmt.Println("No devices found.")
		return
	}

	color.New(color.Bold).Println("Discovered devices:")

	// Plain cells: ANSI escapes confuse tabwriter's width accounting.
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADDRESS\tNAME\tRSSI")
	for _, entry := range entries {
		rssi := "n/a"
		if entry.Record.HasRSSI {
			rssi = fmt.Sprintf("%d dBm", entry.Record.RSSI)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", entry.ID, entry.Record.MAC, entry.Record.Name, rssi)
	}
	w.Flush()

	fmt.Printf("\n%d device(s) found.\n", len(entries))
}
