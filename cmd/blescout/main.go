package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds a 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blescout",
	Short: "BLE sensor discovery and acquisition tool",
	Long: `blescout discovers Bluetooth Low Energy sensors and acquires their
telemetry over unreliable radio links:

- Scan and register nearby BLE devices under stable numeric IDs
- Read standard GAP / Device Information / Battery metadata
- Dump GATT services, characteristics, and property flags
- Collect temperature and humidity from notification-only sensors
- Periodically monitor a sensor and forward readings to MQTT or InfluxDB

Built for Xiaomi Mijia MJ_HT_V1 hygrometers; other fixed-layout sensor
models plug in as decoding profiles.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(servicesCmd)
	rootCmd.AddCommand(climateCmd)
	rootCmd.AddCommand(monitorCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
