package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkrol/blescout/internal/export"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Periodically read a sensor and export the samples",
	Long: `Read a climate sensor on a fixed interval until interrupted. Each sample
is printed and, when configured, published to MQTT and written to InfluxDB.`,
	RunE: runMonitor,
}

func init() {
	addTargetFlags(monitorCmd)
	monitorCmd.Flags().Duration("interval", 0, "Sampling interval (0 uses config)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
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

	exporters, err := buildExporters(e)
	if err != nil {
		return err
	}
	defer exporters.Close()

	interval := e.cfg.Monitor.Interval
	if flagInterval, _ := cmd.Flags().GetDuration("interval"); flagInterval > 0 {
		interval = flagInterval
	}

	e.logger.WithField("interval", interval).Info("Starting monitor loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := sampleOnce(ctx, e, entry.ID, exporters); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			// one failed sample does not end the loop
			e.logger.WithError(err).Warn("Sample failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func sampleOnce(ctx context.Context, e *env, id int, exporters export.Multi) error {
	reading, err := e.manager.ReadClimate(ctx, id)
	if err != nil {
		return err
	}

	rec, _ := e.registry.Get(id)
	fmt.Printf("%s  %s (%s): %s\n", time.Now().Format(time.RFC3339), rec.Name, rec.MAC, reading)

	return exporters.Export(ctx, export.Sample{
		MAC:       rec.MAC,
		Name:      rec.Name,
		Reading:   reading,
		Timestamp: time.Now(),
	})
}

func buildExporters(e *env) (export.Multi, error) {
	var exporters export.Multi

	if e.cfg.MQTT.Enabled {
		pub, err := export.NewMQTTPublisher(e.cfg.MQTT, e.logger)
		if err != nil {
			return nil, fmt.Errorf("mqtt exporter: %w", err)
		}
		exporters = append(exporters, pub)
	}
	if e.cfg.Influx.Enabled {
		w, err := export.NewInfluxWriter(e.cfg.Influx, e.logger)
		if err != nil {
			return nil, fmt.Errorf("influx exporter: %w", err)
		}
		exporters = append(exporters, w)
	}
	return exporters, nil
}
