package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dkrol/blescout/internal/central"
	"github.com/dkrol/blescout/internal/config"
	"github.com/dkrol/blescout/internal/radio/goble"
	"github.com/dkrol/blescout/internal/registry"
	"github.com/dkrol/blescout/internal/scan"
	"github.com/dkrol/blescout/internal/session"
)

// env is the per-invocation wiring shared by all device commands.
type env struct {
	cfg      *config.Config
	logger   *logrus.Logger
	registry *registry.Registry
	scanner  *scan.Scanner
	manager  *central.Manager
}

func newEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	adapter, err := goble.NewAdapter(logger)
	if err != nil {
		return nil, err
	}

	reg := registry.New(logger)
	manager := central.New(reg, logger, central.Options{
		Session: session.Options{
			ConnectAttempts:   cfg.Device.ConnectAttempts,
			ReadAttempts:      cfg.Device.ReadAttempts,
			SubscribeAttempts: cfg.Device.SubscribeAttempts,
			BackoffUnit:       cfg.Device.BackoffUnit,
			SettleDelay:       cfg.Device.SettleDelay,
			PacingDelay:       cfg.Device.PacingDelay,
			SubscribeDelay:    cfg.Device.SubscribeDelay,
		},
		CollectTimeout: cfg.Device.CollectTimeout,
	})

	return &env{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		scanner:  scan.New(adapter, reg, logger),
		manager:  manager,
	}, nil
}

func (e *env) scanOptions() scan.Options {
	return scan.Options{
		Window:          e.cfg.Scan.Window,
		Attempts:        e.cfg.Scan.Attempts,
		DuplicateFilter: e.cfg.Scan.DuplicateFilter,
	}
}

// addTargetFlags registers the device-selection flags shared by all
// commands that operate on a single device.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("address", "", "Target device MAC address")
	cmd.Flags().String("name", "", "Target device by advertised name substring (first match)")
}

// resolveTarget scans to populate the registry, then selects the requested
// device. IDs are assigned in discovery order within this invocation.
func (e *env) resolveTarget(ctx context.Context, cmd *cobra.Command) (registry.Entry, error) {
	address, _ := cmd.Flags().GetString("address")
	name, _ := cmd.Flags().GetString("name")
	if address == "" && name == "" {
		return registry.Entry{}, fmt.Errorf("select a device with --address or --name")
	}

	if err := e.scanner.Scan(ctx, e.scanOptions()); err != nil {
		return registry.Entry{}, err
	}

	for _, entry := range e.registry.List() {
		if address != "" && strings.EqualFold(entry.Record.MAC, address) {
			return entry, nil
		}
		if address == "" && name != "" && strings.Contains(entry.Record.Name, name) {
			return entry, nil
		}
	}

	if address != "" {
		return registry.Entry{}, fmt.Errorf("device %s not discovered (scanned %s)", address, e.cfg.Scan.Window)
	}
	return registry.Entry{}, fmt.Errorf("no device matching name %q discovered (scanned %s)", name, e.cfg.Scan.Window)
}
