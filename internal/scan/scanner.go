// Package scan drives the radio adapter's discovery and reconciles every
// sighting into the device registry.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/dkrol/blescout/internal/radio"
	"github.com/dkrol/blescout/internal/registry"
)

// EventType marks whether a device was newly discovered or re-sighted.
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
)

// Event is published for every reconciled sighting.
type Event struct {
	Type EventType
	ID   int
	MAC  string
	Name string
	RSSI int
}

// StopCondition ends a multi-attempt scan early, e.g. once enough sensors
// of one model have been registered.
type StopCondition struct {
	Name  string // exact advertised name
	Count int    // stop once this many are registered
}

func (c StopCondition) enabled() bool {
	return c.Name != "" && c.Count > 0
}

// Options configures scanning behavior.
type Options struct {
	Window          time.Duration
	Attempts        int
	DuplicateFilter bool
	StopAfter       StopCondition
}

// DefaultOptions returns the default scanning options.
func DefaultOptions() Options {
	return Options{
		Window:          10 * time.Second,
		Attempts:        1,
		DuplicateFilter: true,
	}
}

// Scanner feeds advertisement sightings into a registry.
type Scanner struct {
	adapter  radio.Adapter
	registry *registry.Registry
	logger   *logrus.Logger
	events   *RingChannel[Event]

	// sightings counts per-window advertisement sightings by address.
	// Radio stacks deliver callbacks concurrently, hence the lock-free map.
	sightings *hashmap.Map[string, int]
}

// New creates a scanner over the given adapter and registry.
func New(adapter radio.Adapter, reg *registry.Registry, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		adapter:  adapter,
		registry: reg,
		logger:   logger,
		events:   NewRingChannel[Event](100),
	}
}

// Events returns the stream of device discovered/updated events.
func (s *Scanner) Events() <-chan Event {
	return s.events.C()
}

// Scan runs opts.Attempts discovery windows, reconciling each sighting into
// the registry. The window deadline ending a pass is not an error. A
// StopAfter condition short-circuits remaining attempts once satisfied.
func (s *Scanner) Scan(ctx context.Context, opts Options) error {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	s.logger.WithFields(logrus.Fields{
		"window":   opts.Window,
		"attempts": opts.Attempts,
	}).Info("Starting BLE scan")

	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.logger.WithField("attempt", fmt.Sprintf("%d/%d", attempt, opts.Attempts)).Info("Scan window")
		s.sightings = hashmap.New[string, int]()

		scanCtx := ctx
		var cancel context.CancelFunc
		if opts.Window > 0 {
			scanCtx, cancel = context.WithTimeout(ctx, opts.Window)
		}
		err := s.adapter.Scan(scanCtx, !opts.DuplicateFilter, s.handleAdvertisement)
		if cancel != nil {
			cancel()
		}
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("scan failed: %w", err)
		}

		sightings := 0
		s.sightings.Range(func(_ string, n int) bool {
			sightings += n
			return true
		})
		s.logger.WithFields(logrus.Fields{
			"attempt":        fmt.Sprintf("%d/%d", attempt, opts.Attempts),
			"window_devices": s.sightings.Len(),
			"sightings":      sightings,
		}).Info("Scan window completed")

		if opts.StopAfter.enabled() && s.registry.CountByName(opts.StopAfter.Name) >= opts.StopAfter.Count {
			s.logger.WithFields(logrus.Fields{
				"name":  opts.StopAfter.Name,
				"count": opts.StopAfter.Count,
			}).Info("Stop condition met, ending scan early")
			break
		}
	}

	s.logger.WithField("device_count", s.registry.Len()).Info("BLE scan completed")
	return nil
}

// handleAdvertisement reconciles one sighting into the registry and
// publishes a discovered/updated event.
func (s *Scanner) handleAdvertisement(adv radio.Advertisement) {
	addr := adv.Addr()

	seen, _ := s.sightings.Get(addr)
	s.sightings.Set(addr, seen+1)

	rssi, hasRSSI := adv.RSSI()
	obs := registry.Observation{
		MAC:        addr,
		Name:       adv.LocalName(),
		RSSI:       rssi,
		HasRSSI:    hasRSSI,
		Peripheral: s.adapter.Peripheral(addr),
	}

	before := s.registry.Len()
	id := s.registry.AddOrUpdate(obs)

	event := Event{
		ID:   id,
		MAC:  addr,
		Name: registry.DefaultName(adv.LocalName()),
		RSSI: rssi,
	}
	if s.registry.Len() > before {
		event.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"id":      id,
			"address": addr,
			"name":    event.Name,
			"rssi":    rssi,
		}).Info("Discovered new device")
	} else {
		event.Type = EventUpdated
		if seen > 0 {
			s.logger.WithFields(logrus.Fields{
				"address":   addr,
				"sightings": seen + 1,
			}).Debug("Repeat sighting within window")
		}
	}

	s.events.Send(event)
}
