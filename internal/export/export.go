// Package export forwards collected sensor readings to external sinks.
// Exporters are optional; the acquisition core never depends on them.
package export

import (
	"context"
	"errors"
	"time"

	"github.com/dkrol/blescout/internal/telemetry"
)

// Sample is one exported reading with its provenance.
type Sample struct {
	MAC       string
	Name      string
	Reading   telemetry.Reading
	Timestamp time.Time
}

// Exporter delivers samples to one sink.
type Exporter interface {
	Export(ctx context.Context, s Sample) error
	Close()
}

// Multi fans a sample out to several exporters, collecting all failures.
type Multi []Exporter

// Export delivers to every exporter; errors are joined, not short-circuited.
func (m Multi) Export(ctx context.Context, s Sample) error {
	var errs []error
	for _, e := range m {
		if err := e.Export(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every exporter.
func (m Multi) Close() {
	for _, e := range m {
		e.Close()
	}
}
