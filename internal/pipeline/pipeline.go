// Package pipeline acquires sensor fields that are only available via push
// notification. It subscribes the characteristics backing a set of named
// fields, then demultiplexes the session's notification stream until every
// required field has been populated once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dkrol/blescout/internal/gatt"
	"github.com/dkrol/blescout/internal/radio"
	"github.com/dkrol/blescout/internal/telemetry"
)

// ErrCollectTimeout reports that required fields never arrived before the
// collection deadline.
var ErrCollectTimeout = errors.New("collection timeout")

// Session is the slice of a connection session the pipeline drives.
// session.Session satisfies it; tests substitute a double.
type Session interface {
	MAC() string
	Subscribe(ctx context.Context, d gatt.Descriptor) error
	Notifications() <-chan radio.Notification
}

// Field binds one named sensor value to the characteristic that pushes it
// and the decoder that turns its payload into a physical unit.
type Field struct {
	Name   string
	Char   gatt.Descriptor
	Decode func([]byte) (float32, error)
	Assign func(*telemetry.Reading, float32)
}

// ClimateFields resolves the temperature and humidity fields of a sensor
// model against a discovered service tree.
func ClimateFields(tree *gatt.ServiceTree, m telemetry.Model) ([]Field, error) {
	temp, err := tree.Find(m.ServiceUUID, m.TemperatureUUID)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", m.Name, err)
	}
	hum, err := tree.Find(m.ServiceUUID, m.HumidityUUID)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", m.Name, err)
	}

	return []Field{
		{
			Name:   "temperature",
			Char:   temp,
			Decode: m.DecodeTemperature,
			Assign: func(r *telemetry.Reading, v float32) { r.Temperature = v },
		},
		{
			Name:   "humidity",
			Char:   hum,
			Decode: m.DecodeHumidity,
			Assign: func(r *telemetry.Reading, v float32) { r.Humidity = v },
		},
	}, nil
}

// Pipeline subscribes and collects notification-fed fields for one session.
type Pipeline struct {
	logger *logrus.Logger
}

// New creates a pipeline.
func New(logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	return &Pipeline{logger: logger}
}

// SubscribeAll subscribes every field's characteristic. The session performs
// the NOTIFY flag check, implicit reconnect, and per-characteristic retry;
// the first characteristic whose retries are exhausted aborts the whole
// pipeline with that characteristic's error.
func (p *Pipeline) SubscribeAll(ctx context.Context, sess Session, fields []Field) error {
	for _, f := range fields {
		if err := sess.Subscribe(ctx, f.Char); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		p.logger.WithFields(logrus.Fields{
			"address":   sess.MAC(),
			"field":     f.Name,
			"char_uuid": f.Char.UUID,
		}).Debug("Field subscribed")
	}
	return nil
}

// Collect consumes the session's notification stream until every field has
// been populated at least once, then returns the completed reading without
// waiting for further notifications. Only the first value observed per field
// is retained. Elapsing the timeout (or ctx) first fails the collection.
func (p *Pipeline) Collect(ctx context.Context, sess Session, fields []Field, timeout time.Duration) (telemetry.Reading, error) {
	var reading telemetry.Reading

	byChar := make(map[string]Field, len(fields))
	pending := make(map[string]bool, len(fields))
	for _, f := range fields {
		byChar[f.Char.UUID] = f
		pending[f.Name] = true
	}
	if len(pending) == 0 {
		return reading, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	notifications := sess.Notifications()
	for {
		select {
		case <-ctx.Done():
			return reading, fmt.Errorf("device %s: collect: %w", sess.MAC(), ctx.Err())

		case <-timer.C:
			return reading, fmt.Errorf("device %s: collect: missing %s: %w",
				sess.MAC(), strings.Join(pendingNames(pending), ", "), ErrCollectTimeout)

		case n, ok := <-notifications:
			if !ok {
				return reading, fmt.Errorf("device %s: collect: notification stream closed: %w",
					sess.MAC(), radio.ErrNotConnected)
			}

			f, wanted := byChar[gatt.NormalizeUUID(n.CharUUID)]
			if !wanted || !pending[f.Name] {
				continue
			}

			value, err := f.Decode(n.Value)
			if err != nil {
				// Malformed payloads are not retryable; surface immediately.
				return reading, fmt.Errorf("device %s: collect %s: %w", sess.MAC(), f.Name, err)
			}

			f.Assign(&reading, value)
			delete(pending, f.Name)
			p.logger.WithFields(logrus.Fields{
				"address": sess.MAC(),
				"field":   f.Name,
				"value":   value,
			}).Debug("Field collected")

			if len(pending) == 0 {
				return reading, nil
			}
		}
	}
}

func pendingNames(pending map[string]bool) []string {
	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
