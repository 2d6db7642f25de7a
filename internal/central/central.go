// Package central is the caller-facing surface of the device core. It binds
// registry IDs to connection sessions and runs the full
// connect/discover/read-or-subscribe flows against one device at a time.
package central

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dkrol/blescout/internal/gatt"
	"github.com/dkrol/blescout/internal/pipeline"
	"github.com/dkrol/blescout/internal/radio"
	"github.com/dkrol/blescout/internal/registry"
	"github.com/dkrol/blescout/internal/session"
	"github.com/dkrol/blescout/internal/telemetry"
)

// DefaultCollectTimeout bounds how long a climate collection waits for
// required notification fields.
const DefaultCollectTimeout = 30 * time.Second

// Options tunes the manager's sessions and collection deadline.
type Options struct {
	Session        session.Options
	CollectTimeout time.Duration
}

// DefaultOptions returns production budgets.
func DefaultOptions() Options {
	return Options{
		Session:        session.DefaultOptions(),
		CollectTimeout: DefaultCollectTimeout,
	}
}

// Manager exposes device operations by registry ID.
type Manager struct {
	registry *registry.Registry
	logger   *logrus.Logger
	opts     Options
}

// New creates a manager over an already-populated registry.
func New(reg *registry.Registry, logger *logrus.Logger, opts Options) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.CollectTimeout <= 0 {
		opts.CollectTimeout = DefaultCollectTimeout
	}
	return &Manager{registry: reg, logger: logger, opts: opts}
}

// sessionFor resolves a registry ID to a record and a fresh session over its
// peripheral handle. The handle stays owned by that session until the
// operation returns.
func (m *Manager) sessionFor(id int) (registry.DeviceRecord, *session.Session, error) {
	rec, ok := m.registry.Get(id)
	if !ok {
		return registry.DeviceRecord{}, nil, fmt.Errorf("device %d not found", id)
	}
	if rec.Peripheral == nil {
		return registry.DeviceRecord{}, nil, fmt.Errorf("device %d (%s) has no usable peripheral handle", id, rec.MAC)
	}
	return rec, session.New(rec.Peripheral, m.logger, m.opts.Session), nil
}

// Attribute is one rendered metadata value of a device. Err is set when the
// read failed; callers log it and continue.
type Attribute struct {
	Label string
	Value string
	Err   error
}

// DeviceDetails is the metadata summary of one device.
type DeviceDetails struct {
	ID         int
	MAC        string
	Name       string
	Attributes []Attribute
}

// metadataCharacteristic describes one standard GATT metadata read and how
// to render its payload.
type metadataCharacteristic struct {
	label       string
	serviceUUID string
	charUUID    string
	render      func([]byte) string
}

func renderUTF8(b []byte) string { return string(b) }
func renderBytes(b []byte) string {
	return fmt.Sprintf("%v", b)
}
func renderBattery(b []byte) string {
	if len(b) == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d%%", b[0])
}

var metadataCharacteristics = []metadataCharacteristic{
	{"Device Name", "1800", "2a00", renderUTF8},
	{"Appearance", "1800", "2a01", renderBytes},
	{"Peripheral Preferred Connection Parameters", "1800", "2a04", renderBytes},
	{"Firmware Revision", "180a", "2a26", renderUTF8},
	{"Manufacturer Name", "180a", "2a29", renderUTF8},
	{"Battery Level", "180f", "2a19", renderBattery},
}

// DescribeDevice connects, discovers, and reads the standard GAP, Device
// Information, and Battery metadata. Individual characteristics missing on
// the peripheral are reported per attribute, not as an overall failure.
func (m *Manager) DescribeDevice(ctx context.Context, id int) (DeviceDetails, error) {
	rec, sess, err := m.sessionFor(id)
	if err != nil {
		return DeviceDetails{}, err
	}

	details := DeviceDetails{ID: rec.ID, MAC: rec.MAC, Name: rec.Name}

	if err := sess.Connect(ctx); err != nil {
		return details, err
	}
	defer m.disconnect(sess)

	tree, err := gatt.Discover(ctx, sess)
	if err != nil {
		return details, err
	}

	for _, mc := range metadataCharacteristics {
		attr := Attribute{Label: mc.label}

		desc, err := tree.Find(mc.serviceUUID, mc.charUUID)
		if err == nil {
			var value []byte
			value, err = sess.Read(ctx, desc)
			if err == nil {
				attr.Value = mc.render(value)
			}
		}
		attr.Err = err

		details.Attributes = append(details.Attributes, attr)
	}

	return details, nil
}

// ListServices connects, discovers, and returns the full service tree.
func (m *Manager) ListServices(ctx context.Context, id int) ([]radio.Service, error) {
	_, sess, err := m.sessionFor(id)
	if err != nil {
		return nil, err
	}

	if err := sess.Connect(ctx); err != nil {
		return nil, err
	}
	defer m.disconnect(sess)

	tree, err := gatt.Discover(ctx, sess)
	if err != nil {
		return nil, err
	}
	return tree.Services(), nil
}

// ReadClimate subscribes the device's temperature and humidity
// characteristics and collects one complete reading. The sensor model is
// selected by the device's advertised name.
func (m *Manager) ReadClimate(ctx context.Context, id int) (telemetry.Reading, error) {
	rec, sess, err := m.sessionFor(id)
	if err != nil {
		return telemetry.Reading{}, err
	}

	model, ok := telemetry.ModelByName(rec.Name)
	if !ok {
		return telemetry.Reading{}, fmt.Errorf("device %d (%s): no known sensor model for %q", id, rec.MAC, rec.Name)
	}

	if err := sess.Connect(ctx); err != nil {
		return telemetry.Reading{}, err
	}
	defer m.disconnect(sess)

	tree, err := gatt.Discover(ctx, sess)
	if err != nil {
		return telemetry.Reading{}, err
	}

	fields, err := pipeline.ClimateFields(tree, model)
	if err != nil {
		return telemetry.Reading{}, err
	}

	p := pipeline.New(m.logger)
	if err := p.SubscribeAll(ctx, sess, fields); err != nil {
		return telemetry.Reading{}, err
	}

	reading, err := p.Collect(ctx, sess, fields, m.opts.CollectTimeout)
	if err != nil {
		return telemetry.Reading{}, err
	}

	m.logger.WithFields(logrus.Fields{
		"address":     rec.MAC,
		"temperature": reading.Temperature,
		"humidity":    reading.Humidity,
	}).Info("Climate reading collected")
	return reading, nil
}

// disconnect always runs; failures are logged and do not mask the
// operation's own result.
func (m *Manager) disconnect(sess *session.Session) {
	if err := sess.Disconnect(); err != nil {
		m.logger.WithError(err).Warn("Disconnect after operation failed")
	}
}
