package central

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkrol/blescout/internal/pipeline"
	"github.com/dkrol/blescout/internal/radio"
	"github.com/dkrol/blescout/internal/registry"
	"github.com/dkrol/blescout/internal/session"
	"github.com/dkrol/blescout/internal/telemetry"
	"github.com/dkrol/blescout/internal/testutil"
)

const testMAC = "AA:BB:CC:DD:EE:FF"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testOptions() Options {
	rec := &testutil.SleepRecorder{}
	return Options{
		Session: session.Options{
			BackoffUnit: time.Millisecond,
			Sleep:       rec.Sleep,
		},
		CollectTimeout: 5 * time.Second,
	}
}

// register puts one fake peripheral into a fresh registry/manager pair.
func register(t *testing.T, name string, p *testutil.Peripheral) (*Manager, int) {
	t.Helper()

	reg := registry.New(quietLogger())
	id := reg.AddOrUpdate(registry.Observation{
		MAC:        p.Addr(),
		Name:       name,
		RSSI:       -60,
		HasRSSI:    true,
		Peripheral: p,
	})
	return New(reg, quietLogger(), testOptions()), id
}

func metadataPeripheral() *testutil.Peripheral {
	return testutil.NewPeripheral(testMAC).
		WithService("1800",
			radio.Characteristic{UUID: "2a00", Properties: radio.PropRead}).
		WithService("180f",
			radio.Characteristic{UUID: "2a19", Properties: radio.PropRead}).
		WithReadValue("2a00", []byte("MJ_HT_V1")).
		WithReadValue("2a19", []byte{0x55})
}

func TestDescribeDevice(t *testing.T) {
	p := metadataPeripheral()
	m, id := register(t, "MJ_HT_V1", p)

	details, err := m.DescribeDevice(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, testMAC, details.MAC)
	assert.Equal(t, "MJ_HT_V1", details.Name)
	require.Len(t, details.Attributes, 6)

	byLabel := make(map[string]Attribute)
	for _, attr := range details.Attributes {
		byLabel[attr.Label] = attr
	}

	assert.NoError(t, byLabel["Device Name"].Err)
	assert.Equal(t, "MJ_HT_V1", byLabel["Device Name"].Value)
	assert.NoError(t, byLabel["Battery Level"].Err)
	assert.Equal(t, "85%", byLabel["Battery Level"].Value)

	// The fake has no Device Information service; those attributes fail
	// individually without failing the command.
	assert.Error(t, byLabel["Firmware Revision"].Err)
	assert.Error(t, byLabel["Manufacturer Name"].Err)
	assert.Error(t, byLabel["Appearance"].Err)

	assert.Equal(t, 1, p.DisconnectCalls, "describe disconnects when done")
}

func TestDescribeDeviceUnknownID(t *testing.T) {
	m, _ := register(t, "MJ_HT_V1", metadataPeripheral())

	_, err := m.DescribeDevice(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "42")
}

func TestDescribeDeviceNoPeripheralHandle(t *testing.T) {
	reg := registry.New(quietLogger())
	id := reg.AddOrUpdate(registry.Observation{MAC: testMAC, Name: "MJ_HT_V1"})
	m := New(reg, quietLogger(), testOptions())

	_, err := m.DescribeDevice(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable peripheral handle")
}

func TestListServices(t *testing.T) {
	p := metadataPeripheral()
	m, id := register(t, "MJ_HT_V1", p)

	services, err := m.ListServices(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "1800", services[0].UUID)
	assert.Equal(t, "180f", services[1].UUID)
	assert.Equal(t, 1, p.DisconnectCalls)
}

func TestReadClimate(t *testing.T) {
	p := testutil.NewPeripheral(testMAC).WithService(
		telemetry.MJHTV1.ServiceUUID,
		radio.Characteristic{UUID: telemetry.MJHTV1.TemperatureUUID, Properties: radio.PropNotify},
		radio.Characteristic{UUID: telemetry.MJHTV1.HumidityUUID, Properties: radio.PropNotify},
	)
	p.Notify(telemetry.MJHTV1.TemperatureUUID, []byte{0xd0, 0x07, 0x94, 0x11})
	p.Notify(telemetry.MJHTV1.HumidityUUID, []byte{0xd0, 0x07, 0x94, 0x11})

	m, id := register(t, "MJ_HT_V1", p)

	reading, err := m.ReadClimate(context.Background(), id)
	require.NoError(t, err)
	assert.InDelta(t, 20.00, reading.Temperature, 0.001)
	assert.InDelta(t, 45.00, reading.Humidity, 0.001)
	assert.Len(t, p.Subscribed, 2)
	assert.Equal(t, 1, p.DisconnectCalls)
}

func TestReadClimateUnknownModel(t *testing.T) {
	m, id := register(t, "Flower care", testutil.NewPeripheral(testMAC))

	_, err := m.ReadClimate(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no known sensor model")
}

func TestReadClimateTimeout(t *testing.T) {
	p := testutil.NewPeripheral(testMAC).WithService(
		telemetry.MJHTV1.ServiceUUID,
		radio.Characteristic{UUID: telemetry.MJHTV1.TemperatureUUID, Properties: radio.PropNotify},
		radio.Characteristic{UUID: telemetry.MJHTV1.HumidityUUID, Properties: radio.PropNotify},
	)

	reg := registry.New(quietLogger())
	id := reg.AddOrUpdate(registry.Observation{MAC: testMAC, Name: "MJ_HT_V1", Peripheral: p})

	opts := testOptions()
	opts.CollectTimeout = 50 * time.Millisecond
	m := New(reg, quietLogger(), opts)

	_, err := m.ReadClimate(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrCollectTimeout)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, DefaultCollectTimeout, opts.CollectTimeout)
	assert.Equal(t, session.DefaultOptions().ConnectAttempts, opts.Session.ConnectAttempts)
}
