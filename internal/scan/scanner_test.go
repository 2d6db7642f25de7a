package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkrol/blescout/internal/radio"
	"github.com/dkrol/blescout/internal/registry"
	"github.com/dkrol/blescout/internal/testutil"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func drainEvents(s *Scanner) []Event {
	var events []Event
	for {
		select {
		case e := <-s.Events():
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestScanRegistersDevices(t *testing.T) {
	adapter := testutil.NewAdapter().WithAdvertisements(
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:01", AdvName: "MJ_HT_V1", AdvRSSI: -60, AdvHasRSSI: true},
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:02", AdvRSSI: -72, AdvHasRSSI: true},
	)
	reg := registry.New(quietLogger())
	s := New(adapter, reg, quietLogger())

	require.NoError(t, s.Scan(context.Background(), Options{Attempts: 1}))

	entries := reg.List()
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].ID)
	assert.Equal(t, "MJ_HT_V1", entries[0].Record.Name)
	assert.Equal(t, -60, entries[0].Record.RSSI)
	assert.Equal(t, 2, entries[1].ID)
	assert.Equal(t, registry.DefaultDeviceName, entries[1].Record.Name)
	assert.NotNil(t, entries[0].Record.Peripheral, "records carry a connectable handle")
}

func TestScanDeduplicatesRepeatSightings(t *testing.T) {
	// The same sensor advertising twice in one window with a fresher RSSI.
	adapter := testutil.NewAdapter().WithAdvertisements(
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:FF", AdvName: "MJ_HT_V1", AdvRSSI: -60, AdvHasRSSI: true},
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:FF", AdvName: "MJ_HT_V1", AdvRSSI: -55, AdvHasRSSI: true},
	)
	reg := registry.New(quietLogger())
	s := New(adapter, reg, quietLogger())

	require.NoError(t, s.Scan(context.Background(), Options{Attempts: 1}))

	require.Equal(t, 1, reg.Len())
	rec, ok := reg.Get(1)
	require.True(t, ok)
	assert.Equal(t, -55, rec.RSSI)

	events := drainEvents(s)
	require.Len(t, events, 2)
	assert.Equal(t, EventNew, events[0].Type)
	assert.Equal(t, 1, events[0].ID)
	assert.Equal(t, EventUpdated, events[1].Type)
	assert.Equal(t, 1, events[1].ID, "re-sightings keep the assigned ID")
}

func TestScanWindowSummaryCountsSightings(t *testing.T) {
	adapter := testutil.NewAdapter().WithAdvertisements(
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:01", AdvName: "MJ_HT_V1", AdvRSSI: -60, AdvHasRSSI: true},
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:01", AdvName: "MJ_HT_V1", AdvRSSI: -58, AdvHasRSSI: true},
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:02", AdvRSSI: -70, AdvHasRSSI: true},
	)
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s := New(adapter, registry.New(quietLogger()), logger)

	require.NoError(t, s.Scan(context.Background(), Options{Attempts: 1}))

	var summary *logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Scan window completed" {
			summary = entry
		}
	}
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Data["window_devices"])
	assert.Equal(t, 3, summary.Data["sightings"], "duplicate sightings are counted per window")
}

func TestScanMultipleAttempts(t *testing.T) {
	adapter := testutil.NewAdapter().WithAdvertisements(
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:01", AdvName: "MJ_HT_V1", AdvRSSI: -60, AdvHasRSSI: true},
	)
	reg := registry.New(quietLogger())
	s := New(adapter, reg, quietLogger())

	require.NoError(t, s.Scan(context.Background(), Options{Attempts: 3}))

	assert.Equal(t, 3, adapter.ScanCalls)
	assert.Equal(t, 1, reg.Len(), "windows accumulate into one registry")
}

func TestScanStopsEarlyOnCondition(t *testing.T) {
	adapter := testutil.NewAdapter().WithAdvertisements(
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:01", AdvName: "MJ_HT_V1", AdvRSSI: -60, AdvHasRSSI: true},
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:02", AdvName: "MJ_HT_V1", AdvRSSI: -70, AdvHasRSSI: true},
	)
	reg := registry.New(quietLogger())
	s := New(adapter, reg, quietLogger())

	err := s.Scan(context.Background(), Options{
		Attempts:  5,
		StopAfter: StopCondition{Name: "MJ_HT_V1", Count: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.ScanCalls, "condition met after the first window")
}

func TestScanPropagatesAdapterFailure(t *testing.T) {
	adapter := testutil.NewAdapter()
	adapter.ScanErr = errors.New("hci device down")
	s := New(adapter, registry.New(quietLogger()), quietLogger())

	err := s.Scan(context.Background(), Options{Attempts: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hci device down")
}

func TestScanCancelledContext(t *testing.T) {
	adapter := testutil.NewAdapter().WithAdvertisements(
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:01", AdvRSSI: -60, AdvHasRSSI: true},
	)
	s := New(adapter, registry.New(quietLogger()), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Scan(ctx, Options{Attempts: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandleAdvertisementMissingRSSI(t *testing.T) {
	adapter := testutil.NewAdapter().WithAdvertisements(
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:01", AdvName: "MJ_HT_V1"},
	)
	reg := registry.New(quietLogger())
	s := New(adapter, reg, quietLogger())

	require.NoError(t, s.Scan(context.Background(), Options{Attempts: 1}))

	rec, ok := reg.Get(1)
	require.True(t, ok)
	assert.False(t, rec.HasRSSI)
}

func TestHandleAdvertisementZeroRSSIIsPresent(t *testing.T) {
	// 0 dBm is a legitimate reading, not an absence marker.
	adapter := testutil.NewAdapter().WithAdvertisements(
		testutil.Advertisement{AdvAddr: "AA:BB:CC:DD:EE:01", AdvName: "MJ_HT_V1", AdvRSSI: 0, AdvHasRSSI: true},
	)
	reg := registry.New(quietLogger())
	s := New(adapter, reg, quietLogger())

	require.NoError(t, s.Scan(context.Background(), Options{Attempts: 1}))

	rec, ok := reg.Get(1)
	require.True(t, ok)
	assert.True(t, rec.HasRSSI)
	assert.Equal(t, 0, rec.RSSI)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 1, opts.Attempts)
	assert.True(t, opts.DuplicateFilter)
	assert.False(t, opts.StopAfter.enabled())
}

var _ radio.Advertisement = testutil.Advertisement{}
