package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestAddOrUpdateAssignsSequentialIDs(t *testing.T) {
	r := New(quietLogger())

	id1 := r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:01", Name: "MJ_HT_V1"})
	id2 := r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:02", Name: "MJ_HT_V1"})
	id3 := r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:03"})

	assert.Equal(t, 1, id1)
	assert.Equal(t, 2, id2)
	assert.Equal(t, 3, id3)
	assert.Equal(t, 3, r.Len())
}

func TestAddOrUpdateDeduplicatesByMAC(t *testing.T) {
	r := New(quietLogger())

	// Same device sighted twice with a fresher RSSI.
	id1 := r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:FF", Name: "MJ_HT_V1", RSSI: -60, HasRSSI: true})
	id2 := r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:FF", Name: "MJ_HT_V1", RSSI: -55, HasRSSI: true})

	assert.Equal(t, 1, id1)
	assert.Equal(t, 1, id2, "re-sighting keeps the assigned ID")
	assert.Equal(t, 1, r.Len(), "one physical device, one record")

	rec, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, -55, rec.RSSI, "record reflects the latest sighting")
}

func TestAddOrUpdatePreservesRSSIWhenAbsent(t *testing.T) {
	r := New(quietLogger())

	id := r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:FF", Name: "MJ_HT_V1", RSSI: -60, HasRSSI: true})
	r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:FF", Name: "MJ_HT_V1"})

	rec, ok := r.Get(id)
	require.True(t, ok)
	assert.True(t, rec.HasRSSI)
	assert.Equal(t, -60, rec.RSSI, "a sighting without RSSI never clears the last known value")
}

func TestAddOrUpdateDefaultsName(t *testing.T) {
	r := New(quietLogger())

	id := r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:FF"})

	rec, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, DefaultDeviceName, rec.Name)
}

func TestAddOrUpdateConcurrentSightings(t *testing.T) {
	r := New(quietLogger())

	// Concurrent callbacks for the same MAC must converge on one record.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(rssi int) {
			defer wg.Done()
			r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:FF", Name: "MJ_HT_V1", RSSI: rssi, HasRSSI: true})
		}(-50 - i)
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	r := New(quietLogger())

	for i := 1; i <= 5; i++ {
		r.AddOrUpdate(Observation{MAC: fmt.Sprintf("AA:BB:CC:DD:EE:%02d", i)})
	}
	// Re-sighting the first device must not reorder it.
	r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:01", Name: "MJ_HT_V1"})

	entries := r.List()
	require.Len(t, entries, 5)
	for i, entry := range entries {
		assert.Equal(t, i+1, entry.ID)
	}
	assert.Equal(t, "MJ_HT_V1", entries[0].Record.Name)
}

func TestListByName(t *testing.T) {
	r := New(quietLogger())
	r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:01", Name: "MJ_HT_V1"})
	r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:02", Name: "Flower care"})
	r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:03", Name: "MJ_HT_V1"})

	assert.Len(t, r.ListByName("MJ_HT"), 2)
	assert.Len(t, r.ListByName("Flower"), 1)
	assert.Empty(t, r.ListByName("mj_ht"), "matching is case-sensitive")
}

func TestCountByName(t *testing.T) {
	r := New(quietLogger())
	r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:01", Name: "MJ_HT_V1"})
	r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:02", Name: "MJ_HT_V1"})
	r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:03", Name: "MJ_HT_V1 Pro"})

	assert.Equal(t, 2, r.CountByName("MJ_HT_V1"), "count matches the exact name only")
	assert.Equal(t, 0, r.CountByName("mj_ht_v1"))
}

func TestGetReturnsSnapshot(t *testing.T) {
	r := New(quietLogger())
	id := r.AddOrUpdate(Observation{MAC: "AA:BB:CC:DD:EE:FF", Name: "MJ_HT_V1"})

	rec, ok := r.Get(id)
	require.True(t, ok)

	rec.Name = "mutated"
	fresh, _ := r.Get(id)
	assert.Equal(t, "MJ_HT_V1", fresh.Name, "callers get copies, not the live record")

	_, ok = r.Get(42)
	assert.False(t, ok)
}

func TestDefaultName(t *testing.T) {
	assert.Equal(t, DefaultDeviceName, DefaultName(""))
	assert.Equal(t, "MJ_HT_V1", DefaultName("MJ_HT_V1"))
}
