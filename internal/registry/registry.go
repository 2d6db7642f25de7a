// Package registry reconciles ephemeral scan sightings into stable device
// identities. Each physically distinct peripheral gets one record, keyed by
// its MAC-like address, with a small process-local integer ID that callers
// use to name the device for the rest of the process lifetime.
package registry

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dkrol/blescout/internal/radio"
)

// DefaultDeviceName is used when an advertisement carries no local name.
const DefaultDeviceName = "Unknown Device"

// DefaultName substitutes the sentinel for an absent advertised name.
// Missing optional advertisement data defaults; it never fails.
func DefaultName(name string) string {
	if name == "" {
		return DefaultDeviceName
	}
	return name
}

// Observation is one scan sighting of a peripheral.
type Observation struct {
	MAC        string
	Name       string // empty when the advertisement carried no name
	RSSI       int
	HasRSSI    bool
	Peripheral radio.Peripheral
}

// DeviceRecord is the stable identity of one peripheral. Records are created
// on first sighting, updated in place on every later sighting of the same
// MAC, and live until the process exits.
type DeviceRecord struct {
	ID   int
	MAC  string
	Name string

	// RSSI is the last observed signal strength; HasRSSI is false until an
	// advertisement reports one.
	RSSI    int
	HasRSSI bool

	// Peripheral is the live (possibly invalidated) connection handle. It is
	// owned by whichever session currently drives it and reassigned only
	// through AddOrUpdate.
	Peripheral radio.Peripheral
}

// Entry pairs an ID with a snapshot of its record for listings.
type Entry struct {
	ID     int
	Record DeviceRecord
}

// Registry maps small integer IDs to device records. All mutation goes
// through AddOrUpdate under one lock, so concurrent scan callbacks observing
// the same MAC can never produce two records.
type Registry struct {
	mu     sync.RWMutex
	byID   *orderedmap.OrderedMap[int, *DeviceRecord]
	byMAC  map[string]int
	nextID int

	logger *logrus.Logger
}

// New creates an empty registry. IDs start at 1.
func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		byID:   orderedmap.New[int, *DeviceRecord](),
		byMAC:  make(map[string]int),
		nextID: 1,
		logger: logger,
	}
}

// AddOrUpdate reconciles one sighting. A known MAC has its name, RSSI, and
// peripheral handle updated in place and keeps its ID; a new MAC gets the
// next unused ID. The assigned ID is returned either way.
func (r *Registry) AddOrUpdate(obs Observation) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := DefaultName(obs.Name)

	if id, ok := r.byMAC[obs.MAC]; ok {
		rec, _ := r.byID.Get(id)
		rec.Name = name
		if obs.HasRSSI {
			rec.RSSI = obs.RSSI
			rec.HasRSSI = true
		}
		if obs.Peripheral != nil {
			rec.Peripheral = obs.Peripheral
		}
		r.logger.WithFields(logrus.Fields{
			"id":      id,
			"address": obs.MAC,
			"name":    name,
		}).Debug("Updated known device")
		return id
	}

	id := r.nextID
	r.nextID++

	rec := &DeviceRecord{
		ID:         id,
		MAC:        obs.MAC,
		Name:       name,
		RSSI:       obs.RSSI,
		HasRSSI:    obs.HasRSSI,
		Peripheral: obs.Peripheral,
	}
	r.byID.Set(id, rec)
	r.byMAC[obs.MAC] = id

	r.logger.WithFields(logrus.Fields{
		"id":      id,
		"address": obs.MAC,
		"name":    name,
	}).Debug("Registered new device")
	return id
}

// Get returns a snapshot of the record with the given ID.
func (r *Registry) Get(id int) (DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID.Get(id)
	if !ok {
		return DeviceRecord{}, false
	}
	return *rec, true
}

// List returns a snapshot of all records in registration order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, r.byID.Len())
	for pair := r.byID.Oldest(); pair != nil; pair = pair.Next() {
		entries = append(entries, Entry{ID: pair.Key, Record: *pair.Value})
	}
	return entries
}

// ListByName returns records whose name contains the pattern.
// Matching is case-sensitive.
func (r *Registry) ListByName(pattern string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []Entry
	for pair := r.byID.Oldest(); pair != nil; pair = pair.Next() {
		if strings.Contains(pair.Value.Name, pattern) {
			entries = append(entries, Entry{ID: pair.Key, Record: *pair.Value})
		}
	}
	return entries
}

// CountByName returns the number of records whose name equals name exactly.
// Scan loops use this to stop once enough sensors of one model are found.
func (r *Registry) CountByName(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for pair := r.byID.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Name == name {
			n++
		}
	}
	return n
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID.Len()
}
