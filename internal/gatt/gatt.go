// Package gatt resolves discovered GATT trees into characteristic
// descriptors. A ServiceTree is an immutable snapshot of one connected
// session's discovery; it is not carried across reconnects because the
// underlying handles are only valid while connected.
package gatt

import (
	"context"
	"fmt"

	"github.com/dkrol/blescout/internal/radio"
)

// NotFoundError reports a BLE resource missing from a discovered tree.
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	if e.Resource == "service" {
		return fmt.Sprintf("service %q not found (wanted characteristic %q)", e.UUIDs[0], e.UUIDs[1])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// UnsupportedOperationError reports a characteristic lacking a property flag
// the requested operation needs. It is raised before any radio call.
type UnsupportedOperationError struct {
	CharUUID string
	Missing  radio.Properties
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("characteristic %q does not support %s", e.CharUUID, e.Missing)
}

/// Descriptor identifies one resolved characteristic: where it lives and what
// it can do. Valid for the lifetime of the session it was discovered on.
type Descriptor struct {
	ServiceUUID string
	UUID        string
	Properties  radio.Properties
}

// DiscoverySession is the slice of a connection session that discovery needs.
type DiscoverySession interface {
	IsConnected() bool
	Discover(ctx context.Context) ([]radio.Service, error)
}

// ServiceTree is an immutable snapshot of one discovery pass.
type ServiceTree struct {
	services []radio.Service
}

// Discover runs GATT discovery on a connected session and captures the
// result. Fails with ErrNotConnected when the session is down: discovery
// does not connect implicitly.
func Discover(ctx context.Context, sess DiscoverySession) (*ServiceTree, error) {
	if !sess.IsConnected() {
		return nil, fmt.Errorf("service discovery: %w", radio.ErrNotConnected)
	}

	services, err := sess.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("service discovery: %w", err)
	}

	// Deep-copy so later adapter-side mutation cannot leak into the snapshot.
	snapshot := make([]radio.Service, len(services))
	for i, svc := range services {
		chars := make([]radio.Characteristic, len(svc.Characteristics))
		copy(chars, svc.Characteristics)
		snapshot[i] = radio.Service{UUID: svc.UUID, Characteristics: chars}
	}

	return &ServiceTree{services: snapshot}, nil
}

// NewServiceTree builds a snapshot directly from discovery results.
func NewServiceTree(services []radio.Service) *ServiceTree {
	return &ServiceTree{services: services}
}

// Services returns the snapshot's services in discovery order.
func (t *ServiceTree) Services() []radio.Service {
	return t.services
}

// Find resolves a (service UUID, characteristic UUID) pair to a descriptor.
// Matching is case-insensitive on hex digits and tolerant of dashed, short,
// and 0x-prefixed forms. Returns the first exact match.
func (t *ServiceTree) Find(serviceUUID, charUUID string) (Descriptor, error) {
	wantSvc := NormalizeUUID(serviceUUID)
	wantChar := NormalizeUUID(charUUID)

	found := false
	for _, svc := range t.services {
		if NormalizeUUID(svc.UUID) != wantSvc {
			continue
		}
		found = true
		for _, char := range svc.Characteristics {
			if NormalizeUUID(char.UUID) == wantChar {
				return Descriptor{
					ServiceUUID: wantSvc,
					UUID:        NormalizeUUID(char.UUID),
					Properties:  char.Properties,
				}, nil
			}
		}
	}

	if !found {
		// The caller asked for a pair; naming the characteristic too makes
		// the failure traceable to the original request.
		return Descriptor{}, &NotFoundError{Resource: "service", UUIDs: []string{serviceUUID, charUUID}}
	}
	return Descriptor{}, &NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
}

// Require fails fast when the descriptor lacks a property flag the caller is
// about to rely on, instead of letting the radio layer reject the operation.
func Require(d Descriptor, want radio.Properties) error {
	if d.Properties.Has(want) {
		return nil
	}
	return &UnsupportedOperationError{CharUUID: d.UUID, Missing: want &^ d.Properties}
}
