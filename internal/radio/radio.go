// Package radio defines the capability set the rest of the system consumes
// from a BLE central adapter: scanning, connecting, GATT discovery, reads,
// and the notification push stream. Both the live go-ble implementation and
// the test double implement these interfaces, so nothing above this package
// depends on a concrete platform type.
package radio

import (
	"context"
	"fmt"
	"strings"
)

// Advertisement is a single sighting of a peripheral during a scan.
// Name and RSSI may be absent; callers default them rather than fail.
type Advertisement interface {
	Addr() string
	LocalName() string

	// RSSI returns the sighting's signal strength and whether the radio
	// reported one. 0 dBm is a valid reading, not an absence marker.
	RSSI() (int, bool)

	Connectable() bool
}

// Adapter is the OS Bluetooth adapter in central role. One usable adapter
// is assumed.
type Adapter interface {
	// Scan runs discovery until ctx is done, invoking handler for every
	// advertisement sighting (duplicates included when allowDup is set).
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error

	// Peripheral returns the connection handle for a discovered address.
	// The handle may be obtained before any connection exists.
	Peripheral(addr string) Peripheral
}

// Peripheral is the live (possibly invalidated) handle to one remote device.
// A handle is owned by whichever session currently drives it; implementations
// do not need to support concurrent operations from multiple callers.
type Peripheral interface {
	Addr() string

	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool

	// DiscoverServices enumerates the GATT tree. Only valid while connected;
	// the result is invalidated by a disconnect.
	DiscoverServices(ctx context.Context) ([]Service, error)

	// Read reads the current value of a characteristic, identified by its
	// normalized UUID within the last discovered tree.
	Read(ctx context.Context, charUUID string) ([]byte, error)

	// Subscribe enables notifications for a characteristic. Values arrive
	// on the Notifications stream.
	Subscribe(ctx context.Context, charUUID string) error

	// Notifications returns the push stream of subscribed characteristic
	// values. The channel is closed on disconnect.
	Notifications() <-chan Notification
}

// Notification is one unsolicited value push from a peripheral.
type Notification struct {
	CharUUID string // normalized
	Value    []byte
}

// Service is a discovered GATT service snapshot.
type Service struct {
	UUID            string // normalized
	Characteristics []Characteristic
}

// Characteristic is a discovered GATT characteristic snapshot.
type Characteristic struct {
	UUID       string // normalized
	Properties Properties
}

// Properties is the GATT characteristic property bitmask.
type Properties uint8

const (
	PropBroadcast Properties = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

// Has reports whether all properties in p are present.
func (p Properties) Has(want Properties) bool {
	return p&want == want
}

func (p Properties) String() string {
	names := []struct {
		flag Properties
		name string
	}{
		{PropBroadcast, "broadcast"},
		{PropRead, "read"},
		{PropWriteWithoutResponse, "write-without-response"},
		{PropWrite, "write"},
		{PropNotify, "notify"},
		{PropIndicate, "indicate"},
		{PropSignedWrite, "signed-write"},
		{PropExtended, "extended"},
	}

	var set []string
	for _, n := range names {
		if p&n.flag != 0 {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, ",")
}

// ConnectionState classifies connection-related failures.
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State.
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// NormalizeError maps known go-ble error strings to structured ConnectionError
// types so callers can branch on state even if the upstream library changes
// messages slightly. The original error is preserved via wrapping.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case strings.Contains(msg, "already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case strings.Contains(msg, "not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}
