// Package goble implements the radio adapter interfaces on top of the
// go-ble library. One usable OS adapter is assumed.
package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/dkrol/blescout/internal/gatt"
	"github.com/dkrol/blescout/internal/radio"
)

// notificationBuffer bounds the per-peripheral notification channel.
const notificationBuffer = 128

// DeviceFactory creates ble.Device instances (can be overridden in tests).
var DeviceFactory = func() (ble.Device, error) {
	return newNativeDevice()
}

// Adapter is the go-ble backed radio.Adapter.
type Adapter struct {
	logger *logrus.Logger

	mu          sync.Mutex
	dev         ble.Device
	peripherals map[string]*peripheral
}

// NewAdapter initializes the OS Bluetooth adapter.
func NewAdapter(logger *logrus.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	return &Adapter{
		logger:      logger,
		dev:         dev,
		peripherals: make(map[string]*peripheral),
	}, nil
}

// Scan runs discovery until ctx is done.
func (a *Adapter) Scan(ctx context.Context, allowDup bool, handler func(radio.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(&advertisement{adv: adv})
	}
	if err := a.dev.Scan(ctx, allowDup, bleHandler); err != nil {
		return radio.NormalizeError(err)
	}
	return nil
}

// Peripheral returns the handle for a discovered address. Handles are cached
// so a device keeps one handle across repeated scans.
func (a *Adapter) Peripheral(addr string) radio.Peripheral {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.peripherals[addr]; ok {
		return p
	}
	p := &peripheral{addr: addr, logger: a.logger}
	a.peripherals[addr] = p
	return p
}

// advertisement adapts ble.Advertisement to radio.Advertisement.
type advertisement struct {
	adv ble.Advertisement
}

func (a *advertisement) Addr() string      { return a.adv.Addr().String() }
func (a *advertisement) LocalName() string { return a.adv.LocalName() }
func (a *advertisement) Connectable() bool { return a.adv.Connectable() }

// RSSI is always present in HCI advertising reports.
func (a *advertisement) RSSI() (int, bool) { return a.adv.RSSI(), true }

// notificationStream is the bounded drop-oldest notification buffer for one
// link. go-ble invokes subscribe handlers from its own goroutine, which can
// race the disconnect watcher; sends and close share one lock so an in-flight
// notification can never hit a closed channel.
type notificationStream struct {
	mu     sync.Mutex
	ch     chan radio.Notification
	closed bool
}

func newNotificationStream() *notificationStream {
	return &notificationStream{ch: make(chan radio.Notification, notificationBuffer)}
}

// send inserts a notification, discarding the oldest when the buffer is
// full. Sends after close are dropped.
func (s *notificationStream) send(n radio.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- n:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- n:
		default:
		}
	}
}

func (s *notificationStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// peripheral is the live go-ble connection handle for one address.
type peripheral struct {
	addr   string
	logger *logrus.Logger

	mu            sync.Mutex
	client        ble.Client
	connected     bool
	chars         map[string]*ble.Characteristic // normalized UUID -> live handle
	notifications *notificationStream
}

func (p *peripheral) Addr() string {
	return p.addr
}

func (p *peripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *peripheral) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return nil
	}

	client, err := ble.Dial(ctx, ble.NewAddr(p.addr))
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.addr, radio.NormalizeError(err))
	}

	p.client = client
	p.connected = true
	p.chars = nil // previous discovery is invalid on a fresh link
	p.notifications = newNotificationStream()

	// The link can drop from the remote side at any time; watch for it so
	// Connected() reflects reality and the notification stream gets EOF.
	go p.watchDisconnect(client, p.notifications)

	p.logger.WithField("address", p.addr).Debug("Link established")
	return nil
}

func (p *peripheral) watchDisconnect(client ble.Client, notifications *notificationStream) {
	<-client.Disconnected()

	p.mu.Lock()
	if p.client == client {
		p.connected = false
		p.client = nil
		p.chars = nil
	}
	p.mu.Unlock()

	notifications.close()
	p.logger.WithField("address", p.addr).Debug("Link dropped")
}

func (p *peripheral) Disconnect() error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil {
		return nil
	}
	// State cleanup happens in watchDisconnect once the link actually drops.
	if err := client.CancelConnection(); err != nil {
		return radio.NormalizeError(err)
	}
	return nil
}

func (p *peripheral) DiscoverServices(ctx context.Context) ([]radio.Service, error) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil {
		return nil, radio.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("discover profile: %w", radio.NormalizeError(err))
	}

	chars := make(map[string]*ble.Characteristic)
	services := make([]radio.Service, 0, len(profile.Services))
	for _, svc := range profile.Services {
		out := radio.Service{UUID: gatt.NormalizeUUID(svc.UUID.String())}
		for _, char := range svc.Characteristics {
			uuid := gatt.NormalizeUUID(char.UUID.String())
			chars[uuid] = char
			out.Characteristics = append(out.Characteristics, radio.Characteristic{
				UUID:       uuid,
				Properties: convertProperties(char.Property),
			})
		}
		services = append(services, out)
	}

	p.mu.Lock()
	p.chars = chars
	p.mu.Unlock()

	return services, nil
}

func (p *peripheral) Read(ctx context.Context, charUUID string) ([]byte, error) {
	client, char, err := p.liveCharacteristic(charUUID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := client.ReadCharacteristic(char)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", charUUID, radio.NormalizeError(err))
	}
	return data, nil
}

func (p *peripheral) Subscribe(ctx context.Context, charUUID string) error {
	client, char, err := p.liveCharacteristic(charUUID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	notifications := p.notifications
	p.mu.Unlock()

	uuid := gatt.NormalizeUUID(charUUID)
	handler := func(data []byte) {
		value := make([]byte, len(data))
		copy(value, data)
		notifications.send(radio.Notification{CharUUID: uuid, Value: value})
	}

	if err := client.Subscribe(char, false, handler); err != nil {
		return fmt.Errorf("subscribe %s: %w", charUUID, radio.NormalizeError(err))
	}
	return nil
}

func (p *peripheral) Notifications() <-chan radio.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.notifications == nil {
		return nil
	}
	return p.notifications.ch
}

func (p *peripheral) liveCharacteristic(charUUID string) (ble.Client, *ble.Characteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil || !p.connected {
		return nil, nil, radio.ErrNotConnected
	}
	char, ok := p.chars[gatt.NormalizeUUID(charUUID)]
	if !ok {
		return nil, nil, fmt.Errorf("characteristic %q not discovered on %s", charUUID, p.addr)
	}
	return p.client, char, nil
}

// convertProperties maps go-ble property flags to the radio bitmask.
func convertProperties(prop ble.Property) radio.Properties {
	var out radio.Properties
	if prop&ble.CharBroadcast != 0 {
		out |= radio.PropBroadcast
	}
	if prop&ble.CharRead != 0 {
		out |= radio.PropRead
	}
	if prop&ble.CharWriteNR != 0 {
		out |= radio.PropWriteWithoutResponse
	}
	if prop&ble.CharWrite != 0 {
		out |= radio.PropWrite
	}
	if prop&ble.CharNotify != 0 {
		out |= radio.PropNotify
	}
	if prop&ble.CharIndicate != 0 {
		out |= radio.PropIndicate
	}
	if prop&ble.CharSignedWrite != 0 {
		out |= radio.PropSignedWrite
	}
	if prop&ble.CharExtended != 0 {
		out |= radio.PropExtended
	}
	return out
}
