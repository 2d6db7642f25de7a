// Package testutil provides in-memory implementations of the radio adapter
// interfaces with scripted failures, used across package tests. No real
// Bluetooth stack is touched.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkrol/blescout/internal/gatt"
	"github.com/dkrol/blescout/internal/radio"
)

// Advertisement is a canned radio.Advertisement.
type Advertisement struct {
	AdvAddr        string
	AdvName        string
	AdvRSSI        int
	AdvHasRSSI     bool
	AdvConnectable bool
}

func (a Advertisement) Addr() string      { return a.AdvAddr }
func (a Advertisement) LocalName() string { return a.AdvName }
func (a Advertisement) RSSI() (int, bool) { return a.AdvRSSI, a.AdvHasRSSI }
func (a Advertisement) Connectable() bool { return a.AdvConnectable }

// Peripheral is a scriptable radio.Peripheral. Error scripts are consumed
// one entry per call; a nil entry (or an exhausted script) means success.
type Peripheral struct {
	mu sync.Mutex

	addr      string
	connected bool

	// InvalidateOnConnect mirrors the live adapter: a fresh link drops the
	// previously discovered characteristic handles, so reads and subscribes
	// fail until DiscoverServices runs again.
	InvalidateOnConnect bool
	discovered          bool

	ConnectScript   []error
	DiscoverScript  []error
	ReadScript      map[string][]error
	SubscribeScript map[string][]error

	Services    []radio.Service
	ReadResults map[string][]byte

	ConnectCalls    int
	DisconnectCalls int
	DiscoverCalls   int
	ReadCalls       map[string]int
	SubscribeCalls  map[string]int
	Subscribed      []string

	DisconnectErr error

	notifications chan radio.Notification
	closeOnce     sync.Once
}

// NewPeripheral creates a fake peripheral for the given address.
func NewPeripheral(addr string) *Peripheral {
	return &Peripheral{
		addr:            addr,
		ReadScript:      make(map[string][]error),
		SubscribeScript: make(map[string][]error),
		ReadResults:     make(map[string][]byte),
		ReadCalls:       make(map[string]int),
		SubscribeCalls:  make(map[string]int),
		notifications:   make(chan radio.Notification, 16),
	}
}

// WithService adds a service with the given characteristics.
func (p *Peripheral) WithService(uuid string, chars ...radio.Characteristic) *Peripheral {
	for i := range chars {
		chars[i].UUID = gatt.NormalizeUUID(chars[i].UUID)
	}
	p.Services = append(p.Services, radio.Service{
		UUID:            gatt.NormalizeUUID(uuid),
		Characteristics: chars,
	})
	return p
}

// WithReadValue sets the value returned by reads of a characteristic.
func (p *Peripheral) WithReadValue(charUUID string, value []byte) *Peripheral {
	p.ReadResults[gatt.NormalizeUUID(charUUID)] = value
	return p
}

func popScript(script *[]error) error {
	if len(*script) == 0 {
		return nil
	}
	err := (*script)[0]
	*script = (*script)[1:]
	return err
}

func (p *Peripheral) Addr() string { return p.addr }

func (p *Peripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Peripheral) Connect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ConnectCalls++
	if err := popScript(&p.ConnectScript); err != nil {
		return err
	}
	p.connected = true
	if p.InvalidateOnConnect {
		p.discovered = false
	}
	return nil
}

func (p *Peripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.DisconnectCalls++
	p.connected = false
	return p.DisconnectErr
}

// Drop simulates a remote-side link loss.
func (p *Peripheral) Drop() {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
}

func (p *Peripheral) DiscoverServices(_ context.Context) ([]radio.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.DiscoverCalls++
	if !p.connected {
		return nil, radio.ErrNotConnected
	}
	if err := popScript(&p.DiscoverScript); err != nil {
		return nil, err
	}
	p.discovered = true
	return p.Services, nil
}

func (p *Peripheral) Read(_ context.Context, charUUID string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	uuid := gatt.NormalizeUUID(charUUID)
	p.ReadCalls[uuid]++
	if !p.connected {
		return nil, radio.ErrNotConnected
	}
	if p.InvalidateOnConnect && !p.discovered {
		return nil, fmt.Errorf("characteristic %q not discovered on %s", uuid, p.addr)
	}
	script := p.ReadScript[uuid]
	if err := popScript(&script); err != nil {
		p.ReadScript[uuid] = script
		return nil, err
	}
	p.ReadScript[uuid] = script

	value, ok := p.ReadResults[uuid]
	if !ok {
		return nil, errors.New("no canned read value")
	}
	return value, nil
}

func (p *Peripheral) Subscribe(_ context.Context, charUUID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	uuid := gatt.NormalizeUUID(charUUID)
	p.SubscribeCalls[uuid]++
	if !p.connected {
		return radio.ErrNotConnected
	}
	if p.InvalidateOnConnect && !p.discovered {
		return fmt.Errorf("characteristic %q not discovered on %s", uuid, p.addr)
	}
	script := p.SubscribeScript[uuid]
	err := popScript(&script)
	p.SubscribeScript[uuid] = script
	if err != nil {
		return err
	}
	p.Subscribed = append(p.Subscribed, uuid)
	return nil
}

func (p *Peripheral) Notifications() <-chan radio.Notification {
	return p.notifications
}

// Notify injects one notification into the stream.
func (p *Peripheral) Notify(charUUID string, value []byte) {
	p.notifications <- radio.Notification{
		CharUUID: gatt.NormalizeUUID(charUUID),
		Value:    value,
	}
}

// CloseNotifications simulates stream EOF after a drop.
func (p *Peripheral) CloseNotifications() {
	p.closeOnce.Do(func() { close(p.notifications) })
}

// Adapter is a fake radio.Adapter replaying canned advertisements.
type Adapter struct {
	mu sync.Mutex

	Advertisements []radio.Advertisement
	Peripherals    map[string]*Peripheral
	ScanErr        error
	ScanCalls      int
}

// NewAdapter creates an empty fake adapter.
func NewAdapter() *Adapter {
	return &Adapter{Peripherals: make(map[string]*Peripheral)}
}

// WithAdvertisements appends sightings replayed by every Scan call.
func (a *Adapter) WithAdvertisements(advs ...radio.Advertisement) *Adapter {
	a.Advertisements = append(a.Advertisements, advs...)
	return a
}

// Scan replays the canned advertisements, then returns.
func (a *Adapter) Scan(ctx context.Context, _ bool, handler func(radio.Advertisement)) error {
	a.mu.Lock()
	a.ScanCalls++
	advs := make([]radio.Advertisement, len(a.Advertisements))
	copy(advs, a.Advertisements)
	err := a.ScanErr
	a.mu.Unlock()

	if err != nil {
		return err
	}
	for _, adv := range advs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handler(adv)
	}
	return nil
}

// Peripheral returns (creating on demand) the fake handle for an address.
func (a *Adapter) Peripheral(addr string) radio.Peripheral {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.Peripherals[addr]; ok {
		return p
	}
	p := NewPeripheral(addr)
	a.Peripherals[addr] = p
	return p
}

// SleepRecorder records backoff delays instead of sleeping; inject its Sleep
// method as a session or policy sleeper so tests never wait.
type SleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

// Sleep records d and returns immediately (honoring prior cancellation).
func (r *SleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

// Delays returns the recorded delays in order.
func (r *SleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.delays))
	copy(out, r.delays)
	return out
}
