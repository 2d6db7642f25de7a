// Package session drives the connect/read/subscribe protocol against one
// peripheral handle. BLE links drop without warning, so every transient
// operation runs under the shared retry policy and reads reconnect
// implicitly when the link is found down.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dkrol/blescout/internal/gatt"
	"github.com/dkrol/blescout/internal/radio"
	"github.com/dkrol/blescout/internal/retry"
)

const (
	// DefaultAttempts is the budget for connect, read, and subscribe.
	DefaultAttempts = 3

	// DefaultSettleDelay is waited after ensuring a connection before a
	// read, giving constrained peripherals time to become ready.
	DefaultSettleDelay = 1 * time.Second

	// DefaultPacingDelay is waited after a successful read so back-to-back
	// reads do not overwhelm the peripheral.
	DefaultPacingDelay = 500 * time.Millisecond

	// DefaultSubscribeDelay is the fixed delay between subscribe attempts.
	DefaultSubscribeDelay = 2 * time.Second
)

// Options tune one session's retry budgets and pacing delays.
type Options struct {
	ConnectAttempts   int
	ReadAttempts      int
	SubscribeAttempts int

	BackoffUnit    time.Duration // exponential backoff unit; 1s yields 2s,4s,8s
	SettleDelay    time.Duration
	PacingDelay    time.Duration
	SubscribeDelay time.Duration

	// Sleep overrides the backoff/pacing sleeper. Tests inject a recorder
	// here so nothing actually waits.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the budgets and delays used against real radios.
func DefaultOptions() Options {
	return Options{
		ConnectAttempts:   DefaultAttempts,
		ReadAttempts:      DefaultAttempts,
		SubscribeAttempts: DefaultAttempts,
		BackoffUnit:       time.Second,
		SettleDelay:       DefaultSettleDelay,
		PacingDelay:       DefaultPacingDelay,
		SubscribeDelay:    DefaultSubscribeDelay,
	}
}

// Session owns one device's peripheral handle for the duration of its
// operations. Callers issue operations sequentially; the session serializes
// them defensively with its own lock.
type Session struct {
	mu         sync.Mutex
	peripheral radio.Peripheral
	mac        string
	logger     *logrus.Logger

	connectPolicy   retry.Policy
	readPolicy      retry.Policy
	subscribePolicy retry.Policy

	settleDelay time.Duration
	pacingDelay time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates a session for one peripheral handle.
func New(p radio.Peripheral, logger *logrus.Logger, opts Options) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ConnectAttempts < 1 {
		opts.ConnectAttempts = DefaultAttempts
	}
	if opts.ReadAttempts < 1 {
		opts.ReadAttempts = DefaultAttempts
	}
	if opts.SubscribeAttempts < 1 {
		opts.SubscribeAttempts = DefaultAttempts
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = time.Second
	}
	if opts.SubscribeDelay <= 0 {
		opts.SubscribeDelay = DefaultSubscribeDelay
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = retry.SleepContext
	}

	return &Session{
		peripheral: p,
		mac:        p.Addr(),
		logger:     logger,
		connectPolicy: retry.Policy{
			MaxAttempts: opts.ConnectAttempts,
			Backoff:     retry.Exponential(opts.BackoffUnit),
			Sleep:       sleep,
		},
		readPolicy: retry.Policy{
			MaxAttempts: opts.ReadAttempts,
			Backoff:     retry.Exponential(opts.BackoffUnit),
			Sleep:       sleep,
		},
		subscribePolicy: retry.Policy{
			MaxAttempts: opts.SubscribeAttempts,
			Backoff:     retry.Fixed(opts.SubscribeDelay),
			Sleep:       sleep,
		},
		settleDelay: opts.SettleDelay,
		pacingDelay: opts.PacingDelay,
		sleep:       sleep,
	}
}

// MAC returns the address of the peripheral this session drives.
func (s *Session) MAC() string {
	return s.mac
}

// IsConnected reports the link state as the radio sees it.
func (s *Session) IsConnected() bool {
	return s.peripheral.Connected()
}

// Connect establishes the link. Already connected is a no-op success.
// Each failed attempt logs a warning and backs off exponentially before the
// next; an exhausted budget surfaces as retry.ErrRetriesExhausted.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	if s.peripheral.Connected() {
		return nil
	}

	s.logger.WithField("address", s.mac).Info("Connecting to device")
	err := s.connectPolicy.Do(ctx, s.logger, "connect", func(ctx context.Context) error {
		return s.peripheral.Connect(ctx)
	})
	if err != nil {
		return fmt.Errorf("device %s: %w", s.mac, err)
	}

	s.logger.WithField("address", s.mac).Info("Connected to device")
	return nil
}

// Disconnect tears the link down. Failures are reported to the caller but
// leave the device record untouched.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.peripheral.Disconnect(); err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": s.mac,
			"error":   err,
		}).Warn("Failed to disconnect from device")
		return fmt.Errorf("device %s: disconnect: %w", s.mac, err)
	}

	s.logger.WithField("address", s.mac).Info("Disconnected from device")
	return nil
}

// Discover enumerates the GATT tree. The session must be connected; the
// result is invalidated by the next disconnect.
func (s *Session) Discover(ctx context.Context) ([]radio.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.peripheral.Connected() {
		return nil, fmt.Errorf("device %s: discover: %w", s.mac, radio.ErrNotConnected)
	}
	services, err := s.peripheral.DiscoverServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("device %s: discover: %w", s.mac, radio.NormalizeError(err))
	}
	return services, nil
}

// Read reads one characteristic's current value. The descriptor must carry
// the READ flag; that is checked before any radio traffic. A dropped link is
// reconnected and re-discovered implicitly, a settle delay runs before the
// first attempt, and a pacing delay runs after success.
func (s *Session) Read(ctx context.Context, d gatt.Descriptor) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := gatt.Require(d, radio.PropRead); err != nil {
		return nil, fmt.Errorf("device %s: read: %w", s.mac, err)
	}

	if err := s.ensureConnectedLocked(ctx); err != nil {
		return nil, fmt.Errorf("device %s: read %s: %w", s.mac, d.UUID, err)
	}
	if err := s.sleep(ctx, s.settleDelay); err != nil {
		return nil, fmt.Errorf("device %s: read %s: %w", s.mac, d.UUID, err)
	}

	var value []byte
	err := s.readPolicy.Do(ctx, s.logger, "read "+gatt.ShortenUUID(d.UUID), func(ctx context.Context) error {
		if err := s.ensureConnectedLocked(ctx); err != nil {
			return err
		}
		data, err := s.peripheral.Read(ctx, d.UUID)
		if err != nil {
			return radio.NormalizeError(err)
		}
		value = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("device %s: read %s: %w", s.mac, d.UUID, err)
	}

	if err := s.sleep(ctx, s.pacingDelay); err != nil {
		return value, nil // value is already in hand; cancellation just skips pacing
	}
	return value, nil
}

// Subscribe enables notifications for one characteristic. The descriptor
// must carry the NOTIFY flag; attempts are paced with a fixed delay and a
// dropped link is reconnected before each attempt.
func (s *Session) Subscribe(ctx context.Context, d gatt.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := gatt.Require(d, radio.PropNotify); err != nil {
		return fmt.Errorf("device %s: subscribe: %w", s.mac, err)
	}

	err := s.subscribePolicy.Do(ctx, s.logger, "subscribe "+gatt.ShortenUUID(d.UUID), func(ctx context.Context) error {
		if err := s.ensureConnectedLocked(ctx); err != nil {
			return err
		}
		return radio.NormalizeError(s.peripheral.Subscribe(ctx, d.UUID))
	})
	if err != nil {
		return fmt.Errorf("device %s: subscribe %s: %w", s.mac, d.UUID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"address":   s.mac,
		"char_uuid": d.UUID,
	}).Info("Subscribed to notifications")
	return nil
}

// Notifications returns the peripheral's notification stream.
func (s *Session) Notifications() <-chan radio.Notification {
	return s.peripheral.Notifications()
}

func (s *Session) ensureConnectedLocked(ctx context.Context) error {
	if s.peripheral.Connected() {
		return nil
	}
	s.logger.WithField("address", s.mac).Info("Not connected, reconnecting")
	if err := s.connectLocked(ctx); err != nil {
		return err
	}
	// A fresh link invalidates the characteristic handles of the previous
	// discovery; re-enumerate so the pending operation can resolve its
	// characteristic again.
	if _, err := s.peripheral.DiscoverServices(ctx); err != nil {
		return fmt.Errorf("rediscover: %w", radio.NormalizeError(err))
	}
	return nil
}
