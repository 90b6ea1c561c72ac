package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	defaultRecoveryInterval = 2 * time.Minute
	defaultCooldown         = 30 * time.Second
)

// FallbackScheduler periodically attempts to restore a real connection
// while the manager is degraded. The interval is materially longer than the
// maximum backoff delay, and a cooldown throttle keeps many idle client
// processes from producing a thundering herd of reconnects.
type FallbackScheduler struct {
	manager  *Manager
	interval time.Duration
	cooldown time.Duration
	clock    clockwork.Clock

	stop     chan struct{}
	stopOnce sync.Once
}

// NewFallbackScheduler creates a scheduler for m. Zero durations take the
// defaults (2m interval, 30s cooldown).
func NewFallbackScheduler(m *Manager, interval, cooldown time.Duration, clock clockwork.Clock) *FallbackScheduler {
	if interval <= 0 {
		interval = defaultRecoveryInterval
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FallbackScheduler{
		manager:  m,
		interval: interval,
		cooldown: cooldown,
		clock:    clock,
		stop:     make(chan struct{}),
	}
}

// Start launches the recovery loop.
func (f *FallbackScheduler) Start() {
	go f.run()
}

// Stop halts the recovery loop.
func (f *FallbackScheduler) Stop() {
	f.stopOnce.Do(func() { close(f.stop) })
}

func (f *FallbackScheduler) run() {
	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			f.recover()
		case <-f.stop:
			return
		}
	}
}

// recover fires one throttled recovery attempt: only while degraded, and
// only if the most recent attempt is older than the cooldown window.
func (f *FallbackScheduler) recover() {
	if f.manager.Phase() != PhaseDegraded {
		return
	}
	if f.clock.Since(f.manager.LastAttempt()) < f.cooldown {
		slog.Debug("skipping recovery attempt inside cooldown window")
		return
	}
	slog.Info("attempting to recover realtime channel")
	f.manager.Connect()
}
