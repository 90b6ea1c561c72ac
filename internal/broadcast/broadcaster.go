// Package broadcast fans already-decided domain events out to live
// connections.
//
// Each envelope is encoded once per broadcast call; the target set is
// snapshotted from the registry so no write happens under the registry lock.
// A failed write evicts that one connection and never blocks delivery to the
// rest.
package broadcast

import (
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/Sirius-ashwak/curalink/internal/domain"
	"github.com/Sirius-ashwak/curalink/internal/event"
	"github.com/Sirius-ashwak/curalink/internal/metrics"
	"github.com/Sirius-ashwak/curalink/internal/registry"
)

// Broadcaster delivers envelopes to every connection registered for a
// target. It holds no state of its own beyond the registry reference; per-
// connection ordering follows from each connection's single writer.
type Broadcaster struct {
	registry *registry.Registry
	clock    clockwork.Clock
}

// New creates a broadcaster over reg.
func New(reg *registry.Registry, clock clockwork.Clock) *Broadcaster {
	return &Broadcaster{registry: reg, clock: clock}
}

// SendToUser delivers env to every connection currently registered for
// userID. A user with no live connections is a no-op.
func (b *Broadcaster) SendToUser(userID string, env event.Envelope) error {
	metrics.BroadcastsTotal.WithLabelValues("user").Inc()
	data, err := event.Encode(env)
	if err != nil {
		return err
	}
	b.deliver(b.registry.ConnectionsFor(userID), data, env.Kind)
	return nil
}

// SendToAll delivers env to every registered connection. O(total
// connections); used sparingly for fleet-wide updates.
func (b *Broadcaster) SendToAll(env event.Envelope) error {
	metrics.BroadcastsTotal.WithLabelValues("all").Inc()
	data, err := event.Encode(env)
	if err != nil {
		return err
	}
	b.deliver(b.registry.All(), data, env.Kind)
	return nil
}

// Notify implements domain.Notifier: the single entry point the business
// layer calls when an entity changes. target is a user id or
// domain.NotifyAll.
func (b *Broadcaster) Notify(target string, kind string, payload any) error {
	if target == "" {
		return fmt.Errorf("notify target must not be empty")
	}
	env, err := event.New(kind, payload, b.clock.Now())
	if err != nil {
		return err
	}
	if target == domain.NotifyAll {
		return b.SendToAll(env)
	}
	return b.SendToUser(target, env)
}

func (b *Broadcaster) deliver(targets []*registry.Connection, data []byte, kind string) {
	start := b.clock.Now()
	for _, c := range targets {
		if err := c.Send(data); err != nil {
			// One bad connection must not fail the rest of the fan-out.
			slog.Warn("evicting connection after failed write",
				"connection_id", c.ID().String(),
				"user_id", c.Owner(),
				"kind", kind,
				"error", err,
			)
			metrics.BroadcastEvictions.Inc()
			b.registry.Unregister(c)
			c.Close()
			continue
		}
		metrics.BroadcastDeliveries.Inc()
	}
	metrics.BroadcastDuration.Observe(b.clock.Since(start).Seconds())
}
