package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Sirius-ashwak/curalink/internal/domain"
	"github.com/Sirius-ashwak/curalink/internal/event"
)

const (
	breakerFailureThreshold = 5
	breakerOpenDuration     = 30 * time.Second
)

// Breaker wraps a SnapshotSource in a circuit breaker so a struggling
// database short-circuits instead of stalling every new handshake.
type Breaker struct {
	source domain.SnapshotSource
	cb     *gobreaker.CircuitBreaker
}

// NewBreaker wraps source.
func NewBreaker(source domain.SnapshotSource) *Breaker {
	settings := gobreaker.Settings{
		Name: "snapshot",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		Timeout: breakerOpenDuration,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("snapshot circuit breaker state change",
				"from", from.String(), "to", to.String())
		},
	}
	return &Breaker{source: source, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Snapshot implements domain.SnapshotSource. While the circuit is open it
// fails fast with gobreaker.ErrOpenState.
func (b *Breaker) Snapshot(ctx context.Context, userID string, role domain.Role) ([]event.Envelope, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.source.Snapshot(ctx, userID, role)
	})
	if err != nil {
		return nil, err
	}
	return result.([]event.Envelope), nil
}
