package snapshot

import (
	"context"

	"github.com/Sirius-ashwak/curalink/internal/domain"
	"github.com/Sirius-ashwak/curalink/internal/event"
)

// Static is a SnapshotSource with fixed responses, used in tests and in
// deployments without a database (connections then get only the ready ack).
type Static struct {
	Envelopes []event.Envelope
	Err       error
}

// Snapshot implements domain.SnapshotSource.
func (s *Static) Snapshot(context.Context, string, domain.Role) ([]event.Envelope, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Envelopes, nil
}
