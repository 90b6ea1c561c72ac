package domain

import (
	"context"

	"github.com/Sirius-ashwak/curalink/internal/event"
)

// Role is the role hint a client claims during the handshake. It selects
// which initial-state snapshot the server pushes after registration.
type Role string

const (
	RolePatient    Role = "patient"
	RoleDoctor     Role = "doctor"
	RoleDispatcher Role = "dispatcher"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleDispatcher:
		return true
	}
	return false
}

// Event kinds pushed by the server. Payload shape is determined solely by
// the kind; the transport layer never validates it.
const (
	KindReady              = "ready"
	KindAppointments       = "appointments"
	KindAppointmentUpdated = "appointment-updated"
	KindDoctorAvailability = "doctor-availability-changed"
	KindTransportUpdated   = "emergency-transport-updated"
	KindTransportQueue     = "emergency-transport-queue"
)

// NotifyAll is the broadcast target that addresses every registered user.
const NotifyAll = "all"

// Notifier is the single entry point the business-logic layer calls whenever
// a relevant entity changes. target is a user id or NotifyAll. Delivery is
// best effort: a target with no live connections is a no-op.
type Notifier interface {
	Notify(target string, kind string, payload any) error
}

// SnapshotSource produces the role-appropriate initial-state envelopes pushed
// to a freshly authenticated connection. Implementations live at the storage
// boundary (see internal/snapshot); an error means "no snapshot", never a
// rejected connection.
type SnapshotSource interface {
	Snapshot(ctx context.Context, userID string, role Role) ([]event.Envelope, error)
}

// PresenceTracker records which users currently hold at least one live
// connection, so the rest of the application can render online indicators.
type PresenceTracker interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}
