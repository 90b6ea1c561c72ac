// Package snapshot produces the role-appropriate initial-state envelopes
// pushed to a freshly authenticated connection.
//
// The Postgres source reads the current appointments, availability, and
// emergency-transport state; the circuit breaker in breaker.go keeps a down
// database from hanging every new handshake. Snapshot failures degrade to
// "no snapshot" and never reject the connection.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/Sirius-ashwak/curalink/internal/domain"
	"github.com/Sirius-ashwak/curalink/internal/event"
)

// Appointment is the snapshot row for a booked appointment.
type Appointment struct {
	ID          int64     `json:"id"`
	PatientID   string    `json:"patientId"`
	DoctorID    string    `json:"doctorId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Status      string    `json:"status"`
}

// Availability is the snapshot row for a doctor's availability toggle.
type Availability struct {
	DoctorID    string `json:"doctorId"`
	IsAvailable bool   `json:"isAvailable"`
}

// TransportRequest is the snapshot row for an emergency-transport request.
type TransportRequest struct {
	ID        int64     `json:"id"`
	PatientID string    `json:"patientId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostgresSource loads initial state from the CRUD layer's database.
type PostgresSource struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string, clock clockwork.Clock) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresSource{pool: pool, clock: clock}, nil
}

// Close releases the pool.
func (s *PostgresSource) Close() {
	s.pool.Close()
}

// Ping reports database connectivity, used by the readiness check.
func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Snapshot implements domain.SnapshotSource.
func (s *PostgresSource) Snapshot(ctx context.Context, userID string, role domain.Role) ([]event.Envelope, error) {
	switch role {
	case domain.RolePatient:
		return s.patientSnapshot(ctx, userID)
	case domain.RoleDoctor:
		return s.doctorSnapshot(ctx, userID)
	case domain.RoleDispatcher:
		return s.dispatcherSnapshot(ctx)
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
}

func (s *PostgresSource) patientSnapshot(ctx context.Context, userID string) ([]event.Envelope, error) {
	appointments, err := s.appointments(ctx,
		`SELECT id, patient_id, doctor_id, scheduled_at, status
		   FROM appointments
		  WHERE patient_id = $1 AND scheduled_at >= now()
		  ORDER BY scheduled_at`, userID)
	if err != nil {
		return nil, err
	}

	env, err := event.New(domain.KindAppointments, appointments, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return []event.Envelope{env}, nil
}

func (s *PostgresSource) doctorSnapshot(ctx context.Context, userID string) ([]event.Envelope, error) {
	appointments, err := s.appointments(ctx,
		`SELECT id, patient_id, doctor_id, scheduled_at, status
		   FROM appointments
		  WHERE doctor_id = $1 AND scheduled_at >= now()
		  ORDER BY scheduled_at`, userID)
	if err != nil {
		return nil, err
	}

	// A doctor without an availability row has never toggled it on.
	var available bool
	err = s.pool.QueryRow(ctx,
		`SELECT is_available FROM doctor_availability WHERE doctor_id = $1`,
		userID).Scan(&available)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to load availability for %s: %w", userID, err)
	}

	out := make([]event.Envelope, 0, 2)

	env, err := event.New(domain.KindAppointments, appointments, s.clock.Now())
	if err != nil {
		return nil, err
	}
	out = append(out, env)

	env, err = event.New(domain.KindDoctorAvailability, Availability{DoctorID: userID, IsAvailable: available}, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return append(out, env), nil
}

func (s *PostgresSource) dispatcherSnapshot(ctx context.Context) ([]event.Envelope, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, patient_id, status, created_at
		   FROM transport_requests
		  WHERE status NOT IN ('completed', 'cancelled')
		  ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to load transport queue: %w", err)
	}
	defer rows.Close()

	requests := make([]TransportRequest, 0)
	for rows.Next() {
		var r TransportRequest
		if err := rows.Scan(&r.ID, &r.PatientID, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transport request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transport queue: %w", err)
	}

	env, err := event.New(domain.KindTransportQueue, requests, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return []event.Envelope{env}, nil
}

func (s *PostgresSource) appointments(ctx context.Context, query, userID string) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments for %s: %w", userID, err)
	}
	defer rows.Close()

	appointments := make([]Appointment, 0)
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &a.Status); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read appointments: %w", err)
	}
	return appointments, nil
}
