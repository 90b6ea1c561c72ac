package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Sirius-ashwak/curalink/internal/domain"
	"github.com/Sirius-ashwak/curalink/internal/event"
	"github.com/Sirius-ashwak/curalink/internal/metrics"
	"github.com/Sirius-ashwak/curalink/internal/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // browser clients connect from the app's own origin or native shells
	},
}

// handleWebSocket admits a new realtime connection: admission limits,
// upgrade, identity handshake, registration, initial-state push, then the
// read loop until the peer goes away.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	if !s.rateLimiter.Allow(ip) {
		metrics.ConnectionsRefused.WithLabelValues("rate_limited").Inc()
		return c.String(http.StatusTooManyRequests, "connection rate limit exceeded")
	}
	if !s.globalLimiter.Acquire() {
		metrics.ConnectionsRefused.WithLabelValues("at_capacity").Inc()
		return c.String(http.StatusServiceUnavailable, "server at connection capacity")
	}
	defer s.globalLimiter.Release()

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	claim, err := s.authenticate(ws)
	if err != nil {
		metrics.HandshakesTotal.WithLabelValues("rejected").Inc()
		slog.Warn("handshake rejected", "remote", ip, "error", err)
		_ = ws.Close()
		return nil
	}
	metrics.HandshakesTotal.WithLabelValues("accepted").Inc()

	conn := registry.NewConnection(ws, s.clock)
	if err := s.registry.Register(claim.UserID, conn); err != nil {
		slog.Error("failed to register connection", "user_id", claim.UserID, "error", err)
		conn.Close()
		return nil
	}
	slog.Info("connection registered",
		"connection_id", conn.ID().String(),
		"user_id", claim.UserID,
		"role", claim.Role,
	)

	s.pushInitialState(c.Request().Context(), conn, claim)

	// Read pump. Inbound traffic beyond the handshake is not part of the
	// contract; frames are decoded only so malformed ones can be logged
	// without tearing the connection down.
	for {
		data, err := conn.Read()
		if err != nil {
			break
		}
		if _, err := event.Decode(data); err != nil {
			var decodeErr *event.DecodeError
			if errors.As(err, &decodeErr) {
				slog.Warn("discarding malformed frame",
					"connection_id", conn.ID().String(),
					"error", err,
				)
				continue
			}
		}
	}

	s.registry.Unregister(conn)
	conn.Close()
	slog.Info("connection closed",
		"connection_id", conn.ID().String(),
		"user_id", claim.UserID,
	)
	return nil
}

// authenticate reads and validates the identity claim that must arrive as
// the first frame on a new connection.
func (s *Server) authenticate(ws *websocket.Conn) (event.Claim, error) {
	if err := ws.SetReadDeadline(s.clock.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return event.Claim{}, fmt.Errorf("failed to set handshake deadline: %w", err)
	}

	_, data, err := ws.ReadMessage()
	if err != nil {
		return event.Claim{}, fmt.Errorf("%w: no handshake frame: %v", domain.ErrHandshakeRejected, err)
	}

	env, err := event.Decode(data)
	if err != nil {
		return event.Claim{}, fmt.Errorf("%w: %v", domain.ErrHandshakeRejected, err)
	}

	claim, err := event.DecodeClaim(env)
	if err != nil {
		return event.Claim{}, fmt.Errorf("%w: %v", domain.ErrHandshakeRejected, err)
	}

	if !domain.Role(claim.Role).Valid() {
		return event.Claim{}, fmt.Errorf("%w: unknown role %q", domain.ErrHandshakeRejected, claim.Role)
	}

	if s.verifier != nil {
		if err := s.verifier.Verify(claim); err != nil {
			return event.Claim{}, fmt.Errorf("%w: %v", domain.ErrHandshakeRejected, err)
		}
	}

	return claim, nil
}

// pushInitialState sends the ready ack followed by the role-appropriate
// snapshot. Snapshot failures degrade to "no snapshot"; the connection stays.
func (s *Server) pushInitialState(ctx context.Context, conn *registry.Connection, claim event.Claim) {
	ready, err := event.New(domain.KindReady, nil, s.clock.Now())
	if err == nil {
		s.sendEnvelope(conn, ready)
	}

	if s.snapshots == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SnapshotTimeout)
	defer cancel()

	envelopes, err := s.snapshots.Snapshot(ctx, claim.UserID, domain.Role(claim.Role))
	if err != nil {
		metrics.SnapshotFailures.Inc()
		slog.Warn("initial-state snapshot unavailable",
			"user_id", claim.UserID,
			"role", claim.Role,
			"error", err,
		)
		return
	}

	for _, env := range envelopes {
		s.sendEnvelope(conn, env)
	}
}

func (s *Server) sendEnvelope(conn *registry.Connection, env event.Envelope) {
	data, err := event.Encode(env)
	if err != nil {
		slog.Error("failed to encode envelope", "kind", env.Kind, "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		slog.Warn("failed to push initial state",
			"connection_id", conn.ID().String(),
			"kind", env.Kind,
			"error", err,
		)
	}
}
