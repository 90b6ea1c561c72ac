// Package server hosts the realtime push endpoint: WebSocket upgrade,
// handshake authentication, connection admission limits, and the health and
// metrics surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/Sirius-ashwak/curalink/internal/broadcast"
	"github.com/Sirius-ashwak/curalink/internal/config"
	"github.com/Sirius-ashwak/curalink/internal/domain"
	"github.com/Sirius-ashwak/curalink/internal/registry"
)

// HealthCheck is a named readiness probe for an external dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server wires the realtime layer to its HTTP surface.
type Server struct {
	echo  *echo.Echo
	cfg   *config.Config
	clock clockwork.Clock

	registry    *registry.Registry
	broadcaster *broadcast.Broadcaster
	snapshots   domain.SnapshotSource
	verifier    *TokenVerifier

	globalLimiter *GlobalConnectionLimiter
	rateLimiter   *ConnectionRateLimiter

	healthChecks []HealthCheck
	startTime    time.Time
}

// New creates the server. snapshots may be nil (connections then receive
// only the ready ack); verifier is nil when token verification is disabled.
func New(cfg *config.Config, reg *registry.Registry, bc *broadcast.Broadcaster, snapshots domain.SnapshotSource, clock clockwork.Clock, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	var verifier *TokenVerifier
	if cfg.WSAuthSecret != "" {
		verifier = NewTokenVerifier(cfg.WSAuthSecret)
	}

	s := &Server{
		echo:          e,
		cfg:           cfg,
		clock:         clock,
		registry:      reg,
		broadcaster:   bc,
		snapshots:     snapshots,
		verifier:      verifier,
		globalLimiter: NewGlobalConnectionLimiter(cfg.MaxConnections),
		rateLimiter:   NewConnectionRateLimiter(cfg.ConnectionsPerSecond, cfg.ConnectionBurst),
		healthChecks:  healthChecks,
		startTime:     clock.Now(),
	}

	s.registerRoutes()
	return s
}

// Notifier exposes the broadcaster to the business-logic layer.
func (s *Server) Notifier() domain.Notifier {
	return s.broadcaster
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.cfg.Port)
	if err := s.echo.Start(":" + s.cfg.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, then closes every live connection
// with a close frame.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	for _, c := range s.registry.All() {
		s.registry.Unregister(c)
		c.CloseGraceful("server shutting down")
	}
	return nil
}
