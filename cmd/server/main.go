package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Sirius-ashwak/curalink/internal/broadcast"
	"github.com/Sirius-ashwak/curalink/internal/config"
	"github.com/Sirius-ashwak/curalink/internal/domain"
	"github.com/Sirius-ashwak/curalink/internal/logging"
	"github.com/Sirius-ashwak/curalink/internal/presence"
	"github.com/Sirius-ashwak/curalink/internal/registry"
	"github.com/Sirius-ashwak/curalink/internal/server"
	"github.com/Sirius-ashwak/curalink/internal/snapshot"
)

const presenceRefreshInterval = 30 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupSnapshots(cfg *config.Config, clock clockwork.Clock) (domain.SnapshotSource, *snapshot.PostgresSource) {
	if cfg.DatabaseURL == "" {
		slog.Info("DATABASE_URL not set, initial-state snapshots disabled")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	source, err := snapshot.Connect(ctx, cfg.DatabaseURL, clock)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return snapshot.NewBreaker(source), source
}

func setupPresence(cfg *config.Config) *presence.Tracker {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, presence tracking disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tracker, err := presence.NewTracker(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return tracker
}

func presenceHooks(tracker *presence.Tracker) []registry.Option {
	if tracker == nil {
		return nil
	}
	onFirst := func(userID string) {
		if err := tracker.SetOnline(context.Background(), userID); err != nil {
			slog.Warn("failed to mark user online", "user_id", userID, "error", err)
		}
	}
	onOffline := func(userID string) {
		if err := tracker.SetOffline(context.Background(), userID); err != nil {
			slog.Warn("failed to mark user offline", "user_id", userID, "error", err)
		}
	}
	return []registry.Option{registry.WithPresenceHooks(onFirst, onOffline)}
}

// refreshPresence keeps the Redis TTLs alive for every connected user.
func refreshPresence(ctx context.Context, tracker *presence.Tracker, reg *registry.Registry, clock clockwork.Clock) {
	ticker := clock.NewTicker(presenceRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			users := make([]string, 0)
			for _, c := range reg.All() {
				users = append(users, c.Owner())
			}
			tracker.Refresh(ctx, users)
		case <-ctx.Done():
			return
		}
	}
}

func runGracefulShutdown(srv *server.Server, cancel context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancel()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	snapshots, pg := setupSnapshots(cfg, clock)
	if pg != nil {
		defer pg.Close()
	}

	tracker := setupPresence(cfg)
	if tracker != nil {
		defer func() { _ = tracker.Close() }()
	}

	reg := registry.New(presenceHooks(tracker)...)
	broadcaster := broadcast.New(reg, clock)

	var healthChecks []server.HealthCheck
	if pg != nil {
		healthChecks = append(healthChecks, server.HealthCheck{Name: "postgres", Check: pg.Ping})
	}
	if tracker != nil {
		healthChecks = append(healthChecks, server.HealthCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				_, err := tracker.IsOnline(ctx, "health-probe")
				return err
			},
		})
	}

	srv := server.New(cfg, reg, broadcaster, snapshots, clock, healthChecks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if tracker != nil {
		go refreshPresence(ctx, tracker, reg, clock)
	}

	done := runGracefulShutdown(srv, cancel)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
