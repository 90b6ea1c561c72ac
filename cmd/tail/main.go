// Command tail connects to a realtime push server as a given user and prints
// every event it receives. Useful for verifying deliveries in development
// and during incident debugging.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Sirius-ashwak/curalink/internal/client"
	"github.com/Sirius-ashwak/curalink/internal/domain"
	"github.com/Sirius-ashwak/curalink/internal/event"
	"github.com/Sirius-ashwak/curalink/internal/logging"
)

func main() {
	var (
		url         = flag.String("url", "ws://localhost:8080/ws", "realtime server URL")
		userID      = flag.String("user", "", "user id to connect as")
		role        = flag.String("role", string(domain.RolePatient), "role hint (patient, doctor, dispatcher)")
		token       = flag.String("token", "", "signed identity token, if the server requires one")
		baseDelay   = flag.Duration("base-delay", time.Second, "initial reconnect backoff")
		maxAttempts = flag.Int("max-attempts", 5, "reconnect attempts before degrading")
		logLevel    = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	logging.InitLogger(*logLevel, "text")

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: tail -user <id> [-role patient|doctor|dispatcher] [-url ws://...]")
		os.Exit(2)
	}

	clock := clockwork.NewRealClock()
	manager := client.NewManager(client.Config{
		URL:         *url,
		UserID:      *userID,
		Role:        domain.Role(*role),
		Token:       *token,
		BaseDelay:   *baseDelay,
		MaxAttempts: *maxAttempts,
		Clock:       clock,
	})
	defer manager.Close()

	manager.OnPhaseChange(func(p client.Phase) {
		fmt.Printf("--- phase: %s\n", p)
	})
	manager.OnEvent(client.KindAny, func(env event.Envelope) {
		fmt.Printf("%s  %-32s  %s\n", env.IssuedAt.Format(time.RFC3339), env.Kind, string(env.Payload))
	})

	scheduler := client.NewFallbackScheduler(manager, 0, 0, clock)
	scheduler.Start()
	defer scheduler.Stop()

	manager.Connect()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	slog.Info("shutting down")
}
