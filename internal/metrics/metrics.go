// Package metrics defines the Prometheus collectors for the realtime layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry metrics
var (
	// RegistryConnectedUsers tracks the number of users with at least one live connection
	RegistryConnectedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_connected_users",
			Help: "Number of users with at least one live connection",
		},
	)

	// RegistryConnections tracks the total number of live connections
	RegistryConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_connections_total",
			Help: "Total number of live WebSocket connections across all users",
		},
	)

	// ConnectionIdleDisconnects tracks connections closed by the idle timeout
	ConnectionIdleDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connection_idle_disconnects_total",
			Help: "Connections force-closed after the idle-read timeout",
		},
	)

	// ConnectionPingFailures tracks failed keepalive pings
	ConnectionPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connection_ping_failures_total",
			Help: "Keepalive pings that failed to write",
		},
	)
)

// Broadcaster metrics
var (
	// BroadcastsTotal tracks broadcasts by target scope (user/all)
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Broadcast calls by target scope",
		},
		[]string{"scope"},
	)

	// BroadcastDeliveries tracks envelopes enqueued to individual connections
	BroadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Envelopes enqueued to individual connections",
		},
	)

	// BroadcastEvictions tracks connections evicted on a failed write
	BroadcastEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_evictions_total",
			Help: "Connections unregistered and closed after a failed write",
		},
	)

	// BroadcastDuration tracks fan-out duration per broadcast call
	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_duration_seconds",
			Help:    "Fan-out duration per broadcast call",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)
)

// Handshake metrics
var (
	// HandshakesTotal tracks handshake outcomes
	HandshakesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handshakes_total",
			Help: "Handshake outcomes (accepted/rejected)",
		},
		[]string{"outcome"},
	)

	// SnapshotFailures tracks initial-state snapshot lookups that failed
	SnapshotFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshot_failures_total",
			Help: "Initial-state snapshot lookups that failed or were short-circuited",
		},
	)
)

// Connection admission metrics
var (
	// ConnectionsRefused tracks upgrades refused before the handshake
	ConnectionsRefused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connections_refused_total",
			Help: "WebSocket upgrades refused by capacity or rate limits",
		},
		[]string{"reason"},
	)
)
