package client

// Phase is the connection-lifecycle state of the manager. The single enum
// (instead of separate connected/fallback/attempt flags) makes invalid
// combinations unrepresentable.
type Phase int

const (
	// PhaseDisconnected: no transport, a retry may be scheduled.
	PhaseDisconnected Phase = iota
	// PhaseConnecting: a connection attempt is in flight.
	PhaseConnecting
	// PhaseConnected: transport open, handshake acknowledged.
	PhaseConnected
	// PhaseDegraded: retries exhausted; push is presumed unavailable and
	// the application should poll until a periodic recovery succeeds.
	PhaseDegraded
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
