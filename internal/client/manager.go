package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Sirius-ashwak/curalink/internal/domain"
	"github.com/Sirius-ashwak/curalink/internal/event"
)

const (
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 5
	dispatchBufferSize = 64
)

// Conn is the client-side transport connection. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a transport connection. The context cancels an in-flight
// dial when the manager is disabled.
type Dialer func(ctx context.Context, url string) (Conn, error)

// GorillaDialer returns the production dialer backed by gorilla/websocket.
func GorillaDialer(handshakeTimeout time.Duration) Dialer {
	return func(ctx context.Context, url string) (Conn, error) {
		d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, resp, err := d.DialContext(ctx, url, http.Header{})
		if err != nil {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			return nil, err
		}
		return conn, nil
	}
}

// Handler receives a dispatched envelope. Handlers run on the dispatch
// goroutine, decoupled from the read loop, and must not block for long.
type Handler func(env event.Envelope)

// KindAny subscribes a handler to every event kind.
const KindAny = "*"

// Config configures a Manager.
type Config struct {
	URL    string
	UserID string
	Role   domain.Role
	// Token is the optional signed identity token forwarded in the
	// handshake claim.
	Token string

	// BaseDelay is the first retry delay; each consecutive failure doubles
	// it up to MaxDelay. After MaxAttempts consecutive failures the manager
	// degrades instead of retrying.
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int

	Dialer Dialer
	Clock  clockwork.Clock
}

func (c *Config) applyDefaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Dialer == nil {
		c.Dialer = GorillaDialer(10 * time.Second)
	}
}

// Manager is the per-process connection-lifecycle state machine.
type Manager struct {
	cfg   Config
	clock clockwork.Clock

	mu            sync.Mutex
	phase         Phase
	retryCount    int
	lastAttemptAt time.Time
	enabled       bool
	gen           int
	conn          Conn
	cancelAttempt context.CancelFunc
	retryTimer    clockwork.Timer

	writeMu sync.Mutex

	handlersMu     sync.RWMutex
	handlers       map[string][]Handler
	phaseListeners []func(Phase)

	dispatchCh chan event.Envelope
	closed     chan struct{}
	closeOnce  sync.Once
}

// NewManager creates a manager in the disconnected phase. Call Connect to
// open the channel.
func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		cfg:        cfg,
		clock:      cfg.Clock,
		phase:      PhaseDisconnected,
		enabled:    true,
		handlers:   make(map[string][]Handler),
		dispatchCh: make(chan event.Envelope, dispatchBufferSize),
		closed:     make(chan struct{}),
	}
	go m.dispatchLoop()
	return m
}

// Phase returns the current lifecycle phase, for connection-status
// indicators and for the polling fallback decision.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// RetryCount returns the number of failed attempts since the last success.
func (m *Manager) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}

// LastAttempt returns when the most recent connection attempt started.
func (m *Manager) LastAttempt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAttemptAt
}

// OnEvent registers handler for the given kind (KindAny for all kinds).
func (m *Manager) OnEvent(kind string, handler Handler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[kind] = append(m.handlers[kind], handler)
}

// OnPhaseChange registers a listener invoked after every phase transition.
func (m *Manager) OnPhaseChange(listener func(Phase)) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.phaseListeners = append(m.phaseListeners, listener)
}

// Connect starts a connection attempt. Valid from disconnected and degraded;
// a no-op while an attempt is in flight, while connected, or while disabled.
func (m *Manager) Connect() {
	m.mu.Lock()
	if !m.enabled || m.phase == PhaseConnecting || m.phase == PhaseConnected {
		m.mu.Unlock()
		return
	}
	m.stopRetryTimerLocked()
	m.phase = PhaseConnecting
	m.lastAttemptAt = m.clock.Now()
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelAttempt = cancel
	m.mu.Unlock()

	m.notifyPhase(PhaseConnecting)
	go m.attempt(ctx, gen)
}

// Disable forcibly closes the transport, cancels any in-flight attempt and
// backoff timer, and pins the manager to disconnected until Enable. No retry
// fires after Disable returns.
func (m *Manager) Disable() {
	m.mu.Lock()
	m.enabled = false
	m.gen++
	m.stopRetryTimerLocked()
	if m.cancelAttempt != nil {
		m.cancelAttempt()
		m.cancelAttempt = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	changed := m.phase != PhaseDisconnected
	m.phase = PhaseDisconnected
	m.retryCount = 0
	m.mu.Unlock()

	if changed {
		m.notifyPhase(PhaseDisconnected)
	}
}

// Enable lifts a previous Disable and starts a fresh connection attempt.
func (m *Manager) Enable() {
	m.mu.Lock()
	m.enabled = true
	m.retryCount = 0
	m.mu.Unlock()
	m.Connect()
}

// Close disables the manager and stops the dispatch goroutine. The manager
// cannot be reused afterwards.
func (m *Manager) Close() {
	m.Disable()
	m.closeOnce.Do(func() { close(m.closed) })
}

// Send writes an envelope to the server. Valid only while connected: in any
// other phase the message is dropped and ErrNotConnected returned, by
// design - this channel carries best-effort traffic, not commands.
func (m *Manager) Send(kind string, payload any) error {
	m.mu.Lock()
	if m.phase != PhaseConnected || m.conn == nil {
		m.mu.Unlock()
		return domain.ErrNotConnected
	}
	conn := m.conn
	m.mu.Unlock()

	env, err := event.New(kind, payload, m.clock.Now())
	if err != nil {
		return err
	}
	data, err := event.Encode(env)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// attempt dials, sends the identity claim, and waits for the first inbound
// frame, which acknowledges the handshake. The server pushes a ready event
// immediately after registration, so the wait is short.
func (m *Manager) attempt(ctx context.Context, gen int) {
	conn, err := m.cfg.Dialer(ctx, m.cfg.URL)
	if err != nil {
		slog.Debug("dial failed", "url", m.cfg.URL, "error", err)
		m.failure(gen, nil)
		return
	}

	// Park the transport where Disable can reach it.
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.mu.Unlock()

	claim := event.Claim{UserID: m.cfg.UserID, Role: string(m.cfg.Role), Token: m.cfg.Token}
	authEnv, err := event.New(event.KindAuth, claim, m.clock.Now())
	if err != nil {
		m.failure(gen, conn)
		return
	}
	authData, err := event.Encode(authEnv)
	if err != nil {
		m.failure(gen, conn)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, authData); err != nil {
		m.failure(gen, conn)
		return
	}

	// A rejected handshake surfaces here as a read error, indistinguishable
	// from a transient failure; both take the backoff path.
	_, frame, err := conn.ReadMessage()
	if err != nil {
		m.failure(gen, conn)
		return
	}

	m.mu.Lock()
	if gen != m.gen || !m.enabled {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.phase = PhaseConnected
	m.retryCount = 0
	m.cancelAttempt = nil
	m.mu.Unlock()

	m.notifyPhase(PhaseConnected)
	slog.Info("realtime channel connected", "user_id", m.cfg.UserID)

	m.enqueue(frame)
	m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.failure(gen, conn)
			return
		}
		m.enqueue(data)
	}
}

// failure records a failed attempt or a lost connection: increment
// retryCount, then either schedule the next retry or degrade.
func (m *Manager) failure(gen int, conn Conn) {
	if conn != nil {
		_ = conn.Close()
	}

	m.mu.Lock()
	if gen != m.gen || !m.enabled {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.cancelAttempt = nil
	m.retryCount++
	m.lastAttemptAt = m.clock.Now()

	if m.retryCount >= m.cfg.MaxAttempts {
		m.phase = PhaseDegraded
		attempts := m.retryCount
		m.mu.Unlock()

		m.notifyPhase(PhaseDegraded)
		slog.Warn("realtime channel degraded, falling back to polling",
			"attempts", attempts,
		)
		return
	}

	m.phase = PhaseDisconnected
	delay := backoffDelay(m.cfg.BaseDelay, m.cfg.MaxDelay, m.retryCount)
	m.retryTimer = m.clock.AfterFunc(delay, func() { m.retryFire(gen) })
	m.mu.Unlock()

	m.notifyPhase(PhaseDisconnected)
	slog.Debug("retry scheduled", "delay", delay, "attempt", gen)
}

// retryFire runs when a backoff timer elapses. Stale generations (a Disable
// or a newer attempt happened meanwhile) are dropped.
func (m *Manager) retryFire(gen int) {
	m.mu.Lock()
	stale := gen != m.gen || !m.enabled
	m.mu.Unlock()
	if stale {
		return
	}
	m.Connect()
}

func (m *Manager) stopRetryTimerLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// backoffDelay computes the delay before retry n (1-based): base doubled per
// consecutive failure, capped at max.
func backoffDelay(base, max time.Duration, retry int) time.Duration {
	shift := retry - 1
	if shift < 0 {
		shift = 0
	}
	// Guard against overflow for absurd retry counts.
	if shift > 32 {
		return max
	}
	delay := base << uint(shift)
	if delay > max {
		return max
	}
	return delay
}

// enqueue decodes a frame and queues it for dispatch. Malformed frames are
// logged and dropped without aborting the session; a full dispatch queue
// drops the event so slow handlers cannot stall frame reception.
func (m *Manager) enqueue(data []byte) {
	env, err := event.Decode(data)
	if err != nil {
		var decodeErr *event.DecodeError
		if errors.As(err, &decodeErr) {
			slog.Warn("discarding malformed frame", "error", err)
			return
		}
		slog.Warn("failed to decode frame", "error", err)
		return
	}

	select {
	case m.dispatchCh <- env:
	default:
		slog.Warn("dispatch queue full, dropping event", "kind", env.Kind)
	}
}

func (m *Manager) dispatchLoop() {
	for {
		select {
		case env := <-m.dispatchCh:
			m.invoke(env)
		case <-m.closed:
			return
		}
	}
}

func (m *Manager) invoke(env event.Envelope) {
	m.handlersMu.RLock()
	handlers := make([]Handler, 0, len(m.handlers[env.Kind])+len(m.handlers[KindAny]))
	handlers = append(handlers, m.handlers[env.Kind]...)
	handlers = append(handlers, m.handlers[KindAny]...)
	m.handlersMu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
}

func (m *Manager) notifyPhase(p Phase) {
	m.handlersMu.RLock()
	listeners := make([]func(Phase), len(m.phaseListeners))
	copy(listeners, m.phaseListeners)
	m.handlersMu.RUnlock()

	for _, l := range listeners {
		l(p)
	}
}
