package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Sirius-ashwak/curalink/internal/domain"
	"github.com/Sirius-ashwak/curalink/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	idleTimeout       = 5 * time.Minute
	messageBufferSize = 16
)

// Conn is the subset of *websocket.Conn the registry needs. Tests substitute
// an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Connection wraps one accepted transport connection. All writes to the
// underlying conn happen on the single writer goroutine started by
// NewConnection, so concurrent broadcasts never interleave bytes on the wire.
type Connection struct {
	id    uuid.UUID
	conn  Conn
	clock clockwork.Clock

	sendCh   chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	activityMu   sync.Mutex
	lastActivity time.Time

	// owner is set by Registry.Register and read by Unregister, both under
	// the registry lock. Empty until the handshake succeeds.
	owner string
}

// NewConnection wraps conn and starts its writer goroutine.
func NewConnection(conn Conn, clock clockwork.Clock) *Connection {
	c := &Connection{
		id:           uuid.New(),
		conn:         conn,
		clock:        clock,
		sendCh:       make(chan []byte, messageBufferSize),
		done:         make(chan struct{}),
		lastActivity: clock.Now(),
	}
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

// ID returns the process-unique connection identifier.
func (c *Connection) ID() uuid.UUID { return c.id }

// Owner returns the user id this connection is registered under, or "" if
// the connection is unauthenticated.
func (c *Connection) Owner() string { return c.owner }

// Read blocks until the next inbound frame or a transport error. Every
// received frame counts as activity for the idle-timeout check.
func (c *Connection) Read() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err == nil {
		c.refreshReadDeadline()
		c.recordActivity()
	}
	return data, err
}

// Send enqueues data for the writer goroutine without blocking. A saturated
// buffer means the peer is too slow to keep up; the caller should treat that
// as a failed write and close the connection.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
		return domain.ErrSendBufferFull
	}
}

// Close tears down the connection and waits for the writer goroutine to
// exit. Safe to call multiple times and from multiple goroutines.
func (c *Connection) Close() {
	c.stopOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
	c.wg.Wait()
}

// CloseGraceful sends a close frame with reason before closing the
// transport. Used on server shutdown.
func (c *Connection) CloseGraceful(reason string) {
	c.stopOnce.Do(func() {
		close(c.done)
		// The writer goroutine must exit before the close frame is written,
		// otherwise two goroutines write to the same conn.
		c.wg.Wait()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
		_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
		_ = c.conn.Close()
	})
	c.wg.Wait()
}

func (c *Connection) run() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg, ok := <-c.sendCh:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				// Closing the transport here makes the read side fail fast,
				// which drives the single unregister path.
				_ = c.conn.Close()
				return
			}
		case <-ticker.Chan():
			if c.idle() {
				metrics.ConnectionIdleDisconnects.Inc()
				_ = c.conn.Close()
				return
			}
			_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.ConnectionPingFailures.Inc()
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Connection) configurePongHandler() {
	c.refreshReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.refreshReadDeadline()
		c.recordActivity()
		return nil
	})
}

func (c *Connection) refreshReadDeadline() {
	_ = c.conn.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}

// recordActivity marks the connection as alive. Called on pong and on every
// inbound frame.
func (c *Connection) recordActivity() {
	c.activityMu.Lock()
	c.lastActivity = c.clock.Now()
	c.activityMu.Unlock()
}

func (c *Connection) idle() bool {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	return c.clock.Since(c.lastActivity) >= idleTimeout
}
