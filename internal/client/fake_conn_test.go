package client

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sirius-ashwak/curalink/internal/event"
)

// fakeConn is an in-memory Conn standing in for the server side of the
// channel. Reads block until a frame is injected or the conn closes.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte

	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.inbound:
		return 1, data, nil
	case <-f.closed:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	f.mu.Lock()
	f.writes = append(f.writes, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// frameOf encodes an envelope for injection into a fakeConn.
func frameOf(t *testing.T, kind string, payload any) []byte {
	t.Helper()
	env, err := event.New(kind, payload, time.Now())
	require.NoError(t, err)
	data, err := event.Encode(env)
	require.NoError(t, err)
	return data
}
