package registry

import (
	"net"
	"sync"
	"time"
)

// fakeConn is an in-memory Conn for tests. Writes are collected; reads block
// until a frame is injected or the conn is closed.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte

	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	// writeGate, when non-nil, blocks every write until the gate closes.
	// Lets tests simulate a peer that stopped reading.
	writeGate chan struct{}
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

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	if f.writeGate != nil {
		select {
		case <-f.writeGate:
		case <-f.closed:
			return net.ErrClosed
		}
	}
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	if messageType != 1 {
		return nil // ignore pings and close frames
	}
	f.mu.Lock()
	f.writes = append(f.writes, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

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
