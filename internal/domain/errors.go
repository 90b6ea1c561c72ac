package domain

import "errors"

var (
	// ErrNotConnected is returned by the client manager when Send is called
	// outside the connected phase. The message is dropped, not queued.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionClosed is returned when writing to a connection whose
	// writer has already stopped.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a connection's outbound queue is
	// saturated. The broadcaster treats this as a failed write and evicts
	// the connection.
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrHandshakeRejected is returned when the first frame on a new
	// connection is not an acceptable identity claim.
	ErrHandshakeRejected = errors.New("handshake rejected")
)
