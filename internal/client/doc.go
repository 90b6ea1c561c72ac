// Package client implements the client side of the realtime channel: a
// connection-lifecycle state machine that opens the transport, performs the
// identity handshake, dispatches inbound events to subscribers, and on loss
// retries with bounded exponential backoff before degrading to a polling
// fallback.
//
// The manager runs on a single logical timeline: state transitions are
// serialized behind one mutex and every connection attempt carries a
// generation number, so a stale timer or a late dial result can never
// resurrect a disabled or superseded attempt.
package client
