// Package stream keeps one live push-stream connection to the portfolio
// backend and applies its sync progress events to the shared store. It
// reconnects with capped exponential backoff and treats a missed heartbeat
// as a dead connection.
package stream

import "context"

// Transport opens one connection to the push endpoint. Each call to Open
// dials afresh; the supervisor owns the returned reader.
type Transport interface {
	Open(ctx context.Context) (EventReader, error)
}

// EventReader yields raw event payloads, one JSON document per call.
// Next blocks until an event arrives, the connection fails, or ctx is
// done. Close unblocks a pending Next.
type EventReader interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}
