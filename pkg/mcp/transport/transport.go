// Package transport implements the uniform transport abstraction used by
// the mcp host (spec.md 4.B) and its three concrete bindings: stdio,
// legacy SSE, and the streamable HTTP transport.
package transport

import (
	"context"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// Transport is the uniform read/write surface a Dispatcher drives. Read
// returns one complete JSON-RPC frame per call and blocks until one is
// available or the transport is stopping, in which case it returns
// (0, "", nil). Write is safe to call concurrently; implementations
// serialise writes internally.
type Transport interface {
	Read(ctx context.Context) (int, string, error)
	Write(ctx context.Context, data string) error

	ReadAsync(ctx context.Context) <-chan ReadResult
	WriteAsync(ctx context.Context, data string) <-chan error

	Name() string
	Version() string
	Port() int

	// Stop releases any transport-internal resources (listeners, workers)
	// and unblocks Read/Write calls waiting on the transport's internal
	// queues. Stdio's Stop does not interrupt a Read already blocked on
	// its underlying reader.
	Stop()
}

// ReadResult is the value delivered on the channel returned by ReadAsync.
type ReadResult struct {
	N       int
	Payload string
	Err     error
}
