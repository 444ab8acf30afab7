package pool

import "context"

// Manager creates, validates, and tears down connections of type C. The pool
// owns the bookkeeping; managers own everything protocol-specific.
//
// Connect runs off the acquire path on the pool's spawner, so it may block up
// to the configured connection timeout. Validate is called with a connection
// nobody else holds; returning an error discards the connection and triggers
// replenishment. Close must tolerate connections in any state.
type Manager[C any] interface {
	Connect(ctx context.Context) (C, error)
	Validate(ctx context.Context, conn C) error
	Close(conn C)
}
