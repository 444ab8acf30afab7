package pool

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pimeys/tang-go/internal/poolcore"
)

// Conn is a checked-out connection. Exactly one of Release or Discard must be
// called when the holder is done; further calls are no-ops.
type Conn[C any] struct {
	pool *Pool[C]
	idle poolcore.IdleConn[C]
	done atomic.Bool
}

// Raw exposes the underlying connection.
func (c *Conn[C]) Raw() C { return c.idle.Conn }

// ID identifies the connection across checkouts.
func (c *Conn[C]) ID() uuid.UUID { return c.idle.ID }

// Release returns the connection to the idle queue, waking one waiter if any.
// After the pool is closed the connection is closed instead.
func (c *Conn[C]) Release() {
	if !c.done.CompareAndSwap(false, true) {
		return
	}
	p := c.pool
	if p.closed.Load() {
		p.mgr.Close(c.idle.Conn)
		p.lock.DecrSpawned(nil)
		return
	}
	c.idle.MarkIdle()
	p.lock.PutBack(c.idle)
}

// Discard closes the connection instead of returning it, replenishing towards
// the idle floor. Use it after a protocol error leaves the connection in an
// unknown state.
func (c *Conn[C]) Discard() {
	if !c.done.CompareAndSwap(false, true) {
		return
	}
	c.pool.discardConn(c.idle)
}
