package poolcore

import (
	"time"

	"github.com/google/uuid"
)

// IdleConn wraps a pooled connection with the metadata eviction predicates
// and ownership tracking need. An IdleConn is owned by exactly one party at a
// time: the idle queue until popped, then the acquiring caller.
type IdleConn[C any] struct {
	Conn     C
	ID       uuid.UUID
	BornAt   time.Time
	IdleFrom time.Time
}

// NewIdleConn wraps a freshly created connection.
func NewIdleConn[C any](conn C) IdleConn[C] {
	now := time.Now()
	return IdleConn[C]{
		Conn:     conn,
		ID:       uuid.New(),
		BornAt:   now,
		IdleFrom: now,
	}
}

// MarkIdle stamps the connection as returned to the idle queue now.
func (c *IdleConn[C]) MarkIdle() {
	c.IdleFrom = time.Now()
}

// IdleFor reports how long the connection has sat in the idle queue.
func (c IdleConn[C]) IdleFor(now time.Time) time.Duration {
	return now.Sub(c.IdleFrom)
}

// Age reports how long ago the connection was created.
func (c IdleConn[C]) Age(now time.Time) time.Duration {
	return now.Sub(c.BornAt)
}
