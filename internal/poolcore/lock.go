// Package poolcore implements the exclusive-locked bookkeeping and the
// cancellation-safe acquisition primitive at the center of the pool: spawned,
// pending, and idle counters kept consistent under one mutex, plus a waiter
// registry that wakes exactly one parked acquirer per returned connection.
package poolcore

import (
	"fmt"
	"sync"

	"github.com/pimeys/tang-go/internal/waitlist"
)

// PoolLock serializes every mutation of the spawned/pending/idle counters and
// the waiter registry behind one mutex. No operation holds the lock across a
// suspension point; connection creation always runs outside it.
//
// At every point the lock is released, spawned+len(pending) <= maxSize and
// len(idle) <= spawned.
type PoolLock[C any] struct {
	mu      sync.Mutex
	maxSize int
	state   poolState[C]
}

type poolState[C any] struct {
	spawned int
	pending []Pending
	idle    []IdleConn[C]
	waiters waitlist.List
}

// NewPoolLock constructs the lock for a pool bounded at maxSize connections.
func NewPoolLock[C any](maxSize int) *PoolLock[C] {
	if maxSize <= 0 {
		panic(fmt.Sprintf("poolcore: max size must be positive, got %d", maxSize))
	}
	l := new(PoolLock[C])
	l.maxSize = maxSize
	l.state.pending = make([]Pending, 0, maxSize)
	l.state.idle = make([]IdleConn[C], 0, maxSize)
	return l
}

// MaxSize reports the configured capacity bound.
func (l *PoolLock[C]) MaxSize() int { return l.maxSize }

func (s *poolState[C]) decrSpawned() {
	// Saturates at zero: decrementing a connection that never counted is a no-op.
	if s.spawned != 0 {
		s.spawned--
	}
}

func (s *poolState[C]) decrPending(n int) {
	if n > len(s.pending) {
		n = len(s.pending)
	}
	s.pending = s.pending[n:]
}

func (s *poolState[C]) incrPending(n int) {
	for i := 0; i < n; i++ {
		s.pending = append(s.pending, newPending())
	}
}

func (s *poolState[C]) total() int {
	return s.spawned + len(s.pending)
}

func (s *poolState[C]) popIdle() (IdleConn[C], bool) {
	if len(s.idle) == 0 {
		var zero IdleConn[C]
		return zero, false
	}
	conn := s.idle[0]
	s.idle[0] = IdleConn[C]{} // drop the reference so the backing array does not pin it
	s.idle = s.idle[1:]
	return conn, true
}

// DecrSpawned decrements the spawned count and, in the same critical section,
// consults trySpawn with the new total. When trySpawn returns a positive count
// that many pending markers are enqueued and the count is returned so the
// caller can trigger that many creations. Running the policy under the lock
// keeps two concurrent connection losses from both deciding to replenish.
func (l *PoolLock[C]) DecrSpawned(trySpawn func(total int) (int, bool)) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.decrSpawned()
	if trySpawn == nil {
		return 0, false
	}
	n, ok := trySpawn(l.state.total())
	if !ok || n <= 0 {
		return 0, false
	}
	l.state.incrPending(n)
	return n, true
}

// DecrPending removes n pending markers, oldest first. Callers invoke it once
// a creation attempt resolves without a connection reaching the pool.
func (l *PoolLock[C]) DecrPending(n int) {
	l.mu.Lock()
	l.state.decrPending(n)
	l.mu.Unlock()
}

// DropPendings removes every pending marker matching shouldDrop and reports
// how many were dropped. The pending queue is rebuilt in one pass so each
// marker is visited exactly once.
func (l *PoolLock[C]) DropPendings(shouldDrop func(Pending) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := len(l.state.pending)
	kept := l.state.pending[:0]
	for _, p := range l.state.pending {
		if !shouldDrop(p) {
			kept = append(kept, p)
		}
	}
	l.state.pending = kept
	return before - len(kept)
}

// TryDropIdle evicts idle connections matching shouldDrop, decrementing the
// spawned count for each. When the resulting total falls below minIdle it
// enqueues the difference as pending markers and returns that count so the
// caller can replenish. The evicted connections are returned for the caller to
// close; ownership transfers out of the pool here.
//
// The attempt is non-blocking: when the lock is contended it returns
// immediately with no work done, to stay off the hot acquire path.
func (l *PoolLock[C]) TryDropIdle(minIdle int, shouldDrop func(IdleConn[C]) bool) (dropped []IdleConn[C], replenish int) {
	if !l.mu.TryLock() {
		return nil, 0
	}
	defer l.mu.Unlock()

	kept := make([]IdleConn[C], 0, len(l.state.idle))
	for _, conn := range l.state.idle {
		if shouldDrop(conn) {
			dropped = append(dropped, conn)
			l.state.decrSpawned()
			continue
		}
		kept = append(kept, conn)
	}
	l.state.idle = kept

	if total := l.state.total(); total < minIdle {
		replenish = minIdle - total
		l.state.incrPending(replenish)
	}
	return dropped, replenish
}

// PutBack returns a checked-out connection to the idle queue and weakly
// notifies one waiter. The wake signal fires after the lock is released.
func (l *PoolLock[C]) PutBack(conn IdleConn[C]) {
	l.mu.Lock()
	l.state.idle = append(l.state.idle, conn)
	notify := l.state.waiters.NotifyOne()
	l.mu.Unlock()

	wake(notify)
}

// PutBackIncrSpawned lands a newly created connection: it resolves one pending
// marker and, if the pool is still below capacity, admits the connection and
// increments spawned. A connection arriving after the pool shrank below it is
// rejected; the caller must close it. Either way one waiter is weakly
// notified.
func (l *PoolLock[C]) PutBackIncrSpawned(conn IdleConn[C]) (admitted bool) {
	l.mu.Lock()
	l.state.decrPending(1)
	if l.state.spawned < l.maxSize {
		l.state.idle = append(l.state.idle, conn)
		l.state.spawned++
		admitted = true
	}
	notify := l.state.waiters.NotifyOne()
	l.mu.Unlock()

	wake(notify)
	return admitted
}

// State returns a point-in-time snapshot of the counters.
func (l *PoolLock[C]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	pendings := make([]Pending, len(l.state.pending))
	copy(pendings, l.state.pending)
	return State{
		Connections:        l.state.spawned,
		IdleConnections:    len(l.state.idle),
		PendingConnections: pendings,
	}
}

// wake fires a weak notification. Handles are capacity-1 channels that each
// receive at most one signal, so the send never blocks.
func wake(handle chan struct{}) {
	if handle != nil {
		handle <- struct{}{}
	}
}
