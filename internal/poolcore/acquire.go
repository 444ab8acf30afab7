package poolcore

import "context"

// Acquire is a single acquisition attempt over the pool lock. Each poll tries
// the idle queue, optionally triggers creation of one new connection, and
// otherwise parks on a waiter slot until a weak notify or cancellation.
//
// An Acquire moves through three states: unregistered (no waiter slot yet),
// registered (parked, holding a slot), and completed (connection handed over
// or abandoned). Wait drives the whole lifecycle; the cleanup protocol runs on
// every exit path so a cancelled acquirer can never swallow a wakeup.
type Acquire[C any] struct {
	lock       *PoolLock[C]
	spawn      func() error
	wake       chan struct{}
	waitKey    uint64
	registered bool
	acquired   bool
}

// Acquire starts an acquisition attempt. spawn schedules creation of one
// connection and reports synchronous scheduling failure; it runs while the
// state is locked, so it must only hand the work off, never perform it. A nil
// spawn disables growth, leaving replenishment to the reaper.
func (l *PoolLock[C]) Acquire(spawn func() error) *Acquire[C] {
	a := new(Acquire[C])
	a.lock = l
	a.spawn = spawn
	return a
}

// Wait blocks until a connection is handed over or ctx is done. It may be
// called once per Acquire.
func (a *Acquire[C]) Wait(ctx context.Context) (IdleConn[C], error) {
	defer a.abandon()

	for {
		if conn, ok := a.poll(); ok {
			return conn, nil
		}
		select {
		case <-a.wake:
			// Weakly notified: a connection may be waiting, or a faster
			// acquirer may already have claimed it. Re-poll either way.
		case <-ctx.Done():
			var zero IdleConn[C]
			return zero, ctx.Err()
		}
	}
}

// poll runs one acquisition step and reports whether a connection was handed
// over. When it returns false the Acquire is parked on a registered waiter
// slot and a.wake is armed.
func (a *Acquire[C]) poll() (IdleConn[C], bool) {
	l := a.lock
	if !l.mu.TryLock() {
		// Contended: a connection could land between here and the full lock,
		// so the idle check below runs under whichever lock we end up with.
		l.mu.Lock()
	}

	if conn, ok := l.state.popIdle(); ok {
		if a.registered {
			l.state.waiters.Remove(a.waitKey)
			a.registered = false
		}
		a.acquired = true
		l.mu.Unlock()
		return conn, true
	}

	// No idle connection: grow while below capacity. The pending marker is
	// enqueued optimistically and rolled back in the same critical section if
	// scheduling fails, so no orphaned marker is ever observable.
	if a.spawn != nil && l.state.total() < l.maxSize {
		l.state.incrPending(1)
		if err := a.spawn(); err != nil {
			l.state.decrPending(1)
		}
	}

	// Park. The first suspension inserts a slot; later polls refresh the
	// handle only when a weak notify already consumed it, so an in-flight
	// notification is never clobbered.
	if !a.registered {
		a.wake = make(chan struct{}, 1)
		a.waitKey = l.state.waiters.Insert(a.wake)
		a.registered = true
	} else if handle, ok := l.state.waiters.Handle(a.waitKey); ok && handle == nil {
		a.wake = make(chan struct{}, 1)
		l.state.waiters.SetHandle(a.waitKey, a.wake)
	}

	l.mu.Unlock()
	var zero IdleConn[C]
	return zero, false
}

// abandon deregisters the waiter slot. If the slot's handle was already
// consumed by a weak notify that this acquirer never acted on, the wakeup is
// passed to another waiter; otherwise a returned connection could strand with
// parked acquirers never re-polling.
func (a *Acquire[C]) abandon() {
	if !a.registered {
		return
	}
	l := a.lock

	l.mu.Lock()
	handle, found := l.state.waiters.Remove(a.waitKey)
	a.registered = false
	var notify chan struct{}
	if found && handle == nil && !a.acquired {
		notify = l.state.waiters.NotifyOne()
	}
	l.mu.Unlock()

	wake(notify)
}
