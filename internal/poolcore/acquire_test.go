package poolcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAcquireReturnsIdleSynchronously(t *testing.T) {
	// One idle connection at max_size=1: acquire must complete on the first
	// poll without touching the pending queue.
	l := NewPoolLock[string](1)
	seed(t, l, 1)

	spawns := 0
	a := l.Acquire(func() error { spawns++; return nil })
	conn, err := a.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if conn.Conn != "seeded" {
		t.Fatalf("unexpected connection %q", conn.Conn)
	}
	if spawns != 0 {
		t.Fatalf("synchronous acquire must not trigger creation, got %d", spawns)
	}
	if st := l.State(); len(st.PendingConnections) != 0 {
		t.Fatal("pending queue must stay empty")
	}
}

func TestTwoAcquirersTriggerTwoCreations(t *testing.T) {
	// max_size=2, empty pool: both acquirers trigger creation; each resolved
	// creation hands a connection to exactly one of them.
	l := NewPoolLock[string](2)

	spawns := 0
	spawn := func() error { spawns++; return nil }

	a := l.Acquire(spawn)
	b := l.Acquire(spawn)
	if _, ok := a.poll(); ok {
		t.Fatal("empty pool must park the first acquirer")
	}
	if _, ok := b.poll(); ok {
		t.Fatal("empty pool must park the second acquirer")
	}

	st := l.State()
	if spawns != 2 || len(st.PendingConnections) != 2 || st.Connections != 0 {
		t.Fatalf("expected two pending creations, got spawns=%d state=%+v", spawns, st)
	}

	l.PutBackIncrSpawned(NewIdleConn("first"))
	if _, ok := a.poll(); !ok {
		t.Fatal("first acquirer must receive the first creation")
	}
	st = l.State()
	if st.Connections != 1 || len(st.PendingConnections) != 1 || st.IdleConnections != 0 {
		t.Fatalf("after first handoff: %+v", st)
	}

	l.PutBackIncrSpawned(NewIdleConn("second"))
	if _, ok := b.poll(); !ok {
		t.Fatal("second acquirer must receive the second creation")
	}
	st = l.State()
	if st.Connections != 2 || len(st.PendingConnections) != 0 {
		t.Fatalf("after second handoff: %+v", st)
	}
}

func TestFailedSpawnSchedulingRollsBackPending(t *testing.T) {
	l := NewPoolLock[string](2)

	failure := errors.New("executor saturated")
	a := l.Acquire(func() error { return failure })
	if _, ok := a.poll(); ok {
		t.Fatal("acquire must park when creation cannot be scheduled")
	}
	defer a.abandon()

	if st := l.State(); len(st.PendingConnections) != 0 {
		t.Fatalf("pending must roll back within the same poll, got %d", len(st.PendingConnections))
	}
}

func TestCancelledNotifiedWaiterRepropagatesWakeup(t *testing.T) {
	// A waiter cancelled strictly after being weak-notified but before
	// re-polling must hand its wakeup to the remaining waiter.
	l := NewPoolLock[string](2)

	a := l.Acquire(nil)
	b := l.Acquire(nil)
	if _, ok := a.poll(); ok {
		t.Fatal("expected first waiter to park")
	}
	if _, ok := b.poll(); ok {
		t.Fatal("expected second waiter to park")
	}

	l.PutBack(NewIdleConn("returned"))

	select {
	case <-a.wake:
	default:
		t.Fatal("oldest waiter must be the one notified")
	}

	// a is dropped without ever re-polling.
	a.abandon()

	select {
	case <-b.wake:
	default:
		t.Fatal("cancellation must re-propagate the wakeup to the second waiter")
	}
	conn, ok := b.poll()
	if !ok {
		t.Fatal("surviving waiter must observe the returned connection")
	}
	if conn.Conn != "returned" {
		t.Fatalf("unexpected connection %q", conn.Conn)
	}
}

func TestCancelledUnnotifiedWaiterWakesNobody(t *testing.T) {
	l := NewPoolLock[string](2)

	a := l.Acquire(nil)
	b := l.Acquire(nil)
	a.poll()
	b.poll()

	// a is cancelled while its handle is still live: no wakeup existed, so
	// none may be fabricated.
	a.abandon()

	select {
	case <-b.wake:
		t.Fatal("no connection was returned; the second waiter must stay parked")
	default:
	}
	if l.state.waiters.Len() != 1 {
		t.Fatalf("expected one registered waiter left, got %d", l.state.waiters.Len())
	}
}

func TestSpuriousRepollKeepsArmedHandle(t *testing.T) {
	l := NewPoolLock[string](1)

	a := l.Acquire(nil)
	a.poll()
	armed := a.wake

	// Re-poll without any notification in between: the registered handle must
	// not be replaced, or an in-flight notify could be clobbered.
	if _, ok := a.poll(); ok {
		t.Fatal("nothing to acquire")
	}
	if a.wake != armed {
		t.Fatal("spurious re-poll must keep the armed wake handle")
	}
	a.abandon()
}

func TestNotifiedRepollRefreshesConsumedHandle(t *testing.T) {
	l := NewPoolLock[string](2)

	a := l.Acquire(nil)
	b := l.Acquire(nil)
	a.poll()
	b.poll()

	l.PutBack(NewIdleConn("taken-by-racer"))
	<-a.wake
	consumed := a.wake

	// b snatches the connection before a re-polls.
	if _, ok := b.poll(); !ok {
		t.Fatal("racer must win the connection")
	}

	// a re-polls, finds nothing, and must re-arm with a fresh handle because
	// its old one was consumed by the notify.
	if _, ok := a.poll(); ok {
		t.Fatal("connection already claimed")
	}
	if a.wake == consumed {
		t.Fatal("consumed handle must be replaced on re-park")
	}
	a.abandon()
	b.abandon()
}

func TestWaitHonoursContextCancellation(t *testing.T) {
	l := NewPoolLock[string](1)
	seed(t, l, 1)

	holder := l.Acquire(nil)
	if _, err := holder.Wait(context.Background()); err != nil {
		t.Fatalf("setup acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(nil).Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if l.state.waiters.Len() != 0 {
		t.Fatalf("cancelled waiter must deregister, %d slots left", l.state.waiters.Len())
	}
}

func TestConcurrentAcquirersNeverShareAConnection(t *testing.T) {
	const (
		maxSize  = 4
		workers  = 32
		rounds   = 25
	)
	l := NewPoolLock[int](maxSize)

	var created sync.Map
	var nextConn int
	var createMu sync.Mutex
	spawn := func() error {
		go func() {
			createMu.Lock()
			nextConn++
			id := nextConn
			createMu.Unlock()
			l.PutBackIncrSpawned(NewIdleConn(id))
		}()
		return nil
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				conn, err := l.Acquire(spawn).Wait(ctx)
				cancel()
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				if _, loaded := created.LoadOrStore(conn.ID, true); loaded {
					// The uuid is minted once per creation and travels with
					// the connection; seeing it checked out twice at once
					// means two acquirers shared it.
					t.Errorf("connection %s handed to two acquirers", conn.ID)
					return
				}
				created.Delete(conn.ID)
				conn.MarkIdle()
				l.PutBack(conn)
			}
		}()
	}
	wg.Wait()

	st := l.State()
	if st.Connections > maxSize {
		t.Fatalf("spawned %d exceeds max %d", st.Connections, maxSize)
	}
	if st.Connections+len(st.PendingConnections) > maxSize {
		t.Fatalf("spawned+pending %d exceeds max %d", st.Connections+len(st.PendingConnections), maxSize)
	}
}

func TestReturnedConnectionsAreNeverStrandedByCancellations(t *testing.T) {
	// Waiters are cancelled at random while connections keep coming back; as
	// long as live waiters remain, every returned connection must eventually
	// be claimed.
	const maxSize = 2
	l := NewPoolLock[int](maxSize)

	l.mu.Lock()
	l.state.pending = append(l.state.pending, newPending(), newPending())
	l.mu.Unlock()
	l.PutBackIncrSpawned(NewIdleConn(1))
	l.PutBackIncrSpawned(NewIdleConn(2))

	var wg sync.WaitGroup
	acquired := make(chan IdleConn[int], 160)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		timeout := time.Duration(w%5) * 3 * time.Millisecond
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Millisecond)
				conn, err := l.Acquire(nil).Wait(ctx)
				cancel()
				if err != nil {
					continue // cancelled while parked; the wakeup must survive without us
				}
				acquired <- conn
				time.Sleep(time.Millisecond)
				conn.MarkIdle()
				l.PutBack(conn)
			}
		}()
	}
	wg.Wait()
	close(acquired)

	if len(acquired) == 0 {
		t.Fatal("expected at least some successful acquisitions")
	}
	st := l.State()
	if st.IdleConnections != maxSize {
		t.Fatalf("both connections must be back in the idle queue, got %d", st.IdleConnections)
	}
	if l.state.waiters.Len() != 0 {
		t.Fatalf("no waiter slot may outlive its acquirer, got %d", l.state.waiters.Len())
	}
}
