// Package pool exposes the public connection pool API: a generic bounded pool
// wired from a Manager, with reaper-driven eviction, replenishment, and
// metrics.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/pimeys/tang-go/config"
	"github.com/pimeys/tang-go/errs"
	"github.com/pimeys/tang-go/internal/observability"
	"github.com/pimeys/tang-go/internal/poolcore"
	"github.com/pimeys/tang-go/lib/async"
)

// Pool is a bounded set of connections created by a Manager. Get hands out
// idle connections immediately when available, otherwise triggers creation up
// to the configured maximum and parks the caller until one is returned.
type Pool[C any] struct {
	name     string
	conf     config.PoolSettings
	validate bool

	mgr     Manager[C]
	lock    *poolcore.PoolLock[C]
	spawner *async.Spawner
	limiter *rate.Limiter
	metrics *observability.PoolMetrics

	ctx        context.Context
	cancel     context.CancelFunc
	closed     atomic.Bool
	reaperDone chan struct{}
}

func newPool[C any](ctx context.Context, b *Builder, mgr Manager[C]) (*Pool[C], error) {
	if mgr == nil {
		return nil, errs.New("pool", errs.CodeInvalid, errs.WithMessage("manager must be provided"))
	}
	if b.settings.MaxSize <= 0 {
		return nil, errs.New("pool", errs.CodeInvalid, errs.WithMessage("max_size must be positive"))
	}
	if b.settings.MinIdle < 0 || b.settings.MinIdle > b.settings.MaxSize {
		return nil, errs.New("pool", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("min_idle %d out of range [0, %d]", b.settings.MinIdle, b.settings.MaxSize)))
	}
	if b.settings.ConnTimeout <= 0 {
		return nil, errs.New("pool", errs.CodeInvalid, errs.WithMessage("conn_timeout must be positive"))
	}

	spawner, err := async.NewSpawner(b.spawner.Workers, b.spawner.Queue)
	if err != nil {
		return nil, fmt.Errorf("build spawner: %w", err)
	}

	lifecycle, cancel := context.WithCancel(context.Background())
	p := new(Pool[C])
	p.name = b.name
	p.conf = b.settings
	p.validate = b.validate
	p.mgr = mgr
	p.lock = poolcore.NewPoolLock[C](b.settings.MaxSize)
	p.spawner = spawner
	p.ctx = lifecycle
	p.cancel = cancel
	if b.settings.DialRate > 0 {
		burst := b.settings.DialBurst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(b.settings.DialRate), burst)
	}

	p.metrics, err = observability.NewPoolMetrics(b.meter, b.name, func() (int, int, int) {
		st := p.lock.State()
		return st.Connections, st.IdleConnections, len(st.PendingConnections)
	})
	if err != nil {
		cancel()
		spawner.Close()
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	// Pre-spawn the idle floor. TryDropIdle with a never-matching predicate
	// is the same replenish path the reaper uses; on a fresh lock it cannot
	// be contended.
	if b.settings.MinIdle > 0 {
		_, replenish := p.lock.TryDropIdle(b.settings.MinIdle, func(poolcore.IdleConn[C]) bool { return false })
		p.spawnMany(replenish)
		p.waitWarm(ctx)
	}

	if b.settings.ReaperRate > 0 {
		p.reaperDone = make(chan struct{})
		go p.reap()
	}
	return p, nil
}

// Name reports the pool's label used in logs and metrics.
func (p *Pool[C]) Name() string { return p.name }

// Get acquires a connection, waiting up to the configured wait timeout. The
// returned handle must be released or discarded exactly once.
func (p *Pool[C]) Get(ctx context.Context) (*Conn[C], error) {
	if p.closed.Load() {
		return nil, errs.New("pool", errs.CodeClosed, errs.WithMessage("pool is shut down"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	if p.conf.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.conf.WaitTimeout)
		defer cancel()
	}

	for {
		idle, err := p.lock.Acquire(p.triggerSpawn).Wait(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				p.metrics.RecordAcquire(ctx, time.Since(start), observability.ResultTimeout)
				return nil, errs.New("pool", errs.CodeTimeout,
					errs.WithMessage("acquire wait expired"),
					errs.WithRemediation("raise max_size or wait_timeout"),
					errs.WithCause(err))
			}
			p.metrics.RecordAcquire(ctx, time.Since(start), observability.ResultCancelled)
			return nil, fmt.Errorf("acquire: %w", err)
		}

		if p.validate {
			if verr := p.mgr.Validate(ctx, idle.Conn); verr != nil {
				observability.Log().Debug("discarding invalid connection",
					observability.String("pool", p.name),
					observability.Err(verr))
				p.discardConn(idle)
				continue
			}
		}

		p.metrics.RecordAcquire(ctx, time.Since(start), observability.ResultAcquired)
		return &Conn[C]{pool: p, idle: idle}, nil
	}
}

// State returns a snapshot of the pool counters.
func (p *Pool[C]) State() poolcore.State {
	return p.lock.State()
}

// StateJSON renders the snapshot for diagnostics endpoints.
func (p *Pool[C]) StateJSON() ([]byte, error) {
	return EncodeJSON(p.lock.State())
}

// Close stops the reaper and the spawner, then drains and closes every idle
// connection. Checked-out connections are closed as their holders release
// them.
func (p *Pool[C]) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.cancel()
	if p.reaperDone != nil {
		<-p.reaperDone
	}

	var firstErr error
	if err := p.spawner.Shutdown(ctx); err != nil {
		firstErr = err
	}

drain:
	for {
		dropped, _ := p.lock.TryDropIdle(0, func(poolcore.IdleConn[C]) bool { return true })
		for _, ic := range dropped {
			p.mgr.Close(ic.Conn)
		}
		if p.lock.State().IdleConnections == 0 {
			break
		}
		// The drop attempt lost a lock race; back off briefly and retry.
		select {
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = fmt.Errorf("drain idle connections: %w", ctx.Err())
			}
			break drain
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := p.metrics.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// triggerSpawn hands one connection creation to the spawner. It runs inside
// the core's critical section, so it must only enqueue; a synchronous failure
// here makes the core roll back its pending marker.
func (p *Pool[C]) triggerSpawn() error {
	return p.spawner.Submit(p.ctx, func(ctx context.Context) error {
		p.createOne(ctx)
		return nil
	})
}

// spawnMany schedules n creations for markers that are already enqueued,
// undoing the marker for any schedule that fails synchronously.
func (p *Pool[C]) spawnMany(n int) {
	for i := 0; i < n; i++ {
		if err := p.triggerSpawn(); err != nil {
			p.lock.DecrPending(1)
			observability.Log().Error("schedule connection creation",
				observability.String("pool", p.name),
				observability.Err(err))
		}
	}
}

// createOne resolves one pending marker: dial, then land the connection or
// undo the marker.
func (p *Pool[C]) createOne(ctx context.Context) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			p.lock.DecrPending(1)
			return
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.conf.ConnTimeout)
	conn, err := p.mgr.Connect(dialCtx)
	cancel()
	if err != nil {
		p.lock.DecrPending(1)
		observability.Log().Error("connect",
			observability.String("pool", p.name),
			observability.Err(err))
		return
	}

	if !p.lock.PutBackIncrSpawned(poolcore.NewIdleConn(conn)) {
		// The pool filled (or shrank) while we were dialing.
		p.mgr.Close(conn)
		return
	}
	p.metrics.RecordCreated(ctx)
}

// discardConn closes a checked-out connection and runs the min-idle
// replenishment policy in the same critical section as the spawned decrement.
func (p *Pool[C]) discardConn(idle poolcore.IdleConn[C]) {
	p.mgr.Close(idle.Conn)
	if p.closed.Load() {
		p.lock.DecrSpawned(nil)
		return
	}
	n, ok := p.lock.DecrSpawned(p.replenishPolicy)
	if ok {
		p.spawnMany(n)
	}
}

// replenishPolicy tops the pool back up to the idle floor after a connection
// is lost.
func (p *Pool[C]) replenishPolicy(total int) (int, bool) {
	if total < p.conf.MinIdle {
		return p.conf.MinIdle - total, true
	}
	return 0, false
}

// waitWarm gives the initial fill a chance to land before Build returns. It
// stops as soon as the floor is reached, every attempt has resolved, or ctx
// is done; failures only surface through logs and state.
func (p *Pool[C]) waitWarm(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		st := p.lock.State()
		if st.IdleConnections >= p.conf.MinIdle || len(st.PendingConnections) == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}
