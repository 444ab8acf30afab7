package pool

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	concpool "github.com/sourcegraph/conc/pool"

	"github.com/pimeys/tang-go/internal/observability"
	"github.com/pimeys/tang-go/internal/poolcore"
)

const (
	replenishAttempts    = 3
	replenishConcurrency = 4
)

// reap runs the periodic sweep until the pool's lifecycle context ends.
func (p *Pool[C]) reap() {
	defer close(p.reaperDone)
	ticker := time.NewTicker(p.conf.ReaperRate)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.sweep(time.Now())
		}
	}
}

// sweep collects stale pending markers, evicts aged idle connections above
// the floor, and tops the pool back up.
func (p *Pool[C]) sweep(now time.Time) {
	stale := p.lock.DropPendings(func(pd poolcore.Pending) bool {
		return pd.ShouldRemove(p.conf.ConnTimeout)
	})
	if stale > 0 {
		observability.Log().Info("dropped stale pending connections",
			observability.String("pool", p.name),
			observability.Int("count", stale))
	}

	dropped, replenish := p.lock.TryDropIdle(p.conf.MinIdle, p.shouldEvict(now))
	for _, ic := range dropped {
		p.mgr.Close(ic.Conn)
	}
	if len(dropped) > 0 {
		p.metrics.RecordEvicted(p.ctx, len(dropped))
		observability.Log().Debug("evicted idle connections",
			observability.String("pool", p.name),
			observability.Int("count", len(dropped)))
	}

	if replenish > 0 {
		p.replenishWithRetry(replenish)
	}
}

// shouldEvict implements the age-based eviction policy. Connections past the
// idle timeout or the maximum lifetime go first; the floor guard in
// TryDropIdle keeps min_idle of them regardless.
func (p *Pool[C]) shouldEvict(now time.Time) func(poolcore.IdleConn[C]) bool {
	return func(ic poolcore.IdleConn[C]) bool {
		if p.conf.IdleTimeout > 0 && ic.IdleFor(now) > p.conf.IdleTimeout {
			return true
		}
		if p.conf.MaxLifetime > 0 && ic.Age(now) > p.conf.MaxLifetime {
			return true
		}
		return false
	}
}

// replenishWithRetry dials n replacement connections, each with its own
// retry budget. The markers were already enqueued by TryDropIdle, so every
// abandoned attempt must undo one.
func (p *Pool[C]) replenishWithRetry(n int) {
	workers := concpool.New().WithMaxGoroutines(min(n, replenishConcurrency))
	for i := 0; i < n; i++ {
		workers.Go(p.createWithBackoff)
	}
	workers.Wait()
}

func (p *Pool[C]) createWithBackoff() {
	if p.limiter != nil {
		if err := p.limiter.Wait(p.ctx); err != nil {
			p.lock.DecrPending(1)
			return
		}
	}

	backoffCfg := backoff.NewExponentialBackOff()
	if p.conf.ReaperRate > 0 {
		backoffCfg.MaxInterval = p.conf.ReaperRate
	}

	for attempt := 0; attempt < replenishAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(p.ctx, p.conf.ConnTimeout)
		conn, err := p.mgr.Connect(dialCtx)
		cancel()
		if err == nil {
			if !p.lock.PutBackIncrSpawned(poolcore.NewIdleConn(conn)) {
				p.mgr.Close(conn)
				return
			}
			p.metrics.RecordCreated(p.ctx)
			return
		}

		observability.Log().Error("replenish connect",
			observability.String("pool", p.name),
			observability.Err(err))
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = time.Second
		}
		select {
		case <-p.ctx.Done():
			p.lock.DecrPending(1)
			return
		case <-time.After(sleep):
		}
	}
	p.lock.DecrPending(1)
}
