package pool

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/pimeys/tang-go/config"
)

// Builder assembles pool configuration before Build wires the pool together.
// The zero value is not useful; start from NewBuilder.
type Builder struct {
	name     string
	settings config.PoolSettings
	spawner  config.SpawnerSettings
	meter    metric.Meter
	validate bool
}

// NewBuilder starts from the default configuration.
func NewBuilder() *Builder {
	def := config.Default()
	b := new(Builder)
	b.name = "tang-pool"
	b.settings = def.Pool
	b.spawner = def.Spawner
	return b
}

// FromConfig replaces the sizing and spawner settings wholesale, keeping any
// fluent overrides applied afterwards.
func (b *Builder) FromConfig(cfg config.AppConfig) *Builder {
	b.settings = cfg.Pool
	b.spawner = cfg.Spawner
	return b
}

// Name labels the pool in logs and metrics.
func (b *Builder) Name(name string) *Builder {
	if name != "" {
		b.name = name
	}
	return b
}

// MaxSize bounds the number of live connections.
func (b *Builder) MaxSize(n int) *Builder {
	b.settings.MaxSize = n
	return b
}

// MinIdle sets the idle floor the reaper replenishes towards.
func (b *Builder) MinIdle(n int) *Builder {
	b.settings.MinIdle = n
	return b
}

// ConnTimeout bounds a single connection attempt; six of these is the
// staleness threshold for stuck creations.
func (b *Builder) ConnTimeout(d time.Duration) *Builder {
	b.settings.ConnTimeout = d
	return b
}

// WaitTimeout bounds how long Get waits for a connection; zero waits forever.
func (b *Builder) WaitTimeout(d time.Duration) *Builder {
	b.settings.WaitTimeout = d
	return b
}

// IdleTimeout is the reaper's idle-age eviction threshold; zero disables it.
func (b *Builder) IdleTimeout(d time.Duration) *Builder {
	b.settings.IdleTimeout = d
	return b
}

// MaxLifetime is the reaper's total-age eviction threshold; zero disables it.
func (b *Builder) MaxLifetime(d time.Duration) *Builder {
	b.settings.MaxLifetime = d
	return b
}

// ReaperRate sets how often the reaper sweeps; zero disables the reaper.
func (b *Builder) ReaperRate(d time.Duration) *Builder {
	b.settings.ReaperRate = d
	return b
}

// DialThrottle caps connection creation at r per second with the given burst.
func (b *Builder) DialThrottle(r float64, burst int) *Builder {
	b.settings.DialRate = r
	b.settings.DialBurst = burst
	return b
}

// SpawnerSize overrides the creation worker count and queue depth.
func (b *Builder) SpawnerSize(workers, queue int) *Builder {
	b.spawner.Workers = workers
	b.spawner.Queue = queue
	return b
}

// ValidateOnCheckout makes Get run Manager.Validate before handing a
// connection over, discarding and replacing it on failure.
func (b *Builder) ValidateOnCheckout(on bool) *Builder {
	b.validate = on
	return b
}

// Meter overrides the meter used for pool instruments; nil uses the global
// provider.
func (b *Builder) Meter(meter metric.Meter) *Builder {
	b.meter = meter
	return b
}

// Build wires the pool, pre-spawns the idle floor, and starts the reaper.
func Build[C any](ctx context.Context, b *Builder, mgr Manager[C]) (*Pool[C], error) {
	return newPool(ctx, b, mgr)
}
