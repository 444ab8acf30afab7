package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Semantic convention attribute keys, namespace.attribute_name style.
const (
	AttrPoolName = attribute.Key("pool.name")
	AttrResult   = attribute.Key("result")
)

// Acquire result values.
const (
	ResultAcquired  = "acquired"
	ResultCancelled = "cancelled"
	ResultTimeout   = "timeout"
)

// StateReader supplies counter snapshots for the observable gauges. It is
// called on the metrics collection path and must not block.
type StateReader func() (connections, idle, pending int)

// PoolMetrics records acquisition and lifecycle metrics for one pool.
type PoolMetrics struct {
	poolAttr     attribute.KeyValue
	acquires     metric.Int64Counter
	acquireWait  metric.Float64Histogram
	created      metric.Int64Counter
	evicted      metric.Int64Counter
	registration metric.Registration
}

// NewPoolMetrics registers the pool instruments against the meter. A nil
// meter falls back to the global provider, which is a no-op until a real one
// is installed.
func NewPoolMetrics(meter metric.Meter, poolName string, state StateReader) (*PoolMetrics, error) {
	if meter == nil {
		meter = otel.Meter("tang-go/pool")
	}

	m := new(PoolMetrics)
	m.poolAttr = AttrPoolName.String(poolName)

	var err error
	if m.acquires, err = meter.Int64Counter("pool.acquire.count",
		metric.WithDescription("Connection acquisition attempts by result"),
	); err != nil {
		return nil, err
	}
	if m.acquireWait, err = meter.Float64Histogram("pool.acquire.wait",
		metric.WithDescription("Time spent waiting for a connection"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.created, err = meter.Int64Counter("pool.conn.created",
		metric.WithDescription("Connections successfully created"),
	); err != nil {
		return nil, err
	}
	if m.evicted, err = meter.Int64Counter("pool.conn.evicted",
		metric.WithDescription("Idle connections evicted by the reaper"),
	); err != nil {
		return nil, err
	}

	connections, err := meter.Int64ObservableGauge("pool.connections",
		metric.WithDescription("Live connections, idle or checked out"))
	if err != nil {
		return nil, err
	}
	idle, err := meter.Int64ObservableGauge("pool.connections.idle",
		metric.WithDescription("Connections sitting in the idle queue"))
	if err != nil {
		return nil, err
	}
	pending, err := meter.Int64ObservableGauge("pool.connections.pending",
		metric.WithDescription("Creation attempts in flight"))
	if err != nil {
		return nil, err
	}

	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		conns, idleN, pendingN := state()
		attrs := metric.WithAttributes(m.poolAttr)
		o.ObserveInt64(connections, int64(conns), attrs)
		o.ObserveInt64(idle, int64(idleN), attrs)
		o.ObserveInt64(pending, int64(pendingN), attrs)
		return nil
	}, connections, idle, pending)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordAcquire counts one acquisition attempt and its wait time.
func (m *PoolMetrics) RecordAcquire(ctx context.Context, wait time.Duration, result string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(m.poolAttr, AttrResult.String(result))
	m.acquires.Add(ctx, 1, attrs)
	m.acquireWait.Record(ctx, float64(wait)/float64(time.Millisecond), attrs)
}

// RecordCreated counts one successful connection creation.
func (m *PoolMetrics) RecordCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.created.Add(ctx, 1, metric.WithAttributes(m.poolAttr))
}

// RecordEvicted counts reaper evictions.
func (m *PoolMetrics) RecordEvicted(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evicted.Add(ctx, int64(n), metric.WithAttributes(m.poolAttr))
}

// Close unregisters the gauge callback.
func (m *PoolMetrics) Close() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
