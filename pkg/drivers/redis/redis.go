// Package redis adapts dedicated Redis connections to the pool's Manager
// interface. Each pooled connection is a *redis.Conn carved off a shared
// client, so go-redis's own pooling stays out of the picture.
package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pimeys/tang-go/errs"
	"github.com/pimeys/tang-go/pkg/pool"
)

// Manager hands out single dedicated connections from one Redis client.
type Manager struct {
	client *goredis.Client
}

var _ pool.Manager[*goredis.Conn] = (*Manager)(nil)

// NewManager wraps an address into a manager. The underlying client only
// carries dial configuration; every pooled connection is dedicated.
func NewManager(opts *goredis.Options) (*Manager, error) {
	if opts == nil || opts.Addr == "" {
		return nil, errs.New("redis", errs.CodeInvalid, errs.WithMessage("address must be provided"))
	}
	return &Manager{client: goredis.NewClient(opts)}, nil
}

func (m *Manager) Connect(ctx context.Context) (*goredis.Conn, error) {
	conn := m.client.Conn()
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, errs.New("redis", errs.CodeNetwork,
			errs.WithMessage("connect"),
			errs.WithRemediation("check the server address"),
			errs.WithCause(err))
	}
	return conn, nil
}

func (m *Manager) Validate(ctx context.Context, conn *goredis.Conn) error {
	if err := conn.Ping(ctx).Err(); err != nil {
		return errs.New("redis", errs.CodeNetwork, errs.WithMessage("ping"), errs.WithCause(err))
	}
	return nil
}

func (m *Manager) Close(conn *goredis.Conn) {
	_ = conn.Close()
}

// Shutdown releases the shared client after the pool is drained.
func (m *Manager) Shutdown() error {
	return m.client.Close()
}
