// Package postgres adapts raw PostgreSQL connections to the pool's Manager
// interface. Unlike pgxpool it does no pooling of its own; the generic pool
// owns the connection lifecycle.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pimeys/tang-go/errs"
	"github.com/pimeys/tang-go/pkg/pool"
)

const closeTimeout = 5 * time.Second

// Manager dials PostgreSQL connections from a single DSN.
type Manager struct {
	dsn string
}

var _ pool.Manager[*pgconn.PgConn] = (*Manager)(nil)

// NewManager validates the DSN up front so a typo fails at build time rather
// than on every dial.
func NewManager(dsn string) (*Manager, error) {
	if dsn == "" {
		return nil, errs.New("postgres", errs.CodeInvalid, errs.WithMessage("dsn must be provided"))
	}
	if _, err := pgconn.ParseConfig(dsn); err != nil {
		return nil, errs.New("postgres", errs.CodeInvalid,
			errs.WithMessage("malformed dsn"),
			errs.WithCause(err))
	}
	return &Manager{dsn: dsn}, nil
}

func (m *Manager) Connect(ctx context.Context) (*pgconn.PgConn, error) {
	conn, err := pgconn.Connect(ctx, m.dsn)
	if err != nil {
		return nil, errs.New("postgres", errs.CodeNetwork,
			errs.WithMessage("connect"),
			errs.WithRemediation("check the server address and credentials"),
			errs.WithCause(err))
	}
	return conn, nil
}

func (m *Manager) Validate(ctx context.Context, conn *pgconn.PgConn) error {
	if conn.IsClosed() {
		return errs.New("postgres", errs.CodeClosed, errs.WithMessage("connection already closed"))
	}
	if err := conn.Ping(ctx); err != nil {
		return errs.New("postgres", errs.CodeNetwork, errs.WithMessage("ping"), errs.WithCause(err))
	}
	return nil
}

func (m *Manager) Close(conn *pgconn.PgConn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = conn.Close(ctx)
}
