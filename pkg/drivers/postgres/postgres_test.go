package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pimeys/tang-go/errs"
	"github.com/pimeys/tang-go/pkg/pool"
)

func TestNewManagerRejectsBadDSN(t *testing.T) {
	if _, err := NewManager(""); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("empty dsn: got %v, want invalid", err)
	}
	if _, err := NewManager("postgres://user@host:notaport/db"); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("malformed dsn: got %v, want invalid", err)
	}
}

func TestPoolAgainstContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	if os.Getenv("TANG_PG_INTEGRATION") == "" {
		t.Skip("set TANG_PG_INTEGRATION=1 to run the container-backed test")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "tang"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/tang?sslmode=disable", host, port.Port())

	mgr, err := NewManager(dsn)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	b := pool.NewBuilder().
		Name("postgres-test").
		MaxSize(2).
		MinIdle(1).
		ConnTimeout(10 * time.Second).
		WaitTimeout(10 * time.Second).
		ReaperRate(500 * time.Millisecond).
		ValidateOnCheckout(true)
	p, err := pool.Build[*pgconn.PgConn](ctx, b, mgr)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer p.Close(ctx)

	// The container may still be warming up right after the port opens;
	// the reaper replenishes after failed dials, so retry the checkout.
	var conn *pool.Conn[*pgconn.PgConn]
	for attempt := 0; attempt < 3; attempt++ {
		conn, err = p.Get(ctx)
		if err == nil {
			break
		}
	}
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer conn.Release()

	results, err := conn.Raw().Exec(ctx, "select 1").ReadAll()
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result set, got %d", len(results))
	}
}
