package wsstream

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/pimeys/tang-go/errs"
	"github.com/pimeys/tang-go/pkg/pool"
)

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		for {
			typ, data, err := c.Read(r.Context())
			if err != nil {
				return
			}
			if err := c.Write(r.Context(), typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewManagerRejectsBadEndpoints(t *testing.T) {
	if _, err := NewManager("ftp://example.com/stream", nil); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("ftp scheme: got %v, want invalid", err)
	}
	if _, err := NewManager("://not-a-url", nil); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("malformed url: got %v, want invalid", err)
	}
}

func TestConnectReportsDialFailure(t *testing.T) {
	mgr, err := NewManager("ws://127.0.0.1:1", nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := mgr.Connect(ctx); errs.CodeOf(err) != errs.CodeNetwork {
		t.Fatalf("dial to closed port: got %v, want network error", err)
	}
}

func TestPooledSessionsEchoAndAreReused(t *testing.T) {
	srv := newEchoServer(t)
	mgr, err := NewManager(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	ctx := context.Background()
	b := pool.NewBuilder().
		Name("wsstream-test").
		MaxSize(2).
		MinIdle(0).
		ConnTimeout(5 * time.Second).
		WaitTimeout(5 * time.Second).
		ReaperRate(0)
	p, err := pool.Build[*websocket.Conn](ctx, b, mgr)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer p.Close(ctx)

	conn, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	sessionID := conn.ID()

	msg := []byte("ping across the pool")
	if err := conn.Raw().Write(ctx, websocket.MessageText, msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	typ, data, err := conn.Raw().Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if typ != websocket.MessageText || !bytes.Equal(data, msg) {
		t.Fatalf("echo mismatch: %v %q", typ, data)
	}
	conn.Release()

	conn, err = p.Get(ctx)
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if conn.ID() != sessionID {
		t.Fatal("expected the released session to be reused")
	}
	conn.Release()
}
