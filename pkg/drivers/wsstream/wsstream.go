// Package wsstream adapts WebSocket sessions to the pool's Manager interface,
// keeping a bounded set of warm sessions against one endpoint.
package wsstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/pimeys/tang-go/errs"
	"github.com/pimeys/tang-go/pkg/pool"
)

// Manager dials WebSocket sessions to a fixed endpoint.
type Manager struct {
	endpoint string
	header   http.Header
}

var _ pool.Manager[*websocket.Conn] = (*Manager)(nil)

// NewManager validates the endpoint URL; ws, wss, http, and https schemes are
// accepted because websocket.Dial handles the upgrade either way.
func NewManager(endpoint string, header http.Header) (*Manager, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, errs.New("wsstream", errs.CodeInvalid,
			errs.WithMessage("malformed endpoint"),
			errs.WithCause(err))
	}
	switch parsed.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, errs.New("wsstream", errs.CodeInvalid,
			errs.WithMessage("endpoint scheme must be ws, wss, http, or https"))
	}
	return &Manager{endpoint: endpoint, header: header}, nil
}

func (m *Manager) Connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, m.endpoint, &websocket.DialOptions{HTTPHeader: m.header})
	if err != nil {
		return nil, errs.New("wsstream", errs.CodeNetwork,
			errs.WithMessage("dial"),
			errs.WithRemediation("check the endpoint URL"),
			errs.WithCause(err))
	}
	return conn, nil
}

// Validate is a no-op. websocket.Conn.Ping only completes while a reader is
// pumping control frames, and an idle pooled session has none, so liveness is
// left to TCP keepalives; holders discard sessions that fail mid-use.
func (m *Manager) Validate(context.Context, *websocket.Conn) error {
	return nil
}

func (m *Manager) Close(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "pool shutdown")
}
