package poolcore

// State is an immutable point-in-time snapshot of the pool counters, used for
// diagnostics only.
type State struct {
	Connections        int       `json:"connections"`
	IdleConnections    int       `json:"idle_connections"`
	PendingConnections []Pending `json:"pending_connections"`
}
