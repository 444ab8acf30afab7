package poolcore

import (
	"time"

	json "github.com/goccy/go-json"
)

// Pending marks an in-flight connection creation attempt. Markers are only
// ever expired by the reaper's predicate; the core never drops them on its
// own.
type Pending struct {
	startFrom time.Time
}

func newPending() Pending {
	return Pending{startFrom: time.Now()}
}

func newPendingAt(startFrom time.Time) Pending {
	return Pending{startFrom: startFrom}
}

// StartFrom reports when the creation attempt began.
func (p Pending) StartFrom() time.Time { return p.startFrom }

// ShouldRemove reports whether the creation attempt has been in flight long
// enough to be considered stuck, using six connection timeouts as the
// threshold.
func (p Pending) ShouldRemove(connTimeout time.Duration) bool {
	return time.Now().After(p.startFrom.Add(connTimeout * 6))
}

// MarshalJSON emits the marker's start time for diagnostic snapshots.
func (p Pending) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		StartFrom time.Time `json:"start_from"`
	}{StartFrom: p.startFrom})
}
