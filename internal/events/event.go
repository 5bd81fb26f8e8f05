package events

import "time"

// Event describes something the sync engine did with a candidate file, or the
// end of a scan cycle.
type Event struct {
	Type     Type      `json:"type"`
	Path     string    `json:"path,omitempty"`
	Identity string    `json:"identity,omitempty"`
	Err      string    `json:"error,omitempty"`
	Stage    string    `json:"stage,omitempty"`
	At       time.Time `json:"at"`
	Cycle    *Cycle    `json:"cycle,omitempty"`
}

type Type string

const (
	TypeReplicated Type = "Replicated"
	TypeDeferred   Type = "Deferred"
	TypeFailed     Type = "Failed"
	TypeCycleDone  Type = "CycleDone"
)

// Cycle summarizes one scan. Counts are per cycle, not cumulative.
type Cycle struct {
	Candidates int   `json:"candidates"`
	Replicated int   `json:"replicated"`
	Skipped    int   `json:"skipped"`
	Deferred   int   `json:"deferred"`
	Failed     int   `json:"failed"`
	DurationMS int64 `json:"durationMs"`
}
