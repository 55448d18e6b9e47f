package reconcile

import (
	"context"
	"time"

	"github.com/danmuck/republish/internal/zone"
)

type Decision string

const (
	DecisionIgnored       Decision = "ignored"
	DecisionMalformed     Decision = "malformed"
	DecisionSnapshotError Decision = "snapshot_error"
	DecisionPresent       Decision = "present"
	DecisionAdd           Decision = "add"
	DecisionUpdate        Decision = "update"
	DecisionCollapse      Decision = "collapse"
	DecisionAwaiting      Decision = "awaiting_verification"
	DecisionCommitted     Decision = "committed"
	DecisionDeleteAll     Decision = "delete_all"
)

// Outcome describes one transaction handed to the update channel.
type Outcome struct {
	Hostname   string    `json:"hostname"`
	Trigger    string    `json:"trigger"`
	RoundID    string    `json:"round_id,omitempty"`
	Directives []string  `json:"directives"`
	Applied    bool      `json:"applied"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

func newOutcome(trigger, hostname, roundID string, tx *zone.Transaction, err error, at time.Time) Outcome {
	out := Outcome{
		Hostname:   hostname,
		Trigger:    trigger,
		RoundID:    roundID,
		Directives: make([]string, 0, len(tx.Ops)),
		Applied:    err == nil,
		At:         at.UTC(),
	}
	for _, op := range tx.Ops {
		out.Directives = append(out.Directives, op.Directive())
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// Sink receives every outcome after the update channel returns.
type Sink interface {
	Record(ctx context.Context, outcome Outcome) error
}

// Applier is the zone update channel as seen by the engine.
type Applier interface {
	Apply(ctx context.Context, tx *zone.Transaction) error
}

// Status is a point-in-time view of engine counters.
type Status struct {
	Mode            Mode      `json:"mode"`
	EventsFound     uint64    `json:"events_found"`
	EventsLost      uint64    `json:"events_lost"`
	Ignored         uint64    `json:"ignored"`
	Malformed       uint64    `json:"malformed"`
	SnapshotErrors  uint64    `json:"snapshot_errors"`
	RoundsStarted   uint64    `json:"rounds_started"`
	RoundsCommitted uint64    `json:"rounds_committed"`
	PendingRounds   int       `json:"pending_rounds"`
	Applied         uint64    `json:"applied"`
	Failed          uint64    `json:"failed"`
	LastApplied     time.Time `json:"last_applied,omitempty"`
}
