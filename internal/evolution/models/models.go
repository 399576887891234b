// internal/evolution/models/models.go
package models

import (
	"time"
)

// EventKind defines the categories of entries in the event journal.
type EventKind string

const (
	EventRun    EventKind = "run"    // A generation completed and produced a score
	EventError  EventKind = "error"  // The active strategy failed; scored as 0
	EventMutate EventKind = "mutate" // The active strategy was replaced
)

// StrategyKind names a registered brain variant.
type StrategyKind string

const (
	KindAffineSGD   StrategyKind = "affine_sgd"
	KindRandomCurve StrategyKind = "random_curve"
)

// LearnerState is the numeric state of the online learner that survives across generations.
// Step never decreases and ScoreEMA is never cleared once set.
type LearnerState struct {
	Weight       float64
	Bias         float64
	LearningRate float64
	Step         int
	ScoreEMA     *float64
}

// Outcome is what a single generation of the brain produced.
type Outcome struct {
	Score     float64 // Always within [0,100]
	Narrative string
	Mutated   bool
	Timestamp time.Time
}

// Result is the explicit success/failure variant returned by the brain slot boundary.
// A failed result still carries an Outcome (score 0, narrative = failure description) so the
// orchestrator can consume both variants uniformly.
type Result struct {
	Outcome Outcome
	Err     error
}

// Failed reports whether the strategy invocation failed.
func (r Result) Failed() bool { return r.Err != nil }

// Kind maps the result onto its journal event kind.
func (r Result) Kind() EventKind {
	if r.Failed() {
		return EventError
	}
	return EventRun
}

// JournalEntry is one immutable record of the event journal.
type JournalEntry struct {
	Time       time.Time `json:"time"`
	Event      EventKind `json:"event"`
	Score      *float64  `json:"score,omitempty"`
	Log        string    `json:"log"`
	Mutated    bool      `json:"mutated"`
	Reason     string    `json:"reason,omitempty"`
	Generation int       `json:"generation,omitempty"`
}

// Snapshot is the immutable per-generation audit record of the active strategy.
type Snapshot struct {
	Generation int       `json:"generation"`
	Tag        string    `json:"tag"`
	Note       string    `json:"note"`
	Time       time.Time `json:"time"`
	Definition []byte    `json:"-"`
}

// Definition is the active strategy definition: a named variant plus its parameters.
type Definition struct {
	Kind          StrategyKind `json:"kind"`
	Name          string       `json:"name"`
	LowThreshold  int          `json:"low_threshold,omitempty"`
	HighThreshold int          `json:"high_threshold,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
