// Package orchestrator drives the generation loop: run the active brain, record what
// happened, archive it, and replace the brain when it underperforms.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aevum/internal/config"
	"github.com/xkilldash9x/aevum/internal/evolution/models"
)

// State is a phase of the generation state machine.
type State string

const (
	StateIdle      State = "Idle"
	StateRunning   State = "Running"
	StateScored    State = "Scored"
	StateArchiving State = "Archiving"
	StateMutating  State = "Mutating"
	StateStable    State = "Stable"
	StatePaced     State = "Paced"
	StateHalted    State = "Halted"
)

// Brain invokes the active strategy.
type Brain interface {
	Invoke(ctx context.Context) models.Result
}

// Journal appends entries to the event journal.
type Journal interface {
	Record(entry models.JournalEntry) error
}

// Archiver stores per-generation snapshots of the active definition.
type Archiver interface {
	Snapshot(generation int, note string, definition []byte) (models.Snapshot, error)
}

// Mutator replaces the active strategy.
type Mutator interface {
	Mutate(ctx context.Context, reason string) (models.Definition, error)
}

// DefinitionSource exposes the encoded active definition for archiving.
type DefinitionSource interface {
	Raw() ([]byte, error)
}

// Components groups the collaborators of the loop.
type Components struct {
	Brain       Brain
	Journal     Journal
	Archive     Archiver
	Mutator     Mutator
	Definitions DefinitionSource
}

// Report summarizes one generation.
type Report struct {
	Generation int
	Result     models.Result
	Tag        string
	Mutated    bool
}

// Orchestrator owns the generation counter and sequences one generation at a time.
type Orchestrator struct {
	logger *zap.Logger
	cfg    config.LoopConfig
	c      Components
	out    io.Writer
	sleep  func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	state      State
	generation int
}

// New creates an Orchestrator. Progress lines go to out; pass io.Discard to silence them.
func New(logger *zap.Logger, cfg config.LoopConfig, c Components, out io.Writer) (*Orchestrator, error) {
	if c.Brain == nil || c.Journal == nil || c.Archive == nil || c.Mutator == nil || c.Definitions == nil {
		return nil, errors.New("orchestrator requires brain, journal, archive, mutator and definitions")
	}
	if out == nil {
		out = io.Discard
	}
	return &Orchestrator{
		logger:     logger.Named("orchestrator"),
		cfg:        cfg,
		c:          c,
		out:        out,
		sleep:      pace,
		state:      StateIdle,
		generation: 1,
	}, nil
}

// State reports the current phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Generation reports the number of the next generation to run.
func (o *Orchestrator) Generation() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

func (o *Orchestrator) transition(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run executes generations until ctx is cancelled or MaxGenerations (when positive) have
// run. Interruption is the normal way to stop and is not an error.
func (o *Orchestrator) Run(ctx context.Context) error {
	if s := o.State(); s != StateIdle {
		return fmt.Errorf("orchestrator is not idle (state %s)", s)
	}

	runID := uuid.NewString()
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("Evolution loop starting.",
		zap.Float64("threshold", o.cfg.Threshold),
		zap.Duration("delay", o.cfg.Delay),
		zap.Int("max_generations", o.cfg.MaxGenerations),
	)
	fmt.Fprintln(o.out, "Aevum starting... (Ctrl+C to stop)")

	completed := 0
	for {
		if ctx.Err() != nil {
			break
		}

		report, err := o.Step(ctx)
		if err != nil {
			break
		}
		completed++

		if o.cfg.MaxGenerations > 0 && completed >= o.cfg.MaxGenerations {
			o.transition(StateIdle)
			logger.Info("Generation limit reached.", zap.Int("generations", completed))
			return nil
		}

		o.transition(StatePaced)
		if err := o.sleep(ctx, o.cfg.Delay); err != nil {
			break
		}
		logger.Debug("Generation finished.", zap.Int("generation", report.Generation))
	}

	o.transition(StateHalted)
	fmt.Fprintln(o.out, "Aevum halted by user.")
	logger.Info("Evolution loop halted.", zap.Int("generations", completed))
	return nil
}

// ErrInterrupted is returned by Step when the context ended while the brain was running.
// Nothing is recorded for such a generation and the counter does not advance.
var ErrInterrupted = errors.New("generation interrupted")

// Step runs exactly one generation and advances the counter. Journal, archive and mutation
// failures are logged; none of them stops the loop.
func (o *Orchestrator) Step(ctx context.Context) (Report, error) {
	gen := o.Generation()
	report := Report{Generation: gen}

	o.transition(StateRunning)
	fmt.Fprintf(o.out, "[Generation %d] Running core...\n", gen)
	result := o.c.Brain.Invoke(ctx)
	report.Result = result
	if result.Failed() && ctx.Err() != nil {
		o.logger.Info("Generation interrupted before scoring.", zap.Int("generation", gen), zap.Error(result.Err))
		return report, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
	score := result.Outcome.Score

	o.transition(StateScored)
	if err := o.c.Journal.Record(models.JournalEntry{
		Time:       result.Outcome.Timestamp,
		Event:      result.Kind(),
		Score:      &score,
		Log:        result.Outcome.Narrative,
		Mutated:    false,
		Generation: gen,
	}); err != nil {
		o.logger.Error("Failed to record generation in journal.", zap.Int("generation", gen), zap.Error(err))
	}

	o.transition(StateArchiving)
	report.Tag = o.archive(gen, score)
	fmt.Fprintf(o.out, "  -> Score=%.2f | Snapshot=%s\n", score, report.Tag)

	if score < o.cfg.Threshold {
		o.transition(StateMutating)
		report.Mutated = o.mutate(ctx, gen)
	} else {
		o.transition(StateStable)
		fmt.Fprintln(o.out, "  Satisfactory performance. No mutation.")
	}

	o.mu.Lock()
	o.generation++
	o.mu.Unlock()
	return report, nil
}

func (o *Orchestrator) archive(gen int, score float64) string {
	definition, err := o.c.Definitions.Raw()
	if err != nil {
		o.logger.Error("Failed to read active definition for archiving.", zap.Int("generation", gen), zap.Error(err))
		return ""
	}
	snap, err := o.c.Archive.Snapshot(gen, fmt.Sprintf("score=%.2f", score), definition)
	if err != nil {
		o.logger.Error("Failed to archive generation.", zap.Int("generation", gen), zap.Error(err))
		return ""
	}
	return snap.Tag
}

func (o *Orchestrator) mutate(ctx context.Context, gen int) bool {
	fmt.Fprintln(o.out, "  Low score: mutating brain...")
	reason := "score<" + strconv.FormatFloat(o.cfg.Threshold, 'f', -1, 64)

	if err := o.c.Journal.Record(models.JournalEntry{
		Event:      models.EventMutate,
		Log:        "replacing brain",
		Mutated:    true,
		Reason:     reason,
		Generation: gen,
	}); err != nil {
		o.logger.Error("Failed to record mutation in journal.", zap.Int("generation", gen), zap.Error(err))
	}

	// A decided mutation completes even if an interrupt arrives meanwhile.
	def, err := o.c.Mutator.Mutate(context.WithoutCancel(ctx), reason)
	if err != nil {
		o.logger.Error("Mutation failed; keeping the current brain.", zap.Int("generation", gen), zap.Error(err))
		if rerr := o.c.Journal.Record(models.JournalEntry{
			Event:      models.EventError,
			Log:        "mutation failed: " + err.Error(),
			Mutated:    false,
			Reason:     reason,
			Generation: gen,
		}); rerr != nil {
			o.logger.Error("Failed to record mutation failure in journal.", zap.Int("generation", gen), zap.Error(rerr))
		}
		return false
	}
	o.logger.Info("Brain replaced.", zap.Int("generation", gen), zap.String("kind", string(def.Kind)), zap.String("reason", reason))
	return true
}

// pace waits for d or until ctx is done, whichever comes first.
func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
