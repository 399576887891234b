package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/aevum/internal/evolution/models"
)

// ErrStrategyPanic wraps a panic raised inside a strategy.
var ErrStrategyPanic = errors.New("strategy panicked")

// DefinitionSource yields the currently active definition.
type DefinitionSource interface {
	Load() models.Definition
}

// Slot is the indirection through which the orchestrator invokes the active brain. It
// re-reads the definition on every call, so a replacement made between generations takes
// effect without restarting the process.
type Slot struct {
	logger   *zap.Logger
	defs     DefinitionSource
	registry *Registry
	now      func() time.Time
}

// NewSlot creates a Slot over defs and registry.
func NewSlot(logger *zap.Logger, defs DefinitionSource, registry *Registry) *Slot {
	return &Slot{
		logger:   logger.Named("brain_slot"),
		defs:     defs,
		registry: registry,
		now:      time.Now,
	}
}

// Invoke runs the active strategy once. Failures never escape: they come back as a failed
// Result with score 0 and the failure as narrative.
func (s *Slot) Invoke(ctx context.Context) models.Result {
	def := s.defs.Load()

	outcome, err := s.run(ctx, def)
	if err != nil {
		s.logger.Warn("Strategy invocation failed.", zap.String("kind", string(def.Kind)), zap.Error(err))
		return models.Result{
			Outcome: models.Outcome{Score: 0, Narrative: err.Error(), Timestamp: s.now().UTC()},
			Err:     err,
		}
	}

	if math.IsNaN(outcome.Score) {
		outcome.Score = 0
	}
	outcome.Score = math.Max(0, math.Min(100, outcome.Score))
	if outcome.Timestamp.IsZero() {
		outcome.Timestamp = s.now().UTC()
	}
	return models.Result{Outcome: outcome}
}

func (s *Slot) run(ctx context.Context, def models.Definition) (outcome models.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStrategyPanic, r)
		}
	}()

	brain, err := s.registry.Resolve(def)
	if err != nil {
		return models.Outcome{}, err
	}
	return brain.Run(ctx)
}
