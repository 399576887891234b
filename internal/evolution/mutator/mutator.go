// Package mutator replaces the active brain when the loop decides the current one is not
// good enough.
package mutator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/aevum/internal/config"
	"github.com/xkilldash9x/aevum/internal/evolution/models"
	"github.com/xkilldash9x/aevum/internal/evolution/strategy"
)

// DefinitionWriter installs the active definition.
type DefinitionWriter interface {
	Save(def models.Definition) error
}

// StateResetter discards the learner's persisted state.
type StateResetter interface {
	Reset() error
}

// Mutator materializes a new strategy definition from the configured template and makes it
// the active one.
type Mutator struct {
	logger *zap.Logger
	cfg    config.MutationConfig
	defs   DefinitionWriter
	state  StateResetter
	rng    *rand.Rand
	now    func() time.Time
}

// New creates a Mutator. rng is used only for drawing template parameters.
func New(logger *zap.Logger, cfg config.MutationConfig, defs DefinitionWriter, state StateResetter, rng *rand.Rand) *Mutator {
	return &Mutator{
		logger: logger.Named("mutator"),
		cfg:    cfg,
		defs:   defs,
		state:  state,
		rng:    rng,
		now:    time.Now,
	}
}

// Mutate installs a freshly drawn definition and starts a new learner lifecycle. The
// returned definition is the one now active.
func (m *Mutator) Mutate(ctx context.Context, reason string) (models.Definition, error) {
	if err := ctx.Err(); err != nil {
		return models.Definition{}, err
	}

	def := m.materialize()
	if err := m.defs.Save(def); err != nil {
		return models.Definition{}, fmt.Errorf("failed to install %s definition: %w", def.Kind, err)
	}

	// The new definition is already active at this point.
	if err := m.state.Reset(); err != nil {
		m.logger.Warn("Failed to reset learner state after mutation.", zap.Error(err))
	}

	m.logger.Info("Brain mutated.",
		zap.String("reason", reason),
		zap.String("kind", string(def.Kind)),
		zap.String("name", def.Name),
		zap.Int("low", def.LowThreshold),
		zap.Int("high", def.HighThreshold),
	)
	return def, nil
}

func (m *Mutator) materialize() models.Definition {
	now := m.now()
	if models.StrategyKind(m.cfg.Template) == models.KindAffineSGD {
		def := strategy.DefaultDefinition()
		def.CreatedAt = now.UTC()
		return def
	}

	low := m.between(m.cfg.LowMin, m.cfg.LowMax)
	high := m.between(m.cfg.HighMin, m.cfg.HighMax)
	name := m.cfg.StrategyName
	if name == "" {
		name = string(models.KindRandomCurve)
	}
	return strategy.NewRandomCurveDefinition(name, low, high, now)
}

// between draws uniformly from the closed interval [lo, hi].
func (m *Mutator) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + m.rng.IntN(hi-lo+1)
}
