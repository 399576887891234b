// Package evolution assembles the learner, brain slot, mutator, journal and archive into a
// runnable generation loop.
package evolution

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/aevum/internal/config"
	"github.com/xkilldash9x/aevum/internal/evolution/archive"
	"github.com/xkilldash9x/aevum/internal/evolution/chronicler"
	"github.com/xkilldash9x/aevum/internal/evolution/learner"
	"github.com/xkilldash9x/aevum/internal/evolution/models"
	"github.com/xkilldash9x/aevum/internal/evolution/mutator"
	"github.com/xkilldash9x/aevum/internal/evolution/orchestrator"
	"github.com/xkilldash9x/aevum/internal/evolution/strategy"
)

// Random streams derived from one configured seed.
const (
	streamStateInit uint64 = iota + 1
	streamBatches
	streamRandomCurve
	streamMutation
)

// System is the fully wired loop plus the stores the CLI inspects directly.
type System struct {
	Orchestrator *orchestrator.Orchestrator
	Journal      *chronicler.Chronicler
	Archive      *archive.Archive
	Definitions  *strategy.DefinitionStore
	State        *learner.Store
	Registry     *strategy.Registry

	logger *zap.Logger
}

// NewSystem wires every component from cfg. Progress lines of the loop go to out.
func NewSystem(logger *zap.Logger, cfg config.Interface, out io.Writer) (*System, error) {
	storage := cfg.Storage()
	lcfg := cfg.Learner()
	mcfg := cfg.Mutation()

	state := learner.NewStore(logger, storage.Path(storage.StateFile), learner.InitRanges{
		Weight: lcfg.InitWeightRange,
		Bias:   lcfg.InitBiasRange,
		BaseLR: lcfg.BaseLR,
	}, newRand(lcfg.Seed, streamStateInit))
	brain := learner.New(logger, lcfg, state, newRand(lcfg.Seed, streamBatches))

	registry := strategy.NewRegistry()
	if err := registry.Register(models.KindAffineSGD, func(models.Definition) (strategy.Strategy, error) {
		return brain, nil
	}); err != nil {
		return nil, err
	}
	if err := registry.Register(models.KindRandomCurve, strategy.NewRandomCurveFactory(newRand(mcfg.Seed, streamRandomCurve))); err != nil {
		return nil, err
	}

	defs := strategy.NewDefinitionStore(logger, storage.Path(storage.DefinitionFile))
	journal := chronicler.NewChronicler(logger, storage.Path(storage.JournalFile))
	arch := archive.New(logger, storage.Path(storage.ArchiveDir))
	mut := mutator.New(logger, mcfg, defs, state, newRand(mcfg.Seed, streamMutation))

	orch, err := orchestrator.New(logger, cfg.Loop(), orchestrator.Components{
		Brain:       strategy.NewSlot(logger, defs, registry),
		Journal:     journal,
		Archive:     arch,
		Mutator:     mut,
		Definitions: defs,
	}, out)
	if err != nil {
		return nil, err
	}

	return &System{
		Orchestrator: orch,
		Journal:      journal,
		Archive:      arch,
		Definitions:  defs,
		State:        state,
		Registry:     registry,
		logger:       logger.Named("evolution"),
	}, nil
}

// Bootstrap makes sure the data directory, the archive directory and an empty journal
// exist before the first generation.
func (s *System) Bootstrap() error {
	if err := os.MkdirAll(s.Archive.Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := s.Journal.Init(); err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}
	return nil
}

// Rollback reinstalls the definition archived under tag as the active brain.
func (s *System) Rollback(tag string) (models.Definition, error) {
	snap, err := s.Archive.Load(tag)
	if err != nil {
		return models.Definition{}, err
	}
	def, err := s.Definitions.Install(snap.Definition)
	if err != nil {
		return models.Definition{}, fmt.Errorf("failed to reinstall %s: %w", tag, err)
	}
	s.logger.Info("Brain rolled back.", zap.String("tag", tag), zap.Int("generation", snap.Generation), zap.String("kind", string(def.Kind)))
	return def, nil
}

// newRand returns a PCG source for stream. A zero seed draws one from the runtime source.
func newRand(seed, stream uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, stream))
}
