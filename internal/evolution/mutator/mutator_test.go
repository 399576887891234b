package mutator

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/aevum/internal/config"
	"github.com/xkilldash9x/aevum/internal/evolution/learner"
	"github.com/xkilldash9x/aevum/internal/evolution/models"
	"github.com/xkilldash9x/aevum/internal/evolution/strategy"
)

func defaultMutationConfig() config.MutationConfig {
	return config.MutationConfig{
		Template:     "random_curve",
		StrategyName: "random_curve",
		LowMin:       20,
		LowMax:       40,
		HighMin:      60,
		HighMax:      80,
	}
}

type fixture struct {
	defs  *strategy.DefinitionStore
	state *learner.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)
	return fixture{
		defs: strategy.NewDefinitionStore(logger, filepath.Join(dir, "brain.json")),
		state: learner.NewStore(logger, filepath.Join(dir, "state.json"),
			learner.InitRanges{Weight: 2, Bias: 1, BaseLR: 0.01}, rand.New(rand.NewPCG(1, 2))),
	}
}

type failingResetter struct{ calls int }

func (f *failingResetter) Reset() error {
	f.calls++
	return errors.New("permission denied")
}

type failingWriter struct{}

func (failingWriter) Save(models.Definition) error { return errors.New("disk full") }

func TestMutate_InstallsRandomCurveAndResetsState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.Save(models.LearnerState{Weight: 9, Bias: 9, LearningRate: 0.01, Step: 500}))

	m := New(zaptest.NewLogger(t), defaultMutationConfig(), f.defs, f.state, rand.New(rand.NewPCG(10, 20)))
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	def, err := m.Mutate(context.Background(), "score<30")
	require.NoError(t, err)

	assert.Equal(t, models.KindRandomCurve, def.Kind)
	assert.Equal(t, "random_curve", def.Name)
	assert.Equal(t, fixed, def.CreatedAt)
	assert.Equal(t, def, f.defs.Load(), "the drawn definition becomes the active one")

	assert.NoFileExists(t, f.state.Path())
	assert.Equal(t, 0, f.state.Load().Step, "the next learner lifecycle starts from a fresh state")
}

func TestMutate_ThresholdsStayInRange(t *testing.T) {
	f := newFixture(t)
	m := New(zaptest.NewLogger(t), defaultMutationConfig(), f.defs, f.state, rand.New(rand.NewPCG(3, 3)))

	seenLow := map[int]bool{}
	for i := 0; i < 400; i++ {
		def, err := m.Mutate(context.Background(), "score<30")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, def.LowThreshold, 20)
		assert.LessOrEqual(t, def.LowThreshold, 40)
		assert.GreaterOrEqual(t, def.HighThreshold, 60)
		assert.LessOrEqual(t, def.HighThreshold, 80)
		seenLow[def.LowThreshold] = true
	}
	assert.True(t, seenLow[20] && seenLow[40], "both interval ends are reachable")
}

func TestMutate_AffineTemplateReinstallsLearner(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.defs.Save(strategy.NewRandomCurveDefinition("random_curve", 30, 70, time.Now())))

	cfg := defaultMutationConfig()
	cfg.Template = "affine_sgd"
	m := New(zaptest.NewLogger(t), cfg, f.defs, f.state, rand.New(rand.NewPCG(1, 1)))

	def, err := m.Mutate(context.Background(), "score<30")
	require.NoError(t, err)
	assert.Equal(t, models.KindAffineSGD, def.Kind)
	assert.Equal(t, models.KindAffineSGD, f.defs.Load().Kind)
}

func TestMutate_Failures(t *testing.T) {
	t.Run("install failure is returned", func(t *testing.T) {
		resetter := &failingResetter{}
		m := New(zaptest.NewLogger(t), defaultMutationConfig(), failingWriter{}, resetter, rand.New(rand.NewPCG(1, 1)))

		_, err := m.Mutate(context.Background(), "score<30")
		assert.ErrorContains(t, err, "disk full")
		assert.Zero(t, resetter.calls, "state is kept when nothing was installed")
	})

	t.Run("reset failure is tolerated", func(t *testing.T) {
		f := newFixture(t)
		resetter := &failingResetter{}
		m := New(zaptest.NewLogger(t), defaultMutationConfig(), f.defs, resetter, rand.New(rand.NewPCG(1, 1)))

		def, err := m.Mutate(context.Background(), "score<30")
		require.NoError(t, err)
		assert.Equal(t, 1, resetter.calls)
		assert.Equal(t, def, f.defs.Load())
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newFixture(t)
		m := New(zaptest.NewLogger(t), defaultMutationConfig(), f.defs, f.state, rand.New(rand.NewPCG(1, 1)))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := m.Mutate(ctx, "score<30")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, models.KindAffineSGD, f.defs.Load().Kind)
	})
}

func TestBetween(t *testing.T) {
	m := &Mutator{rng: rand.New(rand.NewPCG(4, 4))}
	assert.Equal(t, 25, m.between(25, 25))
	assert.Equal(t, 25, m.between(25, 10))
}
