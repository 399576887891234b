package strategy

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/aevum/internal/evolution/models"
)

// MockStrategy is a testify mock of Strategy.
type MockStrategy struct {
	mock.Mock
}

func (m *MockStrategy) Run(ctx context.Context) (models.Outcome, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.Outcome), args.Error(1)
}

type panickingStrategy struct{}

func (panickingStrategy) Run(context.Context) (models.Outcome, error) {
	panic("index out of range")
}

func constFactory(s Strategy) Factory {
	return func(models.Definition) (Strategy, error) { return s, nil }
}

func newTestDefinitionStore(t *testing.T) *DefinitionStore {
	t.Helper()
	return NewDefinitionStore(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "brain.json"))
}

// -- Registry --

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(models.KindAffineSGD, constFactory(&MockStrategy{})))
	require.NoError(t, r.Register(models.KindRandomCurve, NewRandomCurveFactory(rand.New(rand.NewPCG(1, 1)))))

	err := r.Register(models.KindAffineSGD, constFactory(&MockStrategy{}))
	assert.ErrorIs(t, err, ErrKindExists)
	assert.Error(t, r.Register("", constFactory(&MockStrategy{})))
	assert.Error(t, r.Register("other", nil))

	assert.Equal(t, []models.StrategyKind{models.KindAffineSGD, models.KindRandomCurve}, r.Kinds())

	_, err = r.Resolve(models.Definition{Kind: "genetic"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	brain, err := r.Resolve(models.Definition{Kind: models.KindRandomCurve, Name: "rc", LowThreshold: 30, HighThreshold: 70})
	require.NoError(t, err)
	assert.IsType(t, &RandomCurve{}, brain)
}

// -- Definitions --

func TestDefinitionStore_DefaultsWhenMissingOrMalformed(t *testing.T) {
	store := newTestDefinitionStore(t)
	assert.Equal(t, DefaultDefinition(), store.Load())

	require.NoError(t, os.WriteFile(store.path, []byte("def run():\n    pass\n"), 0o644))
	assert.Equal(t, DefaultDefinition(), store.Load())

	require.NoError(t, os.WriteFile(store.path, []byte(`{"kind":"random_curve","low_threshold":80,"high_threshold":20}`), 0o644))
	assert.Equal(t, DefaultDefinition(), store.Load(), "inverted thresholds are rejected")
}

func TestDefinitionStore_SaveLoadRaw(t *testing.T) {
	store := newTestDefinitionStore(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	def := NewRandomCurveDefinition("random_curve", 25, 75, created)

	require.NoError(t, store.Save(def))
	assert.Equal(t, def, store.Load())

	raw, err := store.Raw()
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"random_curve","name":"random_curve","low_threshold":25,"high_threshold":75,"created_at":"2026-01-02T03:04:05Z"}`, string(raw))
}

func TestDefinitionStore_Install(t *testing.T) {
	store := newTestDefinitionStore(t)

	def, err := store.Install([]byte(`{"kind":"affine_sgd"}`))
	require.NoError(t, err)
	assert.Equal(t, "affine_sgd", def.Name, "name defaults to the kind")
	assert.Equal(t, models.KindAffineSGD, store.Load().Kind)

	_, err = store.Install([]byte(`{"kind":"genetic"}`))
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, models.KindAffineSGD, store.Load().Kind, "a rejected install leaves the active definition alone")
}

func TestEncodeDefinitionRequiresKind(t *testing.T) {
	_, err := EncodeDefinition(models.Definition{})
	assert.Error(t, err)
}

// -- Random curve template --

func TestRandomCurve_Bonus(t *testing.T) {
	c := &RandomCurve{name: "rc", low: 30, high: 70}

	assert.Equal(t, 0, c.bonus(0))
	assert.Equal(t, 12, c.bonus(16), "int(sqrt(16)*3)")
	assert.Equal(t, 16, c.bonus(29), "int(sqrt(29)*3)")
	assert.Equal(t, 0, c.bonus(30))
	assert.Equal(t, 0, c.bonus(70))
	assert.Equal(t, 8, c.bonus(71), "int(ln(71)*2)")
	assert.Equal(t, 9, c.bonus(100), "int(ln(100)*2)")
}

func TestRandomCurve_RunIsBounded(t *testing.T) {
	brain, err := NewRandomCurveFactory(rand.New(rand.NewPCG(5, 6)))(models.Definition{
		Kind: models.KindRandomCurve, Name: "random_curve", LowThreshold: 30, HighThreshold: 70,
	})
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		outcome, err := brain.Run(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, outcome.Score, 0.0)
		assert.LessOrEqual(t, outcome.Score, 100.0)
		assert.Regexp(t, `^Strategy=random_curve base=\d+ bonus=\d+ -> score=\d+$`, outcome.Narrative)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = brain.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// -- Slot --

func TestSlot_InvokeSuccess(t *testing.T) {
	store := newTestDefinitionStore(t)
	brain := new(MockStrategy)
	brain.On("Run", mock.Anything).Return(models.Outcome{Score: 88, Narrative: "fine"}, nil).Once()

	r := NewRegistry()
	require.NoError(t, r.Register(models.KindAffineSGD, constFactory(brain)))

	result := NewSlot(zaptest.NewLogger(t), store, r).Invoke(context.Background())
	assert.False(t, result.Failed())
	assert.Equal(t, models.EventRun, result.Kind())
	assert.Equal(t, 88.0, result.Outcome.Score)
	assert.Equal(t, "fine", result.Outcome.Narrative)
	assert.False(t, result.Outcome.Timestamp.IsZero())
	brain.AssertExpectations(t)
}

func TestSlot_ClampsScores(t *testing.T) {
	brain := new(MockStrategy)
	brain.On("Run", mock.Anything).Return(models.Outcome{Score: 250}, nil).Once()
	brain.On("Run", mock.Anything).Return(models.Outcome{Score: -4}, nil).Once()

	r := NewRegistry()
	require.NoError(t, r.Register(models.KindAffineSGD, constFactory(brain)))
	slot := NewSlot(zaptest.NewLogger(t), newTestDefinitionStore(t), r)

	assert.Equal(t, 100.0, slot.Invoke(context.Background()).Outcome.Score)
	assert.Equal(t, 0.0, slot.Invoke(context.Background()).Outcome.Score)
}

func TestSlot_FailuresBecomeErrorResults(t *testing.T) {
	t.Run("strategy error", func(t *testing.T) {
		brain := new(MockStrategy)
		brain.On("Run", mock.Anything).Return(models.Outcome{Score: 75}, errors.New("batch generation failed"))
		r := NewRegistry()
		require.NoError(t, r.Register(models.KindAffineSGD, constFactory(brain)))

		result := NewSlot(zaptest.NewLogger(t), newTestDefinitionStore(t), r).Invoke(context.Background())
		assert.True(t, result.Failed())
		assert.Equal(t, models.EventError, result.Kind())
		assert.Equal(t, 0.0, result.Outcome.Score)
		assert.Equal(t, "batch generation failed", result.Outcome.Narrative)
	})

	t.Run("panic", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(models.KindAffineSGD, constFactory(panickingStrategy{})))

		var result models.Result
		assert.NotPanics(t, func() {
			result = NewSlot(zaptest.NewLogger(t), newTestDefinitionStore(t), r).Invoke(context.Background())
		})
		assert.ErrorIs(t, result.Err, ErrStrategyPanic)
		assert.Equal(t, 0.0, result.Outcome.Score)
		assert.Contains(t, result.Outcome.Narrative, "index out of range")
	})

	t.Run("unregistered kind", func(t *testing.T) {
		result := NewSlot(zaptest.NewLogger(t), newTestDefinitionStore(t), NewRegistry()).Invoke(context.Background())
		assert.ErrorIs(t, result.Err, ErrUnknownKind)
		assert.Equal(t, 0.0, result.Outcome.Score)
	})
}

func TestSlot_ReflectsReplacementWithinProcess(t *testing.T) {
	store := newTestDefinitionStore(t)
	learnerBrain := new(MockStrategy)
	learnerBrain.On("Run", mock.Anything).Return(models.Outcome{Score: 10, Narrative: "learner"}, nil).Once()

	r := NewRegistry()
	require.NoError(t, r.Register(models.KindAffineSGD, constFactory(learnerBrain)))
	require.NoError(t, r.Register(models.KindRandomCurve, NewRandomCurveFactory(rand.New(rand.NewPCG(7, 8)))))
	slot := NewSlot(zaptest.NewLogger(t), store, r)

	first := slot.Invoke(context.Background())
	assert.Equal(t, "learner", first.Outcome.Narrative)

	require.NoError(t, store.Save(NewRandomCurveDefinition("random_curve", 30, 70, time.Now())))

	second := slot.Invoke(context.Background())
	require.False(t, second.Failed())
	assert.Contains(t, second.Outcome.Narrative, "Strategy=random_curve")
	learnerBrain.AssertExpectations(t)
}
