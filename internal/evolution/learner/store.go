package learner

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aevum/internal/evolution/models"
)

// stateFile is the on-disk layout of the learner state. Pointers distinguish absent keys
// from zero values so a truncated document degrades to a fresh state.
type stateFile struct {
	W        *float64 `json:"w"`
	B        *float64 `json:"b"`
	LR       *float64 `json:"lr,omitempty"`
	Step     *int     `json:"step"`
	ScoreEMA *float64 `json:"score_ema,omitempty"`
}

// InitRanges bounds the uniform draw used for a fresh weight and bias.
type InitRanges struct {
	Weight float64
	Bias   float64
	BaseLR float64
}

// Store persists the learner state between generations. It is the only component that
// touches the state file.
type Store struct {
	path   string
	ranges InitRanges
	rng    *rand.Rand
	logger *zap.Logger
}

// NewStore creates a state store backed by path.
func NewStore(logger *zap.Logger, path string, ranges InitRanges, rng *rand.Rand) *Store {
	return &Store{
		path:   path,
		ranges: ranges,
		rng:    rng,
		logger: logger.Named("learner_store"),
	}
}

// Path returns the location of the state file.
func (s *Store) Path() string { return s.path }

// Load returns the persisted state, or a freshly initialized one when the file is missing
// or malformed. It never fails.
func (s *Store) Load() models.LearnerState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("State file unreadable; reinitializing.", zap.String("path", s.path), zap.Error(err))
		}
		return s.Fresh()
	}

	state, err := decodeState(data, s.ranges.BaseLR)
	if err != nil {
		s.logger.Warn("State file malformed; reinitializing.", zap.String("path", s.path), zap.Error(err))
		return s.Fresh()
	}
	return state
}

// Fresh draws a new state: weight and bias uniform in their ranges, base learning rate,
// step 0 and no score history.
func (s *Store) Fresh() models.LearnerState {
	return models.LearnerState{
		Weight:       uniform(s.rng, s.ranges.Weight),
		Bias:         uniform(s.rng, s.ranges.Bias),
		LearningRate: s.ranges.BaseLR,
	}
}

// Save overwrites the state file with the full state. The write is not atomic; a torn
// file is read back as malformed and reinitialized.
func (s *Store) Save(state models.LearnerState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to open state file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	// Durable before the next generation starts.
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	return f.Close()
}

// Reset discards the persisted state so the next Load begins a new lifecycle.
func (s *Store) Reset() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

func encodeState(state models.LearnerState) ([]byte, error) {
	if err := checkFinite(state); err != nil {
		return nil, err
	}
	w, b, lr, step := state.Weight, state.Bias, state.LearningRate, state.Step
	data, err := json.Marshal(stateFile{W: &w, B: &b, LR: &lr, Step: &step, ScoreEMA: state.ScoreEMA})
	if err != nil {
		return nil, fmt.Errorf("failed to encode learner state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte, baseLR float64) (models.LearnerState, error) {
	var raw stateFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.LearnerState{}, fmt.Errorf("invalid json: %w", err)
	}
	if raw.W == nil || raw.B == nil || raw.Step == nil {
		return models.LearnerState{}, errors.New("missing w, b or step")
	}
	if *raw.Step < 0 {
		return models.LearnerState{}, errors.New("negative step")
	}

	state := models.LearnerState{
		Weight:       *raw.W,
		Bias:         *raw.B,
		LearningRate: baseLR,
		Step:         *raw.Step,
		ScoreEMA:     raw.ScoreEMA,
	}
	if raw.LR != nil {
		if *raw.LR <= 0 {
			return models.LearnerState{}, errors.New("non-positive learning rate")
		}
		state.LearningRate = *raw.LR
	}
	if err := checkFinite(state); err != nil {
		return models.LearnerState{}, err
	}
	return state, nil
}

func checkFinite(state models.LearnerState) error {
	values := []float64{state.Weight, state.Bias, state.LearningRate}
	if state.ScoreEMA != nil {
		values = append(values, *state.ScoreEMA)
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFinite
		}
	}
	return nil
}

// uniform draws from U(-r, r).
func uniform(rng *rand.Rand, r float64) float64 {
	return (rng.Float64()*2 - 1) * r
}
