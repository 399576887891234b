// Package learner implements the online affine learner that the default brain runs each
// generation, together with the store that carries its state across process runs.
package learner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/aevum/internal/config"
	"github.com/xkilldash9x/aevum/internal/evolution/models"
)

// gradEpsilon keeps the clipping scale finite when the gradient norm is zero.
const gradEpsilon = 1e-12

// ErrNonFinite reports that parameters or scores left the finite float64 range.
var ErrNonFinite = errors.New("learner state is not finite")

// StateStore is the persistence contract the learner depends on.
type StateStore interface {
	Load() models.LearnerState
	Save(models.LearnerState) error
}

// Report describes one generation of training.
type Report struct {
	State    models.LearnerState
	AvgLoss  float64
	RawScore float64
	Score    float64
	RateUsed float64
}

// Learner runs clipped mini-batch gradient descent against the synthetic target
// y = TargetA*x + TargetB + U(-Noise, Noise).
type Learner struct {
	cfg      config.LearnerConfig
	schedule Schedule
	store    StateStore
	rng      *rand.Rand
	logger   *zap.Logger
	now      func() time.Time

	// Reused batch buffers.
	xs, ys []float64
}

// New creates a Learner. rng drives batch sampling only; initialization randomness belongs
// to the store.
func New(logger *zap.Logger, cfg config.LearnerConfig, store StateStore, rng *rand.Rand) *Learner {
	return &Learner{
		cfg: cfg,
		schedule: Schedule{
			WarmupSteps:  cfg.WarmupSteps,
			WarmupBoost:  cfg.WarmupBoost,
			DecayHorizon: cfg.DecayHorizon,
		},
		store:  store,
		rng:    rng,
		logger: logger.Named("learner"),
		now:    time.Now,
	}
}

// Run loads the state, trains for one generation, persists the result and reports the
// smoothed score. The state file is written only after a fully successful update.
func (l *Learner) Run(ctx context.Context) (models.Outcome, error) {
	state := l.store.Load()

	report, err := l.Train(ctx, state)
	if err != nil {
		return models.Outcome{}, err
	}
	if err := l.store.Save(report.State); err != nil {
		return models.Outcome{}, fmt.Errorf("failed to persist learner state: %w", err)
	}

	l.logger.Debug("Generation trained.",
		zap.Int("step", report.State.Step),
		zap.Float64("avg_loss", report.AvgLoss),
		zap.Float64("raw_score", report.RawScore),
		zap.Float64("score", report.Score),
		zap.Float64("lr_used", report.RateUsed),
	)

	return models.Outcome{
		Score: report.Score,
		Narrative: fmt.Sprintf("step=%d loss=%.6f w=%.4f b=%.4f lr_used=%.5f batch=%d steps=%d",
			report.State.Step, report.AvgLoss, report.State.Weight, report.State.Bias,
			report.RateUsed, l.cfg.BatchSize, l.steps()),
		Timestamp: l.now().UTC(),
	}, nil
}

// Train applies one generation of updates to state and returns the new state without
// persisting it. The input state is not modified.
func (l *Learner) Train(ctx context.Context, state models.LearnerState) (Report, error) {
	rate := l.schedule.EffectiveRate(state.LearningRate, state.Step)
	w, b := state.Weight, state.Bias

	steps := l.steps()
	totalLoss := 0.0
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		xs, ys := l.makeBatch()
		var loss float64
		w, b, loss = sgdStep(w, b, rate, xs, ys, l.cfg.ClipNorm)
		totalLoss += loss
	}
	avgLoss := totalLoss / float64(steps)

	if math.IsNaN(w) || math.IsInf(w, 0) || math.IsNaN(b) || math.IsInf(b, 0) {
		return Report{}, fmt.Errorf("%w: w=%v b=%v", ErrNonFinite, w, b)
	}

	raw := RawScore(avgLoss)
	score := Smooth(state.ScoreEMA, raw, l.cfg.ScoreSmooth)

	step := state.Step
	if step < math.MaxInt {
		step++
	}
	next := models.LearnerState{
		Weight:       w,
		Bias:         b,
		LearningRate: state.LearningRate,
		Step:         step,
		ScoreEMA:     &score,
	}
	return Report{State: next, AvgLoss: avgLoss, RawScore: raw, Score: score, RateUsed: rate}, nil
}

func (l *Learner) steps() int {
	if l.cfg.Steps < 1 {
		return 1
	}
	return l.cfg.Steps
}

// makeBatch fills the reused buffers with a fresh sample of the target relationship.
func (l *Learner) makeBatch() ([]float64, []float64) {
	n := l.cfg.BatchSize
	if n < 1 {
		n = 1
	}
	if cap(l.xs) < n {
		l.xs = make([]float64, n)
		l.ys = make([]float64, n)
	}
	xs, ys := l.xs[:n], l.ys[:n]
	for i := range xs {
		x := uniform(l.rng, l.cfg.InputRange)
		xs[i] = x
		ys[i] = l.cfg.TargetA*x + l.cfg.TargetB + uniform(l.rng, l.cfg.Noise)
	}
	return xs, ys
}

// sgdStep takes one clipped gradient-descent step on the mean squared error of w*x+b.
func sgdStep(w, b, lr float64, xs, ys []float64, clip float64) (float64, float64, float64) {
	n := float64(len(xs))
	var sumSq, sumErrX, sumErr float64
	for i, x := range xs {
		e := w*x + b - ys[i]
		sumSq += e * e
		sumErrX += e * x
		sumErr += e
	}
	loss := sumSq / n
	dw, db := clipGradient(2*sumErrX/n, 2*sumErr/n, clip)
	return w - lr*dw, b - lr*db, loss
}

// clipGradient rescales (dw, db) to norm maxNorm when it is longer, preserving direction.
func clipGradient(dw, db, maxNorm float64) (float64, float64) {
	norm := math.Sqrt(dw*dw + db*db)
	if norm > maxNorm {
		scale := maxNorm / (norm + gradEpsilon)
		return dw * scale, db * scale
	}
	return dw, db
}

// RawScore maps an average loss onto [0,100]; lower loss scores higher.
func RawScore(avgLoss float64) float64 {
	if math.IsNaN(avgLoss) || avgLoss < 0 {
		return 0
	}
	return clamp(100.0/(1.0+avgLoss), 0, 100)
}

// Smooth folds raw into the running average. The first score seeds it directly.
func Smooth(prev *float64, raw, weight float64) float64 {
	if prev == nil {
		return raw
	}
	return clamp((1.0-weight)*(*prev)+weight*raw, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
