package learner

import "math"

// Schedule maps the generation counter to the learning rate actually applied.
type Schedule struct {
	WarmupSteps  int
	WarmupBoost  float64
	DecayHorizon int
}

// EffectiveRate boosts lr during warmup, then follows a half cosine from lr down to zero over
// DecayHorizon steps and stays there.
func (s Schedule) EffectiveRate(lr float64, step int) float64 {
	if step < s.WarmupSteps {
		return lr * s.WarmupBoost
	}
	t := 1.0
	if s.DecayHorizon > 0 {
		t = math.Min(1.0, float64(step-s.WarmupSteps)/float64(s.DecayHorizon))
	}
	return lr * 0.5 * (1.0 + math.Cos(math.Pi*t))
}
