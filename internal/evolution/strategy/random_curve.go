package strategy

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/xkilldash9x/aevum/internal/evolution/models"
)

// RandomCurve scores a random base in [0,100] and adds a bonus below the low threshold
// (3*sqrt(base)) or above the high threshold (2*ln(base)).
type RandomCurve struct {
	name      string
	low, high int
	rng       *rand.Rand
	now       func() time.Time
}

// NewRandomCurveFactory returns a Factory producing RandomCurve brains that share rng.
func NewRandomCurveFactory(rng *rand.Rand) Factory {
	return func(def models.Definition) (Strategy, error) {
		return &RandomCurve{
			name: def.Name,
			low:  def.LowThreshold,
			high: def.HighThreshold,
			rng:  rng,
			now:  time.Now,
		}, nil
	}
}

func (c *RandomCurve) Run(ctx context.Context) (models.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return models.Outcome{}, err
	}
	base := c.rng.IntN(101)
	bonus := c.bonus(base)
	score := min(100, max(0, base+bonus))

	return models.Outcome{
		Score:     float64(score),
		Narrative: fmt.Sprintf("Strategy=%s base=%d bonus=%d -> score=%d", c.name, base, bonus, score),
		Timestamp: c.now().UTC(),
	}, nil
}

func (c *RandomCurve) bonus(base int) int {
	switch {
	case base < c.low:
		return int(math.Sqrt(float64(base)) * 3)
	case base > c.high:
		return int(math.Log(float64(max(base, 1))) * 2)
	default:
		return 0
	}
}
