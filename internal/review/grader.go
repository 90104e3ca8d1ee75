package review

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/pavelanni/speakdrill/internal/model"
)

// SimulatedGrader stands in for server grading: a non-empty attempt is GOOD
// with probability PGood and WRONG otherwise. An empty attempt is WRONG.
type SimulatedGrader struct {
	pGood float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedGrader returns a grader with a deterministic sequence for seed.
func NewSimulatedGrader(seed uint64, pGood float64) *SimulatedGrader {
	if pGood < 0 {
		pGood = 0
	}
	if pGood > 1 {
		pGood = 1
	}
	return &SimulatedGrader{pGood: pGood, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (g *SimulatedGrader) Grade(ctx context.Context, _ model.ReviewItem, sample model.AudioSample) (model.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(sample.Data) == 0 {
		return model.OutcomeWrong, nil
	}
	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()
	if roll < g.pGood {
		return model.OutcomeGood, nil
	}
	return model.OutcomeWrong, nil
}
