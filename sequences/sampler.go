package sequences

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// logNormalizeExp turns log scores into a probability distribution in place.
// A row with no finite score becomes uniform.
func logNormalizeExp(scores []float64) {
	z := floats.LogSumExp(scores)
	if math.IsInf(z, 0) || math.IsNaN(z) {
		for i := range scores {
			scores[i] = 1 / float64(len(scores))
		}
		return
	}
	floats.AddConst(-z, scores)
	for i, s := range scores {
		scores[i] = math.Exp(s)
	}
}

// drawIndex samples an index from a normalized distribution.
func drawIndex(probs []float64, src rand.Source) int {
	return int(distuv.NewCategorical(probs, src).Rand())
}

// SequenceSampler draws one left-to-right ancestral sample instead of
// searching for the best labeling. Each position is sampled from the model's
// conditional scores given the labels already chosen to its left; labels to
// the right are still zero when a position is scored, so the result follows
// the joint distribution only when RightWindow() == 0.
type SequenceSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSequenceSampler returns a sampler with a fixed seed.
func NewSequenceSampler(seed uint64) *SequenceSampler {
	return &SequenceSampler{rng: newRand(seed)}
}

// BestSequence returns one sampled padded labeling.
func (s *SequenceSampler) BestSequence(ctx context.Context, model SequenceModel) (seq []int, err error) {
	ctx, span := startSpan(ctx, "SequenceSampler.BestSequence", model)
	defer func() { endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	sample := make([]int, PadLength(model))
	for pos := model.LeftWindow(); pos < len(sample)-model.RightWindow(); pos++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ancestral sampling: %w", err)
		}
		scores := slices.Clone(model.ScoresOf(sample, pos))
		logNormalizeExp(scores)
		sample[pos] = model.PossibleValues(pos)[drawIndex(scores, s.rng)]
	}
	return sample, nil
}
