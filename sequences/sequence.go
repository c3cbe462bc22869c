package sequences

import (
	"math/rand/v2"
	"slices"
)

// ScoredSequence is a labeling with its model score.
type ScoredSequence struct {
	Labels []int   `json:"labels"`
	Score  float64 `json:"score"`
}

// Copy returns an independent copy of a labeling.
func Copy(sequence []int) []int {
	return slices.Clone(sequence)
}

// RandomSequence draws a padded labeling with a uniformly random possible
// value at each real position. Padding positions take their first value.
func RandomSequence(model SequenceModel, rng *rand.Rand) []int {
	seq := make([]int, PadLength(model))
	for pos := range seq {
		values := model.PossibleValues(pos)
		if len(values) == 0 {
			continue
		}
		if isReal(model, pos) {
			seq[pos] = values[rng.IntN(len(values))]
		} else {
			seq[pos] = values[0]
		}
	}
	return seq
}

func isReal(model SequenceModel, pos int) bool {
	return pos >= model.LeftWindow() && pos < model.LeftWindow()+model.Length()
}

// newRand returns a deterministic generator for seed.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
