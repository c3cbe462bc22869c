// Package sequences implements inference over linear-chain sequence models:
// exact and K-best Viterbi with arbitrary context windows, beam search,
// ancestral and Gibbs sampling, simulated annealing and Viterbi lattices.
//
// A labeling is always a padded array: it holds
// Length()+LeftWindow()+RightWindow() entries and the real positions are
// [LeftWindow(), LeftWindow()+Length()). Every position argument below uses
// these padded coordinates.
package sequences

import "context"

// SequenceModel scores labelings of a fixed-length sequence.
type SequenceModel interface {
	// Length is the number of real positions.
	Length() int
	// LeftWindow is how many positions to the left a score depends on.
	LeftWindow() int
	// RightWindow is how many positions to the right a score depends on.
	RightWindow() int
	// PossibleValues returns the labels allowed at pos. Padding positions
	// normally allow a single background label.
	PossibleValues(pos int) []int
	// ScoreOf scores a complete labeling.
	ScoreOf(sequence []int) float64
	// ScoreOfPosition scores the label at pos given the rest of sequence.
	ScoreOfPosition(sequence []int, pos int) float64
	// ScoresOf returns one score per entry of PossibleValues(pos), holding the
	// rest of sequence fixed. Implementations may write sequence[pos] while
	// scoring but must restore it before returning.
	ScoresOf(sequence []int, pos int) []float64
}

// SequenceListener is told about every change a sampler makes to the
// labeling so models with caches keyed on neighbouring labels stay in sync.
// Calls happen on the goroutine that made the change, right after it.
type SequenceListener interface {
	UpdateSequenceElement(sequence []int, pos, oldValue int)
	SetInitialSequence(sequence []int)
}

// ListeningSequenceModel is a model that also tracks sampler updates.
type ListeningSequenceModel interface {
	SequenceModel
	SequenceListener
}

// BestSequenceFinder finds a labeling for a model. Depending on the
// implementation the result is the exact optimum, an approximation or a
// sample.
type BestSequenceFinder interface {
	BestSequence(ctx context.Context, model SequenceModel) ([]int, error)
}

// NopListener ignores all notifications.
type NopListener struct{}

func (NopListener) UpdateSequenceElement([]int, int, int) {}
func (NopListener) SetInitialSequence([]int)              {}

// PadLength is the labeling length a model expects.
func PadLength(model SequenceModel) int {
	return model.Length() + model.LeftWindow() + model.RightWindow()
}

var (
	_ BestSequenceFinder = (*ExactBestSequenceFinder)(nil)
	_ BestSequenceFinder = (*BeamBestSequenceFinder)(nil)
	_ BestSequenceFinder = (*KBestSequenceFinder)(nil)
	_ BestSequenceFinder = (*SequenceSampler)(nil)
	_ BestSequenceFinder = (*SequenceGibbsSampler)(nil)
	_ SequenceListener   = NopListener{}
)
