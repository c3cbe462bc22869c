package sequences

import (
	"fmt"
	"slices"
)

// WeightedModel pairs a model with its weight in a FactoredSequenceModel.
type WeightedModel struct {
	Model  SequenceModel
	Weight float64
}

// FactoredSequenceModel scores a labeling as the weighted sum of several
// models that share length and windows. Possible values come from the first
// model; the others must accept the same values in the same order.
type FactoredSequenceModel struct {
	models []WeightedModel
}

// NewFactoredSequenceModel combines models. Every model must agree with the
// first on Length, LeftWindow and RightWindow.
func NewFactoredSequenceModel(models ...WeightedModel) (*FactoredSequenceModel, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("factored model needs at least one model: %w", ErrInvalidArgument)
	}
	first := models[0].Model
	for i, wm := range models[1:] {
		m := wm.Model
		if m.Length() != first.Length() || m.LeftWindow() != first.LeftWindow() || m.RightWindow() != first.RightWindow() {
			return nil, fmt.Errorf("model %d is (%d, %d, %d), want (%d, %d, %d): %w",
				i+1, m.Length(), m.LeftWindow(), m.RightWindow(),
				first.Length(), first.LeftWindow(), first.RightWindow(), ErrMismatchedModels)
		}
	}
	return &FactoredSequenceModel{models: slices.Clone(models)}, nil
}

// Models returns the weighted components.
func (f *FactoredSequenceModel) Models() []WeightedModel { return slices.Clone(f.models) }

func (f *FactoredSequenceModel) Length() int      { return f.models[0].Model.Length() }
func (f *FactoredSequenceModel) LeftWindow() int  { return f.models[0].Model.LeftWindow() }
func (f *FactoredSequenceModel) RightWindow() int { return f.models[0].Model.RightWindow() }

func (f *FactoredSequenceModel) PossibleValues(pos int) []int {
	return f.models[0].Model.PossibleValues(pos)
}

func (f *FactoredSequenceModel) ScoreOf(sequence []int) float64 {
	var score float64
	for _, wm := range f.models {
		score += wm.Weight * wm.Model.ScoreOf(sequence)
	}
	return score
}

func (f *FactoredSequenceModel) ScoreOfPosition(sequence []int, pos int) float64 {
	var score float64
	for _, wm := range f.models {
		score += wm.Weight * wm.Model.ScoreOfPosition(sequence, pos)
	}
	return score
}

func (f *FactoredSequenceModel) ScoresOf(sequence []int, pos int) []float64 {
	scores := make([]float64, len(f.PossibleValues(pos)))
	for _, wm := range f.models {
		for i, s := range wm.Model.ScoresOf(sequence, pos) {
			scores[i] += wm.Weight * s
		}
	}
	return scores
}

// FactoredSequenceListener forwards every notification to its listeners in
// order.
type FactoredSequenceListener struct {
	listeners []SequenceListener
}

// NewFactoredSequenceListener returns a fan-out listener.
func NewFactoredSequenceListener(listeners ...SequenceListener) *FactoredSequenceListener {
	return &FactoredSequenceListener{listeners: slices.Clone(listeners)}
}

func (f *FactoredSequenceListener) UpdateSequenceElement(sequence []int, pos, oldValue int) {
	for _, l := range f.listeners {
		l.UpdateSequenceElement(sequence, pos, oldValue)
	}
}

func (f *FactoredSequenceListener) SetInitialSequence(sequence []int) {
	for _, l := range f.listeners {
		l.SetInitialSequence(sequence)
	}
}

var (
	_ SequenceModel    = (*FactoredSequenceModel)(nil)
	_ SequenceListener = (*FactoredSequenceListener)(nil)
)
