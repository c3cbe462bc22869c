package crf

import (
	"context"

	"github.com/happyhackingspace/seqinfer/sequences"
)

var padding = []int{0}

// Chain is one attribute sequence scored by a Model, seen as a
// sequences.SequenceModel with a left window of 1. Padded position 0 is a
// start marker; position t+1 holds the label of element t.
//
// ScoresOf returns the local window scores the DP finders expect. Gibbs
// sampling needs full conditionals instead; use Conditional for that.
type Chain struct {
	model  *Model
	state  [][]float64
	trans  [][]float64
	values []int
}

// NewChain scores attrs with m. m must be valid.
func NewChain(m *Model, attrs []map[string]float64) *Chain {
	values := make([]int, m.NumLabels)
	for i := range values {
		values[i] = i
	}
	return &Chain{
		model:  m,
		state:  m.StateScores(attrs),
		trans:  m.TransScores(),
		values: values,
	}
}

func (c *Chain) Length() int      { return len(c.state) }
func (c *Chain) LeftWindow() int  { return 1 }
func (c *Chain) RightWindow() int { return 0 }

func (c *Chain) PossibleValues(pos int) []int {
	if pos == 0 {
		return padding
	}
	return c.values
}

// ScoreOfPosition is the state score of the label at pos plus the transition
// from the previous label. The first element has no transition.
func (c *Chain) ScoreOfPosition(seq []int, pos int) float64 {
	return c.local(seq, pos, seq[pos])
}

func (c *Chain) local(seq []int, pos, y int) float64 {
	t := pos - 1
	s := c.state[t][y]
	if t > 0 {
		s += c.trans[seq[pos-1]][y]
	}
	return s
}

func (c *Chain) ScoresOf(seq []int, pos int) []float64 {
	scores := make([]float64, len(c.values))
	for y := range scores {
		scores[y] = c.local(seq, pos, y)
	}
	return scores
}

func (c *Chain) ScoreOf(seq []int) float64 {
	var s float64
	for pos := 1; pos <= c.Length(); pos++ {
		s += c.ScoreOfPosition(seq, pos)
	}
	return s
}

// Labels maps a padded labeling to label strings, one per element.
func (c *Chain) Labels(seq []int) []string {
	if seq == nil {
		return nil
	}
	out := make([]string, c.Length())
	for t := range out {
		out[t] = c.model.Labels.Label(seq[t+1])
	}
	return out
}

// Partition splits the real positions by parity. Given the other class,
// the labels of one class are independent, which is what chromatic Gibbs
// sampling needs.
func (c *Chain) Partition() [][]int {
	var odd, even []int
	for pos := 1; pos <= c.Length(); pos++ {
		if pos%2 == 1 {
			odd = append(odd, pos)
		} else {
			even = append(even, pos)
		}
	}
	if len(even) == 0 {
		return [][]int{odd}
	}
	return [][]int{odd, even}
}

// Conditional returns the chain with ScoresOf replaced by the full
// conditional of a position given both neighbours.
func (c *Chain) Conditional() sequences.SequenceModel {
	return conditionalChain{c}
}

type conditionalChain struct {
	*Chain
}

func (c conditionalChain) ScoresOf(seq []int, pos int) []float64 {
	scores := c.Chain.ScoresOf(seq, pos)
	if pos < c.Length() {
		next := seq[pos+1]
		for y := range scores {
			scores[y] += c.trans[y][next]
		}
	}
	return scores
}

// Predict decodes the best label sequence for attrs with exact Viterbi.
func (m *Model) Predict(ctx context.Context, attrs []map[string]float64) ([]string, error) {
	chain := NewChain(m, attrs)
	seq, err := sequences.NewExactBestSequenceFinder().BestSequence(ctx, chain)
	if err != nil {
		return nil, err
	}
	return chain.Labels(seq), nil
}

// PredictMarginals returns P(label | attrs) for every element, computed by
// forward-backward over the chain's lattice.
func (m *Model) PredictMarginals(ctx context.Context, attrs []map[string]float64) ([]map[string]float64, error) {
	chain := NewChain(m, attrs)
	lat, err := sequences.NewViterbiSearchGraphBuilder().Graph(ctx, chain, m.Labels)
	if err != nil {
		return nil, err
	}
	marginals := lat.StateMarginals()
	result := make([]map[string]float64, chain.Length())
	for t := range result {
		result[t] = make(map[string]float64, m.NumLabels)
	}
	for _, s := range lat.States {
		if s.ID == lat.Start || s.ID == lat.End {
			continue
		}
		result[s.Position-1][s.Name] = marginals[s.ID]
	}
	return result, nil
}

var (
	_ sequences.SequenceModel = (*Chain)(nil)
	_ sequences.LabelIndex    = (*Alphabet)(nil)
)
