package sequences

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LabelIndex names label values for display.
type LabelIndex interface {
	Label(id int) string
}

// LatticeState is a node of a Lattice. Start and End have Label -1.
type LatticeState struct {
	ID       int    `json:"id"`
	Position int    `json:"position"`
	Index    int    `json:"index"`
	Label    int    `json:"label"`
	Name     string `json:"name,omitempty"`
}

// LatticeEdge is a weighted transition. Cost is the negated model score, so
// the cheapest path is the best labeling.
type LatticeEdge struct {
	From int     `json:"from"`
	To   int     `json:"to"`
	Cost float64 `json:"cost"`
}

// Lattice is the Viterbi trellis of a model as a weighted DAG. States are
// ordered by position, so every edge goes from a lower to a higher ID.
type Lattice struct {
	States []LatticeState `json:"states"`
	Edges  []LatticeEdge  `json:"edges"`
	Start  int            `json:"start"`
	End    int            `json:"end"`
}

// ViterbiSearchGraphBuilder turns a model with RightWindow() == 0 into a
// Lattice.
type ViterbiSearchGraphBuilder struct{}

// NewViterbiSearchGraphBuilder returns a lattice builder.
func NewViterbiSearchGraphBuilder() *ViterbiSearchGraphBuilder {
	return &ViterbiSearchGraphBuilder{}
}

// Graph builds the lattice of model. There is one state per real position and
// possible value. An edge into position pos is emitted for every joint
// assignment of the window ending at pos, costing the negated window score;
// with LeftWindow() > 1 this yields parallel edges between the same states.
// labels may be nil.
func (b *ViterbiSearchGraphBuilder) Graph(ctx context.Context, model SequenceModel, labels LabelIndex) (lat *Lattice, err error) {
	if model.RightWindow() != 0 {
		return nil, fmt.Errorf("search graph needs right window 0, got %d: %w", model.RightWindow(), ErrInvalidArgument)
	}
	ctx, span := startSpan(ctx, "ViterbiSearchGraphBuilder.Graph", model)
	defer func() { endSpan(span, err) }()

	ps := newProductSpace(model)
	lat = &Lattice{}
	lat.Start = lat.addState(ps.first()-1, -1, -1, "")

	// ids[pos][digit] is the state of the digit-th value at pos.
	ids := make([][]int, ps.padLength)
	for pos := ps.first(); pos <= ps.last(); pos++ {
		ids[pos] = make([]int, ps.tagNum[pos])
		for d, v := range ps.tags[pos] {
			name := ""
			if labels != nil {
				name = labels.Label(v)
			}
			ids[pos][d] = lat.addState(pos, d, v, name)
		}
	}
	lat.End = lat.addState(ps.last()+1, -1, -1, "")

	if ps.length == 0 {
		lat.Edges = append(lat.Edges, LatticeEdge{From: lat.Start, To: lat.End})
		return lat, nil
	}

	windowScore, err := ps.windowScores(ctx, model)
	if err != nil {
		return nil, err
	}

	for pos := ps.first(); pos <= ps.last(); pos++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("building search graph: %w", err)
		}
		for product := range ps.productSizes[pos] {
			to := ids[pos][ps.digit(pos, product, pos)]
			cost := -windowScore[pos][product]
			switch {
			case pos == ps.first():
				lat.Edges = append(lat.Edges, LatticeEdge{From: lat.Start, To: to, Cost: cost})
			case ps.left > 0:
				from := ids[pos-1][ps.digit(pos, product, pos-1)]
				lat.Edges = append(lat.Edges, LatticeEdge{From: from, To: to, Cost: cost})
			default:
				// The window does not reach back, so every previous state
				// leads here at the same cost.
				for _, from := range ids[pos-1] {
					lat.Edges = append(lat.Edges, LatticeEdge{From: from, To: to, Cost: cost})
				}
			}
		}
	}
	for _, from := range ids[ps.last()] {
		lat.Edges = append(lat.Edges, LatticeEdge{From: from, To: lat.End})
	}

	slog.Debug("Search graph built", "states", len(lat.States), "edges", len(lat.Edges))
	return lat, nil
}

func (l *Lattice) addState(pos, index, label int, name string) int {
	id := len(l.States)
	l.States = append(l.States, LatticeState{ID: id, Position: pos, Index: index, Label: label, Name: name})
	return id
}

// BestPath returns the labels along the cheapest Start to End path, one per
// real position, and the path cost. For models with LeftWindow() <= 1 the
// labels are the exact Viterbi labeling and the cost is its negated score.
func (l *Lattice) BestPath() ([]int, float64) {
	dist := make([]float64, len(l.States))
	back := make([]int, len(l.States))
	for i := range dist {
		dist[i] = math.Inf(1)
		back[i] = -1
	}
	dist[l.Start] = 0
	for _, e := range l.Edges {
		if d := dist[e.From] + e.Cost; d < dist[e.To] {
			dist[e.To] = d
			back[e.To] = e.From
		}
	}
	if back[l.End] < 0 {
		return nil, math.Inf(1)
	}
	var path []int
	for s := back[l.End]; s != l.Start && s >= 0; s = back[s] {
		path = append(path, l.States[s].Label)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, dist[l.End]
}

// StateMarginals returns, aligned with States, the probability that a path
// drawn in proportion to exp(-cost) passes through each state. Start and End
// get 1. A lattice whose paths all have infinite cost yields all zeros.
func (l *Lattice) StateMarginals() []float64 {
	n := len(l.States)
	in := make([][]int, n)
	out := make([][]int, n)
	for i, e := range l.Edges {
		in[e.To] = append(in[e.To], i)
		out[e.From] = append(out[e.From], i)
	}

	alpha := make([]float64, n)
	for s := range n {
		if s == l.Start {
			continue
		}
		alpha[s] = l.logSum(in[s], func(e LatticeEdge) float64 { return alpha[e.From] })
	}
	beta := make([]float64, n)
	for s := n - 1; s >= 0; s-- {
		if s == l.End {
			continue
		}
		beta[s] = l.logSum(out[s], func(e LatticeEdge) float64 { return beta[e.To] })
	}

	marginals := make([]float64, n)
	z := alpha[l.End]
	if math.IsInf(z, 0) || math.IsNaN(z) {
		return marginals
	}
	for s := range n {
		marginals[s] = math.Exp(alpha[s] + beta[s] - z)
	}
	return marginals
}

// logSum is log(sum(exp(partial(e) - e.Cost))) over the given edges.
func (l *Lattice) logSum(edges []int, partial func(LatticeEdge) float64) float64 {
	if len(edges) == 0 {
		return math.Inf(-1)
	}
	terms := make([]float64, len(edges))
	for i, idx := range edges {
		e := l.Edges[idx]
		terms[i] = partial(e) - e.Cost
	}
	return floats.LogSumExp(terms)
}
