package sequences

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type letters struct{}

func (letters) Label(id int) string { return fmt.Sprintf("L%d", id) }

func TestSearchGraph_Shape(t *testing.T) {
	m := newWindowModel(3, 1, 0, 2, 0)
	lat, err := NewViterbiSearchGraphBuilder().Graph(context.Background(), m, letters{})
	require.NoError(t, err)

	// Start, 3 positions x 2 labels, End.
	require.Len(t, lat.States, 8)
	assert.Equal(t, 0, lat.Start)
	assert.Equal(t, 7, lat.End)
	assert.Equal(t, "L3", lat.States[2].Name)

	// 2 start edges, 4 per later position, 2 into End.
	assert.Len(t, lat.Edges, 2+4+4+2)
	for _, e := range lat.Edges {
		assert.Less(t, e.From, e.To)
		if e.To == lat.End {
			assert.Zero(t, e.Cost)
		}
	}
}

func TestSearchGraph_EdgeCostsAreNegatedScores(t *testing.T) {
	m := newWindowModel(2, 1, 0, 2, 4)
	lat, err := NewViterbiSearchGraphBuilder().Graph(context.Background(), m, nil)
	require.NoError(t, err)

	seq := make([]int, PadLength(m))
	for _, e := range lat.Edges {
		if e.To == lat.End {
			continue
		}
		to := lat.States[e.To]
		seq[to.Position] = to.Label
		if e.From == lat.Start {
			seq[to.Position-1] = 0
		} else {
			seq[lat.States[e.From].Position] = lat.States[e.From].Label
		}
		assert.InDelta(t, -m.ScoreOfPosition(seq, to.Position), e.Cost, 1e-12)
	}
}

func TestSearchGraph_BestPathIsViterbi(t *testing.T) {
	for _, left := range []int{0, 1} {
		for seed := range uint64(4) {
			m := newWindowModel(5, left, 0, 3, seed)
			want, score, err := NewExactBestSequenceFinder().BestSequenceWithLinearConstraints(context.Background(), m, nil)
			require.NoError(t, err)

			lat, err := NewViterbiSearchGraphBuilder().Graph(context.Background(), m, nil)
			require.NoError(t, err)
			path, cost := lat.BestPath()
			assert.Equal(t, want[left:left+m.Length()], path)
			assert.InDelta(t, -score, cost, 1e-9)
		}
	}
}

func TestSearchGraph_ParallelEdges(t *testing.T) {
	m := newWindowModel(4, 2, 0, 2, 1)
	lat, err := NewViterbiSearchGraphBuilder().Graph(context.Background(), m, nil)
	require.NoError(t, err)

	pairs := make(map[[2]int]int)
	for _, e := range lat.Edges {
		pairs[[2]int{e.From, e.To}]++
	}
	// From the third real position on, each state pair is reached once per
	// label two positions back.
	last := lat.States[lat.End-1]
	assert.Equal(t, 2, pairs[[2]int{lat.End - 3, last.ID}])
}

func TestSearchGraph_Marginals(t *testing.T) {
	m := newWindowModel(4, 1, 0, 3, 7)
	lat, err := NewViterbiSearchGraphBuilder().Graph(context.Background(), m, nil)
	require.NoError(t, err)
	marginals := lat.StateMarginals()
	want := exactMarginals(m)

	sums := make(map[int]float64)
	for _, s := range lat.States {
		if s.ID == lat.Start || s.ID == lat.End {
			assert.InDelta(t, 1, marginals[s.ID], 1e-9)
			continue
		}
		sums[s.Position] += marginals[s.ID]
		assert.InDelta(t, want[s.Position][s.Index], marginals[s.ID], 1e-9)
	}
	require.Len(t, sums, 4)
	for pos, sum := range sums {
		assert.InDelta(t, 1, sum, 1e-9, "pos %d", pos)
	}
}

func TestSearchGraph_InfiniteCosts(t *testing.T) {
	lat := &Lattice{
		States: []LatticeState{{ID: 0}, {ID: 1}, {ID: 2}},
		Edges:  []LatticeEdge{{From: 0, To: 1, Cost: math.Inf(1)}, {From: 1, To: 2}},
		End:    2,
	}
	assert.Equal(t, []float64{0, 0, 0}, lat.StateMarginals())
	path, cost := lat.BestPath()
	assert.Nil(t, path)
	assert.True(t, math.IsInf(cost, 1))
}

func TestSearchGraph_JSON(t *testing.T) {
	m := newWindowModel(2, 1, 0, 2, 0)
	lat, err := NewViterbiSearchGraphBuilder().Graph(context.Background(), m, letters{})
	require.NoError(t, err)
	data, err := json.Marshal(lat)
	require.NoError(t, err)

	var back Lattice
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, lat, &back)
}

func TestSearchGraph_Errors(t *testing.T) {
	_, err := NewViterbiSearchGraphBuilder().Graph(context.Background(), newWindowModel(3, 1, 1, 2, 0), nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewViterbiSearchGraphBuilder().Graph(cancelledContext(), newWindowModel(3, 1, 0, 2, 0), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchGraph_EmptyModel(t *testing.T) {
	lat, err := NewViterbiSearchGraphBuilder().Graph(context.Background(), newWindowModel(0, 1, 0, 2, 0), nil)
	require.NoError(t, err)
	assert.Len(t, lat.States, 2)
	path, cost := lat.BestPath()
	assert.Empty(t, path)
	assert.Zero(t, cost)
}
