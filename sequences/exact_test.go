package sequences

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExact_MatchesBruteForce(t *testing.T) {
	tests := []struct {
		length, left, right, labels int
	}{
		{1, 0, 0, 3},
		{4, 0, 0, 3},
		{5, 1, 0, 3},
		{5, 2, 0, 2},
		{4, 3, 0, 2},
		{4, 1, 1, 3},
		{5, 0, 2, 2},
		{6, 2, 1, 2},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("n%d_L%d_R%d_k%d", tc.length, tc.left, tc.right, tc.labels), func(t *testing.T) {
			for seed := range uint64(4) {
				m := newWindowModel(tc.length, tc.left, tc.right, tc.labels, seed)
				want, wantScore := bruteForceBest(m)

				got, score, err := NewExactBestSequenceFinder().BestSequenceWithLinearConstraints(context.Background(), m, nil)
				require.NoError(t, err)
				assert.Equal(t, want, got)
				assert.InDelta(t, wantScore, score, 1e-9)
				assert.InDelta(t, wantScore, m.ScoreOf(got), 1e-9)
			}
		})
	}
}

func TestExact_ConstantModel(t *testing.T) {
	got, err := NewExactBestSequenceFinder().BestSequence(context.Background(), constantModel{length: 3, left: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1, 1}, got)
	assert.Equal(t, []int{1, 1, 1}, got[1:])
}

func TestExact_LinearConstraints(t *testing.T) {
	m := constantModel{length: 3, left: 1}
	constraints := make([][]float64, PadLength(m))
	for pos := range constraints {
		constraints[pos] = make([]float64, len(m.PossibleValues(pos)))
	}
	// Strong enough to flip the middle position to label 0.
	constraints[2][0] = 5

	got, score, err := NewExactBestSequenceFinder().BestSequenceWithLinearConstraints(context.Background(), m, constraints)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0, 1}, got)
	assert.InDelta(t, 2*math.Log(0.9)+math.Log(0.1)+5, score, 1e-12)
}

func TestExact_ConstraintRowsMismatch(t *testing.T) {
	m := newWindowModel(3, 1, 0, 2, 0)
	_, _, err := NewExactBestSequenceFinder().BestSequenceWithLinearConstraints(context.Background(), m, make([][]float64, 3))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, m.scoresOfCalls)
}

func TestExact_EmptyModel(t *testing.T) {
	m := newWindowModel(0, 2, 1, 3, 0)
	got, score, err := NewExactBestSequenceFinder().BestSequenceWithLinearConstraints(context.Background(), m, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, got)
	assert.Zero(t, score)
}

func TestExact_Cancelled(t *testing.T) {
	m := newWindowModel(50, 2, 0, 3, 1)
	_, err := NewExactBestSequenceFinder().BestSequence(cancelledContext(), m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestExact_CancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := newWindowModel(200, 2, 0, 3, 1)
	m.onScoresOf = func(calls int) {
		if calls == 20 {
			cancel()
		}
	}
	got, err := NewExactBestSequenceFinder().BestSequence(ctx, m)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
	// 200 positions need 200*9 calls; the run must stop long before that.
	assert.Less(t, m.scoresOfCalls, 200)
}
