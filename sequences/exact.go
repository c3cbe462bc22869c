package sequences

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// ExactBestSequenceFinder finds the highest scoring labeling with Viterbi
// over the windowed product space. Run time is linear in the sequence length
// and in the number of joint window assignments.
type ExactBestSequenceFinder struct{}

// NewExactBestSequenceFinder returns an exact finder.
func NewExactBestSequenceFinder() *ExactBestSequenceFinder {
	return &ExactBestSequenceFinder{}
}

// BestSequence returns the optimal padded labeling.
func (f *ExactBestSequenceFinder) BestSequence(ctx context.Context, model SequenceModel) ([]int, error) {
	seq, _, err := f.BestSequenceWithLinearConstraints(ctx, model, nil)
	return seq, err
}

// BestSequenceWithLinearConstraints returns the optimal labeling and its score
// when constraints[pos][v] is added to the score of choosing the v-th
// possible value at pos. A nil table means no constraints; otherwise it must
// have exactly one row per padded position.
func (f *ExactBestSequenceFinder) BestSequenceWithLinearConstraints(ctx context.Context, model SequenceModel, constraints [][]float64) (seq []int, best float64, err error) {
	ctx, span := startSpan(ctx, "ExactBestSequenceFinder.BestSequence", model)
	defer func() { endSpan(span, err) }()

	padLength := PadLength(model)
	if constraints != nil && len(constraints) != padLength {
		return nil, 0, fmt.Errorf("linear constraints have %d rows, model has pad length %d (length %d, left %d, right %d): %w",
			len(constraints), padLength, model.Length(), model.LeftWindow(), model.RightWindow(), ErrInvalidArgument)
	}

	ps := newProductSpace(model)
	tempTags := make([]int, padLength)
	if ps.length == 0 {
		fillFirst(tempTags, ps.tags)
		return tempTags, 0, nil
	}

	windowScore, err := ps.windowScores(ctx, model)
	if err != nil {
		return nil, 0, err
	}

	score := make([][]float64, padLength)
	trace := make([][]int, padLength)
	for pos := range padLength {
		score[pos] = make([]float64, ps.productSizes[pos])
		trace[pos] = make([]int, ps.productSizes[pos])
	}

	bonus := func(pos, product int) float64 {
		if constraints == nil {
			return 0
		}
		return constraints[pos][ps.digit(pos, product, pos)]
	}

	// Forward pass.
	for pos := ps.first(); pos <= ps.last(); pos++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, fmt.Errorf("viterbi forward pass: %w", err)
		}
		for product := range ps.productSizes[pos] {
			if pos == ps.first() {
				score[pos][product] = windowScore[pos][product] + bonus(pos, product)
				trace[pos][product] = -1
				continue
			}
			score[pos][product] = math.Inf(-1)
			trace[pos][product] = -1
			for d := range ps.predecessorCount(pos) {
				pred := ps.predecessor(pos, product, d)
				s := score[pos-1][pred] + windowScore[pos][product] + bonus(pos, product)
				if s > score[pos][product] {
					score[pos][product] = s
					trace[pos][product] = pred
				}
			}
		}
	}

	last := ps.last()
	best = math.Inf(-1)
	bestProduct := -1
	for product := range ps.productSizes[last] {
		if score[last][product] > best {
			best = score[last][product]
			bestProduct = product
		}
	}
	if bestProduct < 0 {
		// Every window scored -Inf; fall back to the first product so the
		// labeling is still well formed.
		bestProduct = 0
	}

	// Backtrace.
	ps.decodeTail(bestProduct, tempTags)
	cur := bestProduct
	for pos := last - 1; pos >= ps.first(); pos-- {
		next := cur
		cur = trace[pos+1][next]
		if cur < 0 {
			cur = 0
		}
		tempTags[pos-ps.left] = ps.tags[pos-ps.left][ps.leftDigit(pos, cur)]
	}

	slog.Debug("Exact Viterbi finished",
		"length", ps.length, "left", ps.left, "right", ps.right,
		"final_products", ps.productSizes[last], "score", best)
	return tempTags, best, nil
}
