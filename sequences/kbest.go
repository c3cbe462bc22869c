package sequences

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
)

// KBestSequenceFinder extends Viterbi to keep the k best derivations of
// every DP cell. It only supports models with RightWindow() == 0.
type KBestSequenceFinder struct{}

// NewKBestSequenceFinder returns a K-best finder.
func NewKBestSequenceFinder() *KBestSequenceFinder {
	return &KBestSequenceFinder{}
}

// backpointer names a derivation of a predecessor cell.
type backpointer struct {
	product int
	which   int
}

// kCell holds up to k scores in ascending order with matching backpointers.
type kCell struct {
	scores []float64
	trace  []backpointer
}

func newKCell(n int) kCell {
	c := kCell{scores: make([]float64, n), trace: make([]backpointer, n)}
	for i := range c.scores {
		c.scores[i] = math.Inf(-1)
		c.trace[i] = backpointer{-1, -1}
	}
	return c
}

// insert ranks score among the kept ones, shifting lower entries down and
// discarding the previous lowest. Scores not above the lowest are ignored.
func (c *kCell) insert(score float64, bp backpointer) {
	if len(c.scores) == 0 || !(score > c.scores[0]) {
		return
	}
	// i is the first slot holding a value >= score; the newcomer goes just
	// below it.
	i, _ := slices.BinarySearch(c.scores, score)
	i--
	copy(c.scores[:i], c.scores[1:i+1])
	copy(c.trace[:i], c.trace[1:i+1])
	c.scores[i] = score
	c.trace[i] = bp
}

// BestSequence returns the single best labeling.
func (f *KBestSequenceFinder) BestSequence(ctx context.Context, model SequenceModel) ([]int, error) {
	best, err := f.KBestSequences(ctx, model, 1)
	if err != nil {
		return nil, err
	}
	if len(best) == 0 {
		return nil, nil
	}
	return best[0].Labels, nil
}

// KBestSequences returns up to k distinct labelings ordered by
// non-increasing score. Fewer than k are returned when the model does not
// admit k finite-scoring derivations.
func (f *KBestSequenceFinder) KBestSequences(ctx context.Context, model SequenceModel, k int) (out []ScoredSequence, err error) {
	if model.RightWindow() != 0 {
		return nil, fmt.Errorf("k-best search needs right window 0, got %d: %w", model.RightWindow(), ErrInvalidArgument)
	}
	if k < 1 {
		return nil, fmt.Errorf("k-best search needs k >= 1, got %d: %w", k, ErrInvalidArgument)
	}
	ctx, span := startSpan(ctx, "KBestSequenceFinder.KBestSequences", model)
	defer func() { endSpan(span, err) }()

	ps := newProductSpace(model)
	if ps.length == 0 {
		tags := make([]int, ps.padLength)
		fillFirst(tags, ps.tags)
		return []ScoredSequence{{Labels: tags, Score: 0}}, nil
	}

	windowScore, err := ps.windowScores(ctx, model)
	if err != nil {
		return nil, err
	}

	// numWays[pos][product] counts, capped at k, the derivations that can
	// reach a cell so cells are sized to what they can actually hold.
	cells := make([][]kCell, ps.padLength)
	numWays := make([][]int, ps.padLength)
	for pos := range ps.padLength {
		cells[pos] = make([]kCell, ps.productSizes[pos])
		numWays[pos] = make([]int, ps.productSizes[pos])
		for product := range ps.productSizes[pos] {
			n := 1
			if pos > ps.first() {
				n = 0
				for d := 0; d < ps.predecessorCount(pos) && n < k; d++ {
					n += numWays[pos-1][ps.predecessor(pos, product, d)]
				}
				n = min(n, k)
			}
			numWays[pos][product] = n
			cells[pos][product] = newKCell(n)
		}
	}

	// Forward pass.
	for pos := ps.first(); pos <= ps.last(); pos++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("k-best forward pass: %w", err)
		}
		for product := range ps.productSizes[pos] {
			cell := &cells[pos][product]
			if pos == ps.first() {
				cell.scores[0] = windowScore[pos][product]
				continue
			}
			for d := range ps.predecessorCount(pos) {
				pred := ps.predecessor(pos, product, d)
				for which, s := range cells[pos-1][pred].scores {
					cell.insert(s+windowScore[pos][product], backpointer{pred, which})
				}
			}
		}
	}

	// Collect the k best finalists over every final product.
	last := ps.last()
	final := newKCell(k)
	for product := range ps.productSizes[last] {
		scores := cells[last][product].scores
		for which := len(scores) - 1; which >= 0 && scores[which] > final.scores[0]; which-- {
			final.insert(scores[which], backpointer{product, which})
		}
	}

	// Backtrace each finalist independently, best first.
	for i := k - 1; i >= 0 && final.scores[i] > math.Inf(-1); i-- {
		tags := make([]int, ps.padLength)
		bp := final.trace[i]
		ps.decodeTail(bp.product, tags)
		for pos := last - 1; pos >= ps.first(); pos-- {
			bp = cells[pos+1][bp.product].trace[bp.which]
			tags[pos-ps.left] = ps.tags[pos-ps.left][ps.leftDigit(pos, bp.product)]
		}
		out = append(out, ScoredSequence{Labels: tags, Score: final.scores[i]})
	}

	slog.Debug("K-best Viterbi finished", "length", ps.length, "k", k, "found", len(out))
	return out, nil
}
