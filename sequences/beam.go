package sequences

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
)

const (
	// DefaultScratchSize is the default scratch labeling length handed to
	// the model while scoring beam extensions.
	DefaultScratchSize = 1024 * 128

	exhaustiveBeamSize = 100000
)

// tagList is one node of a persistent singly linked list of labels, newest
// first. Nodes are never mutated once linked.
type tagList struct {
	tag  int
	last *tagList
}

// TagSeq is a partial labeling in the beam: a shared label history plus a
// score owned by this hypothesis.
type TagSeq struct {
	info  *tagList
	size  int
	score float64
}

// Score is the cumulative score of the hypothesis.
func (s *TagSeq) Score() float64 { return s.score }

// Size is the number of labels in the hypothesis.
func (s *TagSeq) Size() int { return s.size }

// clone shares the history and copies the score.
func (s *TagSeq) clone() *TagSeq {
	c := *s
	return &c
}

func (s *TagSeq) extendWith(tag int) {
	s.info = &tagList{tag: tag, last: s.info}
	s.size++
}

// extendAndScore appends tag and adds the model score of the position that
// just got its full right context.
func (s *TagSeq) extendAndScore(tag int, model SequenceModel, scratch []int) {
	s.extendWith(tag)
	window := model.LeftWindow() + 1 + model.RightWindow()
	tl := s.info
	for i, j := s.size-1, 0; j < window && tl != nil; i, j = i-1, j+1 {
		scratch[i] = tl.tag
		tl = tl.last
	}
	s.score += model.ScoreOfPosition(scratch, s.size-model.RightWindow()-1)
}

// Tags returns the labels oldest first.
func (s *TagSeq) Tags() []int {
	out := make([]int, s.size)
	tl := s.info
	for i := s.size - 1; i >= 0; i-- {
		out[i] = tl.tag
		tl = tl.last
	}
	return out
}

// beam keeps the capacity best hypotheses in a min-heap so the worst one is
// evicted first.
type beam struct {
	items    []*TagSeq
	capacity int
}

func newBeam(capacity int) *beam {
	b := &beam{capacity: capacity}
	heap.Init(b)
	return b
}

func (b *beam) Len() int           { return len(b.items) }
func (b *beam) Less(i, j int) bool { return b.items[i].score < b.items[j].score }
func (b *beam) Swap(i, j int)      { b.items[i], b.items[j] = b.items[j], b.items[i] }
func (b *beam) Push(x any)         { b.items = append(b.items, x.(*TagSeq)) }
func (b *beam) Pop() any {
	n := len(b.items)
	x := b.items[n-1]
	b.items[n-1] = nil
	b.items = b.items[:n-1]
	return x
}

// add inserts s, dropping the lowest scoring hypothesis once over capacity.
func (b *beam) add(s *TagSeq) {
	if b.capacity <= 0 {
		return
	}
	if len(b.items) < b.capacity {
		heap.Push(b, s)
		return
	}
	if s.score > b.items[0].score {
		b.items[0] = s
		heap.Fix(b, 0)
	}
}

// sorted returns the hypotheses best first. Ties keep heap order.
func (b *beam) sorted() []*TagSeq {
	out := slices.Clone(b.items)
	slices.SortStableFunc(out, func(x, y *TagSeq) int {
		switch {
		case x.score > y.score:
			return -1
		case x.score < y.score:
			return 1
		}
		return 0
	})
	return out
}

// recenter subtracts the best score from every hypothesis. Relative order,
// and therefore the heap, is unchanged.
func (b *beam) recenter() {
	top := math.Inf(-1)
	for _, s := range b.items {
		top = max(top, s.score)
	}
	if math.IsInf(top, 0) {
		return
	}
	for _, s := range b.items {
		s.score -= top
	}
}

func (b *beam) best() *TagSeq {
	var top *TagSeq
	for _, s := range b.items {
		if top == nil || s.score > top.score {
			top = s
		}
	}
	return top
}

// BeamBestSequenceFinder approximates Viterbi by keeping only the beamSize
// best partial labelings at each position. Expansion is best first with a
// stable order, so equal inputs give equal answers.
type BeamBestSequenceFinder struct {
	beamSize        int
	exhaustiveStart bool
	recenter        bool
}

// NewBeamBestSequenceFinder returns a beam finder. With exhaustiveStart the
// first LeftWindow+RightWindow positions are never pruned; with recenter the
// beam's maximum is subtracted from every hypothesis after each position.
func NewBeamBestSequenceFinder(beamSize int, exhaustiveStart, recenter bool) *BeamBestSequenceFinder {
	return &BeamBestSequenceFinder{
		beamSize:        beamSize,
		exhaustiveStart: exhaustiveStart,
		recenter:        recenter,
	}
}

// BestSequence runs the beam with the default scratch size.
func (f *BeamBestSequenceFinder) BestSequence(ctx context.Context, model SequenceModel) ([]int, error) {
	return f.BestSequenceWithScratch(ctx, model, DefaultScratchSize)
}

// BestSequenceWithScratch runs the beam. size is the length of the scratch
// labeling passed to the model; it grows to the pad length when smaller.
// An empty final beam is logged and reported as a nil labeling with no error.
func (f *BeamBestSequenceFinder) BestSequenceWithScratch(ctx context.Context, model SequenceModel, size int) (seq []int, err error) {
	ctx, span := startSpan(ctx, "BeamBestSequenceFinder.BestSequence", model)
	defer func() { endSpan(span, err) }()

	ps := newProductSpace(model)
	warmup := ps.left + ps.right
	scratch := make([]int, max(size, ps.padLength))

	next := newBeam(f.beamSize)
	next.add(&TagSeq{})
	for pos := range ps.padLength {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("beam search: %w", err)
		}
		prev := next
		capacity := f.beamSize
		if pos < warmup && f.exhaustiveStart {
			capacity = exhaustiveBeamSize
		}
		next = newBeam(capacity)
		for _, hyp := range prev.sorted() {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("beam search: %w", err)
			}
			for _, tag := range ps.tags[pos] {
				ext := hyp.clone()
				if pos >= warmup {
					ext.extendAndScore(tag, model, scratch)
				} else {
					ext.extendWith(tag)
				}
				next.add(ext)
			}
		}
		if f.recenter {
			next.recenter()
		}
	}

	top := next.best()
	if top == nil {
		slog.Warn("Beam empty, no best sequence", "beam_size", f.beamSize, "length", ps.length)
		return nil, nil
	}
	return top.Tags(), nil
}
