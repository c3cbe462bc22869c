package sequences

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
)

// windowModel scores each real position with a pseudo-random function of the
// labels in its window, so different labelings almost never tie.
type windowModel struct {
	length, left, right int
	values              [][]int
	seed                uint64
	// amplitude bounds each position score to [-amplitude, amplitude).
	amplitude float64

	scoresOfCalls int
	onScoresOf    func(calls int)
}

// newWindowModel gives every real position the labels 1, 3, 5, ... and every
// padding position the single label 0.
func newWindowModel(length, left, right, numLabels int, seed uint64) *windowModel {
	m := &windowModel{length: length, left: left, right: right, seed: seed, amplitude: 2}
	labels := make([]int, numLabels)
	for i := range labels {
		labels[i] = 2*i + 1
	}
	m.values = make([][]int, length+left+right)
	for pos := range m.values {
		if pos >= left && pos < left+length {
			m.values[pos] = labels
		} else {
			m.values[pos] = []int{0}
		}
	}
	return m
}

func (m *windowModel) Length() int                  { return m.length }
func (m *windowModel) LeftWindow() int              { return m.left }
func (m *windowModel) RightWindow() int             { return m.right }
func (m *windowModel) PossibleValues(pos int) []int { return m.values[pos] }

func (m *windowModel) ScoreOfPosition(seq []int, pos int) float64 {
	h := fnv.New64a()
	var buf [8]byte
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	write(m.seed)
	write(uint64(pos))
	for p := pos - m.left; p <= pos+m.right; p++ {
		write(uint64(seq[p]))
	}
	return (float64(mix64(h.Sum64())>>11)/(1<<53)*2 - 1) * m.amplitude
}

// mix64 is the splitmix64 finalizer. FNV-1a alone lets a change in the last
// byte move the score by the same amount at every position.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

func (m *windowModel) ScoreOf(seq []int) float64 {
	var score float64
	for pos := m.left; pos < m.left+m.length; pos++ {
		score += m.ScoreOfPosition(seq, pos)
	}
	return score
}

func (m *windowModel) ScoresOf(seq []int, pos int) []float64 {
	m.scoresOfCalls++
	if m.onScoresOf != nil {
		m.onScoresOf(m.scoresOfCalls)
	}
	old := seq[pos]
	scores := make([]float64, len(m.values[pos]))
	for i, v := range m.values[pos] {
		seq[pos] = v
		scores[i] = m.ScoreOfPosition(seq, pos)
	}
	seq[pos] = old
	return scores
}

// conditionalModel returns full conditional scores from ScoresOf, which is
// what the samplers need.
type conditionalModel struct {
	*windowModel
}

func (m conditionalModel) ScoresOf(seq []int, pos int) []float64 {
	old := seq[pos]
	scores := make([]float64, len(m.values[pos]))
	for i, v := range m.values[pos] {
		seq[pos] = v
		scores[i] = m.ScoreOf(seq)
	}
	seq[pos] = old
	return scores
}

// constantModel prefers label 1 with log(0.9) over label 0 with log(0.1)
// regardless of context.
type constantModel struct {
	length, left int
}

func (m constantModel) Length() int      { return m.length }
func (m constantModel) LeftWindow() int  { return m.left }
func (m constantModel) RightWindow() int { return 0 }
func (m constantModel) PossibleValues(pos int) []int {
	if pos < m.left {
		return []int{0}
	}
	return []int{0, 1}
}
func (m constantModel) ScoreOfPosition(seq []int, pos int) float64 {
	if seq[pos] == 1 {
		return math.Log(0.9)
	}
	return math.Log(0.1)
}
func (m constantModel) ScoreOf(seq []int) float64 {
	var s float64
	for pos := m.left; pos < m.left+m.length; pos++ {
		s += m.ScoreOfPosition(seq, pos)
	}
	return s
}
func (m constantModel) ScoresOf([]int, int) []float64 {
	return []float64{math.Log(0.1), math.Log(0.9)}
}

// enumerate calls fn with every labeling of the real positions; padding
// positions hold their first value. fn must not keep seq.
func enumerate(model SequenceModel, fn func(seq []int)) {
	seq := make([]int, PadLength(model))
	fillFirst(seq, allValues(model))
	left, length := model.LeftWindow(), model.Length()
	idx := make([]int, length)
	for {
		for i := range idx {
			seq[left+i] = model.PossibleValues(left + i)[idx[i]]
		}
		fn(seq)
		i := length - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(model.PossibleValues(left+i)) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

func allValues(model SequenceModel) [][]int {
	values := make([][]int, PadLength(model))
	for pos := range values {
		values[pos] = model.PossibleValues(pos)
	}
	return values
}

// bruteForceBest returns the highest scoring labeling and its score.
func bruteForceBest(model SequenceModel) ([]int, float64) {
	var best []int
	bestScore := math.Inf(-1)
	enumerate(model, func(seq []int) {
		if s := model.ScoreOf(seq); s > bestScore {
			best, bestScore = Copy(seq), s
		}
	})
	return best, bestScore
}

// exactMarginals returns P(seq[pos] == v) under exp(ScoreOf), indexed by
// padded position and value index.
func exactMarginals(model SequenceModel) [][]float64 {
	marginals := make([][]float64, PadLength(model))
	for pos := range marginals {
		marginals[pos] = make([]float64, len(model.PossibleValues(pos)))
	}
	var z float64
	enumerate(model, func(seq []int) {
		w := math.Exp(model.ScoreOf(seq))
		z += w
		for pos := range seq {
			for i, v := range model.PossibleValues(pos) {
				if seq[pos] == v {
					marginals[pos][i] += w
				}
			}
		}
	})
	for pos := range marginals {
		for i := range marginals[pos] {
			marginals[pos][i] /= z
		}
	}
	return marginals
}

// recordingListener mirrors the labeling through notifications alone.
type recordingListener struct {
	mirror    []int
	updates   int
	positions []int
	stale     int
	resets    int
}

func (l *recordingListener) SetInitialSequence(seq []int) {
	l.mirror = Copy(seq)
	l.resets++
}

func (l *recordingListener) UpdateSequenceElement(seq []int, pos, oldValue int) {
	if l.mirror[pos] != oldValue {
		l.stale++
	}
	l.mirror[pos] = seq[pos]
	l.updates++
	l.positions = append(l.positions, pos)
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
