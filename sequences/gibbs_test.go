package sequences

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGibbs(t *testing.T, cfg GibbsConfig, listener SequenceListener) *SequenceGibbsSampler {
	t.Helper()
	g, err := NewSequenceGibbsSampler(cfg, listener)
	require.NoError(t, err)
	return g
}

func TestGibbsConfig_Validation(t *testing.T) {
	cfg := DefaultGibbsConfig()
	cfg.Style = ChromaticSampling
	_, err := NewSequenceGibbsSampler(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	cfg.Partition = [][]int{{1}}
	cfg.ChromaticSize = 0
	_, err = NewSequenceGibbsSampler(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	cfg = DefaultGibbsConfig()
	cfg.Style = SamplingStyle(7)
	_, err = NewSequenceGibbsSampler(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	cfg = DefaultGibbsConfig()
	cfg.NumSamples = -1
	_, err = NewSequenceGibbsSampler(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestParseSamplingStyle(t *testing.T) {
	for _, s := range []SamplingStyle{RandomSampling, SequentialSampling, ChromaticSampling} {
		got, err := ParseSamplingStyle(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseSamplingStyle("diagonal")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSamplePosition_TemperatureZeroIsArgmax(t *testing.T) {
	m := conditionalModel{newWindowModel(6, 1, 0, 4, 3)}
	initial := RandomSequence(m, newRand(99))

	for pos := m.LeftWindow(); pos < m.LeftWindow()+m.Length(); pos++ {
		scores := m.ScoresOf(initial, pos)
		best := 0
		for i, s := range scores {
			if s > scores[best] {
				best = i
			}
		}
		want := m.PossibleValues(pos)[best]

		for seed := range uint64(5) {
			cfg := DefaultGibbsConfig()
			cfg.Seed = seed
			g := newGibbs(t, cfg, nil)
			seq := Copy(initial)
			p := g.SamplePosition(m, seq, pos, 0)
			assert.Equal(t, want, seq[pos], "pos %d seed %d", pos, seed)
			assert.Equal(t, 1.0, p)
		}
	}
}

func TestSampleSequenceForward_TemperatureZeroIgnoresSeed(t *testing.T) {
	m := conditionalModel{newWindowModel(8, 2, 0, 3, 1)}
	initial := RandomSequence(m, newRand(5))

	var first []int
	for seed := range uint64(4) {
		cfg := DefaultGibbsConfig()
		cfg.Seed = seed
		seq := Copy(initial)
		_, err := newGibbs(t, cfg, nil).SampleSequenceForward(context.Background(), m, seq, 0)
		require.NoError(t, err)
		if first == nil {
			first = seq
			continue
		}
		assert.Equal(t, first, seq)
	}
}

func TestSamplePosition_NotifiesListener(t *testing.T) {
	for _, style := range []SamplingStyle{RandomSampling, SequentialSampling, ChromaticSampling} {
		t.Run(style.String(), func(t *testing.T) {
			m := conditionalModel{newWindowModel(7, 1, 0, 3, 2)}
			cfg := DefaultGibbsConfig()
			cfg.Style = style
			cfg.ChromaticSize = 2
			cfg.Partition = [][]int{{1, 3, 5, 7}, {2, 4, 6}}
			l := &recordingListener{}
			g := newGibbs(t, cfg, l)

			seq := RandomSequence(m, newRand(4))
			require.NoError(t, g.SampleSequenceRepeatedly(context.Background(), m, seq, 10))

			assert.Equal(t, 1, l.resets)
			assert.Equal(t, 70, l.updates)
			assert.Zero(t, l.stale)
			assert.Equal(t, seq, l.mirror)
		})
	}
}

func TestSampleSequenceBackward(t *testing.T) {
	m := conditionalModel{newWindowModel(5, 1, 0, 2, 6)}
	l := &recordingListener{}
	g := newGibbs(t, DefaultGibbsConfig(), l)
	seq := RandomSequence(m, newRand(2))
	l.SetInitialSequence(seq)

	_, err := g.SampleSequenceBackward(context.Background(), m, seq, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 4, 3, 2, 1}, l.positions)
	assert.Equal(t, seq, l.mirror)
}

func TestGibbs_ChromaticMatchesSequentialMarginals(t *testing.T) {
	m := conditionalModel{newWindowModel(6, 1, 0, 2, 8)}
	m.amplitude = 0.5
	want := exactMarginals(m)

	marginals := func(style SamplingStyle) [][]float64 {
		cfg := DefaultGibbsConfig()
		cfg.Style = style
		cfg.ChromaticSize = 2
		// With one label of left context, positions of equal parity are
		// independent given the others.
		cfg.Partition = [][]int{{1, 3, 5}, {2, 4, 6}}
		cfg.Seed = 1234
		g := newGibbs(t, cfg, nil)

		samples, err := g.CollectSamples(context.Background(), m, 4000, 2, nil)
		require.NoError(t, err)
		counts := make([][]float64, PadLength(m))
		for pos := range counts {
			counts[pos] = make([]float64, len(m.PossibleValues(pos)))
		}
		for _, s := range samples {
			for pos, v := range s {
				for i, pv := range m.PossibleValues(pos) {
					if v == pv {
						counts[pos][i]++
					}
				}
			}
		}
		for pos := range counts {
			for i := range counts[pos] {
				counts[pos][i] /= float64(len(samples))
			}
		}
		return counts
	}

	sequential := marginals(SequentialSampling)
	chromatic := marginals(ChromaticSampling)
	for pos := m.LeftWindow(); pos < m.LeftWindow()+m.Length(); pos++ {
		for i := range want[pos] {
			assert.InDelta(t, want[pos][i], sequential[pos][i], 0.06, "sequential pos %d", pos)
			assert.InDelta(t, want[pos][i], chromatic[pos][i], 0.06, "chromatic pos %d", pos)
			assert.InDelta(t, sequential[pos][i], chromatic[pos][i], 0.08, "pos %d", pos)
		}
	}
}

func TestGibbs_ChromaticReproducible(t *testing.T) {
	m := conditionalModel{newWindowModel(9, 1, 0, 3, 3)}
	run := func() []int {
		cfg := DefaultGibbsConfig()
		cfg.Style = ChromaticSampling
		cfg.ChromaticSize = 2
		cfg.Partition = [][]int{{1, 3, 5, 7, 9}, {2, 4, 6, 8}}
		g := newGibbs(t, cfg, nil)
		seq := RandomSequence(m, newRand(1))
		require.NoError(t, g.SampleSequenceRepeatedly(context.Background(), m, seq, 5))
		return seq
	}
	assert.Equal(t, run(), run())
}

func TestCollectSamples_LeavesInitialAlone(t *testing.T) {
	m := conditionalModel{newWindowModel(5, 1, 0, 3, 0)}
	initial := RandomSequence(m, newRand(8))
	keep := Copy(initial)

	samples, err := newGibbs(t, DefaultGibbsConfig(), nil).CollectSamples(context.Background(), m, 20, 3, initial)
	require.NoError(t, err)
	require.Len(t, samples, 20)
	assert.Equal(t, keep, initial)
	for i := 1; i < len(samples); i++ {
		assert.NotSame(t, &samples[i][0], &samples[i-1][0])
	}
}

func TestFindBestUsingSampling(t *testing.T) {
	m := conditionalModel{newWindowModel(4, 1, 0, 2, 12)}
	m.amplitude = 0.5
	g := newGibbs(t, DefaultGibbsConfig(), nil)
	best, err := g.FindBestUsingSampling(context.Background(), m, 400, 2, nil)
	require.NoError(t, err)
	_, optimum := bruteForceBest(m)
	// The optimum is the mode of a flat 16-labeling distribution, so 400
	// draws all but surely include it.
	assert.InDelta(t, optimum, m.ScoreOf(best), 1e-9)

	initial := RandomSequence(m, newRand(0))
	none, err := g.FindBestUsingSampling(context.Background(), m, 0, 1, initial)
	require.NoError(t, err)
	assert.Equal(t, initial, none)

	random, err := g.FindBestUsingSampling(context.Background(), m, 0, 1, nil)
	require.NoError(t, err)
	require.Len(t, random, PadLength(m))
	assert.Equal(t, 0, random[0])
	assert.Contains(t, m.PossibleValues(1), random[1])
}

func TestGibbs_BestSequence(t *testing.T) {
	m := conditionalModel{newWindowModel(3, 1, 0, 2, 5)}
	m.amplitude = 0.5
	got, err := newGibbs(t, DefaultGibbsConfig(), nil).BestSequence(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, got, PadLength(m))
	_, optimum := bruteForceBest(m)
	assert.InDelta(t, optimum, m.ScoreOf(got), 1e-9)
}

func TestAnnealing_ZeroTemperatureFindsIndependentOptimum(t *testing.T) {
	// Without context every position is optimized on its own, so one greedy
	// sweep reaches the global optimum.
	m := conditionalModel{newWindowModel(7, 0, 0, 4, 21)}
	want, err := NewExactBestSequenceFinder().BestSequence(context.Background(), m.windowModel)
	require.NoError(t, err)

	got, err := newGibbs(t, DefaultGibbsConfig(), nil).FindBestUsingAnnealing(context.Background(), m, ConstantSchedule(0, 2), nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAnnealing_BestIsAtLeastLast(t *testing.T) {
	m := conditionalModel{newWindowModel(10, 2, 0, 3, 17)}
	initial := RandomSequence(m, newRand(3))
	schedule := LinearSchedule(3, 40)

	cfg := DefaultGibbsConfig()
	best, err := newGibbs(t, cfg, nil).FindBestUsingAnnealing(context.Background(), m, schedule, initial)
	require.NoError(t, err)

	cfg.ReturnLastFoundSequence = true
	last, err := newGibbs(t, cfg, nil).FindBestUsingAnnealing(context.Background(), m, schedule, initial)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, m.ScoreOf(best), m.ScoreOf(last))
}

func TestAnnealing_SpeedUpThreshold(t *testing.T) {
	m := conditionalModel{newWindowModel(12, 1, 0, 3, 30)}
	initial := RandomSequence(m, newRand(6))

	// At temperature 0 a sweep is deterministic, so one plain sweep shows
	// which positions the first annealing iteration changes.
	probe := Copy(initial)
	_, err := newGibbs(t, DefaultGibbsConfig(), nil).SampleSequenceForward(context.Background(), m, probe, 0)
	require.NoError(t, err)
	var changed []int
	for pos := range probe {
		if probe[pos] != initial[pos] {
			changed = append(changed, pos)
		}
	}

	cfg := DefaultGibbsConfig()
	cfg.SpeedUpThreshold = 1
	l := &recordingListener{}
	const iterations = 5
	_, err = newGibbs(t, cfg, l).FindBestUsingAnnealing(context.Background(), m, ConstantSchedule(0, iterations), initial)
	require.NoError(t, err)

	assert.Equal(t, m.Length()+(iterations-1)*len(changed), l.updates)
	for _, pos := range l.positions[m.Length():] {
		assert.Contains(t, changed, pos)
	}
}

func TestAnnealing_Cancelled(t *testing.T) {
	m := conditionalModel{newWindowModel(5, 1, 0, 2, 0)}
	_, err := newGibbs(t, DefaultGibbsConfig(), nil).FindBestUsingAnnealing(cancelledContext(), m, LinearSchedule(1, 10), nil)
	assert.ErrorIs(t, err, context.Canceled)

	cfg := DefaultGibbsConfig()
	cfg.Style = ChromaticSampling
	cfg.ChromaticSize = 1
	cfg.Partition = [][]int{{1, 3, 5}, {2, 4}}
	_, err = newGibbs(t, cfg, nil).CollectSamples(cancelledContext(), m, 3, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitContiguous(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, splitContiguous([]int{1, 2, 3, 4, 5}, 3))
	assert.Equal(t, [][]int{{1}, {2}}, splitContiguous([]int{1, 2}, 4))
	assert.Empty(t, splitContiguous(nil, 2))
}
