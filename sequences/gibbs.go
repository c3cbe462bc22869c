package sequences

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// SamplingStyle selects the order in which a Gibbs sweep visits positions.
type SamplingStyle int

const (
	// RandomSampling draws Length() positions uniformly with replacement, so
	// a sweep may visit some positions several times and others never.
	RandomSampling SamplingStyle = iota
	// SequentialSampling visits the real positions left to right.
	SequentialSampling
	// ChromaticSampling visits the classes of a partition in order and
	// samples the members of a large class concurrently.
	ChromaticSampling
)

func (s SamplingStyle) String() string {
	switch s {
	case RandomSampling:
		return "random"
	case SequentialSampling:
		return "sequential"
	case ChromaticSampling:
		return "chromatic"
	}
	return fmt.Sprintf("SamplingStyle(%d)", int(s))
}

// ParseSamplingStyle maps "random", "sequential" or "chromatic" to a style.
func ParseSamplingStyle(s string) (SamplingStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "random":
		return RandomSampling, nil
	case "sequential", "":
		return SequentialSampling, nil
	case "chromatic":
		return ChromaticSampling, nil
	}
	return 0, fmt.Errorf("unknown sampling style %q: %w", s, ErrInvalidArgument)
}

// GibbsConfig holds Gibbs sampler settings.
type GibbsConfig struct {
	// NumSamples and SampleInterval are used by BestSequence: that many
	// samples are drawn, SampleInterval sweeps apart.
	NumSamples     int
	SampleInterval int
	Style          SamplingStyle
	// ChromaticSize is both the worker count and the class size above which
	// a class is sampled concurrently.
	ChromaticSize int
	// Partition lists classes of padded positions that are conditionally
	// independent given every other class. Required for ChromaticSampling.
	Partition [][]int
	// SpeedUpThreshold > 0 makes annealing resample, after that many
	// iterations, only positions that changed during the first ones. This
	// is a heuristic, not exact Gibbs sampling.
	SpeedUpThreshold int
	// ReturnLastFoundSequence makes annealing return the final sample rather
	// than the best scoring one.
	ReturnLastFoundSequence bool
	Seed                    uint64
}

// DefaultGibbsConfig returns sequential sampling with a fixed seed.
func DefaultGibbsConfig() GibbsConfig {
	return GibbsConfig{
		NumSamples:     100,
		SampleInterval: 10,
		Style:          SequentialSampling,
		ChromaticSize:  runtime.GOMAXPROCS(0),
		Seed:           2147483647,
	}
}

// SequenceGibbsSampler samples labelings from a model by repeatedly
// resampling single positions from their conditional distribution. It can
// also search for good labelings by best-of-samples or simulated annealing.
// A sampler is not safe for concurrent use; chromatic sweeps manage their own
// goroutines.
type SequenceGibbsSampler struct {
	cfg      GibbsConfig
	listener SequenceListener
	rng      *rand.Rand
}

// NewSequenceGibbsSampler validates cfg and returns a sampler. A nil listener
// is replaced by NopListener.
func NewSequenceGibbsSampler(cfg GibbsConfig, listener SequenceListener) (*SequenceGibbsSampler, error) {
	if cfg.NumSamples < 0 || cfg.SampleInterval < 0 || cfg.SpeedUpThreshold < 0 {
		return nil, fmt.Errorf("gibbs: negative sample counts: %w", ErrInvalidArgument)
	}
	switch cfg.Style {
	case RandomSampling, SequentialSampling:
	case ChromaticSampling:
		if cfg.ChromaticSize < 1 {
			return nil, fmt.Errorf("gibbs: chromatic size %d < 1: %w", cfg.ChromaticSize, ErrInvalidArgument)
		}
		if len(cfg.Partition) == 0 {
			return nil, fmt.Errorf("gibbs: chromatic sampling needs a partition: %w", ErrInvalidArgument)
		}
	default:
		return nil, fmt.Errorf("gibbs: %v: %w", cfg.Style, ErrInvalidArgument)
	}
	if listener == nil {
		listener = NopListener{}
	}
	return &SequenceGibbsSampler{cfg: cfg, listener: listener, rng: newRand(cfg.Seed)}, nil
}

// BestSequence samples from a random start and returns the best scoring
// sample.
func (g *SequenceGibbsSampler) BestSequence(ctx context.Context, model SequenceModel) (seq []int, err error) {
	ctx, span := startSpan(ctx, "SequenceGibbsSampler.BestSequence", model)
	defer func() { endSpan(span, err) }()

	initial := RandomSequence(model, g.rng)
	return g.FindBestUsingSampling(ctx, model, g.cfg.NumSamples, g.cfg.SampleInterval, initial)
}

// CollectSamples draws numSamples labelings, sampleInterval sweeps apart,
// starting from initial (a random labeling when nil). initial is not
// modified.
func (g *SequenceGibbsSampler) CollectSamples(ctx context.Context, model SequenceModel, numSamples, sampleInterval int, initial []int) ([][]int, error) {
	if initial == nil {
		initial = RandomSequence(model, g.rng)
	}
	slog.Debug("Collecting samples", "samples", numSamples, "interval", sampleInterval, "style", g.cfg.Style)
	samples := make([][]int, 0, numSamples)
	seq := initial
	for range numSamples {
		seq = Copy(seq)
		if err := g.SampleSequenceRepeatedly(ctx, model, seq, sampleInterval); err != nil {
			return nil, err
		}
		samples = append(samples, seq)
	}
	return samples, nil
}

// FindBestUsingSampling collects samples and returns the one the model
// scores highest. With no samples it returns a copy of initial, which is a
// random labeling when nil.
func (g *SequenceGibbsSampler) FindBestUsingSampling(ctx context.Context, model SequenceModel, numSamples, sampleInterval int, initial []int) ([]int, error) {
	if initial == nil {
		initial = RandomSequence(model, g.rng)
	}
	samples, err := g.CollectSamples(ctx, model, numSamples, sampleInterval, initial)
	if err != nil {
		return nil, err
	}
	var best []int
	bestScore := math.Inf(-1)
	for _, s := range samples {
		if score := model.ScoreOf(s); score > bestScore || best == nil {
			best, bestScore = s, score
		}
	}
	if best == nil {
		best = Copy(initial)
	}
	slog.Debug("Best sample selected", "samples", len(samples), "score", bestScore)
	return best, nil
}

// FindBestUsingAnnealing runs one forward sweep per schedule iteration at
// that iteration's temperature, starting from initial (a random labeling
// when nil). It returns the best scoring labeling seen, or the last one when
// ReturnLastFoundSequence is set.
func (g *SequenceGibbsSampler) FindBestUsingAnnealing(ctx context.Context, model SequenceModel, schedule CoolingSchedule, initial []int) (best []int, err error) {
	ctx, span := startSpan(ctx, "SequenceGibbsSampler.FindBestUsingAnnealing", model)
	defer func() { endSpan(span, err) }()

	if initial == nil {
		initial = RandomSequence(model, g.rng)
	}
	g.listener.SetInitialSequence(initial)
	seq := Copy(initial)
	bestScore := math.Inf(-1)

	speedUp := g.cfg.SpeedUpThreshold > 0
	changed := []int{}
	seen := make(map[int]bool)

	for i := range schedule.NumIterations() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("annealing: %w", err)
		}
		temperature := schedule.Temperature(i)
		var only []int
		if speedUp && i >= g.cfg.SpeedUpThreshold {
			only = changed
		}
		if _, err := g.sampleForward(ctx, model, seq, temperature, only); err != nil {
			return nil, err
		}
		if speedUp && i < g.cfg.SpeedUpThreshold {
			for pos := range seq {
				if seq[pos] != initial[pos] && !seen[pos] {
					seen[pos] = true
					changed = append(changed, pos)
				}
			}
			slices.Sort(changed)
		}
		if !g.cfg.ReturnLastFoundSequence {
			if score := model.ScoreOf(seq); score > bestScore || best == nil {
				best, bestScore = Copy(seq), score
			}
		}
		if i%50 == 0 {
			slog.Debug("Annealing", "iteration", i, "temperature", temperature, "best_score", bestScore)
		}
	}
	if g.cfg.ReturnLastFoundSequence || best == nil {
		return seq, nil
	}
	return best, nil
}

// SampleSequenceRepeatedly resets the listener to seq and runs n forward
// sweeps at temperature 1, modifying seq in place.
func (g *SequenceGibbsSampler) SampleSequenceRepeatedly(ctx context.Context, model SequenceModel, seq []int, n int) error {
	g.listener.SetInitialSequence(seq)
	for range n {
		if _, err := g.SampleSequenceForward(ctx, model, seq, 1); err != nil {
			return err
		}
	}
	return nil
}

// SampleSequenceForward runs one sweep in the configured style, modifying
// seq in place. It returns the probability of the last sampled label, or for
// chromatic sweeps the model score of the resulting labeling.
func (g *SequenceGibbsSampler) SampleSequenceForward(ctx context.Context, model SequenceModel, seq []int, temperature float64) (float64, error) {
	return g.sampleForward(ctx, model, seq, temperature, nil)
}

// SampleSequenceBackward resamples the real positions right to left.
func (g *SequenceGibbsSampler) SampleSequenceBackward(ctx context.Context, model SequenceModel, seq []int, temperature float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("gibbs sweep: %w", err)
	}
	ret := math.Inf(-1)
	for pos := model.LeftWindow() + model.Length() - 1; pos >= model.LeftWindow(); pos-- {
		ret = g.SamplePosition(model, seq, pos, temperature)
	}
	return ret, nil
}

// sampleForward sweeps only the given positions when only is non-nil.
func (g *SequenceGibbsSampler) sampleForward(ctx context.Context, model SequenceModel, seq []int, temperature float64, only []int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("gibbs sweep: %w", err)
	}
	ret := math.Inf(-1)
	if only != nil {
		for _, pos := range only {
			ret = g.SamplePosition(model, seq, pos, temperature)
		}
		return ret, nil
	}
	left, length := model.LeftWindow(), model.Length()
	switch g.cfg.Style {
	case SequentialSampling:
		for pos := left; pos < left+length; pos++ {
			ret = g.SamplePosition(model, seq, pos, temperature)
		}
	case RandomSampling:
		for range length {
			ret = g.SamplePosition(model, seq, left+g.rng.IntN(length), temperature)
		}
	case ChromaticSampling:
		return g.sampleChromatic(ctx, model, seq, temperature)
	}
	return ret, nil
}

// SamplePosition replaces seq[pos] with a draw from the model's conditional
// distribution at temperature, notifies the listener with the old value and
// returns the probability of the drawn label.
func (g *SequenceGibbsSampler) SamplePosition(model SequenceModel, seq []int, pos int, temperature float64) float64 {
	old := seq[pos]
	value, prob := samplePositionHelper(model, seq, pos, temperature, g.rng)
	seq[pos] = value
	g.listener.UpdateSequenceElement(seq, pos, old)
	return prob
}

// samplePositionHelper draws a label for pos without changing seq.
//
// Temperature 0 is argmax; any temperature other than 1 scales the log
// scores by 1/temperature before normalizing.
func samplePositionHelper(model SequenceModel, seq []int, pos int, temperature float64, src rand.Source) (int, float64) {
	dist := slices.Clone(model.ScoresOf(seq, pos))
	switch {
	case temperature == 0:
		argmax := floats.MaxIdx(dist)
		for i := range dist {
			dist[i] = math.Inf(-1)
		}
		dist[argmax] = 0
	case temperature != 1:
		floats.Scale(1/temperature, dist)
	}
	logNormalizeExp(dist)
	idx := drawIndex(dist, src)
	return model.PossibleValues(pos)[idx], dist[idx]
}

type positionUpdate struct {
	pos, value int
}

// sampleChromatic samples each class of the partition in order. Small
// classes are sampled inline; the labels of a large class are drawn
// concurrently against a snapshot and only written back once every worker
// has finished, so no member of a class sees another member's new label.
func (g *SequenceGibbsSampler) sampleChromatic(ctx context.Context, model SequenceModel, seq []int, temperature float64) (float64, error) {
	for _, class := range g.cfg.Partition {
		if len(class) <= g.cfg.ChromaticSize {
			for _, pos := range class {
				g.SamplePosition(model, seq, pos, temperature)
			}
			continue
		}
		updates, err := g.sampleClass(ctx, model, seq, class, temperature)
		if err != nil {
			return 0, err
		}
		for _, u := range updates {
			old := seq[u.pos]
			seq[u.pos] = u.value
			g.listener.UpdateSequenceElement(seq, u.pos, old)
		}
	}
	return model.ScoreOf(seq), nil
}

// sampleClass draws new labels for class on up to ChromaticSize goroutines.
// Each chunk gets its own copy of seq and a generator seeded from the
// sampler's, which keeps runs reproducible.
func (g *SequenceGibbsSampler) sampleClass(ctx context.Context, model SequenceModel, seq, class []int, temperature float64) ([]positionUpdate, error) {
	chunks := splitContiguous(class, g.cfg.ChromaticSize)
	seeds := make([]uint64, len(chunks))
	for i := range seeds {
		seeds[i] = g.rng.Uint64()
	}
	results := make([][]positionUpdate, len(chunks))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.ChromaticSize)
	for i, chunk := range chunks {
		eg.Go(func() error {
			snapshot := Copy(seq)
			rng := newRand(seeds[i])
			out := make([]positionUpdate, 0, len(chunk))
			for _, pos := range chunk {
				if err := egCtx.Err(); err != nil {
					return err
				}
				value, _ := samplePositionHelper(model, snapshot, pos, temperature, rng)
				out = append(out, positionUpdate{pos: pos, value: value})
			}
			results[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("chromatic sweep: %w", err)
	}
	return slices.Concat(results...), nil
}

// splitContiguous cuts positions into at most n contiguous chunks of
// near-equal size.
func splitContiguous(positions []int, n int) [][]int {
	if n < 1 {
		n = 1
	}
	size := (len(positions) + n - 1) / n
	chunks := make([][]int, 0, n)
	for start := 0; start < len(positions); start += size {
		chunks = append(chunks, positions[start:min(start+size, len(positions))])
	}
	return chunks
}
