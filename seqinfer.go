// Package seqinfer decodes label sequences with a linear-chain CRF and any
// of the search strategies in the sequences package.
//
//	d, _ := seqinfer.New(nil)
//	labels, _ := d.Decode(ctx, []map[string]any{
//	    {"word": "John", "is-title": true},
//	    {"word": "runs"},
//	})
//	fmt.Println(labels) // [B-PER O]
package seqinfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/happyhackingspace/seqinfer/crf"
	"github.com/happyhackingspace/seqinfer/sequences"
)

// ErrNoLabeling is returned when a finder produces no labeling, which only an
// approximate search can do.
var ErrNoLabeling = errors.New("seqinfer: no labeling found")

// Decoder runs the configured search over CRF chains.
type Decoder struct {
	model *crf.Model
	cfg   Config
}

// Labeling is one decoded sequence with its model score.
type Labeling struct {
	Labels []string `json:"labels"`
	Score  float64  `json:"score"`
}

// New loads "model.json", searching the current directory and parent
// directories up to the module root (where go.mod lives), then the user
// cache directory. A nil cfg means DefaultConfig.
func New(cfg *Config) (*Decoder, error) {
	path, err := findModel("model.json")
	if err != nil {
		return nil, fmt.Errorf("seqinfer: %w", err)
	}
	return Load(path, cfg)
}

// ModelDir is where a model is looked for when none is found near the
// working directory.
func ModelDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "seqinfer")
}

func findModel(name string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		// Stop at module root
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cached := filepath.Join(ModelDir(), name)
	if _, err := os.Stat(cached); err == nil {
		return cached, nil
	}
	return "", fmt.Errorf("%s not found", name)
}

// Load reads a CRF model file. A nil cfg means DefaultConfig.
func Load(path string, cfg *Config) (*Decoder, error) {
	start := time.Now()
	model, err := crf.LoadModel(path)
	if err != nil {
		return nil, fmt.Errorf("seqinfer: %w", err)
	}
	slog.Debug("Model loaded", "path", path, "labels", model.NumLabels,
		"attributes", model.Attributes.Size(), "duration", time.Since(start))
	return NewDecoder(model, cfg)
}

// NewDecoder wraps an in-memory model. A nil cfg means DefaultConfig.
func NewDecoder(model *crf.Model, cfg *Config) (*Decoder, error) {
	if model == nil {
		return nil, errors.New("seqinfer: nil model")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("seqinfer: %w", err)
	}
	return &Decoder{model: model, cfg: *cfg}, nil
}

// Model returns the underlying CRF.
func (d *Decoder) Model() *crf.Model { return d.model }

// Config returns a copy of the decoding config.
func (d *Decoder) Config() Config { return d.cfg }

// Chain converts per-element feature dicts into a scored chain.
func (d *Decoder) Chain(features []map[string]any) *crf.Chain {
	return crf.NewChain(d.model, crf.SequenceAttributes(features))
}

// Finder builds the configured search for chain. Samplers that need full
// conditionals are given chain.Conditional() when they run.
func (d *Decoder) Finder(chain *crf.Chain) (sequences.BestSequenceFinder, error) {
	c := d.cfg
	switch c.Finder {
	case FinderExact:
		return sequences.NewExactBestSequenceFinder(), nil
	case FinderBeam:
		return sequences.NewBeamBestSequenceFinder(c.Beam.Size, c.Beam.ExhaustiveStart, c.Beam.Recenter), nil
	case FinderKBest:
		return sequences.NewKBestSequenceFinder(), nil
	case FinderSampler:
		return sequences.NewSequenceSampler(c.Gibbs.Seed), nil
	case FinderGibbs, FinderAnneal:
		style, err := sequences.ParseSamplingStyle(c.Gibbs.Style)
		if err != nil {
			return nil, fmt.Errorf("seqinfer: %w", err)
		}
		g, err := sequences.NewSequenceGibbsSampler(sequences.GibbsConfig{
			NumSamples:              c.Gibbs.Samples,
			SampleInterval:          c.Gibbs.Interval,
			Style:                   style,
			ChromaticSize:           c.Gibbs.Workers,
			Partition:               chain.Partition(),
			SpeedUpThreshold:        c.Gibbs.SpeedUpThreshold,
			ReturnLastFoundSequence: c.Gibbs.ReturnLast,
			Seed:                    c.Gibbs.Seed,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("seqinfer: %w", err)
		}
		if c.Finder == FinderAnneal {
			return conditional{annealer{g, c.schedule()}}, nil
		}
		return conditional{g}, nil
	}
	return nil, fmt.Errorf("seqinfer: unknown finder %q", c.Finder)
}

// annealer adapts simulated annealing to BestSequenceFinder.
type annealer struct {
	sampler  *sequences.SequenceGibbsSampler
	schedule sequences.CoolingSchedule
}

func (a annealer) BestSequence(ctx context.Context, model sequences.SequenceModel) ([]int, error) {
	return a.sampler.FindBestUsingAnnealing(ctx, model, a.schedule, nil)
}

// conditional runs its finder on the full-conditional view of a chain.
type conditional struct {
	sequences.BestSequenceFinder
}

func (c conditional) BestSequence(ctx context.Context, model sequences.SequenceModel) ([]int, error) {
	if chain, ok := model.(*crf.Chain); ok {
		model = chain.Conditional()
	}
	return c.BestSequenceFinder.BestSequence(ctx, model)
}

// Decode returns one label per element of features.
func (d *Decoder) Decode(ctx context.Context, features []map[string]any) ([]string, error) {
	start := time.Now()
	chain := d.Chain(features)
	finder, err := d.Finder(chain)
	if err != nil {
		return nil, err
	}
	seq, err := finder.BestSequence(ctx, chain)
	if err != nil {
		return nil, fmt.Errorf("seqinfer: %w", err)
	}
	if seq == nil {
		return nil, ErrNoLabeling
	}
	slog.Debug("Sequence decoded", "finder", d.cfg.Finder, "length", chain.Length(),
		"score", chain.ScoreOf(seq), "duration", time.Since(start))
	return chain.Labels(seq), nil
}

// Score returns the model score of labels for features.
func (d *Decoder) Score(features []map[string]any, labels []string) (float64, error) {
	if len(labels) != len(features) {
		return 0, fmt.Errorf("seqinfer: %d labels for %d elements", len(labels), len(features))
	}
	seq := make([]int, len(labels)+1)
	for t, l := range labels {
		id := d.model.Labels.Get(l)
		if id < 0 {
			return 0, fmt.Errorf("seqinfer: unknown label %q", l)
		}
		seq[t+1] = id
	}
	return d.Chain(features).ScoreOf(seq), nil
}

// DecodeKBest returns up to k labelings, best first. k < 1 uses the
// configured K.
func (d *Decoder) DecodeKBest(ctx context.Context, features []map[string]any, k int) ([]Labeling, error) {
	if k < 1 {
		k = d.cfg.KBest.K
	}
	chain := d.Chain(features)
	best, err := sequences.NewKBestSequenceFinder().KBestSequences(ctx, chain, k)
	if err != nil {
		return nil, fmt.Errorf("seqinfer: %w", err)
	}
	out := make([]Labeling, len(best))
	for i, s := range best {
		out[i] = Labeling{Labels: chain.Labels(s.Labels), Score: s.Score}
	}
	return out, nil
}

// Lattice returns the Viterbi lattice of features with label names.
func (d *Decoder) Lattice(ctx context.Context, features []map[string]any) (*sequences.Lattice, error) {
	lat, err := sequences.NewViterbiSearchGraphBuilder().Graph(ctx, d.Chain(features), d.model.Labels)
	if err != nil {
		return nil, fmt.Errorf("seqinfer: %w", err)
	}
	return lat, nil
}

// Marginals returns P(label | features) for each element.
func (d *Decoder) Marginals(ctx context.Context, features []map[string]any) ([]map[string]float64, error) {
	m, err := d.model.PredictMarginals(ctx, crf.SequenceAttributes(features))
	if err != nil {
		return nil, fmt.Errorf("seqinfer: %w", err)
	}
	return m, nil
}
