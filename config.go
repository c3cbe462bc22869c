package seqinfer

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/happyhackingspace/seqinfer/sequences"
	"gopkg.in/yaml.v3"
)

// Finder kinds accepted in Config.Finder.
const (
	FinderExact   = "exact"
	FinderBeam    = "beam"
	FinderKBest   = "kbest"
	FinderSampler = "sampler"
	FinderGibbs   = "gibbs"
	FinderAnneal  = "anneal"
)

// Config selects and tunes the search used by a Decoder.
type Config struct {
	Finder    string          `yaml:"finder" validate:"oneof=exact beam kbest sampler gibbs anneal"`
	Beam      BeamConfig      `yaml:"beam"`
	KBest     KBestConfig     `yaml:"kbest"`
	Gibbs     GibbsConfig     `yaml:"gibbs"`
	Annealing AnnealingConfig `yaml:"annealing"`
}

// BeamConfig configures beam search.
type BeamConfig struct {
	Size            int  `yaml:"size" validate:"gte=1"`
	ExhaustiveStart bool `yaml:"exhaustive_start"`
	Recenter        bool `yaml:"recenter"`
}

// KBestConfig configures K-best Viterbi.
type KBestConfig struct {
	K int `yaml:"k" validate:"gte=1"`
}

// GibbsConfig configures Gibbs sampling. Style is random, sequential or
// chromatic; chromatic sampling partitions positions by parity.
type GibbsConfig struct {
	Samples          int    `yaml:"samples" validate:"gte=0"`
	Interval         int    `yaml:"interval" validate:"gte=0"`
	Style            string `yaml:"style" validate:"samplingstyle"`
	Workers          int    `yaml:"workers" validate:"gte=1"`
	SpeedUpThreshold int    `yaml:"speed_up_threshold" validate:"gte=0"`
	ReturnLast       bool   `yaml:"return_last"`
	Seed             uint64 `yaml:"seed"`
}

// AnnealingConfig configures simulated annealing. Schedule is linear or
// exponential.
type AnnealingConfig struct {
	Schedule           string  `yaml:"schedule" validate:"oneof=linear exponential"`
	Iterations         int     `yaml:"iterations" validate:"gte=1"`
	InitialTemperature float64 `yaml:"initial_temperature" validate:"gt=0"`
	Rate               float64 `yaml:"rate" validate:"gt=0,lte=1"`
}

// DefaultConfig returns exact Viterbi with reasonable settings for the other
// finders.
func DefaultConfig() *Config {
	g := sequences.DefaultGibbsConfig()
	return &Config{
		Finder: FinderExact,
		Beam:   BeamConfig{Size: 10, ExhaustiveStart: true},
		KBest:  KBestConfig{K: 5},
		Gibbs: GibbsConfig{
			Samples:  g.NumSamples,
			Interval: g.SampleInterval,
			Style:    g.Style.String(),
			Workers:  g.ChromaticSize,
			Seed:     g.Seed,
		},
		Annealing: AnnealingConfig{
			Schedule:           "linear",
			Iterations:         100,
			InitialTemperature: 2,
			Rate:               0.95,
		},
	}
}

// LoadConfig reads a YAML config. Fields missing from the file keep their
// DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seqinfer: read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("seqinfer: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("samplingstyle", func(fl validator.FieldLevel) bool {
		_, err := sequences.ParseSamplingStyle(fl.Field().String())
		return err == nil
	})
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("seqinfer: invalid config: %w", err)
	}
	return nil
}

func (c *Config) schedule() sequences.CoolingSchedule {
	a := c.Annealing
	if a.Schedule == "exponential" {
		return sequences.ExponentialSchedule(a.InitialTemperature, a.Rate, a.Iterations)
	}
	return sequences.LinearSchedule(a.InitialTemperature, a.Iterations)
}
