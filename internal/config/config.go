package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for training and inference.
type Config struct {
	DatasetPath string `yaml:"dataset_path"`
	ModelPath   string `yaml:"model_path"`
	GridSize    int    `yaml:"grid_size"`
	HiddenSize  int    `yaml:"hidden_size"`
	NumWorkers  int    `yaml:"num_workers"`
	Seed        int64  `yaml:"seed"`
	LogEvery    int    `yaml:"log_every"`

	Training  Training  `yaml:"training"`
	Augment   Augment   `yaml:"augment"`
	Inference Inference `yaml:"inference"`
}

// Training holds the hyperparameters of the training loop.
type Training struct {
	Epochs         int     `yaml:"epochs"`
	LearningRate   float64 `yaml:"learning_rate"`
	DropoutRate    float64 `yaml:"dropout_rate"`
	L2             float64 `yaml:"l2"`
	LabelSmoothing float64 `yaml:"label_smoothing"`
	Patience       int     `yaml:"patience"`
	DecayEvery     int     `yaml:"decay_every"`
	DecayFactor    float64 `yaml:"decay_factor"`
}

// Augment controls synthetic example generation.
type Augment struct {
	Enabled  bool    `yaml:"enabled"`
	Shifts   int     `yaml:"shifts"`
	MaxShift int     `yaml:"max_shift"`
	Noisy    int     `yaml:"noisy"`
	FlipProb float64 `yaml:"flip_prob"`
}

// Inference holds the trust thresholds applied to predictions.
type Inference struct {
	EntropyThreshold    float64 `yaml:"entropy_threshold"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DatasetPath  string
	ModelPath    string
	Epochs       int
	LearningRate float64
	NumWorkers   int
	// Seed is applied whenever it is non-nil, so a seed of 0 can be chosen.
	Seed     *int64
	LogEvery int
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DatasetPath: "dataset.csv",
		ModelPath:   "model.bin",
		GridSize:    56,
		HiddenSize:  128,
		NumWorkers:  1,
		Seed:        42,
		LogEvery:    10,
		Training: Training{
			Epochs:         600,
			LearningRate:   0.01,
			DropoutRate:    0.2,
			L2:             0.001,
			LabelSmoothing: 0.1,
			Patience:       30,
			DecayEvery:     100,
			DecayFactor:    0.9,
		},
		Augment: Augment{
			Enabled:  true,
			Shifts:   3,
			MaxShift: 2,
			Noisy:    2,
			FlipProb: 0.05,
		},
		Inference: Inference{
			EntropyThreshold:    0.7,
			ConfidenceThreshold: 0.7,
		},
	}
}

// Load reads a Config from YAML on top of Default and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := parseYAML(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DatasetPath != "" {
		c.DatasetPath = o.DatasetPath
	}
	if o.ModelPath != "" {
		c.ModelPath = o.ModelPath
	}
	if o.Epochs > 0 {
		c.Training.Epochs = o.Epochs
	}
	if o.LearningRate > 0 {
		c.Training.LearningRate = o.LearningRate
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.GridSize <= 0 {
		return fmt.Errorf("grid_size must be > 0 (got %d)", c.GridSize)
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("hidden_size must be > 0 (got %d)", c.HiddenSize)
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("num_workers must be > 0 (got %d)", c.NumWorkers)
	}
	t := c.Training
	if t.Epochs <= 0 {
		return fmt.Errorf("training.epochs must be > 0 (got %d)", t.Epochs)
	}
	if t.LearningRate <= 0 {
		return fmt.Errorf("training.learning_rate must be > 0 (got %g)", t.LearningRate)
	}
	if t.DropoutRate < 0 || t.DropoutRate >= 1 {
		return fmt.Errorf("training.dropout_rate must be in [0, 1) (got %g)", t.DropoutRate)
	}
	if t.L2 < 0 {
		return fmt.Errorf("training.l2 must be >= 0 (got %g)", t.L2)
	}
	if t.LabelSmoothing < 0 || t.LabelSmoothing >= 1 {
		return fmt.Errorf("training.label_smoothing must be in [0, 1) (got %g)", t.LabelSmoothing)
	}
	if t.Patience < 0 {
		return fmt.Errorf("training.patience must be >= 0 (got %d)", t.Patience)
	}
	if t.DecayEvery < 0 {
		return fmt.Errorf("training.decay_every must be >= 0 (got %d)", t.DecayEvery)
	}
	if t.DecayEvery > 0 && (t.DecayFactor <= 0 || t.DecayFactor > 1) {
		return fmt.Errorf("training.decay_factor must be in (0, 1] (got %g)", t.DecayFactor)
	}
	a := c.Augment
	if a.Shifts < 0 || a.Noisy < 0 || a.MaxShift < 0 {
		return errors.New("augment counts must be >= 0")
	}
	if a.FlipProb < 0 || a.FlipProb > 1 {
		return fmt.Errorf("augment.flip_prob must be in [0, 1] (got %g)", a.FlipProb)
	}
	i := c.Inference
	if i.EntropyThreshold < 0 || i.EntropyThreshold > 1 {
		return fmt.Errorf("inference.entropy_threshold must be in [0, 1] (got %g)", i.EntropyThreshold)
	}
	if i.ConfidenceThreshold < 0 || i.ConfidenceThreshold > 1 {
		return fmt.Errorf("inference.confidence_threshold must be in [0, 1] (got %g)", i.ConfidenceThreshold)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 10
	}
	return nil
}

func parseYAML(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}
