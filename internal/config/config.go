package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	Loss string `yaml:"loss"` // "ttfs" or "vmax"

	Epochs        int     `yaml:"epochs"`
	MinibatchSize int     `yaml:"minibatch_size"`
	LR            float64 `yaml:"lr"`
	LRDecayGamma  float64 `yaml:"lr_decay_gamma"`
	LRDecayStep   int     `yaml:"lr_decay_step"`
	GradClip      float64 `yaml:"grad_clip"`

	WeightBump          float64 `yaml:"weight_bump"`
	BumpThresholdHidden float64 `yaml:"bump_threshold_hidden"`
	BumpThresholdOutput float64 `yaml:"bump_threshold_output"`

	HiddenNeurons int     `yaml:"hidden_neurons"`
	Classes       int     `yaml:"classes"`
	HiddenWMean   float64 `yaml:"hidden_w_mean"`
	HiddenWStd    float64 `yaml:"hidden_w_std"`
	OutputWMean   float64 `yaml:"output_w_mean"`
	OutputWStd    float64 `yaml:"output_w_std"`

	Alpha float64 `yaml:"alpha"`
	Tau0  float64 `yaml:"tau0"`
	Tau1  float64 `yaml:"tau1"`

	TauMem    float64 `yaml:"tau_mem"`
	TauSyn    float64 `yaml:"tau_syn"`
	Threshold float64 `yaml:"threshold"`

	TrainSamples int `yaml:"train_samples"`
	ValidSamples int `yaml:"valid_samples"`
	TestSamples  int `yaml:"test_samples"`

	DropProb float64 `yaml:"drop_prob"`
	Shuffle  bool    `yaml:"shuffle"`
	Runs     int     `yaml:"runs"`
	Seed     int64   `yaml:"seed"`

	SaveTo     string `yaml:"save_to"`
	SaveEvery  int    `yaml:"save_every"`
	ValidEvery int    `yaml:"valid_every"`
	TestEvery  int    `yaml:"test_every"`
	LogEvery   int    `yaml:"log_every"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	Loss          string
	Epochs        int
	MinibatchSize int
	LR            float64
	Seed          int64
	Runs          int
	SaveTo        string
	LogEvery      int
}

// Default returns the configuration used when no file is supplied: a small
// yin-yang run with the published loss constants.
func Default() *Config {
	return &Config{
		Loss:                "ttfs",
		Epochs:              20,
		MinibatchSize:       50,
		LR:                  5e-3,
		LRDecayGamma:        0.95,
		LRDecayStep:         10,
		WeightBump:          1e-3,
		BumpThresholdHidden: 0.3,
		BumpThresholdOutput: 0.03,
		HiddenNeurons:       100,
		Classes:             3,
		HiddenWMean:         2.5,
		HiddenWStd:          1.5,
		OutputWMean:         1.0,
		OutputWStd:          1.0,
		TrainSamples:        1000,
		ValidSamples:        300,
		TestSamples:         300,
		Shuffle:             true,
		Runs:                1,
		Seed:                42,
		ValidEvery:          5,
		LogEvery:            50,
	}
}

// Load reads and validates a Config from YAML.
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
	if o.Loss != "" {
		c.Loss = o.Loss
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.MinibatchSize > 0 {
		c.MinibatchSize = o.MinibatchSize
	}
	if o.LR > 0 {
		c.LR = o.LR
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.Runs > 0 {
		c.Runs = o.Runs
	}
	if o.SaveTo != "" {
		c.SaveTo = o.SaveTo
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
}

// Validate verifies the config is runnable and applies defaults for
// optional knobs.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Loss != "ttfs" && c.Loss != "vmax" {
		return fmt.Errorf("loss must be \"ttfs\" or \"vmax\" (got %q)", c.Loss)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.MinibatchSize <= 0 {
		return fmt.Errorf("minibatch_size must be > 0 (got %d)", c.MinibatchSize)
	}
	if c.LR <= 0 {
		return fmt.Errorf("lr must be > 0 (got %g)", c.LR)
	}
	if c.HiddenNeurons <= 0 {
		return fmt.Errorf("hidden_neurons must be > 0 (got %d)", c.HiddenNeurons)
	}
	if c.Classes <= 1 {
		return fmt.Errorf("classes must be > 1 (got %d)", c.Classes)
	}
	if c.TrainSamples <= 0 {
		return fmt.Errorf("train_samples must be > 0 (got %d)", c.TrainSamples)
	}
	if c.DropProb < 0 || c.DropProb >= 1 {
		return fmt.Errorf("drop_prob must be in [0,1) (got %g)", c.DropProb)
	}
	if c.Runs <= 0 {
		c.Runs = 1
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	if c.LRDecayGamma == 0 {
		c.LRDecayGamma = 0.95
	}
	return nil
}

func parseYAML(r io.Reader) (*Config, error) {
	cfg := &Config{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: missing ':'", lineNo)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, "\"'")
		if err := cfg.set(key, value); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", lineNo, key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) set(key, value string) error {
	switch key {
	case "loss":
		c.Loss = value
		return nil
	case "save_to":
		c.SaveTo = value
		return nil
	case "shuffle":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		c.Shuffle = v
		return nil
	case "seed":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		c.Seed = v
		return nil
	}

	if dst, ok := c.intKey(key); ok {
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
	if dst, ok := c.floatKey(key); ok {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
	return fmt.Errorf("unknown key %s", key)
}

func (c *Config) intKey(key string) (*int, bool) {
	switch key {
	case "epochs":
		return &c.Epochs, true
	case "minibatch_size":
		return &c.MinibatchSize, true
	case "lr_decay_step":
		return &c.LRDecayStep, true
	case "hidden_neurons":
		return &c.HiddenNeurons, true
	case "classes":
		return &c.Classes, true
	case "train_samples":
		return &c.TrainSamples, true
	case "valid_samples":
		return &c.ValidSamples, true
	case "test_samples":
		return &c.TestSamples, true
	case "runs":
		return &c.Runs, true
	case "save_every":
		return &c.SaveEvery, true
	case "valid_every":
		return &c.ValidEvery, true
	case "test_every":
		return &c.TestEvery, true
	case "log_every":
		return &c.LogEvery, true
	}
	return nil, false
}

func (c *Config) floatKey(key string) (*float64, bool) {
	switch key {
	case "lr":
		return &c.LR, true
	case "lr_decay_gamma":
		return &c.LRDecayGamma, true
	case "grad_clip":
		return &c.GradClip, true
	case "weight_bump":
		return &c.WeightBump, true
	case "bump_threshold_hidden":
		return &c.BumpThresholdHidden, true
	case "bump_threshold_output":
		return &c.BumpThresholdOutput, true
	case "hidden_w_mean":
		return &c.HiddenWMean, true
	case "hidden_w_std":
		return &c.HiddenWStd, true
	case "output_w_mean":
		return &c.OutputWMean, true
	case "output_w_std":
		return &c.OutputWStd, true
	case "alpha":
		return &c.Alpha, true
	case "tau0":
		return &c.Tau0, true
	case "tau1":
		return &c.Tau1, true
	case "tau_mem":
		return &c.TauMem, true
	case "tau_syn":
		return &c.TauSyn, true
	case "threshold":
		return &c.Threshold, true
	case "drop_prob":
		return &c.DropProb, true
	}
	return nil, false
}
