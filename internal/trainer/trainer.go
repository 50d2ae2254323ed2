// Package trainer drives forward/backward/optimizer cycles over epochs and
// minibatches. A run is strictly sequential: forward completes before
// backward, backward completes before the optimizer step, and nothing in
// here is safe for concurrent use — parallelism belongs to independent runs
// with independent trainers.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"eventflow/internal/layer"
	"eventflow/internal/loss"
	"eventflow/internal/metrics"
	"eventflow/internal/optimizer"
	"eventflow/internal/spike"
)

// Config captures the knobs of one training run.
type Config struct {
	Epochs        int
	MinibatchSize int
	Shuffle       bool    // reshuffle the training set each epoch
	DropProb      float64 // per-event dropout probability, 0 disables

	LRDecayGamma float64 // learning-rate multiplier per decay boundary
	LRDecayStep  int     // epochs between decay boundaries, 0 disables
	WeightBump   float64 // added to a quiescent layer's input weights

	ValidEvery int // epochs between validation evaluations, 0 disables
	TestEvery  int // epochs between test evaluations, 0 disables
	SaveEvery  int // epochs between checkpoints, 0 disables
	SaveTo     string
	LogEvery   int // minibatches between progress lines
	Seed       int64
}

func (c *Config) validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("trainer: epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.MinibatchSize <= 0 {
		return fmt.Errorf("trainer: minibatch size must be > 0 (got %d)", c.MinibatchSize)
	}
	if c.DropProb < 0 || c.DropProb >= 1 {
		return fmt.Errorf("trainer: drop probability must be in [0,1) (got %g)", c.DropProb)
	}
	if c.LRDecayGamma == 0 {
		c.LRDecayGamma = 0.95
	}
	if c.WeightBump == 0 {
		c.WeightBump = 5e-3
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	return nil
}

// StageLayer is a chained upstream layer as the trainer needs it: a
// forward/backward stage that can also report quiescence, accept a weight
// bump, and snapshot its weights.
type StageLayer interface {
	layer.Layer
	DeadFraction() float64
	BumpWeights(delta float64)
	WeightCopy() *mat.Dense
}

// Stage pairs a layer with its quiescence threshold. Stages are ordered
// upstream to downstream; the first stage whose dead fraction exceeds its
// threshold is bumped, and downstream stages are then left alone.
type Stage struct {
	Layer         StageLayer
	BumpThreshold float64
}

// Loss is the terminal of the chain plus its metric surface.
type Loss interface {
	layer.Terminal
	Losses(labels []int) ([]loss.Value, error)
	Accuracy(labels []int) (float64, error)
}

// Trainer runs one training run over a fixed layer chain.
type Trainer struct {
	cfg    Config
	stages []Stage
	loss   Loss
	chain  *layer.Chain
	opt    optimizer.Optimizer

	train, valid, test *spike.Dataset

	rng   *rand.Rand
	runID string
	hist  History
}

// New wires a trainer. Valid and test sets may be nil when the matching
// cadence is disabled.
func New(cfg Config, stages []Stage, lossFn Loss, opt optimizer.Optimizer, train, valid, test *spike.Dataset) (*Trainer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, errors.New("trainer: at least one stage required")
	}
	if train == nil || train.Len() == 0 {
		return nil, errors.New("trainer: empty training set")
	}
	if cfg.ValidEvery > 0 && (valid == nil || valid.Len() == 0) {
		return nil, errors.New("trainer: validation cadence set but validation set empty")
	}
	if cfg.TestEvery > 0 && (test == nil || test.Len() == 0) {
		return nil, errors.New("trainer: test cadence set but test set empty")
	}
	layers := make([]layer.Layer, len(stages))
	for i, s := range stages {
		layers[i] = s.Layer
	}
	return &Trainer{
		cfg:    cfg,
		stages: stages,
		loss:   lossFn,
		chain:  layer.NewChain(lossFn, layers...),
		opt:    opt,
		train:  train,
		valid:  valid,
		test:   test,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		runID:  uuid.NewString(),
	}, nil
}

// RunID identifies this run in logs and checkpoints.
func (t *Trainer) RunID() string { return t.runID }

// History exposes the accumulated metric histories of the current run.
func (t *Trainer) History() *History { return &t.hist }

// Train executes the configured number of epochs and returns the final test
// loss and accuracy (or the last training minibatch metrics when no test
// set was supplied). The context is checked at epoch boundaries only.
func (t *Trainer) Train(ctx context.Context) (loss.Value, float64, error) {
	t.hist = History{}
	var window metrics.Window
	var lastLoss loss.Value
	var lastAcc float64
	steps := 0

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return loss.Undefined(), 0, ctx.Err()
		default:
		}

		if t.cfg.ValidEvery > 0 && (epoch-1)%t.cfg.ValidEvery == 0 {
			lv, acc, err := t.Valid()
			if err != nil {
				return loss.Undefined(), 0, err
			}
			log.Printf("run=%s epoch=%d valid_loss=%s valid_acc=%.4f", t.runID, epoch, lv, acc)
		}
		if t.cfg.TestEvery > 0 && (epoch-1)%t.cfg.TestEvery == 0 {
			lv, acc, err := t.Test()
			if err != nil {
				return loss.Undefined(), 0, err
			}
			log.Printf("run=%s epoch=%d test_loss=%s test_acc=%.4f", t.runID, epoch, lv, acc)
		}

		if t.cfg.Shuffle {
			t.train.Shuffle(t.rng)
		}

		for start := 0; start < t.train.Len(); start += t.cfg.MinibatchSize {
			end := min(start+t.cfg.MinibatchSize, t.train.Len())
			mb := t.train.Slice(start, end)
			if t.cfg.DropProb > 0 {
				mb = spike.Dropout(mb, t.cfg.DropProb, t.rng)
			}

			startForward := time.Now()
			if err := t.chain.Forward(mb.Batch()); err != nil {
				return loss.Undefined(), 0, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			forwardTime := time.Since(startForward)

			startBackward := time.Now()
			if err := t.chain.Backward(mb.Labels); err != nil {
				return loss.Undefined(), 0, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			backwardTime := time.Since(startBackward)

			losses, err := t.loss.Losses(mb.Labels)
			if err != nil {
				return loss.Undefined(), 0, err
			}
			acc, err := t.loss.Accuracy(mb.Labels)
			if err != nil {
				return loss.Undefined(), 0, err
			}
			lv := loss.Mean(losses)
			t.hist.TrainLoss = append(t.hist.TrainLoss, lv)
			t.hist.TrainAcc = append(t.hist.TrainAcc, acc)
			window.Record(mb.Len(), forwardTime, backwardTime, lv, acc)

			t.processDeadNeurons()
			t.opt.Step()
			t.opt.ZeroGrad()

			steps++
			if steps%t.cfg.LogEvery == 0 {
				snap := window.Snapshot()
				log.Printf("run=%s epoch=%d step=%d samples_per_sec=%.1f forward_ms=%.2f backward_ms=%.2f loss=%s acc=%.4f",
					t.runID, epoch, steps, snap.SamplesPerSec, snap.AvgForwardMS, snap.AvgBackwardMS,
					snap.LastLoss, snap.LastAccuracy)
			}
			lastLoss, lastAcc = lv, acc
		}

		if t.cfg.LRDecayStep > 0 && epoch%t.cfg.LRDecayStep == 0 {
			t.opt.SetLR(t.opt.LR() * t.cfg.LRDecayGamma)
		}

		if t.cfg.SaveTo != "" && t.cfg.SaveEvery > 0 && epoch%t.cfg.SaveEvery == 0 {
			t.hist.Weights = append(t.hist.Weights, t.WeightSnapshots())
			if err := t.saveCheckpoint(); err != nil {
				return loss.Undefined(), 0, err
			}
		}
	}

	if t.test != nil && t.test.Len() > 0 {
		return t.Test()
	}
	return lastLoss, lastAcc, nil
}

// Valid evaluates the validation set and appends to the run history.
func (t *Trainer) Valid() (loss.Value, float64, error) {
	lv, acc, err := t.evaluate(t.valid)
	if err != nil {
		return loss.Undefined(), 0, fmt.Errorf("valid: %w", err)
	}
	t.hist.ValidLoss = append(t.hist.ValidLoss, lv)
	t.hist.ValidAcc = append(t.hist.ValidAcc, acc)
	return lv, acc, nil
}

// Test evaluates the test set and appends to the run history.
func (t *Trainer) Test() (loss.Value, float64, error) {
	lv, acc, err := t.evaluate(t.test)
	if err != nil {
		return loss.Undefined(), 0, fmt.Errorf("test: %w", err)
	}
	t.hist.TestLoss = append(t.hist.TestLoss, lv)
	t.hist.TestAcc = append(t.hist.TestAcc, acc)
	return lv, acc, nil
}

func (t *Trainer) evaluate(ds *spike.Dataset) (loss.Value, float64, error) {
	if ds == nil || ds.Len() == 0 {
		return loss.Undefined(), 0, errors.New("empty evaluation set")
	}
	if err := t.chain.Forward(ds.Batch()); err != nil {
		return loss.Undefined(), 0, err
	}
	losses, err := t.loss.Losses(ds.Labels)
	if err != nil {
		return loss.Undefined(), 0, err
	}
	acc, err := t.loss.Accuracy(ds.Labels)
	if err != nil {
		return loss.Undefined(), 0, err
	}
	return loss.Mean(losses), acc, nil
}

// processDeadNeurons bumps the first stage, upstream to downstream, whose
// quiescent fraction exceeds its threshold. At most one stage is bumped per
// minibatch: a bumped upstream layer shields every downstream layer.
func (t *Trainer) processDeadNeurons() {
	for _, s := range t.stages {
		if s.Layer.DeadFraction() > s.BumpThreshold {
			s.Layer.BumpWeights(t.cfg.WeightBump)
			return
		}
	}
}

// WeightSnapshots returns an opaque per-stage copy of the current weights.
func (t *Trainer) WeightSnapshots() []WeightSnapshot {
	snaps := make([]WeightSnapshot, len(t.stages))
	for i, s := range t.stages {
		snaps[i] = snapshotOf(s.Layer.WeightCopy())
	}
	return snaps
}
