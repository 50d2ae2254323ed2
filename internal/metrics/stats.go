package metrics

import (
	"time"

	"eventflow/internal/loss"
)

// Window accumulates per-minibatch stats between log lines.
type Window struct {
	samples  int
	forward  time.Duration
	backward time.Duration
	steps    int
	lastLoss loss.Value
	lastAcc  float64
}

// Record adds one minibatch measurement to the window.
func (w *Window) Record(batchSize int, forwardTime, backwardTime time.Duration, l loss.Value, acc float64) {
	w.samples += batchSize
	w.forward += forwardTime
	w.backward += backwardTime
	w.steps++
	w.lastLoss = l
	w.lastAcc = acc
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{}
	total := w.forward + w.backward
	if total > 0 {
		snap.SamplesPerSec = float64(w.samples) / total.Seconds()
	}
	if w.steps > 0 {
		snap.AvgForwardMS = (w.forward.Seconds() * 1000) / float64(w.steps)
		snap.AvgBackwardMS = (w.backward.Seconds() * 1000) / float64(w.steps)
	}
	snap.LastLoss = w.lastLoss
	snap.LastAccuracy = w.lastAcc

	w.samples = 0
	w.forward = 0
	w.backward = 0
	w.steps = 0
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	SamplesPerSec float64
	AvgForwardMS  float64
	AvgBackwardMS float64
	LastLoss      loss.Value
	LastAccuracy  float64
}
