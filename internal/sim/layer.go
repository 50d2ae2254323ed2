// Package sim provides a compact event-driven leaky-integrator layer that
// implements the simulator capabilities the training core consumes: batched
// spike trains with first-spike summaries, per-neuron voltage maxima, and
// the error-injection side channel. It is a stand-in in the same spirit as a
// tiny reference model behind an interface: deterministic, dependency-light,
// and honest about not being a full adjoint simulator. Production setups
// plug their own simulator in through the layer and trainer interfaces.
package sim

import (
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"eventflow/internal/layer"
	"eventflow/internal/spike"
)

// Config sizes and parameterizes one integrator layer.
type Config struct {
	In      int // presynaptic neuron count
	Neurons int // layer neuron count

	WMean float64 // Gaussian weight init mean
	WStd  float64 // Gaussian weight init stddev

	TauMem    float64 // membrane time constant, seconds
	TauSyn    float64 // synaptic time constant, seconds
	Threshold float64 // spike threshold on the unit-peak kernel sum
}

func (c Config) withDefaults() Config {
	if c.TauMem == 0 {
		c.TauMem = 20e-3
	}
	if c.TauSyn == 0 {
		c.TauSyn = 5e-3
	}
	if c.Threshold == 0 {
		c.Threshold = 1.0
	}
	return c
}

// Layer is one leaky-integrator stage. Voltages are dual-exponential kernel
// sums evaluated at event times; each neuron emits at most one spike per
// sample, at its first threshold crossing.
type Layer struct {
	cfg  Config
	kNum float64 // kernel normalization so the peak response is 1
	tPk  float64 // kernel peak offset

	w    *mat.Dense // Neurons x In
	grad *mat.Dense // Neurons x In

	in, out    *spike.Batch
	maxTimes   [][]float64 // per sample, per neuron argmax time
	spiked     []bool      // per neuron, anywhere in the last batch
	ranForward bool
}

// New builds a layer with Gaussian-initialized weights drawn from the given
// seed. A zero WStd yields constant WMean weights.
func New(cfg Config, seed uint64) *Layer {
	cfg = cfg.withDefaults()
	data := make([]float64, cfg.Neurons*cfg.In)
	if cfg.WStd > 0 {
		normal := distuv.Normal{Mu: cfg.WMean, Sigma: cfg.WStd, Src: rand.NewSource(seed)}
		for i := range data {
			data[i] = normal.Rand()
		}
	} else {
		for i := range data {
			data[i] = cfg.WMean
		}
	}
	tPk := math.Log(cfg.TauMem/cfg.TauSyn) * cfg.TauMem * cfg.TauSyn / (cfg.TauMem - cfg.TauSyn)
	raw := math.Exp(-tPk/cfg.TauMem) - math.Exp(-tPk/cfg.TauSyn)
	return &Layer{
		cfg:  cfg,
		kNum: 1 / raw,
		tPk:  tPk,
		w:    mat.NewDense(cfg.Neurons, cfg.In, data),
		grad: mat.NewDense(cfg.Neurons, cfg.In, nil),
	}
}

// kernel is the postsynaptic response at lag s, normalized to unit peak.
func (l *Layer) kernel(s float64) float64 {
	if s < 0 {
		return 0
	}
	return l.kNum * (math.Exp(-s/l.cfg.TauMem) - math.Exp(-s/l.cfg.TauSyn))
}

// Forward integrates the batch and produces output trains plus per-neuron
// voltage maxima. Re-arms the layer for one backward pass.
func (l *Layer) Forward(in *spike.Batch) (*spike.Batch, error) {
	if in.Len() == 0 {
		return nil, layer.ErrBadBatch
	}
	l.in = in
	l.spiked = make([]bool, l.cfg.Neurons)
	l.maxTimes = make([][]float64, in.Len())
	out := &spike.Batch{
		Trains: make([]*spike.Train, in.Len()),
		Maxima: make([]*spike.Maxima, in.Len()),
	}
	for b, train := range in.Trains {
		times := l.candidateTimes(train)
		maxima := make([]float64, l.cfg.Neurons)
		maxAt := make([]float64, l.cfg.Neurons)
		var events []spike.Event
		for n := 0; n < l.cfg.Neurons; n++ {
			fired := false
			peak := math.Inf(-1)
			for _, t := range times {
				v := l.voltage(train, n, t)
				if v > peak {
					peak = v
					maxAt[n] = t
				}
				if !fired && v >= l.cfg.Threshold {
					events = append(events, spike.Event{Time: t, Source: n})
					l.spiked[n] = true
					fired = true
				}
			}
			if peak == math.Inf(-1) {
				peak = 0
			}
			maxima[n] = peak
		}
		sort.Slice(events, func(i, j int) bool { return events[i].Time < events[j].Time })
		out.Trains[b] = spike.NewTrain(events)
		out.Maxima[b] = spike.NewMaxima(maxima)
		l.maxTimes[b] = maxAt
	}
	l.out = out
	l.ranForward = true
	return out, nil
}

// candidateTimes is every input event time plus the kernel peak offset after
// each event, sorted; crossings and maxima are only looked for there.
func (l *Layer) candidateTimes(train *spike.Train) []float64 {
	times := make([]float64, 0, 2*train.Len())
	for _, e := range train.Events {
		times = append(times, e.Time, e.Time+l.tPk)
	}
	sort.Float64s(times)
	return times
}

// voltage is the kernel-sum membrane potential of neuron n at time t.
func (l *Layer) voltage(train *spike.Train, n int, t float64) float64 {
	var v float64
	for _, e := range train.Events {
		if e.Time > t {
			break
		}
		v += l.w.At(n, e.Source) * l.kernel(t-e.Time)
	}
	return v
}

// Backward converts errors injected into the output trains and maxima into
// first-order weight sensitivities (dV/dw at the event time) and propagates
// weight-scaled errors onto the input trains.
func (l *Layer) Backward() error {
	if !l.ranForward {
		return layer.ErrBackwardBeforeForward
	}
	for b := range l.out.Trains {
		outTrain := l.out.Trains[b]
		for k, e := range outTrain.Events {
			if err := outTrain.Error(k); err != 0 {
				l.accumulate(b, e.Source, e.Time, err)
			}
		}
		maxima := l.out.Maxima[b]
		for n := range maxima.Values {
			if err := maxima.Error(n); err != 0 {
				l.accumulate(b, n, l.maxTimes[b][n], err)
			}
		}
	}
	return nil
}

func (l *Layer) accumulate(b, n int, t, err float64) {
	train := l.in.Trains[b]
	for k, e := range train.Events {
		if e.Time > t {
			break
		}
		resp := l.kernel(t - e.Time)
		if resp == 0 {
			continue
		}
		l.grad.Set(n, e.Source, l.grad.At(n, e.Source)+err*resp)
		train.AddError(k, err*l.w.At(n, e.Source)*resp)
	}
}

// DeadFraction is the fraction of neurons that stayed silent across every
// sample of the last forward batch.
func (l *Layer) DeadFraction() float64 {
	if !l.ranForward {
		return 0
	}
	quiet := 0
	for _, s := range l.spiked {
		if !s {
			quiet++
		}
	}
	return float64(quiet) / float64(l.cfg.Neurons)
}

// BumpWeights adds exactly delta to every input weight. Used to recover
// quiescent neurons, which produce no gradient signal of their own.
func (l *Layer) BumpWeights(delta float64) {
	floats.AddConst(delta, l.w.RawMatrix().Data)
}

// Weights exposes the weight matrix to the optimizer.
func (l *Layer) Weights() *mat.Dense { return l.w }

// Grads exposes the accumulated gradient matrix to the optimizer.
func (l *Layer) Grads() *mat.Dense { return l.grad }

// ZeroGrad clears the accumulated gradients.
func (l *Layer) ZeroGrad() {
	data := l.grad.RawMatrix().Data
	for i := range data {
		data[i] = 0
	}
}

// WeightCopy returns an independent snapshot of the weights.
func (l *Layer) WeightCopy() *mat.Dense {
	return mat.DenseCopyOf(l.w)
}
