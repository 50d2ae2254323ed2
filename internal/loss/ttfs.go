package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"eventflow/internal/layer"
	"eventflow/internal/spike"
)

// TTFSParams configures the time-to-first-spike cross-entropy loss.
type TTFSParams struct {
	Neurons int     // readout neuron count
	Alpha   float64 // weight of the late-spike penalty
	Tau0    float64 // entropy sharpness, seconds
	Tau1    float64 // late-spike penalty time constant, seconds
}

func (p TTFSParams) withDefaults() TTFSParams {
	if p.Alpha == 0 {
		p.Alpha = 1e-2
	}
	if p.Tau0 == 0 {
		p.Tau0 = 2e-3
	}
	if p.Tau1 == 0 {
		p.Tau1 = 10e-3
	}
	return p
}

// TTFS is a cross-entropy loss over negated, exponentially scaled first-spike
// times: earlier spikes make larger logits. It injects exact dL/dt seeds at
// the first-spike event of every fired neuron; the relation between weights
// and spike times is the upstream simulator's business.
type TTFS struct {
	p          TTFSParams
	post       *spike.Batch
	first      [][]spike.FirstSpike
	ranForward bool
}

// NewTTFS builds the loss; zero-valued time constants take the published
// defaults (alpha 1e-2, tau0 2ms, tau1 10ms).
func NewTTFS(p TTFSParams) *TTFS {
	return &TTFS{p: p.withDefaults()}
}

// Forward captures the incoming batch and derives per-sample first-spike
// summaries. Every forward re-arms the loss for one backward pass.
func (l *TTFS) Forward(in *spike.Batch) error {
	if in.Len() == 0 {
		return layer.ErrBadBatch
	}
	l.post = in
	l.first = make([][]spike.FirstSpike, in.Len())
	for i, t := range in.Trains {
		l.first[i] = t.FirstSpikes(l.p.Neurons)
	}
	l.ranForward = true
	return nil
}

// sum returns the softmax denominator for one sample, taken over fired
// neurons only.
func (l *TTFS) sum(first []spike.FirstSpike) float64 {
	var s float64
	for _, f := range first {
		if f.Fired {
			s += math.Exp(-f.Time / l.p.Tau0)
		}
	}
	return s
}

func (l *TTFS) checkLabels(labels []int) error {
	if !l.ranForward {
		return layer.ErrNotForwarded
	}
	if len(labels) != len(l.first) {
		return fmt.Errorf("loss: %d labels for %d samples", len(labels), len(l.first))
	}
	return nil
}

// Losses returns the per-sample loss values. A sample whose label neuron
// never fired yields an undefined value.
func (l *TTFS) Losses(labels []int) ([]Value, error) {
	if err := l.checkLabels(labels); err != nil {
		return nil, err
	}
	out := make([]Value, len(l.first))
	for i, first := range l.first {
		fy := first[labels[i]]
		if !fy.Fired {
			out[i] = Undefined()
			continue
		}
		s := l.sum(first)
		v := -math.Log(math.Exp(-fy.Time/l.p.Tau0) / s)
		v += l.p.Alpha * (math.Exp(fy.Time/l.p.Tau1) - 1)
		out[i] = Defined(v)
	}
	return out, nil
}

// Accuracy scores a sample as correct iff its label neuron fired and no
// fired neuron beat it; ties count as correct. Samples whose label neuron
// stayed silent count as incorrect.
func (l *TTFS) Accuracy(labels []int) (float64, error) {
	if err := l.checkLabels(labels); err != nil {
		return 0, err
	}
	results := make([]float64, len(l.first))
	for i, first := range l.first {
		fy := first[labels[i]]
		if !fy.Fired {
			continue
		}
		earliest := true
		for _, f := range first {
			if f.Fired && f.Time < fy.Time {
				earliest = false
				break
			}
		}
		if earliest {
			results[i] = 1
		}
	}
	return stat.Mean(results, nil), nil
}

// Backward injects the exact loss gradient with respect to each fired
// neuron's first-spike time, divided by batch size. Samples with an
// undefined loss are skipped entirely: no error is injected, not even zero.
func (l *TTFS) Backward(labels []int) error {
	if !l.ranForward {
		return layer.ErrBackwardBeforeForward
	}
	if len(labels) != len(l.first) {
		return fmt.Errorf("loss: %d labels for %d samples", len(labels), len(l.first))
	}
	tau0, tau1, alpha := l.p.Tau0, l.p.Tau1, l.p.Alpha
	n := float64(len(l.first))
	for i, first := range l.first {
		fy := first[labels[i]]
		if !fy.Fired {
			continue
		}
		s := l.sum(first)
		expTy := math.Exp(-fy.Time / tau0)
		labelErr := 1/tau0 - expTy/(tau0*s) + alpha/tau1*math.Exp(fy.Time/tau1)
		l.post.Trains[i].SetError(fy.Event, labelErr/n)
		for j, f := range first {
			if j == labels[i] || !f.Fired {
				continue
			}
			e := -math.Exp(-f.Time/tau0) / (tau0 * s)
			l.post.Trains[i].SetError(f.Event, e/n)
		}
	}
	return nil
}
