package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"eventflow/internal/layer"
	"eventflow/internal/spike"
)

// VMaxParams configures the voltage-maximum cross-entropy loss.
type VMaxParams struct {
	Neurons int
}

// VMax is a standard softmax cross-entropy over per-neuron peak membrane
// voltages. Gradients are injected through the maxima error channel, one
// value per neuron.
type VMax struct {
	p          VMaxParams
	maxima     []*spike.Maxima
	probs      [][]float64
	logSumExp  []float64
	ranForward bool
}

// NewVMax builds the loss for the given readout width.
func NewVMax(p VMaxParams) *VMax {
	return &VMax{p: p}
}

// Forward requires the incoming batch to carry voltage maxima and
// precomputes the per-sample softmax with the usual max shift.
func (l *VMax) Forward(in *spike.Batch) error {
	if in.Len() == 0 || in.Maxima == nil || len(in.Maxima) != in.Len() {
		return layer.ErrBadBatch
	}
	for _, m := range in.Maxima {
		if len(m.Values) != l.p.Neurons {
			return fmt.Errorf("loss: maxima over %d neurons, want %d: %w", len(m.Values), l.p.Neurons, layer.ErrBadBatch)
		}
	}
	l.maxima = in.Maxima
	l.probs = make([][]float64, len(l.maxima))
	l.logSumExp = make([]float64, len(l.maxima))
	for i, m := range l.maxima {
		shift := floats.Max(m.Values)
		probs := make([]float64, len(m.Values))
		for j, v := range m.Values {
			probs[j] = math.Exp(v - shift)
		}
		sum := floats.Sum(probs)
		floats.Scale(1/sum, probs)
		l.probs[i] = probs
		l.logSumExp[i] = shift + math.Log(sum)
	}
	l.ranForward = true
	return nil
}

func (l *VMax) checkLabels(labels []int) error {
	if !l.ranForward {
		return layer.ErrNotForwarded
	}
	if len(labels) != len(l.maxima) {
		return fmt.Errorf("loss: %d labels for %d samples", len(labels), len(l.maxima))
	}
	return nil
}

// Losses returns the per-sample softmax cross-entropy over the maxima.
func (l *VMax) Losses(labels []int) ([]Value, error) {
	if err := l.checkLabels(labels); err != nil {
		return nil, err
	}
	out := make([]Value, len(l.maxima))
	for i, m := range l.maxima {
		out[i] = Defined(l.logSumExp[i] - m.Values[labels[i]])
	}
	return out, nil
}

// Accuracy scores a sample as correct iff the label neuron's maximum is the
// unique maximum: any tie breaks against correctness.
func (l *VMax) Accuracy(labels []int) (float64, error) {
	if err := l.checkLabels(labels); err != nil {
		return 0, err
	}
	results := make([]float64, len(l.maxima))
	for i, m := range l.maxima {
		top := 0
		vy := m.Values[labels[i]]
		for _, v := range m.Values {
			if v >= vy {
				top++
			}
		}
		if top == 1 {
			results[i] = 1
		}
	}
	return stat.Mean(results, nil), nil
}

// Backward injects the softmax cross-entropy gradient, (softmax - one-hot)
// divided by batch size, per neuron.
func (l *VMax) Backward(labels []int) error {
	if !l.ranForward {
		return layer.ErrBackwardBeforeForward
	}
	if len(labels) != len(l.maxima) {
		return fmt.Errorf("loss: %d labels for %d samples", len(labels), len(l.maxima))
	}
	n := float64(len(l.maxima))
	for i, m := range l.maxima {
		for j, p := range l.probs[i] {
			e := p / n
			if j == labels[i] {
				e -= 1 / n
			}
			m.SetError(j, e)
		}
	}
	return nil
}
