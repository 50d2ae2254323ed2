package optimizer

import "math"

// Adam is the Adam optimizer with bias-corrected moment estimates.
type Adam struct {
	p       Params
	tensors []Trainable
	m, v    [][]float64 // per-tensor moment buffers, flattened row-major
	step    int
}

// NewAdam builds an Adam optimizer over the given tensors.
func NewAdam(p Params, tensors ...Trainable) *Adam {
	a := &Adam{p: p.withDefaults(), tensors: tensors}
	a.m = make([][]float64, len(tensors))
	a.v = make([][]float64, len(tensors))
	for i, t := range tensors {
		wm := t.Weights().RawMatrix()
		a.m[i] = make([]float64, wm.Rows*wm.Cols)
		a.v[i] = make([]float64, wm.Rows*wm.Cols)
	}
	return a
}

// Step applies one Adam update from the accumulated gradients.
func (a *Adam) Step() {
	a.step++
	c1 := 1 - math.Pow(a.p.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.p.Beta2, float64(a.step))
	for i, t := range a.tensors {
		offset := 0
		m, v := a.m[i], a.v[i]
		eachRow(t, func(w, g []float64) {
			clamp(g, a.p.GradClip)
			for j := range w {
				k := offset + j
				m[k] = a.p.Beta1*m[k] + (1-a.p.Beta1)*g[j]
				v[k] = a.p.Beta2*v[k] + (1-a.p.Beta2)*g[j]*g[j]
				w[j] -= a.p.LR * (m[k] / c1) / (math.Sqrt(v[k]/c2) + a.p.Eps)
			}
			offset += len(w)
		})
	}
}

// ZeroGrad clears every tensor's gradient accumulator.
func (a *Adam) ZeroGrad() {
	for _, t := range a.tensors {
		t.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (a *Adam) LR() float64 { return a.p.LR }

// SetLR replaces the learning rate; decay schedules call this.
func (a *Adam) SetLR(v float64) { a.p.LR = v }
