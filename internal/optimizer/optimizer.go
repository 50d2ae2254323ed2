// Package optimizer applies accumulated gradients to layer weights. The
// trainer owns the sequencing: forward and backward must have completed
// before Step, and ZeroGrad runs after every step.
package optimizer

import (
	"gonum.org/v1/gonum/mat"
)

// Params are the gradient-descent knobs shared by all optimizers. Zero
// values take the defaults below.
type Params struct {
	LR       float64 // learning rate (default 1e-3)
	GradClip float64 // clamp on per-element gradient magnitude, 0 disables
	Beta1    float64 // Adam first-moment decay (default 0.9)
	Beta2    float64 // Adam second-moment decay (default 0.999)
	Eps      float64 // Adam denominator fuzz (default 1e-8)
	Momentum float64 // SGD momentum, 0 for plain descent
}

func (p Params) withDefaults() Params {
	if p.LR == 0 {
		p.LR = 1e-3
	}
	if p.Beta1 == 0 {
		p.Beta1 = 0.9
	}
	if p.Beta2 == 0 {
		p.Beta2 = 0.999
	}
	if p.Eps == 0 {
		p.Eps = 1e-8
	}
	return p
}

// Trainable is anything holding a weight matrix with a matching gradient
// accumulator.
type Trainable interface {
	Weights() *mat.Dense
	Grads() *mat.Dense
	ZeroGrad()
}

// Optimizer steps weights from accumulated gradients. The learning rate is
// mutable so decay schedules can be applied externally.
type Optimizer interface {
	Step()
	ZeroGrad()
	LR() float64
	SetLR(v float64)
}

// eachRow visits the weight and gradient rows of a tensor pairwise,
// honoring the Dense stride.
func eachRow(t Trainable, fn func(w, g []float64)) {
	wm := t.Weights().RawMatrix()
	gm := t.Grads().RawMatrix()
	for r := 0; r < wm.Rows; r++ {
		w := wm.Data[r*wm.Stride : r*wm.Stride+wm.Cols]
		g := gm.Data[r*gm.Stride : r*gm.Stride+gm.Cols]
		fn(w, g)
	}
}

// clamp bounds every gradient element to [-c, c].
func clamp(g []float64, c float64) {
	if c <= 0 {
		return
	}
	for i, v := range g {
		if v > c {
			g[i] = c
		} else if v < -c {
			g[i] = -c
		}
	}
}
