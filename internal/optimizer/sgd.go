package optimizer

// SGD is plain gradient descent with optional momentum.
type SGD struct {
	p       Params
	tensors []Trainable
	vel     [][]float64
}

// NewSGD builds an SGD optimizer over the given tensors.
func NewSGD(p Params, tensors ...Trainable) *SGD {
	s := &SGD{p: p.withDefaults(), tensors: tensors}
	if s.p.Momentum != 0 {
		s.vel = make([][]float64, len(tensors))
		for i, t := range tensors {
			wm := t.Weights().RawMatrix()
			s.vel[i] = make([]float64, wm.Rows*wm.Cols)
		}
	}
	return s
}

// Step applies one descent update from the accumulated gradients.
func (s *SGD) Step() {
	for i, t := range s.tensors {
		offset := 0
		eachRow(t, func(w, g []float64) {
			clamp(g, s.p.GradClip)
			for j := range w {
				if s.vel == nil {
					w[j] -= s.p.LR * g[j]
					continue
				}
				k := offset + j
				s.vel[i][k] = s.p.Momentum*s.vel[i][k] + g[j]
				w[j] -= s.p.LR * s.vel[i][k]
			}
			offset += len(w)
		})
	}
}

// ZeroGrad clears every tensor's gradient accumulator.
func (s *SGD) ZeroGrad() {
	for _, t := range s.tensors {
		t.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (s *SGD) LR() float64 { return s.p.LR }

// SetLR replaces the learning rate.
func (s *SGD) SetLR(v float64) { s.p.LR = v }
