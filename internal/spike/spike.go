package spike

import "fmt"

// Event is a single spike: a time paired with the neuron that produced it.
type Event struct {
	Time   float64
	Source int
}

// Train is the ordered event sequence for one sample. Events are immutable
// after simulation; the error side channel is the only mutation point and is
// how a loss hands gradients back to the producing simulator.
type Train struct {
	Events []Event
	errors []float64
}

// NewTrain wraps events, which must already be sorted by time.
func NewTrain(events []Event) *Train {
	return &Train{Events: events}
}

// Len returns the number of events in the train.
func (t *Train) Len() int {
	return len(t.Events)
}

// SetError records a scalar error at the given event index, replacing any
// previous value. An out-of-range index is a caller bug.
func (t *Train) SetError(i int, v float64) {
	t.ensureErrors(i)
	t.errors[i] = v
}

// AddError accumulates a scalar error at the given event index.
func (t *Train) AddError(i int, v float64) {
	t.ensureErrors(i)
	t.errors[i] += v
}

// Error returns the error recorded at the given event index.
func (t *Train) Error(i int) float64 {
	if i < 0 || i >= len(t.Events) {
		panic(fmt.Sprintf("spike: error index %d out of range [0,%d)", i, len(t.Events)))
	}
	if t.errors == nil {
		return 0
	}
	return t.errors[i]
}

// ResetErrors clears the error side channel.
func (t *Train) ResetErrors() {
	t.errors = nil
}

func (t *Train) ensureErrors(i int) {
	if i < 0 || i >= len(t.Events) {
		panic(fmt.Sprintf("spike: error index %d out of range [0,%d)", i, len(t.Events)))
	}
	if t.errors == nil {
		t.errors = make([]float64, len(t.Events))
	}
}

// FirstSpike is the first firing of one neuron within a sample. Fired is
// false when the neuron stayed silent; Time and Event are meaningless then.
type FirstSpike struct {
	Time  float64
	Event int
	Fired bool
}

// FirstSpikes derives the per-neuron first-spike summary for neurons
// [0, n). Events from sources outside that range are ignored.
func (t *Train) FirstSpikes(n int) []FirstSpike {
	first := make([]FirstSpike, n)
	for i, e := range t.Events {
		if e.Source < 0 || e.Source >= n {
			continue
		}
		f := &first[e.Source]
		if !f.Fired || e.Time < f.Time {
			*f = FirstSpike{Time: e.Time, Event: i, Fired: true}
		}
	}
	return first
}

// Maxima holds the per-neuron peak membrane voltages of one sample, with the
// same error side channel as Train, keyed by neuron index.
type Maxima struct {
	Values []float64
	errors []float64
}

// NewMaxima wraps per-neuron voltage maxima.
func NewMaxima(values []float64) *Maxima {
	return &Maxima{Values: values}
}

// SetError records a scalar error for the given neuron's maximum.
func (m *Maxima) SetError(neuron int, v float64) {
	if neuron < 0 || neuron >= len(m.Values) {
		panic(fmt.Sprintf("spike: maxima error index %d out of range [0,%d)", neuron, len(m.Values)))
	}
	if m.errors == nil {
		m.errors = make([]float64, len(m.Values))
	}
	m.errors[neuron] = v
}

// Error returns the error recorded for the given neuron.
func (m *Maxima) Error(neuron int) float64 {
	if neuron < 0 || neuron >= len(m.Values) {
		panic(fmt.Sprintf("spike: maxima error index %d out of range [0,%d)", neuron, len(m.Values)))
	}
	if m.errors == nil {
		return 0
	}
	return m.errors[neuron]
}

// Batch is what flows between layers: one train per sample and, when the
// producing layer tracks membrane voltages, one maxima record per sample.
type Batch struct {
	Trains []*Train
	Maxima []*Maxima
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Trains)
}
