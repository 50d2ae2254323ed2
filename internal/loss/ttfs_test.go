package loss

import (
	"errors"
	"math"
	"sort"
	"testing"

	"gonum.org/v1/gonum/diff/fd"

	"eventflow/internal/layer"
	"eventflow/internal/spike"
)

// ttfsBatch builds a single-sample batch with one spike per listed time,
// neuron j firing at times[j]. A NaN time marks a silent neuron.
func ttfsBatch(times []float64) *spike.Batch {
	var events []spike.Event
	for j, tm := range times {
		if math.IsNaN(tm) {
			continue
		}
		events = append(events, spike.Event{Time: tm, Source: j})
	}
	sort.Slice(events, func(a, b int) bool { return events[a].Time < events[b].Time })
	return &spike.Batch{Trains: []*spike.Train{spike.NewTrain(events)}}
}

func TestTTFSRejectsEmptyBatch(t *testing.T) {
	l := NewTTFS(TTFSParams{Neurons: 2})
	if err := l.Forward(&spike.Batch{}); !errors.Is(err, layer.ErrBadBatch) {
		t.Fatalf("forward on empty batch = %v, want ErrBadBatch", err)
	}
}

func TestTTFSBeforeForwardErrors(t *testing.T) {
	l := NewTTFS(TTFSParams{Neurons: 2})
	if _, err := l.Losses([]int{0}); !errors.Is(err, layer.ErrNotForwarded) {
		t.Fatalf("losses before forward = %v, want ErrNotForwarded", err)
	}
	if err := l.Backward([]int{0}); !errors.Is(err, layer.ErrBackwardBeforeForward) {
		t.Fatalf("backward before forward = %v, want ErrBackwardBeforeForward", err)
	}
}

func TestTTFSLabelCountMismatch(t *testing.T) {
	l := NewTTFS(TTFSParams{Neurons: 2})
	if err := l.Forward(ttfsBatch([]float64{0.01, 0.02})); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if _, err := l.Losses([]int{0, 1}); err == nil {
		t.Fatal("expected error for 2 labels on 1 sample")
	}
}

func TestTTFSLossValue(t *testing.T) {
	p := TTFSParams{Neurons: 3, Alpha: 1e-2, Tau0: 2e-3, Tau1: 10e-3}
	times := []float64{0.010, 0.014, 0.012}
	l := NewTTFS(p)
	if err := l.Forward(ttfsBatch(times)); err != nil {
		t.Fatalf("forward: %v", err)
	}
	got, err := l.Losses([]int{0})
	if err != nil {
		t.Fatalf("losses: %v", err)
	}

	var s float64
	for _, tm := range times {
		s += math.Exp(-tm / p.Tau0)
	}
	want := -math.Log(math.Exp(-times[0]/p.Tau0)/s) + p.Alpha*(math.Exp(times[0]/p.Tau1)-1)
	if !got[0].OK || math.Abs(got[0].V-want) > 1e-12 {
		t.Fatalf("loss = %v, want %v", got[0], want)
	}
}

func TestTTFSSilentLabelIsUndefined(t *testing.T) {
	l := NewTTFS(TTFSParams{Neurons: 3})
	batch := ttfsBatch([]float64{0.010, math.NaN(), 0.012})
	if err := l.Forward(batch); err != nil {
		t.Fatalf("forward: %v", err)
	}
	got, err := l.Losses([]int{1})
	if err != nil {
		t.Fatalf("losses: %v", err)
	}
	if got[0].OK {
		t.Fatalf("silent label loss = %v, want undefined", got[0])
	}

	// An undefined sample contributes nothing on backward either.
	if err := l.Backward([]int{1}); err != nil {
		t.Fatalf("backward: %v", err)
	}
	for i := 0; i < batch.Trains[0].Len(); i++ {
		if e := batch.Trains[0].Error(i); e != 0 {
			t.Fatalf("event %d carries error %v, want none", i, e)
		}
	}
}

func TestTTFSAccuracy(t *testing.T) {
	l := NewTTFS(TTFSParams{Neurons: 3})
	trains := []*spike.Train{
		ttfsBatch([]float64{0.010, math.NaN(), 0.020}).Trains[0], // neuron 0 earliest
		ttfsBatch([]float64{0.010, math.NaN(), 0.020}).Trains[0], // label silent
		ttfsBatch([]float64{0.010, math.NaN(), 0.020}).Trains[0], // neuron 0 beats label 2
	}
	if err := l.Forward(&spike.Batch{Trains: trains}); err != nil {
		t.Fatalf("forward: %v", err)
	}
	acc, err := l.Accuracy([]int{0, 1, 2})
	if err != nil {
		t.Fatalf("accuracy: %v", err)
	}
	if math.Abs(acc-1.0/3.0) > 1e-12 {
		t.Fatalf("accuracy = %v, want 1/3", acc)
	}
}

func TestTTFSAccuracyTieCountsCorrect(t *testing.T) {
	l := NewTTFS(TTFSParams{Neurons: 2})
	if err := l.Forward(ttfsBatch([]float64{0.010, 0.010})); err != nil {
		t.Fatalf("forward: %v", err)
	}
	acc, err := l.Accuracy([]int{1})
	if err != nil {
		t.Fatalf("accuracy: %v", err)
	}
	if acc != 1 {
		t.Fatalf("tied first spikes score %v, want 1", acc)
	}
}

func TestTTFSGradientMatchesFiniteDifference(t *testing.T) {
	p := TTFSParams{Neurons: 3, Alpha: 1e-2, Tau0: 2e-3, Tau1: 10e-3}
	times := []float64{0.011, 0.009, 0.016}
	label := 1

	lossAt := func(ts []float64) float64 {
		var s float64
		for _, tm := range ts {
			s += math.Exp(-tm / p.Tau0)
		}
		v := -math.Log(math.Exp(-ts[label]/p.Tau0) / s)
		return v + p.Alpha*(math.Exp(ts[label]/p.Tau1)-1)
	}
	want := fd.Gradient(nil, lossAt, times, &fd.Settings{Step: 1e-7})

	l := NewTTFS(p)
	batch := ttfsBatch(times)
	if err := l.Forward(batch); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if err := l.Backward([]int{label}); err != nil {
		t.Fatalf("backward: %v", err)
	}

	first := batch.Trains[0].FirstSpikes(p.Neurons)
	for j := range times {
		got := batch.Trains[0].Error(first[j].Event)
		if math.Abs(got-want[j]) > 1e-4*math.Abs(want[j])+1e-8 {
			t.Fatalf("neuron %d gradient = %v, want %v", j, got, want[j])
		}
	}
}

func TestTTFSBackwardDividesByBatchSize(t *testing.T) {
	p := TTFSParams{Neurons: 2, Alpha: 1e-2, Tau0: 2e-3, Tau1: 10e-3}
	times := []float64{0.010, 0.013}

	single := ttfsBatch(times)
	l1 := NewTTFS(p)
	if err := l1.Forward(single); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if err := l1.Backward([]int{0}); err != nil {
		t.Fatalf("backward: %v", err)
	}

	double := &spike.Batch{Trains: []*spike.Train{
		ttfsBatch(times).Trains[0],
		ttfsBatch(times).Trains[0],
	}}
	l2 := NewTTFS(p)
	if err := l2.Forward(double); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if err := l2.Backward([]int{0, 0}); err != nil {
		t.Fatalf("backward: %v", err)
	}

	for i := 0; i < 2; i++ {
		want := single.Trains[0].Error(i) / 2
		got := double.Trains[0].Error(i)
		if math.Abs(got-want) > 1e-15 {
			t.Fatalf("event %d: batch-of-2 error %v, want half of %v", i, got, single.Trains[0].Error(i))
		}
	}
}
