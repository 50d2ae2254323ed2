package spike

import (
	"math"
	"math/rand"
	"testing"
)

func TestFirstSpikesPicksEarliestPerNeuron(t *testing.T) {
	tr := NewTrain([]Event{
		{Time: 0.010, Source: 1},
		{Time: 0.012, Source: 0},
		{Time: 0.015, Source: 1},
		{Time: 0.020, Source: 5}, // outside range, ignored
	})

	first := tr.FirstSpikes(3)
	if len(first) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(first))
	}
	if !first[0].Fired || first[0].Time != 0.012 || first[0].Event != 1 {
		t.Fatalf("neuron 0: got %+v", first[0])
	}
	if !first[1].Fired || first[1].Time != 0.010 || first[1].Event != 0 {
		t.Fatalf("neuron 1: got %+v", first[1])
	}
	if first[2].Fired {
		t.Fatalf("neuron 2 never fired, got %+v", first[2])
	}
}

func TestTrainErrorChannel(t *testing.T) {
	tr := NewTrain([]Event{{Time: 0.001, Source: 0}, {Time: 0.002, Source: 1}})

	if got := tr.Error(0); got != 0 {
		t.Fatalf("error before any write = %v, want 0", got)
	}
	tr.SetError(1, 0.5)
	tr.AddError(1, 0.25)
	if got := tr.Error(1); got != 0.75 {
		t.Fatalf("accumulated error = %v, want 0.75", got)
	}
	tr.SetError(1, -1)
	if got := tr.Error(1); got != -1 {
		t.Fatalf("SetError did not replace: got %v", got)
	}
	tr.ResetErrors()
	if got := tr.Error(1); got != 0 {
		t.Fatalf("error after reset = %v, want 0", got)
	}
}

func TestTrainErrorOutOfRangePanics(t *testing.T) {
	tr := NewTrain([]Event{{Time: 0.001, Source: 0}})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range error index")
		}
	}()
	tr.SetError(1, 1.0)
}

func TestMaximaErrorChannel(t *testing.T) {
	m := NewMaxima([]float64{0.1, 0.9})
	if got := m.Error(0); got != 0 {
		t.Fatalf("error before any write = %v, want 0", got)
	}
	m.SetError(1, -0.5)
	if got := m.Error(1); got != -0.5 {
		t.Fatalf("maxima error = %v, want -0.5", got)
	}
}

func TestBatchLenNilSafe(t *testing.T) {
	var b *Batch
	if got := b.Len(); got != 0 {
		t.Fatalf("nil batch length = %d, want 0", got)
	}
}

func TestNewDatasetRejectsMismatch(t *testing.T) {
	trains := []*Train{NewTrain(nil), NewTrain(nil)}
	if _, err := NewDataset(trains, []int{0}); err == nil {
		t.Fatal("expected error for mismatched trains/labels")
	}
}

func TestDatasetSliceSharesBacking(t *testing.T) {
	trains := []*Train{NewTrain(nil), NewTrain(nil), NewTrain(nil)}
	ds, err := NewDataset(trains, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	view := ds.Slice(1, 3)
	if view.Len() != 2 {
		t.Fatalf("slice length = %d, want 2", view.Len())
	}
	if view.Trains[0] != ds.Trains[1] {
		t.Fatal("slice copied trains instead of sharing")
	}
	if view.Labels[1] != 2 {
		t.Fatalf("slice label = %d, want 2", view.Labels[1])
	}
}

func TestShufflePreservesPairing(t *testing.T) {
	const n = 50
	trains := make([]*Train, n)
	labels := make([]int, n)
	for i := range trains {
		trains[i] = NewTrain([]Event{{Time: float64(i), Source: 0}})
		labels[i] = i
	}
	ds, err := NewDataset(trains, labels)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}

	ds.Shuffle(rand.New(rand.NewSource(17)))

	seen := make(map[int]bool, n)
	for i, tr := range ds.Trains {
		want := float64(ds.Labels[i])
		if tr.Events[0].Time != want {
			t.Fatalf("sample %d: train time %v paired with label %d", i, tr.Events[0].Time, ds.Labels[i])
		}
		if seen[ds.Labels[i]] {
			t.Fatalf("label %d appears twice after shuffle", ds.Labels[i])
		}
		seen[ds.Labels[i]] = true
	}
	if len(seen) != n {
		t.Fatalf("shuffle lost samples: %d of %d labels present", len(seen), n)
	}
}

func TestShuffleDeterministicPerSeed(t *testing.T) {
	build := func() *Dataset {
		trains := make([]*Train, 20)
		labels := make([]int, 20)
		for i := range trains {
			trains[i] = NewTrain(nil)
			labels[i] = i
		}
		ds, _ := NewDataset(trains, labels)
		return ds
	}
	a, b := build(), build()
	a.Shuffle(rand.New(rand.NewSource(99)))
	b.Shuffle(rand.New(rand.NewSource(99)))
	for i := range a.Labels {
		if a.Labels[i] != b.Labels[i] {
			t.Fatalf("same seed, different order at %d: %d vs %d", i, a.Labels[i], b.Labels[i])
		}
	}
}

func TestDropoutZeroProbabilityIsIdentity(t *testing.T) {
	trains := []*Train{NewTrain([]Event{{Time: 0.001, Source: 0}})}
	ds, _ := NewDataset(trains, []int{0})
	out := Dropout(ds, 0, rand.New(rand.NewSource(1)))
	if out != ds {
		t.Fatal("p=0 should return the input dataset unchanged")
	}
}

func TestDropoutDropsProportionally(t *testing.T) {
	const n = 10000
	events := make([]Event, n)
	for i := range events {
		events[i] = Event{Time: float64(i) * 1e-4, Source: 0}
	}
	ds, _ := NewDataset([]*Train{NewTrain(events)}, []int{0})

	out := Dropout(ds, 0.3, rand.New(rand.NewSource(5)))
	if out == ds {
		t.Fatal("p>0 should build a new dataset")
	}
	if ds.Trains[0].Len() != n {
		t.Fatalf("input train mutated: %d events", ds.Trains[0].Len())
	}
	kept := float64(out.Trains[0].Len()) / n
	if math.Abs(kept-0.7) > 0.03 {
		t.Fatalf("kept fraction %v, want about 0.7", kept)
	}
	if &out.Labels[0] != &ds.Labels[0] {
		t.Fatal("labels should be shared with the input")
	}
}
