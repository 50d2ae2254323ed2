package spike

import (
	"fmt"
	"math/rand"
)

// Dataset pairs one train per sample with one integer class label per
// sample. The pairing invariant len(Trains) == len(Labels) holds from
// construction onward.
type Dataset struct {
	Trains []*Train
	Labels []int
}

// NewDataset builds a dataset, rejecting mismatched lengths.
func NewDataset(trains []*Train, labels []int) (*Dataset, error) {
	if len(trains) != len(labels) {
		return nil, fmt.Errorf("spike: %d trains paired with %d labels", len(trains), len(labels))
	}
	return &Dataset{Trains: trains, Labels: labels}, nil
}

// Len returns the sample count.
func (d *Dataset) Len() int {
	return len(d.Trains)
}

// Slice returns a view over samples [a, b). The underlying trains and labels
// are shared, not copied. Bounds outside [0, Len] are a caller bug.
func (d *Dataset) Slice(a, b int) *Dataset {
	return &Dataset{Trains: d.Trains[a:b], Labels: d.Labels[a:b]}
}

// Shuffle applies one random permutation identically to trains and labels,
// preserving pairing. Determinism is whatever the supplied source gives.
func (d *Dataset) Shuffle(rng *rand.Rand) {
	rng.Shuffle(d.Len(), func(i, j int) {
		d.Trains[i], d.Trains[j] = d.Trains[j], d.Trains[i]
		d.Labels[i], d.Labels[j] = d.Labels[j], d.Labels[i]
	})
}

// Batch returns the dataset's trains as a layer input batch.
func (d *Dataset) Batch() *Batch {
	return &Batch{Trains: d.Trains}
}
