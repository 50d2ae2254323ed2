package spike

import "math/rand"

// Dropout returns a dataset whose trains have each event independently
// dropped with probability p. Labels are shared with the input. A
// non-positive p returns the input unchanged.
func Dropout(d *Dataset, p float64, rng *rand.Rand) *Dataset {
	if p <= 0 {
		return d
	}
	trains := make([]*Train, d.Len())
	for i, t := range d.Trains {
		kept := make([]Event, 0, t.Len())
		for _, e := range t.Events {
			if rng.Float64() < p {
				continue
			}
			kept = append(kept, e)
		}
		trains[i] = NewTrain(kept)
	}
	return &Dataset{Trains: trains, Labels: d.Labels}
}
