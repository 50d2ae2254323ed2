// Package dataset synthesizes classification tasks and encodes their
// feature vectors into input spike trains. On-disk dataset formats are a
// collaborator's concern; everything here is generated.
package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"eventflow/internal/spike"
)

// Sample is one feature vector paired with its class label.
type Sample struct {
	Features []float64
	Label    int
}

// YinYangInputs is the input width of encoded yin-yang samples: four
// mirrored coordinates plus the bias spike.
const YinYangInputs = 5

// YinYang classes.
const (
	ClassYang = 0
	ClassYin  = 1
	ClassDot  = 2
)

const (
	rBig   = 0.5
	rSmall = 0.1
)

// YinYang draws n points uniformly on the unit disc of the yin-yang figure
// and labels them yin, yang or dot. Features are mirrored to
// (x, y, 1-x, 1-y) so that early spikes exist on both sides of the figure.
func YinYang(n int, rng *rand.Rand) []Sample {
	samples := make([]Sample, 0, n)
	for len(samples) < n {
		x := rng.Float64()
		y := rng.Float64()
		if math.Hypot(x-rBig, y-rBig) > rBig {
			continue
		}
		samples = append(samples, Sample{
			Features: []float64{x, y, 1 - x, 1 - y},
			Label:    yinYangClass(x, y),
		})
	}
	return samples
}

func yinYangClass(x, y float64) int {
	dRight := math.Hypot(x-1.5*rBig, y-rBig)
	dLeft := math.Hypot(x-0.5*rBig, y-rBig)
	if dRight < rSmall || dLeft < rSmall {
		return ClassDot
	}
	inRightDot := dRight <= rSmall
	inLeftLobe := dLeft > rSmall && dLeft <= 0.5*rBig
	upperRest := y > rBig && !inRightDot && !inLeftLobe
	if inRightDot || inLeftLobe || upperRest {
		return ClassYin
	}
	return ClassYang
}

// EncodingConfig parameterizes latency encoding. Zero values take the usual
// 10ms/40ms window with the bias spike at 20ms.
type EncodingConfig struct {
	TMin  float64 // spike time of a zero-valued feature, seconds
	TMax  float64 // spike time of a one-valued feature, seconds
	TBias float64 // time of the constant bias spike, seconds
}

func (c EncodingConfig) withDefaults() EncodingConfig {
	if c.TMin == 0 {
		c.TMin = 10e-3
	}
	if c.TMax == 0 {
		c.TMax = 40e-3
	}
	if c.TBias == 0 {
		c.TBias = 20e-3
	}
	return c
}

// Encode turns feature vectors into latency-coded spike trains: feature i
// with value v spikes at TMin + v*(TMax-TMin) on source i, and one bias
// spike fires at TBias on the source after the last feature.
func Encode(samples []Sample, cfg EncodingConfig) (*spike.Dataset, error) {
	cfg = cfg.withDefaults()
	if cfg.TMax <= cfg.TMin {
		return nil, fmt.Errorf("dataset: t_max %g must exceed t_min %g", cfg.TMax, cfg.TMin)
	}
	trains := make([]*spike.Train, len(samples))
	labels := make([]int, len(samples))
	for i, s := range samples {
		events := make([]spike.Event, 0, len(s.Features)+1)
		for j, v := range s.Features {
			events = append(events, spike.Event{
				Time:   cfg.TMin + v*(cfg.TMax-cfg.TMin),
				Source: j,
			})
		}
		events = append(events, spike.Event{Time: cfg.TBias, Source: len(s.Features)})
		sort.Slice(events, func(a, b int) bool { return events[a].Time < events[b].Time })
		trains[i] = spike.NewTrain(events)
		labels[i] = s.Label
	}
	return spike.NewDataset(trains, labels)
}
