package layer

import (
	"errors"
	"fmt"
	"testing"

	"eventflow/internal/spike"
)

// recordingLayer appends its name to a shared log on every call so tests can
// assert call ordering across a chain.
type recordingLayer struct {
	name string
	log  *[]string
	fail error
}

func (l *recordingLayer) Forward(in *spike.Batch) (*spike.Batch, error) {
	*l.log = append(*l.log, l.name+".forward")
	if l.fail != nil {
		return nil, l.fail
	}
	return in, nil
}

func (l *recordingLayer) Backward() error {
	*l.log = append(*l.log, l.name+".backward")
	return l.fail
}

type recordingLoss struct {
	log  *[]string
	fail error
}

func (l *recordingLoss) Forward(in *spike.Batch) error {
	*l.log = append(*l.log, "loss.forward")
	return l.fail
}

func (l *recordingLoss) Backward(labels []int) error {
	*l.log = append(*l.log, "loss.backward")
	return l.fail
}

func TestChainForwardBackwardOrder(t *testing.T) {
	var log []string
	chain := NewChain(
		&recordingLoss{log: &log},
		&recordingLayer{name: "a", log: &log},
		&recordingLayer{name: "b", log: &log},
	)

	batch := &spike.Batch{Trains: []*spike.Train{spike.NewTrain(nil)}}
	if err := chain.Forward(batch); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if err := chain.Backward([]int{0}); err != nil {
		t.Fatalf("backward: %v", err)
	}

	want := []string{
		"a.forward", "b.forward", "loss.forward",
		"loss.backward", "b.backward", "a.backward",
	}
	if len(log) != len(want) {
		t.Fatalf("call log %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("call %d = %s, want %s (full log %v)", i, log[i], want[i], log)
		}
	}
}

func TestChainBackwardBeforeForward(t *testing.T) {
	var log []string
	chain := NewChain(&recordingLoss{log: &log}, &recordingLayer{name: "a", log: &log})

	if err := chain.Backward([]int{0}); !errors.Is(err, ErrBackwardBeforeForward) {
		t.Fatalf("backward without forward = %v, want ErrBackwardBeforeForward", err)
	}
	if len(log) != 0 {
		t.Fatalf("no stage should run, got calls %v", log)
	}
}

func TestChainBackwardConsumesForward(t *testing.T) {
	var log []string
	chain := NewChain(&recordingLoss{log: &log}, &recordingLayer{name: "a", log: &log})

	batch := &spike.Batch{Trains: []*spike.Train{spike.NewTrain(nil)}}
	if err := chain.Forward(batch); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if err := chain.Backward([]int{0}); err != nil {
		t.Fatalf("first backward: %v", err)
	}
	if err := chain.Backward([]int{0}); !errors.Is(err, ErrBackwardBeforeForward) {
		t.Fatalf("second backward = %v, want ErrBackwardBeforeForward", err)
	}
}

func TestChainForwardWrapsStageError(t *testing.T) {
	var log []string
	boom := fmt.Errorf("boom")
	chain := NewChain(
		&recordingLoss{log: &log},
		&recordingLayer{name: "a", log: &log},
		&recordingLayer{name: "b", log: &log, fail: boom},
	)

	err := chain.Forward(&spike.Batch{Trains: []*spike.Train{spike.NewTrain(nil)}})
	if !errors.Is(err, boom) {
		t.Fatalf("forward error = %v, want wrapped boom", err)
	}
	if err := chain.Backward([]int{0}); !errors.Is(err, ErrBackwardBeforeForward) {
		t.Fatalf("failed forward should not arm backward, got %v", err)
	}
}
