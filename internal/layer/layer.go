// Package layer defines the forward/backward contract shared by every stage
// of a training chain and the chain itself. A chain is an explicit ordered
// list of layers terminated by a loss; backward propagation is a reverse
// walk of that list, so no stage holds a back-pointer to its ancestor.
package layer

import (
	"errors"
	"fmt"

	"eventflow/internal/spike"
)

var (
	// ErrBackwardBeforeForward reports a backward call on a chain or layer
	// whose forward pass has not run. Always a caller bug.
	ErrBackwardBeforeForward = errors.New("layer: backward called before forward")

	// ErrNotForwarded reports a metric or gradient query before forward.
	ErrNotForwarded = errors.New("layer: run forward first")

	// ErrBadBatch reports an input batch the layer cannot work with: nil,
	// empty, or missing a required summary.
	ErrBadBatch = errors.New("layer: batch not recognized")
)

// Layer is one stage of the forward chain. Forward consumes a batch and
// returns the batch it produces; Backward converts errors injected into that
// produced batch into local gradients and errors on the consumed batch.
type Layer interface {
	Forward(in *spike.Batch) (*spike.Batch, error)
	Backward() error
}

// Terminal is the loss end of a chain. It consumes the last stage's batch
// and seeds errors into it during backward.
type Terminal interface {
	Forward(in *spike.Batch) error
	Backward(labels []int) error
}

// Chain is a forward sequence of layers ending in a terminal loss.
type Chain struct {
	stages    []Layer
	terminal  Terminal
	forwarded bool
}

// NewChain wires stages, in forward order, in front of the terminal loss.
func NewChain(terminal Terminal, stages ...Layer) *Chain {
	return &Chain{stages: stages, terminal: terminal}
}

// Forward runs the batch through every stage and then the loss. A
// successful forward re-arms the chain for one backward pass.
func (c *Chain) Forward(in *spike.Batch) error {
	cur := in
	for i, stage := range c.stages {
		out, err := stage.Forward(cur)
		if err != nil {
			return fmt.Errorf("stage %d forward: %w", i, err)
		}
		cur = out
	}
	if err := c.terminal.Forward(cur); err != nil {
		return fmt.Errorf("loss forward: %w", err)
	}
	c.forwarded = true
	return nil
}

// Backward seeds loss errors for the given labels and walks the stages in
// reverse. It fails with ErrBackwardBeforeForward unless a forward pass ran
// since the last backward.
func (c *Chain) Backward(labels []int) error {
	if !c.forwarded {
		return ErrBackwardBeforeForward
	}
	if err := c.terminal.Backward(labels); err != nil {
		return fmt.Errorf("loss backward: %w", err)
	}
	for i := len(c.stages) - 1; i >= 0; i-- {
		if err := c.stages[i].Backward(); err != nil {
			return fmt.Errorf("stage %d backward: %w", i, err)
		}
	}
	c.forwarded = false
	return nil
}
