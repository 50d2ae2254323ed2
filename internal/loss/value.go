// Package loss turns spike-domain summaries (first-spike times, voltage
// maxima) into per-sample losses, an accuracy metric and per-neuron error
// seeds for the upstream adjoint pass.
package loss

import "strconv"

// Value is a per-sample loss that may be undefined. A sample whose label
// neuron never fired has no loss and no gradient; that is not an error, it
// just propagates as an undefined Value.
type Value struct {
	V  float64 `json:"v"`
	OK bool    `json:"ok"`
}

// Defined wraps a concrete loss value.
func Defined(v float64) Value {
	return Value{V: v, OK: true}
}

// Undefined returns the undefined sentinel.
func Undefined() Value {
	return Value{}
}

// String renders the value for log lines.
func (v Value) String() string {
	if !v.OK {
		return "undef"
	}
	return strconv.FormatFloat(v.V, 'f', 4, 64)
}

// Sum adds the defined entries, ignoring undefined ones. The result is
// undefined when no entry is defined.
func Sum(vs []Value) Value {
	var total float64
	any := false
	for _, v := range vs {
		if !v.OK {
			continue
		}
		total += v.V
		any = true
	}
	if !any {
		return Undefined()
	}
	return Defined(total)
}

// Mean averages the defined entries, ignoring undefined ones. The result is
// undefined when no entry is defined.
func Mean(vs []Value) Value {
	var total float64
	n := 0
	for _, v := range vs {
		if !v.OK {
			continue
		}
		total += v.V
		n++
	}
	if n == 0 {
		return Undefined()
	}
	return Defined(total / float64(n))
}
