package filter

import (
	"errors"
	"fmt"
)

var ErrCoeffNotSet = errors.New("iir coefficients not configured")

// IIR runs one general IIR filter per reservoir neuron in direct form II
// transposed:
//
//	y[n] = b0*x[n] + s[0]
//	s[j] = b[j+1]*x[n] + s[j+1] - a[j+1]*y[n]
//
// Coefficients are supplied as one numerator row B and one denominator
// row A per neuron; both are normalized by A[0].
type IIR struct {
	neurons int
	b       [][]float64
	a       [][]float64
	state   [][]float64
}

func NewIIR(neurons int) *IIR {
	return &IIR{neurons: neurons}
}

func (f *IIR) Neurons() int {
	return f.neurons
}

// SetCoeff configures per-neuron coefficient rows and resets the filter
// state.
func (f *IIR) SetCoeff(b, a [][]float64) error {
	if len(b) != f.neurons {
		return fmt.Errorf("iir: B must have one row per neuron: got=%d want=%d", len(b), f.neurons)
	}
	if len(a) != f.neurons {
		return fmt.Errorf("iir: A must have one row per neuron: got=%d want=%d", len(a), f.neurons)
	}

	normB := make([][]float64, f.neurons)
	normA := make([][]float64, f.neurons)
	state := make([][]float64, f.neurons)
	for i := 0; i < f.neurons; i++ {
		if len(b[i]) == 0 || len(a[i]) == 0 {
			return fmt.Errorf("iir: empty coefficient row for neuron %d", i)
		}
		if a[i][0] == 0 {
			return fmt.Errorf("iir: A[%d][0] must not be zero", i)
		}

		order := len(b[i])
		if len(a[i]) > order {
			order = len(a[i])
		}
		normB[i] = make([]float64, order)
		normA[i] = make([]float64, order)
		for j, v := range b[i] {
			normB[i][j] = v / a[i][0]
		}
		for j, v := range a[i] {
			normA[i][j] = v / a[i][0]
		}
		state[i] = make([]float64, order-1)
	}

	f.b = normB
	f.a = normA
	f.state = state
	return nil
}

// Calc filters x in place, advancing the per-neuron filter state by one
// sample.
func (f *IIR) Calc(x []float64) error {
	if f.b == nil {
		return ErrCoeffNotSet
	}
	if len(x) != f.neurons {
		return fmt.Errorf("iir: vector must have one entry per neuron: got=%d want=%d", len(x), f.neurons)
	}

	for i := range x {
		b, a, s := f.b[i], f.a[i], f.state[i]
		in := x[i]
		y := b[0] * in
		if len(s) > 0 {
			y += s[0]
		}
		for j := 0; j < len(s); j++ {
			next := 0.0
			if j+1 < len(s) {
				next = s[j+1]
			}
			s[j] = b[j+1]*in + next - a[j+1]*y
		}
		x[i] = y
	}
	return nil
}
