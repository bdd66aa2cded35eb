package filter

import (
	"errors"
	"fmt"
)

var ErrCutoffNotSet = errors.New("bandpass cutoff not configured")

// Bandpass runs one first-order bandpass per reservoir neuron: a serial
// pair of exponential averagers where the lowpass cutoff f1 and the
// highpass cutoff f2 are given as fractions of the sample rate. The
// output is rescaled by 1 + f2/f1 so a unit-gain passband is kept.
type Bandpass struct {
	neurons int
	f1      []float64
	f2      []float64
	scale   []float64
	ema1    []float64
	ema2    []float64
}

func NewBandpass(neurons int) *Bandpass {
	return &Bandpass{neurons: neurons}
}

func (f *Bandpass) Neurons() int {
	return f.neurons
}

// SetCutoff configures one lowpass/highpass cutoff pair per neuron and
// resets the filter state.
func (f *Bandpass) SetCutoff(f1, f2 []float64) error {
	if len(f1) != f.neurons {
		return fmt.Errorf("bandpass: f1 must have one cutoff per neuron: got=%d want=%d", len(f1), f.neurons)
	}
	if len(f2) != f.neurons {
		return fmt.Errorf("bandpass: f2 must have one cutoff per neuron: got=%d want=%d", len(f2), f.neurons)
	}
	for i := range f1 {
		if f1[i] <= 0 || f1[i] > 1 {
			return fmt.Errorf("bandpass: f1[%d] out of range (0,1]: %f", i, f1[i])
		}
		if f2[i] < 0 || f2[i] > 1 {
			return fmt.Errorf("bandpass: f2[%d] out of range [0,1]: %f", i, f2[i])
		}
	}

	f.f1 = append([]float64(nil), f1...)
	f.f2 = append([]float64(nil), f2...)
	f.scale = make([]float64, f.neurons)
	for i := range f.scale {
		f.scale[i] = 1 + f.f2[i]/f.f1[i]
	}
	f.ema1 = make([]float64, f.neurons)
	f.ema2 = make([]float64, f.neurons)
	return nil
}

// Calc filters x in place, advancing the per-neuron filter state by one
// sample.
func (f *Bandpass) Calc(x []float64) error {
	if f.f1 == nil {
		return ErrCutoffNotSet
	}
	if len(x) != f.neurons {
		return fmt.Errorf("bandpass: vector must have one entry per neuron: got=%d want=%d", len(x), f.neurons)
	}

	for i := range x {
		f.ema1[i] += f.f1[i] * (x[i] - f.ema1[i])
		f.ema2[i] += f.f2[i] * (f.ema1[i] - f.ema2[i])
		x[i] = (f.ema1[i] - f.ema2[i]) * f.scale[i]
	}
	return nil
}
