package filter

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestBandpassRequiresCutoff(t *testing.T) {
	f := NewBandpass(3)
	err := f.Calc([]float64{1, 2, 3})
	if !errors.Is(err, ErrCutoffNotSet) {
		t.Fatalf("expected ErrCutoffNotSet, got: %v", err)
	}
}

func TestBandpassCutoffValidation(t *testing.T) {
	f := NewBandpass(2)

	if err := f.SetCutoff([]float64{0.2}, []float64{0.1, 0.1}); err == nil {
		t.Fatal("expected f1 length error")
	}
	if err := f.SetCutoff([]float64{0.2, 0.2}, []float64{0.1}); err == nil {
		t.Fatal("expected f2 length error")
	}
	if err := f.SetCutoff([]float64{0, 0.2}, []float64{0.1, 0.1}); err == nil {
		t.Fatal("expected f1 range error")
	}
	if err := f.SetCutoff([]float64{0.2, 0.2}, []float64{-0.1, 0.1}); err == nil {
		t.Fatal("expected f2 range error")
	}
}

func TestBandpassLowpassOnlyIsIdentity(t *testing.T) {
	// f1=1 tracks the input exactly, f2=0 keeps the highpass stage at
	// zero, so the filter passes samples through unchanged.
	f := NewBandpass(2)
	if err := f.SetCutoff([]float64{1, 1}, []float64{0, 0}); err != nil {
		t.Fatalf("set cutoff: %v", err)
	}

	for step := 0; step < 5; step++ {
		x := []float64{float64(step) * 0.25, -float64(step)}
		want := append([]float64(nil), x...)
		if err := f.Calc(x); err != nil {
			t.Fatalf("calc step %d: %v", step, err)
		}
		if !floats.EqualApprox(x, want, 1e-12) {
			t.Fatalf("step %d: got=%v want=%v", step, x, want)
		}
	}
}

func TestBandpassRemovesDC(t *testing.T) {
	f := NewBandpass(1)
	if err := f.SetCutoff([]float64{0.5}, []float64{0.5}); err != nil {
		t.Fatalf("set cutoff: %v", err)
	}

	// Constant input: both stages converge to the input value, so the
	// bandpass output must decay towards zero.
	var last float64
	for step := 0; step < 200; step++ {
		x := []float64{1}
		if err := f.Calc(x); err != nil {
			t.Fatalf("calc step %d: %v", step, err)
		}
		last = x[0]
	}
	if math.Abs(last) > 1e-6 {
		t.Fatalf("expected DC to be removed, residual=%f", last)
	}
}

func TestBandpassStatePersistsAcrossCalls(t *testing.T) {
	f := NewBandpass(1)
	if err := f.SetCutoff([]float64{0.5}, []float64{0.25}); err != nil {
		t.Fatalf("set cutoff: %v", err)
	}

	first := []float64{1}
	if err := f.Calc(first); err != nil {
		t.Fatalf("first calc: %v", err)
	}
	second := []float64{1}
	if err := f.Calc(second); err != nil {
		t.Fatalf("second calc: %v", err)
	}
	if first[0] == second[0] {
		t.Fatalf("expected filter state to advance between calls, both outputs %f", first[0])
	}
}

func TestIIRRequiresCoefficients(t *testing.T) {
	f := NewIIR(2)
	err := f.Calc([]float64{1, 2})
	if !errors.Is(err, ErrCoeffNotSet) {
		t.Fatalf("expected ErrCoeffNotSet, got: %v", err)
	}
}

func TestIIRCoeffValidation(t *testing.T) {
	f := NewIIR(2)

	if err := f.SetCoeff([][]float64{{1}}, [][]float64{{1}, {1}}); err == nil {
		t.Fatal("expected B row count error")
	}
	if err := f.SetCoeff([][]float64{{1}, {1}}, [][]float64{{1}}); err == nil {
		t.Fatal("expected A row count error")
	}
	if err := f.SetCoeff([][]float64{{1}, {}}, [][]float64{{1}, {1}}); err == nil {
		t.Fatal("expected empty row error")
	}
	if err := f.SetCoeff([][]float64{{1}, {1}}, [][]float64{{1}, {0}}); err == nil {
		t.Fatal("expected zero A0 error")
	}
}

func TestIIRUnitFilterIsIdentity(t *testing.T) {
	f := NewIIR(2)
	if err := f.SetCoeff([][]float64{{1}, {1}}, [][]float64{{1}, {1}}); err != nil {
		t.Fatalf("set coeff: %v", err)
	}

	x := []float64{0.5, -2}
	if err := f.Calc(x); err != nil {
		t.Fatalf("calc: %v", err)
	}
	if x[0] != 0.5 || x[1] != -2 {
		t.Fatalf("unexpected identity output: %+v", x)
	}
}

func TestIIRNormalizesByA0(t *testing.T) {
	f := NewIIR(1)
	if err := f.SetCoeff([][]float64{{2}}, [][]float64{{4}}); err != nil {
		t.Fatalf("set coeff: %v", err)
	}

	x := []float64{1}
	if err := f.Calc(x); err != nil {
		t.Fatalf("calc: %v", err)
	}
	if x[0] != 0.5 {
		t.Fatalf("unexpected normalized output: got=%f want=0.5", x[0])
	}
}

func TestIIRMovingAverageImpulseResponse(t *testing.T) {
	// FIR special case: B = [0.5, 0.5], A = [1]. The impulse response
	// must be 0.5, 0.5, 0 exactly.
	f := NewIIR(1)
	if err := f.SetCoeff([][]float64{{0.5, 0.5}}, [][]float64{{1}}); err != nil {
		t.Fatalf("set coeff: %v", err)
	}

	want := []float64{0.5, 0.5, 0}
	input := []float64{1, 0, 0}
	for step := range input {
		x := []float64{input[step]}
		if err := f.Calc(x); err != nil {
			t.Fatalf("calc step %d: %v", step, err)
		}
		if math.Abs(x[0]-want[step]) > 1e-12 {
			t.Fatalf("impulse response step %d: got=%f want=%f", step, x[0], want[step])
		}
	}
}

func TestIIRRecursiveAccumulator(t *testing.T) {
	// y[n] = x[n] + y[n-1]: B = [1], A = [1, -1].
	f := NewIIR(1)
	if err := f.SetCoeff([][]float64{{1}}, [][]float64{{1, -1}}); err != nil {
		t.Fatalf("set coeff: %v", err)
	}

	sum := 0.0
	for step := 1; step <= 4; step++ {
		x := []float64{float64(step)}
		if err := f.Calc(x); err != nil {
			t.Fatalf("calc step %d: %v", step, err)
		}
		sum += float64(step)
		if math.Abs(x[0]-sum) > 1e-12 {
			t.Fatalf("accumulator step %d: got=%f want=%f", step, x[0], sum)
		}
	}
}
