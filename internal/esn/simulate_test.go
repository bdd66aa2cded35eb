package esn

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func newTestNetwork(t *testing.T, cfg Config) *Network {
	t.Helper()
	if cfg.ReservoirActivation == "" {
		cfg.ReservoirActivation = "linear"
	}
	if cfg.OutputActivation == "" {
		cfg.OutputActivation = "linear"
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	net, err := NewNetwork(cfg)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return net
}

func newTestSimulator(t *testing.T, v Variant) Simulator {
	t.Helper()
	sim, err := NewSimulator(v)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	return sim
}

func TestNewSimulatorCoversAllVariants(t *testing.T) {
	for _, v := range []Variant{VariantStandard, VariantSquare, VariantLeaky, VariantBandpass, VariantIIR} {
		sim, err := NewSimulator(v)
		if err != nil {
			t.Fatalf("new simulator %s: %v", v, err)
		}
		if sim.Variant() != v {
			t.Fatalf("variant mismatch: got=%s want=%s", sim.Variant(), v)
		}
	}
	if _, err := NewSimulator(Variant(99)); err == nil {
		t.Fatal("expected unknown variant error")
	}
}

func TestSimulateZeroNetworkStaysZero(t *testing.T) {
	// Zero weights, zero noise, linear activations, zero input: every
	// variant must produce all-zero output with no drift.
	for _, v := range []Variant{VariantStandard, VariantSquare, VariantLeaky, VariantBandpass, VariantIIR} {
		t.Run(v.String(), func(t *testing.T) {
			net := newTestNetwork(t, Config{Neurons: 4, Inputs: 2, Outputs: 3, Variant: v, LeakRate: 0.5})
			sim := newTestSimulator(t, v)

			switch v {
			case VariantBandpass:
				if err := sim.SetBPCutoffConst(net, 1, 0); err != nil {
					t.Fatalf("set cutoff: %v", err)
				}
			case VariantIIR:
				b := mat.NewDense(net.Neurons, 1, []float64{1, 1, 1, 1})
				a := mat.NewDense(net.Neurons, 1, []float64{1, 1, 1, 1})
				if err := sim.SetIIRCoeff(net, b, a); err != nil {
					t.Fatalf("set iir coeff: %v", err)
				}
			}

			steps := 7
			in := mat.NewDense(net.Inputs, steps, nil)
			out := mat.NewDense(net.Outputs, steps, nil)
			if err := sim.Simulate(net, in, out); err != nil {
				t.Fatalf("simulate: %v", err)
			}
			for i := 0; i < net.Outputs; i++ {
				for n := 0; n < steps; n++ {
					if out.At(i, n) != 0 {
						t.Fatalf("spurious output at (%d,%d): %f", i, n, out.At(i, n))
					}
				}
			}
		})
	}
}

func TestSimulateFreeRunFeedback(t *testing.T) {
	// One neuron, linear everywhere. x[n] = u[n] + 0.5*fb[n], output =
	// x[n]. Step one must feed back the stored last output, later steps
	// the previously produced column.
	net := newTestNetwork(t, Config{Neurons: 1, Inputs: 1, Outputs: 1})
	net.Win.Set(0, 0, 1)
	net.Wback.Set(0, 0, 0.5)
	net.Wout.Set(0, 0, 1) // state block only

	sim := newTestSimulator(t, VariantStandard)
	sim.Reallocate(net)
	sim.ForceOutput(mat.NewVecDense(1, []float64{1}))

	in := mat.NewDense(1, 3, []float64{0.25, 0, 0})
	out := mat.NewDense(1, 3, nil)
	if err := sim.Simulate(net, in, out); err != nil {
		t.Fatalf("simulate: %v", err)
	}

	// step 0: 0.25 + 0.5*1 = 0.75, then each step halves the previous
	// produced output.
	want := []float64{0.75, 0.375, 0.1875}
	for n, w := range want {
		if math.Abs(out.At(0, n)-w) > 1e-12 {
			t.Fatalf("step %d: got=%f want=%f", n, out.At(0, n), w)
		}
	}
}

func TestSimulateDimensionValidation(t *testing.T) {
	net := newTestNetwork(t, Config{Neurons: 2, Inputs: 2, Outputs: 1})
	sim := newTestSimulator(t, VariantStandard)

	tests := []struct {
		name string
		in   *mat.Dense
		out  *mat.Dense
	}{
		{name: "wrong-input-rows", in: mat.NewDense(3, 5, nil), out: mat.NewDense(1, 5, nil)},
		{name: "wrong-output-rows", in: mat.NewDense(2, 5, nil), out: mat.NewDense(2, 5, nil)},
		{name: "step-mismatch", in: mat.NewDense(2, 5, nil), out: mat.NewDense(1, 4, nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := sim.Simulate(net, tc.in, tc.out); !errors.Is(err, ErrDimension) {
				t.Fatalf("expected ErrDimension, got: %v", err)
			}
		})
	}
}

func TestSimulateRejectsMismatchedReadoutWidth(t *testing.T) {
	// A square-width readout driven by the standard engine must be
	// rejected instead of silently misaddressing the blocks.
	net := newTestNetwork(t, Config{Neurons: 2, Inputs: 1, Outputs: 1, Variant: VariantSquare})
	sim := newTestSimulator(t, VariantStandard)

	in := mat.NewDense(1, 4, nil)
	out := mat.NewDense(1, 4, nil)
	if err := sim.Simulate(net, in, out); !errors.Is(err, ErrDimension) {
		t.Fatalf("expected ErrDimension, got: %v", err)
	}
}

func TestFilterConfigurationUnsupportedOnPlainVariants(t *testing.T) {
	net := newTestNetwork(t, Config{Neurons: 2, Inputs: 1, Outputs: 1})
	b := mat.NewDense(2, 1, []float64{1, 1})
	a := mat.NewDense(2, 1, []float64{1, 1})

	for _, v := range []Variant{VariantStandard, VariantSquare, VariantLeaky} {
		sim := newTestSimulator(t, v)
		if err := sim.SetBPCutoff(net, []float64{0.1, 0.1}, []float64{0.2, 0.2}); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("%s SetBPCutoff: expected ErrUnsupported, got: %v", v, err)
		}
		if err := sim.SetBPCutoffConst(net, 0.1, 0.2); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("%s SetBPCutoffConst: expected ErrUnsupported, got: %v", v, err)
		}
		if err := sim.SetIIRCoeff(net, b, a); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("%s SetIIRCoeff: expected ErrUnsupported, got: %v", v, err)
		}
	}

	bp := newTestSimulator(t, VariantBandpass)
	if err := bp.SetIIRCoeff(net, b, a); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("bandpass SetIIRCoeff: expected ErrUnsupported, got: %v", err)
	}
	iir := newTestSimulator(t, VariantIIR)
	if err := iir.SetBPCutoffConst(net, 0.1, 0.2); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("iir SetBPCutoffConst: expected ErrUnsupported, got: %v", err)
	}
}

func TestFilterCutoffDimensionValidation(t *testing.T) {
	net := newTestNetwork(t, Config{Neurons: 3, Inputs: 1, Outputs: 1, Variant: VariantBandpass})
	sim := newTestSimulator(t, VariantBandpass)

	if err := sim.SetBPCutoff(net, []float64{0.1}, []float64{0.2, 0.2, 0.2}); !errors.Is(err, ErrDimension) {
		t.Fatalf("expected ErrDimension for short f1, got: %v", err)
	}

	iirNet := newTestNetwork(t, Config{Neurons: 3, Inputs: 1, Outputs: 1, Variant: VariantIIR})
	iirSim := newTestSimulator(t, VariantIIR)
	if err := iirSim.SetIIRCoeff(iirNet, mat.NewDense(2, 1, nil), mat.NewDense(3, 1, nil)); !errors.Is(err, ErrDimension) {
		t.Fatalf("expected ErrDimension for short B, got: %v", err)
	}
}

func TestSimulateSquareReadout(t *testing.T) {
	// x[n] = u[n] with unit input weight and nothing else, so with
	// Wout = [a b c d] the output is a*u + b*u + c*u^2 + d*u^2 in the
	// linear case.
	net := newTestNetwork(t, Config{Neurons: 1, Inputs: 1, Outputs: 1, Variant: VariantSquare})
	net.Win.Set(0, 0, 1)
	net.Wout.Set(0, 0, 1)   // state
	net.Wout.Set(0, 1, 0)   // input
	net.Wout.Set(0, 2, 1)   // state^2
	net.Wout.Set(0, 3, 0.5) // input^2

	sim := newTestSimulator(t, VariantSquare)
	in := mat.NewDense(1, 2, []float64{2, -3})
	out := mat.NewDense(1, 2, nil)
	if err := sim.Simulate(net, in, out); err != nil {
		t.Fatalf("simulate: %v", err)
	}

	// u=2: 2 + 4 + 2 = 8. u=-3 (state carries no recurrence, W=0):
	// -3 + 9 + 4.5 = 10.5.
	if math.Abs(out.At(0, 0)-8) > 1e-12 {
		t.Fatalf("step 0: got=%f want=8", out.At(0, 0))
	}
	if math.Abs(out.At(0, 1)-10.5) > 1e-12 {
		t.Fatalf("step 1: got=%f want=10.5", out.At(0, 1))
	}
}

func TestSimulateLeakyIntegration(t *testing.T) {
	// x[n] = (1-leak)*x[n-1] + u[n] in the linear single-neuron case.
	net := newTestNetwork(t, Config{Neurons: 1, Inputs: 1, Outputs: 1, Variant: VariantLeaky, LeakRate: 0.25})
	net.Win.Set(0, 0, 1)
	net.Wout.Set(0, 0, 1)
	net.X.SetVec(0, 0.8)

	sim := newTestSimulator(t, VariantLeaky)
	in := mat.NewDense(1, 2, []float64{0.1, 0.1})
	out := mat.NewDense(1, 2, nil)
	if err := sim.Simulate(net, in, out); err != nil {
		t.Fatalf("simulate: %v", err)
	}

	want0 := 0.75*0.8 + 0.1
	want1 := 0.75*want0 + 0.1
	if math.Abs(out.At(0, 0)-want0) > 1e-12 {
		t.Fatalf("step 0: got=%f want=%f", out.At(0, 0), want0)
	}
	if math.Abs(out.At(0, 1)-want1) > 1e-12 {
		t.Fatalf("step 1: got=%f want=%f", out.At(0, 1), want1)
	}
}

func TestSimulateBandpassFiltersState(t *testing.T) {
	// With both cutoffs at 1 the two averager stages coincide, so the
	// filtered state and hence the output is exactly zero.
	net := newTestNetwork(t, Config{Neurons: 1, Inputs: 1, Outputs: 1, Variant: VariantBandpass})
	net.Win.Set(0, 0, 1)
	net.Wout.Set(0, 0, 1)

	sim := newTestSimulator(t, VariantBandpass)
	if err := sim.SetBPCutoffConst(net, 1, 1); err != nil {
		t.Fatalf("set cutoff: %v", err)
	}

	in := mat.NewDense(1, 3, []float64{1, 1, 1})
	out := mat.NewDense(1, 3, nil)
	if err := sim.Simulate(net, in, out); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for n := 0; n < 3; n++ {
		if out.At(0, n) != 0 {
			t.Fatalf("step %d: expected filtered zero, got %f", n, out.At(0, n))
		}
	}
}

func TestSimulateBandpassRequiresCutoff(t *testing.T) {
	net := newTestNetwork(t, Config{Neurons: 1, Inputs: 1, Outputs: 1, Variant: VariantBandpass})
	sim := newTestSimulator(t, VariantBandpass)

	in := mat.NewDense(1, 2, nil)
	out := mat.NewDense(1, 2, nil)
	if err := sim.Simulate(net, in, out); err == nil {
		t.Fatal("expected missing cutoff error")
	}
}

func TestSimulateIIRIdentityMatchesStandard(t *testing.T) {
	// With B=[1], A=[1] per neuron the IIR variant must reproduce the
	// standard variant exactly.
	cfg := Config{Neurons: 3, Inputs: 2, Outputs: 1, Seed: 7}
	stdNet := newTestNetwork(t, cfg)
	iirCfg := cfg
	iirCfg.Variant = VariantIIR
	iirNet := newTestNetwork(t, iirCfg)

	weights := []float64{0.2, -0.1, 0.05, 0.3, 0.1, -0.2, 0.0, 0.15, -0.05}
	stdNet.W = mat.NewDense(3, 3, append([]float64(nil), weights...))
	iirNet.W = mat.NewDense(3, 3, append([]float64(nil), weights...))
	inWeights := []float64{1, 0.5, -0.5, 0.25, 0.1, 0.7}
	stdNet.Win = mat.NewDense(3, 2, append([]float64(nil), inWeights...))
	iirNet.Win = mat.NewDense(3, 2, append([]float64(nil), inWeights...))
	for j := 0; j < 5; j++ {
		stdNet.Wout.Set(0, j, float64(j)*0.3-0.5)
		iirNet.Wout.Set(0, j, float64(j)*0.3-0.5)
	}

	iirSim := newTestSimulator(t, VariantIIR)
	ones := mat.NewDense(3, 1, []float64{1, 1, 1})
	if err := iirSim.SetIIRCoeff(iirNet, ones, ones); err != nil {
		t.Fatalf("set iir coeff: %v", err)
	}
	stdSim := newTestSimulator(t, VariantStandard)

	in := mat.NewDense(2, 6, []float64{
		0.1, -0.2, 0.3, 0.0, 0.5, -0.4,
		0.2, 0.1, -0.1, 0.4, -0.3, 0.2,
	})
	wantOut := mat.NewDense(1, 6, nil)
	gotOut := mat.NewDense(1, 6, nil)
	if err := stdSim.Simulate(stdNet, in, wantOut); err != nil {
		t.Fatalf("standard simulate: %v", err)
	}
	if err := iirSim.Simulate(iirNet, in, gotOut); err != nil {
		t.Fatalf("iir simulate: %v", err)
	}

	for n := 0; n < 6; n++ {
		if math.Abs(gotOut.At(0, n)-wantOut.At(0, n)) > 1e-12 {
			t.Fatalf("step %d: got=%f want=%f", n, gotOut.At(0, n), wantOut.At(0, n))
		}
	}
}

func TestReallocateKeepsBandpassCutoff(t *testing.T) {
	// Training reallocates the engine; cutoffs configured beforehand
	// must survive as long as the reservoir size is unchanged.
	net := newTestNetwork(t, Config{Neurons: 2, Inputs: 1, Outputs: 1, Variant: VariantBandpass})
	net.Win.Set(0, 0, 1)
	net.Win.Set(1, 0, 0.5)
	net.Wout.Set(0, 0, 1)

	sim := newTestSimulator(t, VariantBandpass)
	if err := sim.SetBPCutoffConst(net, 0.5, 0.25); err != nil {
		t.Fatalf("set cutoff: %v", err)
	}
	sim.Reallocate(net)

	in := mat.NewDense(1, 2, []float64{1, 1})
	out := mat.NewDense(1, 2, nil)
	if err := sim.Simulate(net, in, out); err != nil {
		t.Fatalf("simulate after reallocate: %v", err)
	}
}

func TestSimulateNoiseIsBounded(t *testing.T) {
	net := newTestNetwork(t, Config{Neurons: 1, Inputs: 1, Outputs: 1, Noise: 0.1, Seed: 42})
	net.Wout.Set(0, 0, 1)

	sim := newTestSimulator(t, VariantStandard)
	in := mat.NewDense(1, 50, nil)
	out := mat.NewDense(1, 50, nil)
	if err := sim.Simulate(net, in, out); err != nil {
		t.Fatalf("simulate: %v", err)
	}

	sawNonzero := false
	for n := 0; n < 50; n++ {
		v := out.At(0, n)
		if math.Abs(v) > 0.1 {
			t.Fatalf("noise exceeded bound at step %d: %f", n, v)
		}
		if v != 0 {
			sawNonzero = true
		}
	}
	if !sawNonzero {
		t.Fatal("expected noisy output with nonzero noise level")
	}
}
