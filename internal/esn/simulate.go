package esn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"aureservoir/internal/filter"
)

// Simulator advances the reservoir over a batch of time steps and writes
// the readout into the output sequence. Implementations are a closed set
// selected by Variant; filter configuration fails with ErrUnsupported on
// variants without a filter.
type Simulator interface {
	Variant() Variant

	// Reallocate resizes the engine's output and scratch buffers for
	// the network's current dimensions, discarding previous feedback.
	Reallocate(net *Network)

	// Simulate processes in (Inputs x steps) left to right into out
	// (Outputs x steps). The first step feeds back the engine's stored
	// last output, later steps feed back the previously produced
	// column.
	Simulate(net *Network, in, out *mat.Dense) error

	// ForceOutput overwrites the stored last output with target, so the
	// next step's feedback uses ground truth (teacher forcing).
	ForceOutput(target mat.Vector)

	SetBPCutoff(net *Network, f1, f2 []float64) error
	SetBPCutoffConst(net *Network, f1, f2 float64) error
	SetIIRCoeff(net *Network, b, a *mat.Dense) error
}

// NewSimulator returns the engine for a simulation variant.
func NewSimulator(v Variant) (Simulator, error) {
	switch v {
	case VariantStandard:
		return &simStandard{}, nil
	case VariantSquare:
		return &simSquare{}, nil
	case VariantLeaky:
		return &simLeaky{}, nil
	case VariantBandpass:
		return &simBandpass{}, nil
	case VariantIIR:
		return &simIIR{}, nil
	default:
		return nil, fmt.Errorf("unsupported simulation variant: %s", v)
	}
}

// simBase carries the buffers every variant needs: the stored last
// output used as step-one feedback and scratch vectors for the
// recurrence.
type simBase struct {
	lastOut *mat.VecDense // Outputs
	outTmp  *mat.VecDense // Outputs
	prev    *mat.VecDense // Neurons, copy of the pre-step state
	tmp     *mat.VecDense // Neurons
}

func (s *simBase) Reallocate(net *Network) {
	s.lastOut = mat.NewVecDense(net.Outputs, nil)
	s.outTmp = mat.NewVecDense(net.Outputs, nil)
	s.prev = mat.NewVecDense(net.Neurons, nil)
	s.tmp = mat.NewVecDense(net.Neurons, nil)
}

func (s *simBase) ForceOutput(target mat.Vector) {
	for i := 0; i < s.lastOut.Len() && i < target.Len(); i++ {
		s.lastOut.SetVec(i, target.AtVec(i))
	}
}

func (s *simBase) SetBPCutoff(*Network, []float64, []float64) error {
	return fmt.Errorf("%w: bandpass cutoffs need the bandpass variant", ErrUnsupported)
}

func (s *simBase) SetBPCutoffConst(*Network, float64, float64) error {
	return fmt.Errorf("%w: bandpass cutoffs need the bandpass variant", ErrUnsupported)
}

func (s *simBase) SetIIRCoeff(*Network, *mat.Dense, *mat.Dense) error {
	return fmt.Errorf("%w: iir coefficients need the iir variant", ErrUnsupported)
}

// check validates the batch dimensions and the readout width, and sizes
// the scratch buffers when they do not match the network yet. Existing
// buffers of the right size are kept so stored feedback survives
// consecutive calls.
func (s *simBase) check(net *Network, in, out *mat.Dense, v Variant) error {
	inRows, inCols := in.Dims()
	outRows, outCols := out.Dims()
	if inRows != net.Inputs {
		return fmt.Errorf("%w: input rows: got=%d want=%d", ErrDimension, inRows, net.Inputs)
	}
	if outRows != net.Outputs {
		return fmt.Errorf("%w: output rows: got=%d want=%d", ErrDimension, outRows, net.Outputs)
	}
	if inCols != outCols {
		return fmt.Errorf("%w: input and output must have the same number of steps: %d != %d", ErrDimension, inCols, outCols)
	}

	woutRows, woutCols := net.Wout.Dims()
	if width := net.ReadoutWidth(v); woutRows != net.Outputs || woutCols != width {
		return fmt.Errorf("%w: readout is %dx%d but the %s variant needs %dx%d",
			ErrDimension, woutRows, woutCols, v, net.Outputs, width)
	}

	if s.lastOut == nil || s.lastOut.Len() != net.Outputs || s.prev.Len() != net.Neurons {
		s.Reallocate(net)
	}
	return nil
}

// drive performs the recurrent state update for one step: new input,
// recurrence, feedback, optional leaky blend, additive noise and the
// reservoir activation, all into net.X.
func (s *simBase) drive(net *Network, u, fb mat.Vector, leaky bool) {
	s.prev.CopyVec(net.X)
	net.X.MulVec(net.W, s.prev)
	s.tmp.MulVec(net.Win, u)
	net.X.AddVec(net.X, s.tmp)
	s.tmp.MulVec(net.Wback, fb)
	net.X.AddVec(net.X, s.tmp)
	if leaky {
		net.X.AddScaledVec(net.X, 1-net.LeakRate, s.prev)
	}

	raw := net.X.RawVector().Data
	if net.Noise > 0 {
		rng := net.Rand()
		for i := range raw {
			raw[i] += (rng.Float64()*2 - 1) * net.Noise
		}
	}
	net.ReservoirAct(raw)
}

// readout computes lastOut = Wout_state*x + Wout_input*u and applies the
// output activation.
func (s *simBase) readout(net *Network, u mat.Vector) {
	woutState := net.Wout.Slice(0, net.Outputs, 0, net.Neurons)
	woutInput := net.Wout.Slice(0, net.Outputs, net.Neurons, net.Neurons+net.Inputs)
	s.lastOut.MulVec(woutState, net.X)
	s.outTmp.MulVec(woutInput, u)
	s.lastOut.AddVec(s.lastOut, s.outTmp)
	net.OutputAct(s.lastOut.RawVector().Data)
}

func (s *simBase) feedback(out *mat.Dense, n int) mat.Vector {
	if n == 0 {
		return s.lastOut
	}
	return out.ColView(n - 1)
}

type simStandard struct {
	simBase
}

func (s *simStandard) Variant() Variant { return VariantStandard }

func (s *simStandard) Simulate(net *Network, in, out *mat.Dense) error {
	if err := s.check(net, in, out, VariantStandard); err != nil {
		return err
	}

	_, steps := in.Dims()
	for n := 0; n < steps; n++ {
		u := in.ColView(n)
		s.drive(net, u, s.feedback(out, n), false)
		s.readout(net, u)
		out.SetCol(n, s.lastOut.RawVector().Data)
	}
	return nil
}

type simSquare struct {
	simBase
	sq   *mat.VecDense // Neurons, squared state
	inSq *mat.VecDense // Inputs, squared input
}

func (s *simSquare) Variant() Variant { return VariantSquare }

func (s *simSquare) Reallocate(net *Network) {
	s.simBase.Reallocate(net)
	s.sq = mat.NewVecDense(net.Neurons, nil)
	s.inSq = mat.NewVecDense(net.Inputs, nil)
}

func (s *simSquare) Simulate(net *Network, in, out *mat.Dense) error {
	if err := s.check(net, in, out, VariantSquare); err != nil {
		return err
	}
	if s.sq == nil || s.sq.Len() != net.Neurons || s.inSq.Len() != net.Inputs {
		s.Reallocate(net)
	}

	base := net.Neurons + net.Inputs
	woutSqState := net.Wout.Slice(0, net.Outputs, base, base+net.Neurons)
	woutSqInput := net.Wout.Slice(0, net.Outputs, base+net.Neurons, 2*base)

	_, steps := in.Dims()
	for n := 0; n < steps; n++ {
		u := in.ColView(n)
		s.drive(net, u, s.feedback(out, n), false)

		for i := 0; i < net.Neurons; i++ {
			x := net.X.AtVec(i)
			s.sq.SetVec(i, x*x)
		}
		for i := 0; i < net.Inputs; i++ {
			v := u.AtVec(i)
			s.inSq.SetVec(i, v*v)
		}

		// readout = Wout * [x; u; x^2; u^2]
		woutState := net.Wout.Slice(0, net.Outputs, 0, net.Neurons)
		woutInput := net.Wout.Slice(0, net.Outputs, net.Neurons, base)
		s.lastOut.MulVec(woutState, net.X)
		s.outTmp.MulVec(woutInput, u)
		s.lastOut.AddVec(s.lastOut, s.outTmp)
		s.outTmp.MulVec(woutSqState, s.sq)
		s.lastOut.AddVec(s.lastOut, s.outTmp)
		s.outTmp.MulVec(woutSqInput, s.inSq)
		s.lastOut.AddVec(s.lastOut, s.outTmp)
		net.OutputAct(s.lastOut.RawVector().Data)

		out.SetCol(n, s.lastOut.RawVector().Data)
	}
	return nil
}

type simLeaky struct {
	simBase
}

func (s *simLeaky) Variant() Variant { return VariantLeaky }

func (s *simLeaky) Simulate(net *Network, in, out *mat.Dense) error {
	if err := s.check(net, in, out, VariantLeaky); err != nil {
		return err
	}

	_, steps := in.Dims()
	for n := 0; n < steps; n++ {
		u := in.ColView(n)
		s.drive(net, u, s.feedback(out, n), true)
		s.readout(net, u)
		out.SetCol(n, s.lastOut.RawVector().Data)
	}
	return nil
}

type simBandpass struct {
	simBase
	filt *filter.Bandpass
}

func (s *simBandpass) Variant() Variant { return VariantBandpass }

func (s *simBandpass) Reallocate(net *Network) {
	s.simBase.Reallocate(net)
	// Keep the filter when the reservoir size is unchanged so cutoffs
	// configured before training survive the trainer's reallocation.
	if s.filt == nil || s.filt.Neurons() != net.Neurons {
		s.filt = filter.NewBandpass(net.Neurons)
	}
}

func (s *simBandpass) SetBPCutoff(net *Network, f1, f2 []float64) error {
	if len(f1) != net.Neurons {
		return fmt.Errorf("%w: f1 must have one cutoff per reservoir neuron: got=%d want=%d", ErrDimension, len(f1), net.Neurons)
	}
	if len(f2) != net.Neurons {
		return fmt.Errorf("%w: f2 must have one cutoff per reservoir neuron: got=%d want=%d", ErrDimension, len(f2), net.Neurons)
	}
	if s.filt == nil || s.filt.Neurons() != net.Neurons {
		s.filt = filter.NewBandpass(net.Neurons)
	}
	return s.filt.SetCutoff(f1, f2)
}

func (s *simBandpass) SetBPCutoffConst(net *Network, f1, f2 float64) error {
	f1vec := make([]float64, net.Neurons)
	f2vec := make([]float64, net.Neurons)
	for i := range f1vec {
		f1vec[i] = f1
		f2vec[i] = f2
	}
	return s.SetBPCutoff(net, f1vec, f2vec)
}

func (s *simBandpass) Simulate(net *Network, in, out *mat.Dense) error {
	if err := s.check(net, in, out, VariantBandpass); err != nil {
		return err
	}
	if s.filt == nil || s.filt.Neurons() != net.Neurons {
		s.filt = filter.NewBandpass(net.Neurons)
	}

	_, steps := in.Dims()
	for n := 0; n < steps; n++ {
		u := in.ColView(n)
		s.drive(net, u, s.feedback(out, n), false)
		if err := s.filt.Calc(net.X.RawVector().Data); err != nil {
			return err
		}
		s.readout(net, u)
		out.SetCol(n, s.lastOut.RawVector().Data)
	}
	return nil
}

type simIIR struct {
	simBase
	filt *filter.IIR
}

func (s *simIIR) Variant() Variant { return VariantIIR }

func (s *simIIR) Reallocate(net *Network) {
	s.simBase.Reallocate(net)
	if s.filt == nil || s.filt.Neurons() != net.Neurons {
		s.filt = filter.NewIIR(net.Neurons)
	}
}

func (s *simIIR) SetIIRCoeff(net *Network, b, a *mat.Dense) error {
	bRows, _ := b.Dims()
	aRows, _ := a.Dims()
	if bRows != net.Neurons {
		return fmt.Errorf("%w: B must have one row per reservoir neuron: got=%d want=%d", ErrDimension, bRows, net.Neurons)
	}
	if aRows != net.Neurons {
		return fmt.Errorf("%w: A must have one row per reservoir neuron: got=%d want=%d", ErrDimension, aRows, net.Neurons)
	}
	if s.filt == nil || s.filt.Neurons() != net.Neurons {
		s.filt = filter.NewIIR(net.Neurons)
	}
	return s.filt.SetCoeff(matrixRows(b), matrixRows(a))
}

func (s *simIIR) Simulate(net *Network, in, out *mat.Dense) error {
	if err := s.check(net, in, out, VariantIIR); err != nil {
		return err
	}
	if s.filt == nil || s.filt.Neurons() != net.Neurons {
		s.filt = filter.NewIIR(net.Neurons)
	}

	_, steps := in.Dims()
	for n := 0; n < steps; n++ {
		u := in.ColView(n)
		s.drive(net, u, s.feedback(out, n), false)
		if err := s.filt.Calc(net.X.RawVector().Data); err != nil {
			return err
		}
		s.readout(net, u)
		out.SetCol(n, s.lastOut.RawVector().Data)
	}
	return nil
}

func matrixRows(m *mat.Dense) [][]float64 {
	rows, _ := m.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
