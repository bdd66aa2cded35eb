package esn

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"aureservoir/internal/activation"
	"aureservoir/internal/model"
)

var (
	ErrDimension    = errors.New("dimension mismatch")
	ErrTrainingData = errors.New("too few training data")
	ErrUnsupported  = errors.New("not supported by this simulation variant")
	ErrSolve        = errors.New("readout solve failed")
)

// Variant enumerates the closed set of simulation algorithms.
type Variant int

const (
	VariantStandard Variant = iota
	VariantSquare
	VariantLeaky
	VariantBandpass
	VariantIIR
)

func (v Variant) String() string {
	switch v {
	case VariantStandard:
		return "standard"
	case VariantSquare:
		return "square"
	case VariantLeaky:
		return "leaky"
	case VariantBandpass:
		return "bandpass"
	case VariantIIR:
		return "iir"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

func ParseVariant(name string) (Variant, error) {
	switch name {
	case "", "standard":
		return VariantStandard, nil
	case "square":
		return VariantSquare, nil
	case "leaky":
		return VariantLeaky, nil
	case "bandpass":
		return VariantBandpass, nil
	case "iir":
		return VariantIIR, nil
	default:
		return 0, fmt.Errorf("unsupported simulation variant: %s", name)
	}
}

// Solver enumerates the closed set of offline training algorithms.
type Solver int

const (
	SolverPseudoInverse Solver = iota
	SolverLeastSquares
	SolverRidge
)

func (s Solver) String() string {
	switch s {
	case SolverPseudoInverse:
		return "pseudoinverse"
	case SolverLeastSquares:
		return "leastsquares"
	case SolverRidge:
		return "ridge"
	default:
		return fmt.Sprintf("solver(%d)", int(s))
	}
}

func ParseSolver(name string) (Solver, error) {
	switch name {
	case "", "pseudoinverse":
		return SolverPseudoInverse, nil
	case "leastsquares":
		return SolverLeastSquares, nil
	case "ridge":
		return SolverRidge, nil
	default:
		return 0, fmt.Errorf("unsupported training solver: %s", name)
	}
}

// Network owns the weight matrices, the reservoir state and the scalar
// hyperparameters. Simulation and training engines borrow it for the
// duration of one call; concurrent calls on the same network are the
// caller's responsibility to serialize.
type Network struct {
	Neurons int
	Inputs  int
	Outputs int

	Win   *mat.Dense // Neurons x Inputs
	W     *mat.Dense // Neurons x Neurons
	Wback *mat.Dense // Neurons x Outputs
	Wout  *mat.Dense // Outputs x ReadoutWidth(Variant)

	X *mat.VecDense // reservoir state, length Neurons

	Noise          float64
	LeakRate       float64
	TikhonovFactor float64

	Variant Variant
	Solver  Solver

	ReservoirActivation string
	OutputActivation    string

	ReservoirAct activation.Func
	OutputAct    activation.Func
	OutputInvAct activation.Func

	rng *rand.Rand
}

// Config carries everything NewNetwork needs. Weight values start at
// zero; use the reservoir package to randomize them.
type Config struct {
	Neurons int
	Inputs  int
	Outputs int

	Variant Variant
	Solver  Solver

	ReservoirActivation string
	OutputActivation    string

	Noise          float64
	LeakRate       float64
	TikhonovFactor float64

	Seed int64
}

func NewNetwork(cfg Config) (*Network, error) {
	if cfg.Neurons <= 0 {
		return nil, fmt.Errorf("%w: neurons must be positive: %d", ErrDimension, cfg.Neurons)
	}
	if cfg.Inputs <= 0 {
		return nil, fmt.Errorf("%w: inputs must be positive: %d", ErrDimension, cfg.Inputs)
	}
	if cfg.Outputs <= 0 {
		return nil, fmt.Errorf("%w: outputs must be positive: %d", ErrDimension, cfg.Outputs)
	}
	if cfg.Noise < 0 {
		return nil, fmt.Errorf("noise must not be negative: %f", cfg.Noise)
	}
	if cfg.LeakRate < 0 || cfg.LeakRate > 1 {
		return nil, fmt.Errorf("leak rate must be in [0,1]: %f", cfg.LeakRate)
	}
	if cfg.TikhonovFactor < 0 {
		return nil, fmt.Errorf("tikhonov factor must not be negative: %f", cfg.TikhonovFactor)
	}

	if cfg.ReservoirActivation == "" {
		cfg.ReservoirActivation = "tanh"
	}
	if cfg.OutputActivation == "" {
		cfg.OutputActivation = "linear"
	}
	reservoirAct, err := activation.Get(cfg.ReservoirActivation)
	if err != nil {
		return nil, fmt.Errorf("reservoir activation: %w", err)
	}
	outputAct, err := activation.Get(cfg.OutputActivation)
	if err != nil {
		return nil, fmt.Errorf("output activation: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	net := &Network{
		Neurons:             cfg.Neurons,
		Inputs:              cfg.Inputs,
		Outputs:             cfg.Outputs,
		Noise:               cfg.Noise,
		LeakRate:            cfg.LeakRate,
		TikhonovFactor:      cfg.TikhonovFactor,
		Variant:             cfg.Variant,
		Solver:              cfg.Solver,
		ReservoirActivation: cfg.ReservoirActivation,
		OutputActivation:    cfg.OutputActivation,
		ReservoirAct:        reservoirAct.Apply,
		OutputAct:           outputAct.Apply,
		OutputInvAct:        outputAct.Invert,
		rng:                 rand.New(rand.NewSource(seed)),
	}
	net.Win = mat.NewDense(cfg.Neurons, cfg.Inputs, nil)
	net.W = mat.NewDense(cfg.Neurons, cfg.Neurons, nil)
	net.Wback = mat.NewDense(cfg.Neurons, cfg.Outputs, nil)
	net.Wout = mat.NewDense(cfg.Outputs, net.ReadoutWidth(cfg.Variant), nil)
	net.X = mat.NewVecDense(cfg.Neurons, nil)
	return net, nil
}

// ReadoutWidth returns the readout column count for a simulation
// variant: one state plus one input block, doubled for the squared-state
// variant.
func (n *Network) ReadoutWidth(v Variant) int {
	width := n.Neurons + n.Inputs
	if v == VariantSquare {
		width *= 2
	}
	return width
}

// ResetState zeroes the reservoir state vector.
func (n *Network) ResetState() {
	n.X.Zero()
}

// Rand returns the network's seeded noise source.
func (n *Network) Rand() *rand.Rand {
	return n.rng
}

// Snapshot converts the network into its persistable record.
func (n *Network) Snapshot(id, name string) model.Network {
	return model.Network{
		ID:                  id,
		Name:                name,
		Neurons:             n.Neurons,
		Inputs:              n.Inputs,
		Outputs:             n.Outputs,
		Variant:             n.Variant.String(),
		Solver:              n.Solver.String(),
		ReservoirActivation: n.ReservoirActivation,
		OutputActivation:    n.OutputActivation,
		Noise:               n.Noise,
		LeakRate:            n.LeakRate,
		TikhonovFactor:      n.TikhonovFactor,
		Win:                 matrixSnapshot(n.Win),
		W:                   matrixSnapshot(n.W),
		Wback:               matrixSnapshot(n.Wback),
		Wout:                matrixSnapshot(n.Wout),
		State:               append([]float64(nil), n.X.RawVector().Data...),
	}
}

// FromSnapshot rebuilds a runtime network from a persisted record.
func FromSnapshot(record model.Network) (*Network, error) {
	variant, err := ParseVariant(record.Variant)
	if err != nil {
		return nil, err
	}
	solver, err := ParseSolver(record.Solver)
	if err != nil {
		return nil, err
	}

	net, err := NewNetwork(Config{
		Neurons:             record.Neurons,
		Inputs:              record.Inputs,
		Outputs:             record.Outputs,
		Variant:             variant,
		Solver:              solver,
		ReservoirActivation: record.ReservoirActivation,
		OutputActivation:    record.OutputActivation,
		Noise:               record.Noise,
		LeakRate:            record.LeakRate,
		TikhonovFactor:      record.TikhonovFactor,
	})
	if err != nil {
		return nil, err
	}

	if net.Win, err = matrixRestore(record.Win, net.Neurons, net.Inputs); err != nil {
		return nil, fmt.Errorf("win: %w", err)
	}
	if net.W, err = matrixRestore(record.W, net.Neurons, net.Neurons); err != nil {
		return nil, fmt.Errorf("w: %w", err)
	}
	if net.Wback, err = matrixRestore(record.Wback, net.Neurons, net.Outputs); err != nil {
		return nil, fmt.Errorf("wback: %w", err)
	}
	if net.Wout, err = matrixRestore(record.Wout, net.Outputs, net.ReadoutWidth(variant)); err != nil {
		return nil, fmt.Errorf("wout: %w", err)
	}
	if len(record.State) != net.Neurons {
		return nil, fmt.Errorf("%w: state length: got=%d want=%d", ErrDimension, len(record.State), net.Neurons)
	}
	net.X = mat.NewVecDense(net.Neurons, append([]float64(nil), record.State...))
	return net, nil
}

func matrixSnapshot(m *mat.Dense) model.Matrix {
	rows, cols := m.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return model.Matrix{Rows: rows, Cols: cols, Data: data}
}

func matrixRestore(snapshot model.Matrix, rows, cols int) (*mat.Dense, error) {
	if snapshot.Rows != rows || snapshot.Cols != cols {
		return nil, fmt.Errorf("%w: got=%dx%d want=%dx%d", ErrDimension, snapshot.Rows, snapshot.Cols, rows, cols)
	}
	if len(snapshot.Data) != rows*cols {
		return nil, fmt.Errorf("%w: data length: got=%d want=%d", ErrDimension, len(snapshot.Data), rows*cols)
	}
	return mat.NewDense(rows, cols, append([]float64(nil), snapshot.Data...)), nil
}
