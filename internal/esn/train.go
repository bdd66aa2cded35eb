package esn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Trainer computes the readout weights offline: it drives the simulation
// engine under teacher forcing, collects the design matrix and solves
// for Wout. A failed call leaves the network's previous Wout untouched.
type Trainer interface {
	Solver() Solver
	Train(net *Network, sim Simulator, in, target *mat.Dense, washout int) error
}

// NewTrainer returns the engine for a training solver.
func NewTrainer(s Solver) (Trainer, error) {
	switch s {
	case SolverPseudoInverse:
		return &trainPseudoInverse{}, nil
	case SolverLeastSquares:
		return &trainLeastSquares{}, nil
	case SolverRidge:
		return &trainRidge{}, nil
	default:
		return nil, fmt.Errorf("unsupported training solver: %s", s)
	}
}

// trainBase holds the transient design matrix m (one row per retained
// step) and target matrix o (time-major). Both are discarded after every
// call, on failure as on success.
type trainBase struct {
	m *mat.Dense
	o *mat.Dense
}

// run is the pipeline shared by all solvers: validate, reallocate the
// simulation engine, collect teacher-forced states, widen for the square
// variant, undo the output activation on the targets, then hand m and o
// to the solver. solve returns the solution of m*x ~ o, one column per
// output.
func (t *trainBase) run(net *Network, sim Simulator, in, target *mat.Dense, washout int,
	solve func(m, o *mat.Dense, net *Network) (*mat.Dense, error)) error {

	if err := t.checkParams(net, sim, in, target, washout); err != nil {
		return err
	}
	defer t.clear()

	sim.Reallocate(net)
	if err := t.collectStates(net, sim, in, target, washout); err != nil {
		return err
	}
	if sim.Variant() == VariantSquare {
		t.squareStates(net)
	}

	// The readout is linear in the pre-activation domain, so express
	// the targets there before solving.
	net.OutputInvAct(t.o.RawMatrix().Data)

	solution, err := solve(t.m, t.o, net)
	if err != nil {
		return err
	}

	_, width := t.m.Dims()
	wout := mat.NewDense(net.Outputs, width, nil)
	wout.Copy(solution.T())
	net.Wout = wout
	return nil
}

func (t *trainBase) checkParams(net *Network, sim Simulator, in, target *mat.Dense, washout int) error {
	inRows, inCols := in.Dims()
	targetRows, targetCols := target.Dims()
	if inCols != targetCols {
		return fmt.Errorf("%w: input and target must have the same number of steps: %d != %d", ErrDimension, inCols, targetCols)
	}
	if inRows != net.Inputs {
		return fmt.Errorf("%w: input rows: got=%d want=%d", ErrDimension, inRows, net.Inputs)
	}
	if targetRows != net.Outputs {
		return fmt.Errorf("%w: target rows: got=%d want=%d", ErrDimension, targetRows, net.Outputs)
	}
	if washout < 0 {
		return fmt.Errorf("%w: washout must not be negative: %d", ErrDimension, washout)
	}
	if sim.Variant() != net.Variant {
		return fmt.Errorf("%w: simulator runs the %s variant but the network is configured for %s",
			ErrDimension, sim.Variant(), net.Variant)
	}
	if width := net.ReadoutWidth(sim.Variant()); inCols-washout < width {
		return fmt.Errorf("%w: need at least %d steps after washout, got %d", ErrTrainingData, width, inCols-washout)
	}
	return nil
}

// collectStates steps the simulation engine one column at a time.
// After every step the true target column replaces the engine's stored
// output, so the next step's feedback uses ground truth. Rows past the
// washout land in m (post-activation state, then input) and o.
func (t *trainBase) collectStates(net *Network, sim Simulator, in, target *mat.Dense, washout int) error {
	_, steps := in.Dims()
	rows := steps - washout
	t.m = mat.NewDense(rows, net.ReadoutWidth(sim.Variant()), nil)
	t.o = mat.NewDense(rows, net.Outputs, nil)

	simIn := mat.NewDense(net.Inputs, 1, nil)
	simOut := mat.NewDense(net.Outputs, 1, nil)
	u := make([]float64, net.Inputs)

	for n := 0; n < steps; n++ {
		mat.Col(u, n, in)
		simIn.SetCol(0, u)
		if err := sim.Simulate(net, simIn, simOut); err != nil {
			return err
		}
		sim.ForceOutput(target.ColView(n))

		if n < washout {
			continue
		}
		row := n - washout
		for j := 0; j < net.Neurons; j++ {
			t.m.Set(row, j, net.X.AtVec(j))
		}
		for j := 0; j < net.Inputs; j++ {
			t.m.Set(row, net.Neurons+j, u[j])
		}
		for j := 0; j < net.Outputs; j++ {
			t.o.Set(row, j, target.At(j, n))
		}
	}
	return nil
}

// squareStates fills the second half of m's columns with the squared
// state and input features the square variant's readout expects.
func (t *trainBase) squareStates(net *Network) {
	base := net.Neurons + net.Inputs
	rows, _ := t.m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < base; j++ {
			v := t.m.At(i, j)
			t.m.Set(i, base+j, v*v)
		}
	}
}

func (t *trainBase) clear() {
	t.m = nil
	t.o = nil
}

type trainPseudoInverse struct {
	trainBase
}

func (t *trainPseudoInverse) Solver() Solver { return SolverPseudoInverse }

func (t *trainPseudoInverse) Train(net *Network, sim Simulator, in, target *mat.Dense, washout int) error {
	return t.run(net, sim, in, target, washout, solvePseudoInverse)
}

// solvePseudoInverse computes the minimum-norm least squares solution
// through a thin SVD, discarding singular values below the usual
// eps*max(rows,cols)*smax threshold so rank-deficient design matrices
// stay solvable.
func solvePseudoInverse(m, o *mat.Dense, _ *Network) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: svd did not converge", ErrSolve)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	rows, cols := m.Dims()
	maxDim := rows
	if cols > maxDim {
		maxDim = cols
	}
	tol := 0.0
	if len(values) > 0 {
		tol = float64(maxDim) * values[0] * epsFloat64
	}

	// solution = V * diag(1/s) * Uᵀ * o
	var proj mat.Dense
	proj.Mul(u.T(), o)
	_, projCols := proj.Dims()
	for i, s := range values {
		inv := 0.0
		if s > tol && s > 0 {
			inv = 1 / s
		}
		for j := 0; j < projCols; j++ {
			proj.Set(i, j, proj.At(i, j)*inv)
		}
	}

	var solution mat.Dense
	solution.Mul(&v, &proj)
	return &solution, nil
}

type trainLeastSquares struct {
	trainBase
}

func (t *trainLeastSquares) Solver() Solver { return SolverLeastSquares }

func (t *trainLeastSquares) Train(net *Network, sim Simulator, in, target *mat.Dense, washout int) error {
	return t.run(net, sim, in, target, washout, solveLeastSquares)
}

// solveLeastSquares uses the QR-backed dense solve. It assumes full
// column rank; a rank-deficient design matrix is a caller-visible
// failure.
func solveLeastSquares(m, o *mat.Dense, _ *Network) (*mat.Dense, error) {
	var solution mat.Dense
	if err := solution.Solve(m, o); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolve, err)
	}
	return &solution, nil
}

type trainRidge struct {
	trainBase
}

func (t *trainRidge) Solver() Solver { return SolverRidge }

func (t *trainRidge) Train(net *Network, sim Simulator, in, target *mat.Dense, washout int) error {
	return t.run(net, sim, in, target, washout, solveRidge)
}

// solveRidge solves (MᵀM + α²I) x = Mᵀ o with the network's configured Tikhonov
// factor squared on the Gram diagonal. A singular regularized Gram
// matrix (α=0 with deficient rank) surfaces as ErrSolve.
func solveRidge(m, o *mat.Dense, net *Network) (*mat.Dense, error) {
	alpha := net.TikhonovFactor * net.TikhonovFactor

	var gram mat.Dense
	gram.Mul(m.T(), m)
	size, _ := gram.Dims()
	for i := 0; i < size; i++ {
		gram.Set(i, i, gram.At(i, i)+alpha)
	}

	var inverse mat.Dense
	if err := inverse.Inverse(&gram); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolve, err)
	}

	var pre, solution mat.Dense
	pre.Mul(&inverse, m.T())
	solution.Mul(&pre, o)
	return &solution, nil
}

var epsFloat64 = math.Nextafter(1, 2) - 1
