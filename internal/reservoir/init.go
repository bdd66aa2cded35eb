// Package reservoir randomizes the fixed weight matrices of an echo
// state network: sparse uniform input, recurrent and feedback weights,
// with the recurrent matrix rescaled to a requested spectral radius.
package reservoir

import (
	"errors"
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"aureservoir/internal/esn"
)

var ErrZeroSpectralRadius = errors.New("sampled reservoir has zero spectral radius")

// Config carries the initialization parameters. Connectivities are the
// fraction of nonzero entries per matrix; Alpha is the spectral radius
// the recurrent matrix is scaled to.
type Config struct {
	Connectivity   float64
	InConnectivity float64
	FBConnectivity float64
	Alpha          float64

	InScale float64
	InShift float64
	FBScale float64
	FBShift float64
}

// DefaultConfig mirrors the usual echo-state setup: a sparse reservoir
// just inside the echo state property, dense inputs, no feedback.
func DefaultConfig() Config {
	return Config{
		Connectivity:   0.1,
		InConnectivity: 1.0,
		FBConnectivity: 0.0,
		Alpha:          0.8,
		InScale:        1.0,
		FBScale:        1.0,
	}
}

// Init fills the network's fixed weight matrices in place using the
// network's own seeded random source. The trained readout and the state
// vector are left untouched.
func Init(net *esn.Network, cfg Config) error {
	if cfg.Alpha <= 0 {
		return fmt.Errorf("alpha must be positive: %f", cfg.Alpha)
	}
	for _, c := range []struct {
		name  string
		value float64
	}{
		{"connectivity", cfg.Connectivity},
		{"input connectivity", cfg.InConnectivity},
		{"feedback connectivity", cfg.FBConnectivity},
	} {
		if c.value < 0 || c.value > 1 {
			return fmt.Errorf("%s must be in [0,1]: %f", c.name, c.value)
		}
	}
	if cfg.Connectivity == 0 {
		return errors.New("connectivity must not be zero: the reservoir needs recurrent weights")
	}

	rng := net.Rand()
	sparseUniform(net.Win, cfg.InConnectivity, cfg.InScale, cfg.InShift, rng.Float64)
	sparseUniform(net.Wback, cfg.FBConnectivity, cfg.FBScale, cfg.FBShift, rng.Float64)
	sparseUniform(net.W, cfg.Connectivity, 1, 0, rng.Float64)

	radius, err := spectralRadius(net.W)
	if err != nil {
		return err
	}
	if radius == 0 {
		return ErrZeroSpectralRadius
	}
	net.W.Scale(cfg.Alpha/radius, net.W)
	return nil
}

// sparseUniform fills m with scale*uniform(-1,1)+shift entries, keeping
// each entry with probability connectivity and zeroing the rest.
func sparseUniform(m *mat.Dense, connectivity, scale, shift float64, randFloat func() float64) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if randFloat() >= connectivity {
				m.Set(i, j, 0)
				continue
			}
			m.Set(i, j, scale*(randFloat()*2-1)+shift)
		}
	}
}

func spectralRadius(w *mat.Dense) (float64, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(w, mat.EigenNone); !ok {
		return 0, errors.New("eigenvalue factorization did not converge")
	}
	radius := 0.0
	for _, v := range eig.Values(nil) {
		if a := cmplx.Abs(v); a > radius {
			radius = a
		}
	}
	return radius, nil
}
