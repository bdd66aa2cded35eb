package activation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
)

// Func applies an element-wise transform in place over buf.
type Func func(buf []float64)

// Set pairs an activation with its inverse. Invert is required because
// training solves for the readout in the pre-activation domain.
type Set struct {
	Name   string
	Apply  Func
	Invert Func
}

var registry = struct {
	mu sync.RWMutex
	m  map[string]Set
}{
	m: make(map[string]Set),
}

func init() {
	initializeBuiltIns()
}

func initializeBuiltIns() {
	MustRegister(Set{
		Name:   "linear",
		Apply:  func(buf []float64) {},
		Invert: func(buf []float64) {},
	})
	MustRegister(Set{
		Name:   "tanh",
		Apply:  applyScalar(math.Tanh),
		Invert: applyScalar(math.Atanh),
	})
	MustRegister(Set{
		Name:   "sigmoid",
		Apply:  applyScalar(func(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }),
		Invert: applyScalar(func(y float64) float64 { return math.Log(y / (1.0 - y)) }),
	})
}

func applyScalar(fn func(float64) float64) Func {
	return func(buf []float64) {
		for i, x := range buf {
			buf[i] = fn(x)
		}
	}
}

func Register(set Set) error {
	if set.Name == "" {
		return errors.New("activation name is required")
	}
	if set.Apply == nil || set.Invert == nil {
		return errors.New("activation apply and invert functions are required")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.m[set.Name]; exists {
		return fmt.Errorf("%w: %s", ErrActivationExists, set.Name)
	}
	registry.m[set.Name] = set
	return nil
}

func MustRegister(set Set) {
	if err := Register(set); err != nil {
		panic(err)
	}
}

func Get(name string) (Set, error) {
	registry.mu.RLock()
	set, ok := registry.m[name]
	registry.mu.RUnlock()
	if !ok {
		return Set{}, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
	}
	return set, nil
}

func List() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.m))
	for name := range registry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetRegistryForTests() {
	registry.mu.Lock()
	registry.m = make(map[string]Set)
	registry.mu.Unlock()
	initializeBuiltIns()
}
