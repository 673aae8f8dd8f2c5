// Package kernel defines the contract between the calculation
// drivers and the compiled numerical backends. A backend is a
// capability-typed black box: fixed-shape numeric slices in,
// fixed-shape numeric slices out, opaque numerical failure propagated
// upward. Drivers never know how the integrals or gradients are
// computed; they marshal geometry and configuration into an Input and
// read named fields back out.
package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConverged reports a numerical iteration that ran out of
	// budget. The result returned alongside it holds the best
	// intermediate state; callers report it, never silently accept.
	ErrNotConverged = errors.New("calculation did not converge")
	// ErrUnknownKernel is the startup-fatal analog of a compiled
	// extension that fails to import
	ErrUnknownKernel = errors.New("unknown kernel backend")
	ErrCapability    = errors.New("kernel backend lacks capability")
	ErrBadInput      = errors.New("malformed kernel input")
)

// PointCharge is an external charge for electrostatic embedding
type PointCharge struct {
	Q   float64
	Pos [3]float64 // bohr
}

// SCFParams carries the self-consistency options into a backend
type SCFParams struct {
	Conv      float64
	MaxIter   int
	Mixing    float64
	LongRange bool
}

// Input is the marshaled form of one kernel invocation: atomic
// numbers, flat 3N coordinates in bohr, and the electronic-structure
// options. Backends must treat it as read-only.
type Input struct {
	Z            []int
	Coords       []float64
	Charge       int
	Multiplicity int
	Nstates      int
	State        int
	PointCharges []PointCharge
	SCF          SCFParams
}

// Natoms returns the atom count
func (in *Input) Natoms() int { return len(in.Z) }

// Check validates the fixed-shape invariants before an Input crosses
// into a backend
func (in *Input) Check() error {
	if len(in.Z) == 0 {
		return fmt.Errorf("%w: no atoms", ErrBadInput)
	}
	if len(in.Coords) != 3*len(in.Z) {
		return fmt.Errorf("%w: %d atoms with %d coordinates",
			ErrBadInput, len(in.Z), len(in.Coords))
	}
	if in.State < 0 || in.State > in.Nstates {
		return fmt.Errorf("%w: state %d outside 0..%d",
			ErrBadInput, in.State, in.Nstates)
	}
	return nil
}

// SCFResult is the ground-state output: total energy in hartree,
// orbital energies ascending, Mulliken charges per atom
type SCFResult struct {
	Energy          float64
	OrbitalEnergies []float64
	Charges         []float64
	HOMO            int
	Iterations      int
}

// ExcResult holds vertical excitation energies (hartree, ascending)
// and the matching oscillator strengths
type ExcResult struct {
	Energies            []float64
	OscillatorStrengths []float64
}

// GradResult is the energy and 3N gradient of the state requested in
// Input.State
type GradResult struct {
	Energy   float64
	Gradient []float64
}

// SurfaceResult is the per-step electronic-structure data the
// dynamics driver consumes: adiabatic energies for states
// 0..Nstates, the gradient of the active state, and the antisymmetric
// scalar coupling matrix
type SurfaceResult struct {
	Energies  []float64
	Gradient  []float64
	Couplings [][]float64
}

// The capabilities a backend may provide. Backends implement any
// subset; drivers assert the ones they need at construction.
type (
	GroundState interface {
		SCF(in Input) (*SCFResult, error)
	}
	ExcitedStates interface {
		Excitations(in Input) (*ExcResult, error)
	}
	Gradients interface {
		Gradient(in Input) (*GradResult, error)
	}
	Surfaces interface {
		Surfaces(in Input) (*SurfaceResult, error)
	}
)

// Options is what a backend factory gets to configure itself from
type Options struct {
	Command      string // extern: the kernel executable
	ParameterDir string // directory with Slater-Koster tables
	WorkDir      string // extern: where exchange files go
	Sections     map[string]map[string]string
}

// Factory builds a backend from its options
type Factory func(opts Options) (any, error)

var registry = make(map[string]Factory)

// Register installs a backend factory under name. Backends register
// themselves from init, drivers pick them by the configured name.
func Register(name string, f Factory) {
	if _, dup := registry[name]; dup {
		panic("kernel: duplicate backend " + name)
	}
	registry[name] = f
}

// New builds the backend registered under name. An unknown name is
// fatal to the run: it is the moral equivalent of a missing compiled
// extension.
func New(name string, opts Options) (any, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}
	return f(opts)
}
