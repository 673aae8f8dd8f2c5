package driver

import (
	"fmt"
	"io"

	dftbaby "github.com/kangmg/DFTBaby"
	"github.com/kangmg/DFTBaby/config"
	"github.com/kangmg/DFTBaby/kernel"
)

// DFTB2 is the ground-state driver: one SCF calculation at a fixed
// geometry
type DFTB2 struct {
	cfg  *config.Config
	geom *dftbaby.Geometry
	gs   kernel.GroundState
	pcs  []kernel.PointCharge
}

// DFTB2Result is the outcome of one ground-state calculation.
// Converged false means the SCF ran out of iterations; the fields
// still hold the best intermediate state.
type DFTB2Result struct {
	Energy          float64
	OrbitalEnergies []float64
	Charges         []float64
	HOMO            int
	Iterations      int
	Converged       bool
}

// NewDFTB2 builds the ground-state driver, asserting that the backend
// can run an SCF
func NewDFTB2(cfg *config.Config, geom *dftbaby.Geometry, backend any) (*DFTB2, error) {
	gs, ok := backend.(kernel.GroundState)
	if !ok {
		return nil, fmt.Errorf("%w: %q cannot run SCF",
			kernel.ErrCapability, cfg.DFTBaby.Kernel)
	}
	pcs, err := LoadPointCharges(cfg)
	if err != nil {
		return nil, err
	}
	return &DFTB2{cfg: cfg, geom: geom, gs: gs, pcs: pcs}, nil
}

// Run performs the SCF. A non-converged SCF returns the intermediate
// result together with kernel.ErrNotConverged.
func (d *DFTB2) Run() (*DFTB2Result, error) {
	in := BuildInput(d.cfg, d.geom, d.pcs)
	res, err := d.gs.SCF(in)
	if res == nil {
		return nil, err
	}
	out := &DFTB2Result{
		Energy:          res.Energy,
		OrbitalEnergies: res.OrbitalEnergies,
		Charges:         res.Charges,
		HOMO:            res.HOMO,
		Iterations:      res.Iterations,
		Converged:       err == nil,
	}
	return out, err
}

// Summarize prints the orbital-energy and charge tables
func (r *DFTB2Result) Summarize(w io.Writer, geom *dftbaby.Geometry) {
	fmt.Fprintf(w, "total energy: %18.10f hartree (%d SCF iterations)\n",
		r.Energy, r.Iterations)
	if !r.Converged {
		fmt.Fprintf(w, "WARNING: SCF did not converge\n")
	}
	fmt.Fprintf(w, "\n%4s %16s %12s\n", "MO", "E (hartree)", "E (eV)")
	for i, e := range r.OrbitalEnergies {
		mark := ""
		if i == r.HOMO {
			mark = "  HOMO"
		}
		fmt.Fprintf(w, "%4d %16.8f %12.4f%s\n", i, e,
			e*dftbaby.HartreeToEV, mark)
	}
	if len(r.Charges) == geom.Natoms() {
		fmt.Fprintf(w, "\n%4s %4s %10s\n", "atom", "el", "charge")
		for i, q := range r.Charges {
			fmt.Fprintf(w, "%4d %4s %10.5f\n", i+1, geom.Symbols[i], q)
		}
	}
}
