package driver

import (
	"fmt"
	"io"
	"sort"

	dftbaby "github.com/kangmg/DFTBaby"
	"github.com/kangmg/DFTBaby/config"
	"github.com/kangmg/DFTBaby/kernel"
)

// TDDFTB runs the linear-response excited-state calculation on top of
// a converged ground state
type TDDFTB struct {
	cfg  *config.Config
	geom *dftbaby.Geometry
	gs   kernel.GroundState
	ex   kernel.ExcitedStates
	pcs  []kernel.PointCharge
}

// TDDFTBResult holds the ground state plus exactly nstates vertical
// excitations, energies non-decreasing with their paired oscillator
// strengths
type TDDFTBResult struct {
	Ground              *DFTB2Result
	Energies            []float64
	OscillatorStrengths []float64
}

// NewTDDFTB builds the excited-state driver; the backend must provide
// both the ground-state and the excited-state capability
func NewTDDFTB(cfg *config.Config, geom *dftbaby.Geometry, backend any) (*TDDFTB, error) {
	gs, ok := backend.(kernel.GroundState)
	if !ok {
		return nil, fmt.Errorf("%w: %q cannot run SCF",
			kernel.ErrCapability, cfg.DFTBaby.Kernel)
	}
	ex, ok := backend.(kernel.ExcitedStates)
	if !ok {
		return nil, fmt.Errorf("%w: %q cannot compute excitations",
			kernel.ErrCapability, cfg.DFTBaby.Kernel)
	}
	pcs, err := LoadPointCharges(cfg)
	if err != nil {
		return nil, err
	}
	return &TDDFTB{cfg: cfg, geom: geom, gs: gs, ex: ex, pcs: pcs}, nil
}

// Run performs the SCF and the excitation calculation. The kernel's
// excitations come back sorted by energy; oscillator strengths must be
// nonnegative or the run fails with ErrKernelResult.
func (t *TDDFTB) Run() (*TDDFTBResult, error) {
	in := BuildInput(t.cfg, t.geom, t.pcs)
	scf, err := t.gs.SCF(in)
	if err != nil {
		return nil, err
	}
	exc, err := t.ex.Excitations(in)
	if err != nil {
		return nil, err
	}
	n := t.cfg.DFTBaby.Nstates
	if len(exc.Energies) != n || len(exc.OscillatorStrengths) != n {
		return nil, fmt.Errorf("%w: %d excitations for nstates = %d",
			ErrKernelResult, len(exc.Energies), n)
	}
	res := &TDDFTBResult{
		Ground: &DFTB2Result{
			Energy:          scf.Energy,
			OrbitalEnergies: scf.OrbitalEnergies,
			Charges:         scf.Charges,
			HOMO:            scf.HOMO,
			Iterations:      scf.Iterations,
			Converged:       true,
		},
		Energies:            append([]float64{}, exc.Energies...),
		OscillatorStrengths: append([]float64{}, exc.OscillatorStrengths...),
	}
	sort.Sort(byEnergy{res.Energies, res.OscillatorStrengths})
	for _, f := range res.OscillatorStrengths {
		if f < 0 {
			return nil, fmt.Errorf(
				"%w: negative oscillator strength %g", ErrKernelResult, f)
		}
	}
	return res, nil
}

// byEnergy sorts excitation energies ascending, carrying the paired
// oscillator strengths along
type byEnergy struct {
	e, f []float64
}

func (s byEnergy) Len() int           { return len(s.e) }
func (s byEnergy) Less(i, j int) bool { return s.e[i] < s.e[j] }
func (s byEnergy) Swap(i, j int) {
	s.e[i], s.e[j] = s.e[j], s.e[i]
	s.f[i], s.f[j] = s.f[j], s.f[i]
}

// Summarize prints the excitation table
func (r *TDDFTBResult) Summarize(w io.Writer) {
	fmt.Fprintf(w, "ground-state energy: %18.10f hartree\n\n", r.Ground.Energy)
	fmt.Fprintf(w, "%6s %14s %10s %10s\n", "state", "E (hartree)", "E (eV)", "f")
	for i, e := range r.Energies {
		fmt.Fprintf(w, "%6d %14.8f %10.4f %10.5f\n", i+1, e,
			e*dftbaby.HartreeToEV, r.OscillatorStrengths[i])
	}
}
