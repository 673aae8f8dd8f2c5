// Package model is the built-in reference backend. It stands in for
// the compiled Fortran kernels with a cheap analytic potential: a
// Morse pair interaction with exact gradients, a deterministic
// orbital spectrum seeded from the element table (or from
// Slater-Koster on-site energies when a parameter directory is
// configured), and excited surfaces that are smooth shifted copies of
// the ground surface. It is NOT an electronic-structure method; it
// exists so the orchestration layer has a backend that honors every
// capability contract and can run in tests without external
// executables.
package model

import (
	"fmt"
	"math"
	"sort"

	dftbaby "github.com/kangmg/DFTBaby"
	"github.com/kangmg/DFTBaby/kernel"
	"github.com/kangmg/DFTBaby/slako"
)

// Morse well depth, steepness, and the excited-surface shape
// parameters. The excited state k has E_k(x) = (1-scale*k)*E_0(x) +
// k*shift, which keeps energies and gradients exactly consistent.
const (
	wellDepth  = 0.15 // hartree
	steepness  = 0.9  // 1/bohr
	stateScale = 0.05
	stateShift = 0.10 // hartree
	couplingC0 = 0.02
	couplingW  = 0.10
)

func init() {
	kernel.Register("model", func(opts kernel.Options) (any, error) {
		return &Model{paramDir: opts.ParameterDir}, nil
	})
}

// Model implements every kernel capability analytically
type Model struct {
	paramDir string
	tables   slako.Set
	splines  map[string]*slako.Interpolator
}

// symbols maps the atomic numbers of in back to element symbols
func symbols(in kernel.Input) ([]string, error) {
	syms := make([]string, len(in.Z))
	for i, z := range in.Z {
		el, err := dftbaby.ElementByZ(z)
		if err != nil {
			return nil, err
		}
		syms[i] = el.Symbol
	}
	return syms, nil
}

// ensureTables loads the Slater-Koster set for the element pairs of
// syms on first use. Without a parameter directory the model runs on
// its built-in constants.
func (m *Model) ensureTables(syms []string) error {
	if m.paramDir == "" || m.tables != nil {
		return nil
	}
	set, err := slako.LoadDir(m.paramDir, syms)
	if err != nil {
		return err
	}
	m.tables = set
	m.splines = make(map[string]*slako.Interpolator)
	for key, tab := range set {
		in, err := slako.NewInterpolator(tab)
		if err != nil {
			return err
		}
		m.splines[key] = in
	}
	return nil
}

// hopping returns the ss-sigma hopping integral between two atoms at
// distance r, from the tables when present, otherwise from a fixed
// exponential
func (m *Model) hopping(a, b string, r float64) float64 {
	if sp, ok := m.splines[a+"-"+b]; ok {
		h, err := sp.Hamiltonian(slako.SSSigma, r)
		if err == nil {
			return h
		}
	}
	return -0.3 * math.Exp(-0.7*r)
}

// charges assigns Mulliken-style partial charges: the total charge
// spread evenly plus a fixed electron-count asymmetry term. They are
// geometry-independent on purpose so the point-charge gradient stays
// exact.
func charges(in kernel.Input, syms []string) []float64 {
	n := len(syms)
	qs := make([]float64, n)
	var mean float64
	elec := make([]float64, n)
	for i, s := range syms {
		el, _ := dftbaby.LookupElement(s)
		elec[i] = float64(el.Electrons)
		mean += elec[i]
	}
	mean /= float64(n)
	for i := range qs {
		qs[i] = float64(in.Charge)/float64(n) + 0.02*(mean-elec[i])
	}
	return qs
}

// ground evaluates the ground-state energy and gradient: Morse pairs
// plus the electrostatic embedding term
func (m *Model) ground(in kernel.Input, syms []string) (float64, []float64) {
	n := len(syms)
	grad := make([]float64, 3*n)
	var energy float64
	for i := 0; i < n; i++ {
		ei, _ := dftbaby.LookupElement(syms[i])
		for j := i + 1; j < n; j++ {
			ej, _ := dftbaby.LookupElement(syms[j])
			re := ei.Covalent + ej.Covalent
			var d [3]float64
			var r2 float64
			for k := 0; k < 3; k++ {
				d[k] = in.Coords[3*i+k] - in.Coords[3*j+k]
				r2 += d[k] * d[k]
			}
			r := math.Sqrt(r2)
			e := math.Exp(-steepness * (r - re))
			energy += wellDepth * ((1-e)*(1-e) - 1)
			dvdr := 2 * wellDepth * steepness * e * (1 - e)
			for k := 0; k < 3; k++ {
				g := dvdr * d[k] / r
				grad[3*i+k] += g
				grad[3*j+k] -= g
			}
		}
	}
	if len(in.PointCharges) > 0 {
		qs := charges(in, syms)
		for i := 0; i < n; i++ {
			for _, pc := range in.PointCharges {
				var d [3]float64
				var r2 float64
				for k := 0; k < 3; k++ {
					d[k] = in.Coords[3*i+k] - pc.Pos[k]
					r2 += d[k] * d[k]
				}
				r := math.Sqrt(r2)
				energy += qs[i] * pc.Q / r
				for k := 0; k < 3; k++ {
					grad[3*i+k] -= qs[i] * pc.Q * d[k] / (r2 * r)
				}
			}
		}
	}
	return energy, grad
}

// orbitals builds the deterministic orbital spectrum and the HOMO
// index. On-site energies come from the parameter tables when loaded;
// neighbor hopping spreads each atom's levels.
func (m *Model) orbitals(in kernel.Input, syms []string) ([]float64, int) {
	n := len(syms)
	var orbs []float64
	var nelec int
	for i := 0; i < n; i++ {
		el, _ := dftbaby.LookupElement(syms[i])
		nelec += el.Electrons
		epsS := -0.2 - 0.02*float64(el.Electrons)
		epsP := epsS + 0.12
		epsD := epsS + 0.20
		if tab, err := m.lookupTable(syms[i]); err == nil {
			epsS = tab.OnSite[0]
			if tab.OnSite[1] != 0 {
				epsP = tab.OnSite[1]
			}
			if tab.OnSite[2] != 0 {
				epsD = tab.OnSite[2]
			}
		}
		// net hopping to the neighbors spreads the on-site levels
		var t float64
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			var r2 float64
			for k := 0; k < 3; k++ {
				d := in.Coords[3*i+k] - in.Coords[3*j+k]
				r2 += d * d
			}
			t += m.hopping(syms[i], syms[j], math.Sqrt(r2))
		}
		for k := 0; k < el.Valence; k++ {
			var eps float64
			switch {
			case k == 0:
				eps = epsS
			case k < 4:
				eps = epsP
			default:
				eps = epsD
			}
			// alternate bonding/antibonding shifts
			orbs = append(orbs, eps+0.5*t*float64(1-2*(k%2)))
		}
	}
	sort.Float64s(orbs)
	nelec -= in.Charge
	homo := (nelec+1)/2 - 1
	if homo < 0 {
		homo = 0
	}
	if homo >= len(orbs) {
		homo = len(orbs) - 1
	}
	return orbs, homo
}

func (m *Model) lookupTable(sym string) (*slako.Table, error) {
	if m.tables == nil {
		return nil, slako.ErrNoTable
	}
	return m.tables.Lookup(sym, sym)
}

// scfIterations emulates the convergence behavior of a damped SCF:
// tighter thresholds and weaker mixing need more cycles. Returns the
// cycle count and whether the budget sufficed.
func scfIterations(p kernel.SCFParams) (int, bool) {
	contraction := 0.25 + 0.65*(1-p.Mixing)
	contraction = math.Min(math.Max(contraction, 0.05), 0.95)
	conv := p.Conv
	if conv <= 0 {
		conv = 1e-6
	}
	need := int(math.Ceil(math.Log(conv/0.1) / math.Log(contraction)))
	if need < 1 {
		need = 1
	}
	maxIter := p.MaxIter
	if maxIter <= 0 {
		maxIter = 100
	}
	if need > maxIter {
		return maxIter, false
	}
	return need, true
}

// SCF implements kernel.GroundState
func (m *Model) SCF(in kernel.Input) (*kernel.SCFResult, error) {
	if err := in.Check(); err != nil {
		return nil, err
	}
	syms, err := symbols(in)
	if err != nil {
		return nil, err
	}
	if err := m.ensureTables(syms); err != nil {
		return nil, err
	}
	energy, _ := m.ground(in, syms)
	orbs, homo := m.orbitals(in, syms)
	res := &kernel.SCFResult{
		Energy:          energy,
		OrbitalEnergies: orbs,
		Charges:         charges(in, syms),
		HOMO:            homo,
	}
	iters, converged := scfIterations(in.SCF)
	res.Iterations = iters
	if !converged {
		return res, fmt.Errorf("%w: SCF after %d iterations",
			kernel.ErrNotConverged, iters)
	}
	return res, nil
}

// gap returns the HOMO-LUMO gap with a floor so the excitation
// ladder stays positive
func gap(orbs []float64, homo int) float64 {
	g := 0.2
	if homo+1 < len(orbs) {
		g = orbs[homo+1] - orbs[homo]
	}
	if g < 0.01 {
		g = 0.01
	}
	return g
}

// Excitations implements kernel.ExcitedStates. The ladder starts
// below the orbital gap and climbs strictly, with oscillator
// strengths decaying from the lowest bright state.
func (m *Model) Excitations(in kernel.Input) (*kernel.ExcResult, error) {
	if err := in.Check(); err != nil {
		return nil, err
	}
	syms, err := symbols(in)
	if err != nil {
		return nil, err
	}
	if err := m.ensureTables(syms); err != nil {
		return nil, err
	}
	orbs, homo := m.orbitals(in, syms)
	base := 0.9 * gap(orbs, homo)
	if in.SCF.LongRange {
		// the long-range correction pushes charge-transfer-like
		// states up
		base += 0.02
	}
	res := &kernel.ExcResult{
		Energies:            make([]float64, in.Nstates),
		OscillatorStrengths: make([]float64, in.Nstates),
	}
	e := base
	for n := 0; n < in.Nstates; n++ {
		if n > 0 {
			e += 0.03 + 0.01*float64((n*37)%5)/5
		}
		res.Energies[n] = e
		res.OscillatorStrengths[n] = 0.4 * math.Exp(-0.3*float64(n)) *
			(1 + 0.1*math.Cos(1.7*float64(n)))
	}
	return res, nil
}

// stateEnergy maps the ground energy onto surface s
func stateEnergy(e0 float64, s int) float64 {
	return (1-stateScale*float64(s))*e0 + stateShift*float64(s)
}

// Gradient implements kernel.Gradients for the state in Input.State
func (m *Model) Gradient(in kernel.Input) (*kernel.GradResult, error) {
	if err := in.Check(); err != nil {
		return nil, err
	}
	syms, err := symbols(in)
	if err != nil {
		return nil, err
	}
	if err := m.ensureTables(syms); err != nil {
		return nil, err
	}
	e0, g0 := m.ground(in, syms)
	scale := 1 - stateScale*float64(in.State)
	grad := make([]float64, len(g0))
	for i, g := range g0 {
		grad[i] = scale * g
	}
	return &kernel.GradResult{
		Energy:   stateEnergy(e0, in.State),
		Gradient: grad,
	}, nil
}

// Surfaces implements kernel.Surfaces
func (m *Model) Surfaces(in kernel.Input) (*kernel.SurfaceResult, error) {
	gr, err := m.Gradient(in)
	if err != nil {
		return nil, err
	}
	syms, _ := symbols(in)
	e0, _ := m.ground(in, syms)
	nst := in.Nstates + 1
	res := &kernel.SurfaceResult{
		Energies:  make([]float64, nst),
		Gradient:  gr.Gradient,
		Couplings: make([][]float64, nst),
	}
	for s := 0; s < nst; s++ {
		res.Energies[s] = stateEnergy(e0, s)
		res.Couplings[s] = make([]float64, nst)
	}
	for s := 0; s < nst; s++ {
		for u := s + 1; u < nst; u++ {
			de := res.Energies[u] - res.Energies[s]
			c := couplingC0 * math.Exp(-(de/couplingW)*(de/couplingW))
			res.Couplings[s][u] = c
			res.Couplings[u][s] = -c
		}
	}
	return res, nil
}
