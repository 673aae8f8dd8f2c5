package driver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	dftbaby "github.com/kangmg/DFTBaby"
	"github.com/kangmg/DFTBaby/config"
	"github.com/kangmg/DFTBaby/kernel"
)

// SurfaceHopping integrates fewest-switches trajectories: classical
// nuclei on the active adiabatic surface, electronic coefficients
// propagated alongside, stochastic hops decided per step
type SurfaceHopping struct {
	cfg  *config.Config
	geom *dftbaby.Geometry
	surf kernel.Surfaces
	pcs  []kernel.PointCharge
	dir  string

	x, v       []float64
	c          []complex128
	state      int
	step       int
	time       float64 // a.u.
	hops       int
	frustrated int
	restored   bool
	rng        *rand.Rand
}

// HopResult summarizes a finished trajectory
type HopResult struct {
	Steps       int
	Time        float64 // fs
	FinalState  int
	FinalEnergy float64
	Hops        int
	Frustrated  int
}

// Checkpoint is the JSON-serialized restart state of a trajectory
type Checkpoint struct {
	Step       int       `json:"step"`
	Time       float64   `json:"time"`
	State      int       `json:"state"`
	Coords     []float64 `json:"coords"`
	Velocities []float64 `json:"velocities"`
	CoeffRe    []float64 `json:"coeff_re"`
	CoeffIm    []float64 `json:"coeff_im"`
	Hops       int       `json:"hops"`
	Frustrated int       `json:"frustrated"`
}

// NewSurfaceHopping builds the dynamics driver. vel holds the initial
// velocities in atomic units, 3N entries, or nil for a cold start.
func NewSurfaceHopping(cfg *config.Config, geom *dftbaby.Geometry,
	vel []float64, backend any) (*SurfaceHopping, error) {
	surf, ok := backend.(kernel.Surfaces)
	if !ok {
		return nil, fmt.Errorf("%w: %q cannot compute surfaces",
			kernel.ErrCapability, cfg.DFTBaby.Kernel)
	}
	if vel != nil && len(vel) != len(geom.Coords) {
		return nil, fmt.Errorf("%w: %d velocities for %d coordinates",
			dftbaby.ErrLengthMismatch, len(vel), len(geom.Coords))
	}
	pcs, err := LoadPointCharges(cfg)
	if err != nil {
		return nil, err
	}
	s := &SurfaceHopping{
		cfg:  cfg,
		geom: geom,
		surf: surf,
		pcs:  pcs,
		dir:  ".",
		x:    append([]float64{}, geom.Coords...),
		v:    make([]float64, len(geom.Coords)),
	}
	if vel != nil {
		copy(s.v, vel)
	}
	nst := cfg.DFTBaby.Nstates + 1
	s.c = make([]complex128, nst)
	s.state = cfg.SurfaceHopping.InitialState
	s.c[s.state] = 1
	seed := cfg.SurfaceHopping.Seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	s.rng = rand.New(rand.NewSource(seed))
	return s, nil
}

// SetDir moves all output and checkpoint files into dir
func (s *SurfaceHopping) SetDir(dir string) { s.dir = dir }

func (s *SurfaceHopping) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

// SaveCheckpoint writes the restart state as indented JSON
func (s *SurfaceHopping) SaveCheckpoint(filename string) error {
	ch := Checkpoint{
		Step:       s.step,
		Time:       s.time,
		State:      s.state,
		Coords:     s.x,
		Velocities: s.v,
		CoeffRe:    make([]float64, len(s.c)),
		CoeffIm:    make([]float64, len(s.c)),
		Hops:       s.hops,
		Frustrated: s.frustrated,
	}
	for i, ci := range s.c {
		ch.CoeffRe[i] = real(ci)
		ch.CoeffIm[i] = imag(ci)
	}
	data, err := json.MarshalIndent(ch, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

// LoadCheckpoint restores the trajectory state written by
// SaveCheckpoint; Run then continues from the stored step
func (s *SurfaceHopping) LoadCheckpoint(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	var ch Checkpoint
	if err := json.Unmarshal(data, &ch); err != nil {
		return err
	}
	if len(ch.Coords) != len(s.x) || len(ch.CoeffRe) != len(s.c) {
		return fmt.Errorf("%w: checkpoint does not match this system",
			dftbaby.ErrLengthMismatch)
	}
	s.step = ch.Step
	s.time = ch.Time
	s.state = ch.State
	copy(s.x, ch.Coords)
	copy(s.v, ch.Velocities)
	for i := range s.c {
		s.c[i] = complex(ch.CoeffRe[i], ch.CoeffIm[i])
	}
	s.hops = ch.Hops
	s.frustrated = ch.Frustrated
	s.restored = true
	return nil
}

// evaluate runs the kernel at the current coordinates for the active
// state
func (s *SurfaceHopping) evaluate() (*kernel.SurfaceResult, error) {
	in := BuildInput(s.cfg, s.geom, s.pcs)
	copy(in.Coords, s.x)
	in.State = s.state
	return s.surf.Surfaces(in)
}

// kinetic is the nuclear kinetic energy in hartree
func (s *SurfaceHopping) kinetic(masses []float64) float64 {
	var e float64
	for i, vi := range s.v {
		e += 0.5 * masses[i] * vi * vi
	}
	return e
}

// propagate advances the electronic coefficients one step to first
// order and renormalizes
func (s *SurfaceHopping) propagate(dt float64, res *kernel.SurfaceResult) {
	next := make([]complex128, len(s.c))
	for k := range s.c {
		cdot := complex(0, -res.Energies[k]) * s.c[k]
		for j := range s.c {
			if j != k {
				cdot -= complex(res.Couplings[k][j], 0) * s.c[j]
			}
		}
		next[k] = s.c[k] + complex(dt, 0)*cdot
	}
	var nrm float64
	for _, ck := range next {
		nrm += real(ck)*real(ck) + imag(ck)*imag(ck)
	}
	nrm = math.Sqrt(nrm)
	for k := range next {
		s.c[k] = next[k] / complex(nrm, 0)
	}
}

// decideHop draws the fewest-switches decision. It returns the target
// state, or the current one when no hop fires. Couplings below the
// configured threshold never trigger the stochastic draw.
func (s *SurfaceHopping) decideHop(dt float64, res *kernel.SurfaceResult) int {
	var maxC float64
	for j := range s.c {
		if a := math.Abs(res.Couplings[s.state][j]); a > maxC {
			maxC = a
		}
	}
	if maxC < s.cfg.SurfaceHopping.CouplingThreshold {
		return s.state
	}
	pop := real(s.c[s.state])*real(s.c[s.state]) +
		imag(s.c[s.state])*imag(s.c[s.state])
	if pop < 1e-12 {
		return s.state
	}
	r := s.rng.Float64()
	var cum float64
	for j := range s.c {
		if j == s.state {
			continue
		}
		g := -2 * dt * real(cmplx.Conj(s.c[s.state])*s.c[j]) *
			res.Couplings[s.state][j] / pop
		if g < 0 {
			g = 0
		}
		cum += g
		if r < cum {
			return j
		}
	}
	return s.state
}

// tryHop applies the energy-conservation test for a hop to target and
// rescales the velocities uniformly when it passes. A frustrated hop
// leaves velocities and state untouched.
func (s *SurfaceHopping) tryHop(target int, masses []float64,
	res *kernel.SurfaceResult) bool {
	dE := res.Energies[target] - res.Energies[s.state]
	ekin := s.kinetic(masses)
	if ekin <= dE {
		s.frustrated++
		return false
	}
	scale := math.Sqrt(1 - dE/ekin)
	for i := range s.v {
		s.v[i] *= scale
	}
	s.state = target
	s.hops++
	return true
}

// decohere applies the energy-based decoherence damping and restores
// the norm through the active-state coefficient
func (s *SurfaceHopping) decohere(dt, ekin float64, res *kernel.SurfaceResult) {
	if !s.cfg.SurfaceHopping.Decoherence || ekin <= 0 {
		return
	}
	cc := s.cfg.SurfaceHopping.DecoherenceC
	var other float64
	for j := range s.c {
		if j == s.state {
			continue
		}
		dE := math.Abs(res.Energies[j] - res.Energies[s.state])
		if dE < 1e-12 {
			continue
		}
		tau := (1 + cc/ekin) / dE
		s.c[j] *= complex(math.Exp(-dt/tau), 0)
		other += real(s.c[j])*real(s.c[j]) + imag(s.c[j])*imag(s.c[j])
	}
	act := cmplx.Abs(s.c[s.state])
	if act > 1e-12 && other < 1 {
		s.c[s.state] *= complex(math.Sqrt(1-other)/act, 0)
	}
}

// datWriter is one column file, flushed on close
type datWriter struct {
	f *os.File
	w *bufio.Writer
}

func newDatWriter(filename string, appendTo bool) (*datWriter, error) {
	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendTo {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(filename, flag, 0o644)
	if err != nil {
		return nil, err
	}
	return &datWriter{f: f, w: bufio.NewWriter(f)}, nil
}

func (d *datWriter) close() error {
	if err := d.w.Flush(); err != nil {
		return err
	}
	return d.f.Close()
}

// Run integrates the trajectory. The per-step order is: nuclear step,
// electronic-structure evaluation, coefficient propagation, hop
// decision, decoherence.
func (s *SurfaceHopping) Run() (*HopResult, error) {
	sh := s.cfg.SurfaceHopping
	dt := sh.NuclearStep * dftbaby.FsToAUTime
	masses := s.geom.Masses3()
	nst := len(s.c)

	// a restored run appends so the pre-restart history survives
	var traj *dftbaby.TrajWriter
	var err error
	if s.restored {
		traj, err = dftbaby.AppendTrajWriter(s.path(sh.TrajectoryFile),
			s.geom.Natoms())
	} else {
		traj, err = dftbaby.NewTrajWriter(s.path(sh.TrajectoryFile),
			s.geom.Natoms())
	}
	if err != nil {
		return nil, err
	}
	defer traj.Close()
	stateDat, err := newDatWriter(s.path("state.dat"), s.restored)
	if err != nil {
		return nil, err
	}
	defer stateDat.close()
	energyDat := make([]*datWriter, nst)
	coeffDat := make([]*datWriter, nst)
	for n := 0; n < nst; n++ {
		if energyDat[n], err = newDatWriter(
			s.path(fmt.Sprintf("energy_%d.dat", n)), s.restored); err != nil {
			return nil, err
		}
		defer energyDat[n].close()
		if coeffDat[n], err = newDatWriter(
			s.path(fmt.Sprintf("coeff_%d.dat", n)), s.restored); err != nil {
			return nil, err
		}
		defer coeffDat[n].close()
	}

	cur, err := s.evaluate()
	if err != nil {
		return nil, err
	}
	frame := s.geom.Copy()
	output := func(res *kernel.SurfaceResult) error {
		tfs := s.time * dftbaby.AUTimeToFs
		copy(frame.Coords, s.x)
		comment := fmt.Sprintf("time=%.4f state=%d", tfs, s.state)
		if err := traj.WriteFrame(frame, comment); err != nil {
			return err
		}
		fmt.Fprintf(stateDat.w, "%12.4f %4d\n", tfs, s.state)
		for n := 0; n < nst; n++ {
			fmt.Fprintf(energyDat[n].w, "%12.4f %18.10f\n", tfs, res.Energies[n])
			p := real(s.c[n])*real(s.c[n]) + imag(s.c[n])*imag(s.c[n])
			fmt.Fprintf(coeffDat[n].w, "%12.4f %12.8f\n", tfs, p)
		}
		return nil
	}
	// the restart-time row is already in the files
	if !s.restored {
		if err := output(cur); err != nil {
			return nil, err
		}
	}

	for s.step < sh.Nsteps {
		s.step++
		// velocity Verlet
		a1 := make([]float64, len(s.x))
		for i := range s.x {
			a1[i] = -cur.Gradient[i] / masses[i]
			s.x[i] += s.v[i]*dt + 0.5*a1[i]*dt*dt
		}
		next, err := s.evaluate()
		if err != nil {
			return s.result(cur), err
		}
		for i := range s.v {
			s.v[i] += 0.5 * (a1[i] - next.Gradient[i]/masses[i]) * dt
		}
		s.propagate(dt, next)
		if target := s.decideHop(dt, next); target != s.state {
			if s.tryHop(target, masses, next) {
				// the gradient must follow the new active state
				if next, err = s.evaluate(); err != nil {
					return s.result(next), err
				}
			}
		}
		s.decohere(dt, s.kinetic(masses), next)
		cur = next
		s.time += dt
		if s.step%sh.OutputStep == 0 {
			if err := output(cur); err != nil {
				return nil, err
			}
		}
		if sh.CheckpointStep > 0 && s.step%sh.CheckpointStep == 0 {
			if err := s.SaveCheckpoint(s.path("restart.json")); err != nil {
				return nil, err
			}
		}
	}
	return s.result(cur), nil
}

func (s *SurfaceHopping) result(res *kernel.SurfaceResult) *HopResult {
	out := &HopResult{
		Steps:      s.step,
		Time:       s.time * dftbaby.AUTimeToFs,
		FinalState: s.state,
		Hops:       s.hops,
		Frustrated: s.frustrated,
	}
	if res != nil {
		out.FinalEnergy = res.Energies[s.state]
	}
	return out
}
