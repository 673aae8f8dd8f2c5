package driver

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	dftbaby "github.com/kangmg/DFTBaby"
	"github.com/kangmg/DFTBaby/config"
	"github.com/kangmg/DFTBaby/kernel"
)

// ErrConstraint tags an unparseable constraint specification
var ErrConstraint = errors.New("bad constraint")

// OptState is the lifecycle of an optimization run
type OptState int

const (
	Initialized OptState = iota
	Iterating
	Converged
	MaxStepsExceeded
)

func (s OptState) String() string {
	return [...]string{
		"Initialized", "Iterating", "Converged", "MaxStepsExceeded",
	}[s]
}

// Restraint stiffnesses in hartree per bohr^2 and per radian^2. Stiff
// enough to hold the coordinate against the potential, soft enough not
// to wreck the line searches.
const (
	kBond  = 1.0
	kAngle = 0.5
)

// Constraint is one internal-coordinate equality constraint, enforced
// as a harmonic restraint in the objective. Targets are stored in bohr
// and radians.
type Constraint struct {
	Kind   string // bond, angle, dihedral
	Atoms  []int  // 0-based
	Target float64
}

// ParseConstraints parses a constraint spec like
// "bond 1 2 1.4; angle 1 2 3 104.5". Atom indices are 1-based, bond
// targets in Angstrom, angles and dihedrals in degrees.
func ParseConstraints(spec string, natoms int) ([]Constraint, error) {
	var out []Constraint
	for _, seg := range strings.Split(spec, ";") {
		fields := strings.Fields(seg)
		if len(fields) == 0 {
			continue
		}
		var nat int
		switch fields[0] {
		case "bond":
			nat = 2
		case "angle":
			nat = 3
		case "dihedral":
			nat = 4
		default:
			return nil, fmt.Errorf("%w: unknown kind %q", ErrConstraint, fields[0])
		}
		if len(fields) != nat+2 {
			return nil, fmt.Errorf("%w: %q wants %d atoms and a target",
				ErrConstraint, fields[0], nat)
		}
		c := Constraint{Kind: fields[0], Atoms: make([]int, nat)}
		for i := 0; i < nat; i++ {
			idx, err := strconv.Atoi(fields[i+1])
			if err != nil || idx < 1 || idx > natoms {
				return nil, fmt.Errorf("%w: atom index %q outside 1..%d",
					ErrConstraint, fields[i+1], natoms)
			}
			c.Atoms[i] = idx - 1
		}
		target, err := strconv.ParseFloat(fields[nat+1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: target %q", ErrConstraint, fields[nat+1])
		}
		if c.Kind == "bond" {
			c.Target = target * dftbaby.AngToBohr
		} else {
			c.Target = target * math.Pi / 180
		}
		out = append(out, c)
	}
	return out, nil
}

// Value evaluates the constrained internal coordinate at x
func (c *Constraint) Value(x []float64) float64 {
	p := func(i int) []float64 { return x[3*c.Atoms[i] : 3*c.Atoms[i]+3] }
	switch c.Kind {
	case "bond":
		return dist(p(0), p(1))
	case "angle":
		return bendAngle(p(0), p(1), p(2))
	default:
		return torsion(p(0), p(1), p(2), p(3))
	}
}

// Energy is the harmonic restraint energy at x. Angle-like deviations
// wrap into (-pi, pi] so the dihedral restraint respects periodicity.
func (c *Constraint) Energy(x []float64) float64 {
	d := c.Value(x) - c.Target
	k := kBond
	if c.Kind != "bond" {
		k = kAngle
		for d > math.Pi {
			d -= 2 * math.Pi
		}
		for d <= -math.Pi {
			d += 2 * math.Pi
		}
	}
	return 0.5 * k * d * d
}

// addGradient accumulates the restraint gradient into grad by central
// differences; the restraint is cheap so the extra evaluations cost
// nothing next to a kernel call
func (c *Constraint) addGradient(grad, x []float64) {
	const h = 1e-5
	xs := make([]float64, len(x))
	copy(xs, x)
	for _, a := range c.Atoms {
		for k := 0; k < 3; k++ {
			i := 3*a + k
			xs[i] = x[i] + h
			ep := c.Energy(xs)
			xs[i] = x[i] - h
			em := c.Energy(xs)
			xs[i] = x[i]
			grad[i] += (ep - em) / (2 * h)
		}
	}
}

func dist(a, b []float64) float64 {
	var r2 float64
	for k := 0; k < 3; k++ {
		d := a[k] - b[k]
		r2 += d * d
	}
	return math.Sqrt(r2)
}

func bendAngle(a, b, c []float64) float64 {
	var u, v [3]float64
	for k := 0; k < 3; k++ {
		u[k] = a[k] - b[k]
		v[k] = c[k] - b[k]
	}
	cosT := dot(u[:], v[:]) / (norm(u[:]) * norm(v[:]))
	return math.Acos(math.Max(-1, math.Min(1, cosT)))
}

func torsion(a, b, c, d []float64) float64 {
	var b1, b2, b3 [3]float64
	for k := 0; k < 3; k++ {
		b1[k] = b[k] - a[k]
		b2[k] = c[k] - b[k]
		b3[k] = d[k] - c[k]
	}
	n1 := cross(b1, b2)
	n2 := cross(b2, b3)
	nb2 := norm(b2[:])
	var m [3]float64
	for k := 0; k < 3; k++ {
		m[k] = b2[k] / nb2
	}
	mCross := cross(n1, m)
	return math.Atan2(dot(mCross[:], n2[:]), dot(n1[:], n2[:]))
}

func dot(a, b []float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func norm(a []float64) float64 { return math.Sqrt(dot(a, a)) }

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// GeomOpt minimizes the energy of the configured electronic state over
// the nuclear coordinates
type GeomOpt struct {
	cfg  *config.Config
	geom *dftbaby.Geometry
	gr   kernel.Gradients
	pcs  []kernel.PointCharge
	cons []Constraint
}

// OptResult is the outcome of an optimization run
type OptResult struct {
	State       OptState
	Energy      float64
	Geometry    *dftbaby.Geometry
	GradNorm    float64
	Steps       int
	Evaluations int
}

// NewGeomOpt builds the optimization driver, asserting the gradient
// capability and parsing the constraint spec
func NewGeomOpt(cfg *config.Config, geom *dftbaby.Geometry, backend any) (*GeomOpt, error) {
	gr, ok := backend.(kernel.Gradients)
	if !ok {
		return nil, fmt.Errorf("%w: %q cannot compute gradients",
			kernel.ErrCapability, cfg.DFTBaby.Kernel)
	}
	cons, err := ParseConstraints(cfg.GeomOpt.Constraints, geom.Natoms())
	if err != nil {
		return nil, err
	}
	pcs, err := LoadPointCharges(cfg)
	if err != nil {
		return nil, err
	}
	return &GeomOpt{cfg: cfg, geom: geom, gr: gr, pcs: pcs, cons: cons}, nil
}

// objective adapts the kernel gradient to gonum/optimize, counting
// kernel evaluations and capturing the first kernel error. The last
// point is cached because Minimize asks for Func and Grad separately
// at the same x.
type objective struct {
	o     *GeomOpt
	in    kernel.Input
	evals int
	err   error
	lastX []float64
	lastE float64
	lastG []float64
}

func (ob *objective) eval(x []float64) (float64, []float64) {
	if ob.lastX != nil && floats.Equal(x, ob.lastX) {
		return ob.lastE, ob.lastG
	}
	copy(ob.in.Coords, x)
	res, err := ob.o.gr.Gradient(ob.in)
	ob.evals++
	if err != nil {
		if ob.err == nil {
			ob.err = err
		}
		return 0, make([]float64, len(x))
	}
	e := res.Energy
	g := make([]float64, len(res.Gradient))
	copy(g, res.Gradient)
	for i := range ob.o.cons {
		e += ob.o.cons[i].Energy(x)
		ob.o.cons[i].addGradient(g, x)
	}
	if ob.lastX == nil {
		ob.lastX = make([]float64, len(x))
	}
	copy(ob.lastX, x)
	ob.lastE = e
	ob.lastG = g
	return e, g
}

func (ob *objective) hess(dst *mat.SymDense, x []float64) {
	const h = 1e-4
	n := len(x)
	xs := make([]float64, n)
	copy(xs, x)
	for i := 0; i < n; i++ {
		xs[i] = x[i] + h
		_, gp := ob.eval(xs)
		gp = append([]float64{}, gp...)
		xs[i] = x[i] - h
		_, gm := ob.eval(xs)
		xs[i] = x[i]
		for j := i; j < n; j++ {
			dst.SetSym(i, j, (gp[j]-gm[j])/(2*h))
		}
	}
}

// Run minimizes the energy. max_steps = 0 is a dry run: one kernel
// evaluation, then MaxStepsExceeded with the input geometry.
func (g *GeomOpt) Run() (*OptResult, error) {
	in := BuildInput(g.cfg, g.geom, g.pcs)
	in.State = g.cfg.GeomOpt.State
	if err := in.Check(); err != nil {
		return nil, err
	}
	ob := &objective{o: g, in: in}
	x0 := make([]float64, len(g.geom.Coords))
	copy(x0, g.geom.Coords)

	if g.cfg.GeomOpt.MaxSteps == 0 {
		e, grad := ob.eval(x0)
		if ob.err != nil {
			return nil, ob.err
		}
		res := &OptResult{
			State:       MaxStepsExceeded,
			Energy:      e,
			Geometry:    g.geom.Copy(),
			GradNorm:    floats.Norm(grad, 2),
			Evaluations: ob.evals,
		}
		return res, g.writeOutput(res)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			e, _ := ob.eval(x)
			return e
		},
		Grad: func(grad, x []float64) {
			_, gr := ob.eval(x)
			copy(grad, gr)
		},
	}
	var method optimize.Method
	switch g.cfg.GeomOpt.Method {
	case "bfgs":
		method = &optimize.BFGS{}
	case "cg":
		method = &optimize.CG{}
	case "newton":
		problem.Hess = ob.hess
		method = &optimize.Newton{}
	case "steepest":
		method = &optimize.GradientDescent{}
	}
	settings := &optimize.Settings{
		GradientThreshold: g.cfg.GeomOpt.GradTol,
		MajorIterations:   g.cfg.GeomOpt.MaxSteps,
		Converger: &optimize.FunctionConverge{
			Absolute:   g.cfg.GeomOpt.EnergyTol,
			Iterations: 5,
		},
	}
	result, err := optimize.Minimize(problem, x0, settings, method)
	if ob.err != nil {
		return nil, ob.err
	}
	res := &OptResult{
		Energy:      result.F,
		GradNorm:    floats.Norm(result.Gradient, 2),
		Steps:       result.MajorIterations,
		Evaluations: ob.evals,
	}
	final := g.geom.Copy()
	copy(final.Coords, result.X)
	res.Geometry = final
	switch result.Status {
	case optimize.GradientThreshold, optimize.FunctionConvergence,
		optimize.StepConvergence, optimize.MethodConverge, optimize.Success:
		res.State = Converged
	case optimize.IterationLimit:
		res.State = MaxStepsExceeded
	default:
		if err != nil {
			return nil, err
		}
		res.State = Iterating
	}
	return res, g.writeOutput(res)
}

// writeOutput writes the final geometry when an output file is
// configured
func (g *GeomOpt) writeOutput(res *OptResult) error {
	if g.cfg.GeomOpt.OutFile == "" {
		return nil
	}
	comment := fmt.Sprintf("energy=%.10f state=%s", res.Energy, res.State)
	return dftbaby.WriteXYZ(g.cfg.GeomOpt.OutFile, res.Geometry, comment)
}
