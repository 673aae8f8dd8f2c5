// Package slako reads tabulated Slater-Koster two-center parameter
// files and interpolates their radial grids. The tables carry the
// on-site energies and the Hamiltonian/overlap integrals the
// tight-binding kernels are parametrized with; this package only does
// the file plumbing and spline evaluation, never any electronic
// structure.
package slako

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/interp"
)

// Integral channels in table column order. The naming is the usual
// lm-pair + bond-symmetry scheme: e.g. SPSigma is the s-p sigma
// hopping integral.
const (
	DDSigma = iota
	DDPi
	DDDelta
	PDSigma
	PDPi
	PPSigma
	PPPi
	SDSigma
	SPSigma
	SSSigma
	NumChannels
)

var (
	ErrBadTable   = errors.New("malformed Slater-Koster table")
	ErrNoTable    = errors.New("no Slater-Koster table for element pair")
	ErrOutOfRange = errors.New("distance below Slater-Koster grid start")
	ErrShortTable = errors.New("Slater-Koster grid too short to interpolate")
)

// Table holds one parsed parameter file: the radial grid spacing and
// the Hamiltonian and overlap integrals per channel. Homonuclear
// tables additionally carry on-site energies, Hubbard parameters, and
// orbital occupations in s, p, d order.
type Table struct {
	GridDist float64 // bohr
	Npoints  int
	Mass     float64 // amu

	Homonuclear bool
	OnSite      [3]float64 // Es, Ep, Ed (hartree)
	Hubbard     [3]float64 // Us, Up, Ud
	Occupation  [3]float64 // fs, fp, fd

	H [NumChannels][]float64
	S [NumChannels][]float64
}

// fields splits a table line on both whitespace and commas, the two
// delimiter conventions in the wild
func fields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
}

func parseFloats(line string, want int) ([]float64, error) {
	fs := fields(line)
	if len(fs) < want {
		return nil, fmt.Errorf("%w: wanted %d values in %q",
			ErrBadTable, want, line)
	}
	out := make([]float64, want)
	for i := 0; i < want; i++ {
		// tables use Fortran exponent markers now and then
		s := strings.ReplaceAll(strings.ReplaceAll(fs[i], "D", "E"), "d", "e")
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q in %q", ErrBadTable, fs[i], line)
		}
		out[i] = v
	}
	return out, nil
}

// Parse reads a Slater-Koster table. homonuclear selects whether the
// on-site line (present only for same-element pairs) is expected.
func Parse(r io.Reader, homonuclear bool) (*Table, error) {
	scanner := bufio.NewScanner(r)
	next := func() (string, error) {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				return line, nil
			}
		}
		return "", fmt.Errorf("%w: unexpected end of table", ErrBadTable)
	}
	line, err := next()
	if err != nil {
		return nil, err
	}
	head, err := parseFloats(line, 2)
	if err != nil {
		return nil, err
	}
	t := &Table{
		GridDist:    head[0],
		Npoints:     int(head[1]),
		Homonuclear: homonuclear,
	}
	if t.GridDist <= 0 || t.Npoints < 2 {
		return nil, fmt.Errorf("%w: grid %g x %d",
			ErrBadTable, t.GridDist, t.Npoints)
	}
	if homonuclear {
		if line, err = next(); err != nil {
			return nil, err
		}
		// Ed Ep Es SPE Ud Up Us fd fp fs
		vals, err := parseFloats(line, 10)
		if err != nil {
			return nil, err
		}
		t.OnSite = [3]float64{vals[2], vals[1], vals[0]}
		t.Hubbard = [3]float64{vals[6], vals[5], vals[4]}
		t.Occupation = [3]float64{vals[9], vals[8], vals[7]}
	}
	if line, err = next(); err != nil {
		return nil, err
	}
	mass, err := parseFloats(line, 1)
	if err != nil {
		return nil, err
	}
	t.Mass = mass[0]
	for c := 0; c < NumChannels; c++ {
		t.H[c] = make([]float64, t.Npoints)
		t.S[c] = make([]float64, t.Npoints)
	}
	for i := 0; i < t.Npoints; i++ {
		if line, err = next(); err != nil {
			return nil, fmt.Errorf("%w: %d of %d grid rows",
				ErrBadTable, i, t.Npoints)
		}
		vals, err := parseFloats(line, 2*NumChannels)
		if err != nil {
			return nil, err
		}
		for c := 0; c < NumChannels; c++ {
			t.H[c][i] = vals[c]
			t.S[c][i] = vals[NumChannels+c]
		}
	}
	return t, nil
}

// ParseFile opens and parses filename, deducing homonuclearity from
// the X-Y element pair in the base name
func ParseFile(filename string) (*Table, error) {
	a, b, err := pairFromName(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Parse(f, a == b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return t, nil
}

func pairFromName(filename string) (string, string, error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	split := strings.SplitN(base, "-", 2)
	if len(split) != 2 || split[0] == "" || split[1] == "" {
		return "", "", fmt.Errorf("%w: table name %q is not X-Y.skf",
			ErrBadTable, base)
	}
	return split[0], split[1], nil
}

// Rmax returns the end of the radial grid; integrals vanish beyond it
func (t *Table) Rmax() float64 {
	return t.GridDist * float64(t.Npoints)
}

// grid returns the radial points of the table. Row i sits at
// (i+1)*GridDist, following the tabulation convention.
func (t *Table) grid() []float64 {
	xs := make([]float64, t.Npoints)
	for i := range xs {
		xs[i] = t.GridDist * float64(i+1)
	}
	return xs
}

// Interpolator evaluates one table's integrals at arbitrary
// distances through per-channel Akima splines fitted over the radial
// grid
type Interpolator struct {
	table *Table
	h     [NumChannels]interp.AkimaSpline
	s     [NumChannels]interp.AkimaSpline
}

// NewInterpolator fits splines for every channel of t
func NewInterpolator(t *Table) (*Interpolator, error) {
	if t.Npoints < 5 {
		return nil, fmt.Errorf("%w: %d points", ErrShortTable, t.Npoints)
	}
	in := &Interpolator{table: t}
	xs := t.grid()
	for c := 0; c < NumChannels; c++ {
		if err := in.h[c].Fit(xs, t.H[c]); err != nil {
			return nil, err
		}
		if err := in.s[c].Fit(xs, t.S[c]); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// Hamiltonian evaluates the channel-c Hamiltonian integral at
// distance r (bohr). Distances past the grid give 0; distances before
// the first grid point are an error since the tables do not cover the
// repulsive core.
func (in *Interpolator) Hamiltonian(c int, r float64) (float64, error) {
	return in.eval(&in.h[c], r)
}

// Overlap evaluates the channel-c overlap integral at distance r
func (in *Interpolator) Overlap(c int, r float64) (float64, error) {
	return in.eval(&in.s[c], r)
}

func (in *Interpolator) eval(sp *interp.AkimaSpline, r float64) (float64, error) {
	if r > in.table.Rmax() {
		return 0, nil
	}
	if r < in.table.GridDist {
		return 0, fmt.Errorf("%w: r = %g, grid starts at %g",
			ErrOutOfRange, r, in.table.GridDist)
	}
	return sp.Predict(r), nil
}

// Set is a collection of pair tables loaded from a parameter
// directory, keyed by "X-Y" with the symbols in file order
type Set map[string]*Table

// LoadDir loads the X-Y.skf tables covering every ordered pair of
// symbols from dir. Missing pair files are an error: a kernel cannot
// run with holes in its parametrization.
func LoadDir(dir string, symbols []string) (Set, error) {
	uniq := make([]string, 0, len(symbols))
	seen := make(map[string]bool)
	for _, s := range symbols {
		if !seen[s] {
			seen[s] = true
			uniq = append(uniq, s)
		}
	}
	set := make(Set)
	for _, a := range uniq {
		for _, b := range uniq {
			key := a + "-" + b
			path := filepath.Join(dir, key+".skf")
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrNoTable, path)
			}
			t, err := ParseFile(path)
			if err != nil {
				return nil, err
			}
			set[key] = t
		}
	}
	return set, nil
}

// Lookup finds the table for the ordered pair (a, b)
func (s Set) Lookup(a, b string) (*Table, error) {
	if t, ok := s[a+"-"+b]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s-%s", ErrNoTable, a, b)
}
