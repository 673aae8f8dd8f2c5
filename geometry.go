package dftbaby

import (
	"errors"
	"fmt"
)

// Errors shared by the geometry readers
var (
	ErrAtomCount       = errors.New("declared atom count does not match coordinate lines")
	ErrBadCoordinate   = errors.New("unparseable coordinate")
	ErrUnknownElement  = errors.New("unknown element")
	ErrVelocityCount   = errors.New("velocity block does not match atom count")
	ErrLengthMismatch  = errors.New("array length does not match geometry")
	ErrEmptyGeometry   = errors.New("geometry contains no atoms")
	ErrBadGeometryFile = errors.New("ill-formed geometry file")
)

// Geometry is an ordered list of atoms with Cartesian coordinates in
// bohr. The order is significant: force and velocity arrays index into
// the same order. The atom count is fixed once loaded.
type Geometry struct {
	Symbols []string
	Coords  []float64 // 3N, bohr
}

// NewGeometry validates symbols against the element table and pairs
// them with coords. coords must hold 3 entries per symbol.
func NewGeometry(symbols []string, coords []float64) (*Geometry, error) {
	if len(symbols) == 0 {
		return nil, ErrEmptyGeometry
	}
	if len(coords) != 3*len(symbols) {
		return nil, fmt.Errorf("%w: %d atoms but %d coordinates",
			ErrLengthMismatch, len(symbols), len(coords))
	}
	canon := make([]string, len(symbols))
	for i, s := range symbols {
		el, err := LookupElement(s)
		if err != nil {
			return nil, err
		}
		canon[i] = el.Symbol
	}
	return &Geometry{Symbols: canon, Coords: coords}, nil
}

// Natoms returns the number of atoms
func (g *Geometry) Natoms() int { return len(g.Symbols) }

// Copy returns a deep copy of g
func (g *Geometry) Copy() *Geometry {
	c := &Geometry{
		Symbols: make([]string, len(g.Symbols)),
		Coords:  make([]float64, len(g.Coords)),
	}
	copy(c.Symbols, g.Symbols)
	copy(c.Coords, g.Coords)
	return c
}

// Numbers returns the atomic numbers in atom order. Symbols are
// validated on construction so the lookups cannot fail here.
func (g *Geometry) Numbers() []int {
	zs := make([]int, len(g.Symbols))
	for i, s := range g.Symbols {
		el, _ := LookupElement(s)
		zs[i] = el.Z
	}
	return zs
}

// Masses returns the atomic masses in electron masses, one per atom
func (g *Geometry) Masses() []float64 {
	ms := make([]float64, len(g.Symbols))
	for i, s := range g.Symbols {
		el, _ := LookupElement(s)
		ms[i] = el.Mass * AMUToAU
	}
	return ms
}

// Masses3 expands Masses to 3N entries matching the coordinate layout
func (g *Geometry) Masses3() []float64 {
	ms := g.Masses()
	out := make([]float64, 3*len(ms))
	for i, m := range ms {
		out[3*i], out[3*i+1], out[3*i+2] = m, m, m
	}
	return out
}

// Valence returns the total number of valence orbitals, which sizes
// the orbital-energy arrays the kernels hand back
func (g *Geometry) Valence() int {
	var n int
	for _, s := range g.Symbols {
		el, _ := LookupElement(s)
		n += el.Valence
	}
	return n
}

// Formula builds a molecular formula from the atom counts, elements
// sorted alphabetically, as in C2H4O
func (g *Geometry) Formula() string {
	counts := make(map[string]int)
	order := make([]string, 0, 4)
	for _, s := range g.Symbols {
		if counts[s] == 0 {
			order = append(order, s)
		}
		counts[s]++
	}
	// insertion sort, the element count is tiny
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && order[j] < order[j-1]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	var name string
	for _, s := range order {
		name += s
		if counts[s] > 1 {
			name += fmt.Sprintf("%d", counts[s])
		}
	}
	return name
}
