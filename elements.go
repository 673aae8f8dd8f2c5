package dftbaby

import (
	"fmt"
	"strings"
)

// Element holds the per-element data the orchestration layer needs:
// enough to size kernel arrays and mass-weight coordinates, nothing
// more. Masses in amu, covalent radii in bohr. Valence counts the
// valence orbitals (1 for s, 4 for sp, 9 for spd); Electrons the
// valence electrons.
type Element struct {
	Symbol    string
	Z         int
	Mass      float64
	Covalent  float64
	Valence   int
	Electrons int
}

// elements covers the species the DFTB parametrizations ship tables
// for, plus the common bio-elements.
var elements = map[string]Element{
	"H":  {"H", 1, 1.008, 0.59, 1, 1},
	"He": {"He", 2, 4.003, 0.53, 1, 2},
	"Li": {"Li", 3, 6.94, 2.42, 4, 1},
	"Be": {"Be", 4, 9.012, 1.81, 4, 2},
	"B":  {"B", 5, 10.81, 1.59, 4, 3},
	"C":  {"C", 6, 12.011, 1.44, 4, 4},
	"N":  {"N", 7, 14.007, 1.34, 4, 5},
	"O":  {"O", 8, 15.999, 1.25, 4, 6},
	"F":  {"F", 9, 18.998, 1.08, 4, 7},
	"Ne": {"Ne", 10, 20.180, 1.10, 4, 8},
	"Na": {"Na", 11, 22.990, 3.14, 4, 1},
	"Mg": {"Mg", 12, 24.305, 2.66, 4, 2},
	"Al": {"Al", 13, 26.982, 2.29, 4, 3},
	"Si": {"Si", 14, 28.085, 2.10, 4, 4},
	"P":  {"P", 15, 30.974, 2.02, 4, 5},
	"S":  {"S", 16, 32.06, 1.98, 4, 6},
	"Cl": {"Cl", 17, 35.45, 1.93, 4, 7},
	"K":  {"K", 19, 39.098, 3.84, 4, 1},
	"Ca": {"Ca", 20, 40.078, 3.29, 4, 2},
	"Ti": {"Ti", 22, 47.867, 3.02, 9, 4},
	"Fe": {"Fe", 26, 55.845, 2.49, 9, 8},
	"Cu": {"Cu", 29, 63.546, 2.49, 9, 11},
	"Zn": {"Zn", 30, 65.38, 2.31, 9, 12},
	"Br": {"Br", 35, 79.904, 2.27, 4, 7},
	"Ru": {"Ru", 44, 101.07, 2.76, 9, 8},
	"Ag": {"Ag", 47, 107.868, 2.74, 9, 11},
	"I":  {"I", 53, 126.904, 2.63, 4, 7},
	"Au": {"Au", 79, 196.967, 2.57, 9, 11},
}

// byZ is the reverse index, built once at init
var byZ = func() map[int]Element {
	m := make(map[int]Element, len(elements))
	for _, el := range elements {
		m[el.Z] = el
	}
	return m
}()

// LookupElement finds the element data for a symbol, normalizing the
// case so that "h", "H", and "HE"-style symbols from sloppy geometry
// files all resolve.
func LookupElement(symbol string) (Element, error) {
	s := strings.TrimSpace(symbol)
	if len(s) == 0 {
		return Element{}, fmt.Errorf("%w: empty symbol", ErrUnknownElement)
	}
	s = strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	el, ok := elements[s]
	if !ok {
		return Element{}, fmt.Errorf("%w: %q", ErrUnknownElement, symbol)
	}
	return el, nil
}

// ElementByZ finds the element data for an atomic number
func ElementByZ(z int) (Element, error) {
	el, ok := byZ[z]
	if !ok {
		return Element{}, fmt.Errorf("%w: Z = %d", ErrUnknownElement, z)
	}
	return el, nil
}
