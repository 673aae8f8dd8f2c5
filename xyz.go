package dftbaby

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// parseCount reads the atom-count line at the top of an XYZ-family
// file
func parseCount(line string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: bad atom count %q", ErrBadGeometryFile, line)
	}
	return n, nil
}

// commentUnits extracts a units=bohr|angstrom annotation from an XYZ
// comment line. Angstrom is the default when no annotation is given.
func commentUnits(comment string) (toBohr float64, err error) {
	for _, f := range strings.Fields(comment) {
		if !strings.HasPrefix(strings.ToLower(f), "units=") {
			continue
		}
		switch strings.ToLower(strings.SplitN(f, "=", 2)[1]) {
		case "bohr", "au":
			return 1.0, nil
		case "angstrom", "ang":
			return AngToBohr, nil
		default:
			return 0, fmt.Errorf("%w: unknown units in %q",
				ErrBadGeometryFile, comment)
		}
	}
	return AngToBohr, nil
}

// parseAtomLine splits an "element x y z" line into its symbol and
// coordinates, converting with the given unit factor
func parseAtomLine(line string, toBohr float64) (string, [3]float64, error) {
	var xyz [3]float64
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return "", xyz, fmt.Errorf("%w: %q", ErrBadCoordinate, line)
	}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return "", xyz, fmt.Errorf("%w: %q", ErrBadCoordinate, line)
		}
		xyz[i] = v * toBohr
	}
	return fields[0], xyz, nil
}

// ReadXYZ reads a geometry in XYZ format: atom count, comment, then
// one "element x y z" line per atom. Coordinates are in Angstrom
// unless the comment carries a units=bohr annotation. The coordinate
// line count must match the declared atom count.
func ReadXYZ(filename string) (*Geometry, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, fmt.Errorf("%w: %s is empty", ErrBadGeometryFile, filename)
	}
	natoms, err := parseCount(scanner.Text())
	if err != nil {
		return nil, err
	}
	if !scanner.Scan() {
		return nil, fmt.Errorf("%w: %s has no comment line",
			ErrBadGeometryFile, filename)
	}
	toBohr, err := commentUnits(scanner.Text())
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, natoms)
	coords := make([]float64, 0, 3*natoms)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s, xyz, err := parseAtomLine(line, toBohr)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
		coords = append(coords, xyz[0], xyz[1], xyz[2])
	}
	if len(symbols) != natoms {
		return nil, fmt.Errorf("%w: %s declares %d atoms but has %d",
			ErrAtomCount, filename, natoms, len(symbols))
	}
	return NewGeometry(symbols, coords)
}

// WriteXYZ writes geom to filename in XYZ format with coordinates in
// Angstrom
func WriteXYZ(filename string, geom *Geometry, comment string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeXYZFrame(bufio.NewWriter(f), geom, comment)
}

// writeXYZFrame appends a single XYZ frame to w
func writeXYZFrame(w *bufio.Writer, geom *Geometry, comment string) error {
	fmt.Fprintf(w, "%d\n%s\n", geom.Natoms(), comment)
	for i, s := range geom.Symbols {
		fmt.Fprintf(w, "%-3s %15.9f %15.9f %15.9f\n", s,
			geom.Coords[3*i]*BohrToAng,
			geom.Coords[3*i+1]*BohrToAng,
			geom.Coords[3*i+2]*BohrToAng)
	}
	return w.Flush()
}
