package dftbaby

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadInitialConditions reads a dynamics initial-condition file: an
// XYZ header and position block followed immediately by a velocity
// block with one "vx vy vz" line per atom, no element labels. The two
// blocks are read positionally and must have the same atom count.
// Positions follow the XYZ unit annotation; velocities are always in
// atomic units.
func ReadInitialConditions(filename string) (*Geometry, []float64, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("%w: %s is empty",
			ErrBadGeometryFile, filename)
	}
	natoms, err := parseCount(scanner.Text())
	if err != nil {
		return nil, nil, err
	}
	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("%w: %s has no comment line",
			ErrBadGeometryFile, filename)
	}
	toBohr, err := commentUnits(scanner.Text())
	if err != nil {
		return nil, nil, err
	}
	var (
		symbols []string
		coords  []float64
		vels    []float64
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(symbols) < natoms {
			s, xyz, err := parseAtomLine(line, toBohr)
			if err != nil {
				return nil, nil, err
			}
			symbols = append(symbols, s)
			coords = append(coords, xyz[0], xyz[1], xyz[2])
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, nil, fmt.Errorf("%w: bad velocity line %q",
				ErrVelocityCount, line)
		}
		for _, fd := range fields {
			v, err := strconv.ParseFloat(fd, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %q",
					ErrBadCoordinate, line)
			}
			vels = append(vels, v)
		}
	}
	if len(symbols) != natoms {
		return nil, nil, fmt.Errorf("%w: %s declares %d atoms but has %d",
			ErrAtomCount, filename, natoms, len(symbols))
	}
	if len(vels) != 3*natoms {
		return nil, nil, fmt.Errorf(
			"%w: %s has %d velocity components for %d atoms",
			ErrVelocityCount, filename, len(vels), natoms)
	}
	geom, err := NewGeometry(symbols, coords)
	if err != nil {
		return nil, nil, err
	}
	return geom, vels, nil
}

// WriteInitialConditions writes geom and vels in the dual-block
// dynamics format read by ReadInitialConditions
func WriteInitialConditions(filename string, geom *Geometry, vels []float64) error {
	if len(vels) != len(geom.Coords) {
		return fmt.Errorf("%w: %d velocities for %d coordinates",
			ErrVelocityCount, len(vels), len(geom.Coords))
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%d\n%s units=angstrom\n", geom.Natoms(), geom.Formula())
	for i, s := range geom.Symbols {
		fmt.Fprintf(w, "%-3s %15.9f %15.9f %15.9f\n", s,
			geom.Coords[3*i]*BohrToAng,
			geom.Coords[3*i+1]*BohrToAng,
			geom.Coords[3*i+2]*BohrToAng)
	}
	for i := 0; i < geom.Natoms(); i++ {
		fmt.Fprintf(w, "%18.12f %18.12f %18.12f\n",
			vels[3*i], vels[3*i+1], vels[3*i+2])
	}
	return w.Flush()
}
