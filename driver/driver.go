// Package driver implements the calculation workflows: ground-state
// DFTB2, linear-response TD-DFTB, geometry optimization, and
// fewest-switches surface hopping. A driver is built once from the
// configuration, a geometry, and a kernel backend; Run performs the
// whole calculation synchronously and returns an immutable result.
package driver

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	dftbaby "github.com/kangmg/DFTBaby"
	"github.com/kangmg/DFTBaby/config"
	"github.com/kangmg/DFTBaby/kernel"
)

var (
	// ErrPointCharges tags a malformed external point-charge file
	ErrPointCharges = errors.New("bad point-charge file")
	// ErrKernelResult tags kernel output that violates the capability
	// contract, like a negative oscillator strength
	ErrKernelResult = errors.New("invalid kernel result")
)

// Warn prints a non-fatal complaint to stdout
func Warn(format string, a ...interface{}) {
	fmt.Printf("dftbaby: warning: "+format+"\n", a...)
}

// NewBackend builds the configured kernel backend. An unknown backend
// name or a missing kernel command is fatal here, before any
// calculation starts.
func NewBackend(cfg *config.Config) (any, error) {
	return kernel.New(cfg.DFTBaby.Kernel, kernel.Options{
		Command:      cfg.DFTBaby.KernelCommand,
		ParameterDir: cfg.DFTBaby.ParameterDir,
		Sections:     cfg.Sections,
	})
}

// BuildInput marshals a geometry and the electronic-structure options
// into one kernel invocation
func BuildInput(cfg *config.Config, geom *dftbaby.Geometry,
	pcs []kernel.PointCharge) kernel.Input {
	coords := make([]float64, len(geom.Coords))
	copy(coords, geom.Coords)
	return kernel.Input{
		Z:            geom.Numbers(),
		Coords:       coords,
		Charge:       cfg.DFTBaby.Charge,
		Multiplicity: cfg.DFTBaby.Multiplicity,
		Nstates:      cfg.DFTBaby.Nstates,
		PointCharges: pcs,
		SCF: kernel.SCFParams{
			Conv:      cfg.DFTBaby.SCFConv,
			MaxIter:   cfg.DFTBaby.SCFMaxIter,
			Mixing:    cfg.DFTBaby.Mixing,
			LongRange: cfg.DFTBaby.LongRange,
		},
	}
}

// LoadPointCharges reads the external charges named by the [QMMM]
// section. Only electrostatic embedding passes charges into the
// kernel; mechanical embedding keeps them out of the electronic
// problem.
func LoadPointCharges(cfg *config.Config) ([]kernel.PointCharge, error) {
	if cfg.QMMM.PointCharges == "" || cfg.QMMM.Embedding != "electrostatic" {
		return nil, nil
	}
	return ReadPointCharges(cfg.QMMM.PointCharges)
}

// ReadPointCharges reads a point-charge file: one "q x y z" line per
// charge, coordinates in bohr, # comments and blank lines skipped
func ReadPointCharges(filename string) ([]kernel.PointCharge, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPointCharges, err)
	}
	defer f.Close()
	var pcs []kernel.PointCharge
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: %q", ErrPointCharges, line)
		}
		var vals [4]float64
		for i, fl := range fields {
			v, err := strconv.ParseFloat(fl, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrPointCharges, line)
			}
			vals[i] = v
		}
		pcs = append(pcs, kernel.PointCharge{
			Q:   vals[0],
			Pos: [3]float64{vals[1], vals[2], vals[3]},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPointCharges, err)
	}
	return pcs, nil
}
