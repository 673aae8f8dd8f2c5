// Package extern drives a compiled kernel executable through exchange
// files. The driver writes a plain-text task file, runs the command
// with stdin redirected from it, and parses the key=value records the
// kernel prints. The executable is a black box; any diagnostic it
// emits is surfaced verbatim through the error chain.
package extern

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/kangmg/DFTBaby/kernel"
)

var (
	// ErrFileNotFound - output file does not exist
	ErrFileNotFound = errors.New("kernel output file not found")
	// ErrBlankOutput - output file exists but is blank
	ErrBlankOutput = errors.New("blank kernel output")
	// ErrFileContainsError - output file contains an error message
	ErrFileContainsError = errors.New("kernel output file contains an error")
	// ErrEnergyNotFound - the output finished without an energy record
	ErrEnergyNotFound = errors.New("energy not found in kernel output")
	// ErrBadOutput - records present but malformed or short
	ErrBadOutput = errors.New("malformed kernel output")
)

func init() {
	kernel.Register("extern", func(opts kernel.Options) (any, error) {
		if opts.Command == "" {
			return nil, fmt.Errorf("%w: extern requires kernel_command",
				kernel.ErrBadInput)
		}
		return &Extern{
			command:  opts.Command,
			workDir:  opts.WorkDir,
			paramDir: opts.ParameterDir,
		}, nil
	})
}

// Extern runs one kernel invocation per capability call
type Extern struct {
	command  string
	workDir  string
	paramDir string
}

func (e *Extern) dir() string {
	if e.workDir == "" {
		return "."
	}
	return e.workDir
}

// writeInput writes the exchange file for one task. Coordinates are
// in bohr, one atom per line as "Z x y z".
func (e *Extern) writeInput(filename, task string, in kernel.Input) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "task %s\n", task)
	fmt.Fprintf(w, "charge %d\n", in.Charge)
	fmt.Fprintf(w, "multiplicity %d\n", in.Multiplicity)
	fmt.Fprintf(w, "nstates %d\n", in.Nstates)
	fmt.Fprintf(w, "state %d\n", in.State)
	fmt.Fprintf(w, "scf_conv %g\n", in.SCF.Conv)
	fmt.Fprintf(w, "scf_maxiter %d\n", in.SCF.MaxIter)
	fmt.Fprintf(w, "mixing %g\n", in.SCF.Mixing)
	lr := 0
	if in.SCF.LongRange {
		lr = 1
	}
	fmt.Fprintf(w, "long_range %d\n", lr)
	if e.paramDir != "" {
		fmt.Fprintf(w, "parameter_dir %s\n", e.paramDir)
	}
	fmt.Fprintf(w, "geometry %d\n", in.Natoms())
	for i, z := range in.Z {
		fmt.Fprintf(w, "%d %20.12f %20.12f %20.12f\n", z,
			in.Coords[3*i], in.Coords[3*i+1], in.Coords[3*i+2])
	}
	if len(in.PointCharges) > 0 {
		fmt.Fprintf(w, "point_charges %d\n", len(in.PointCharges))
		for _, pc := range in.PointCharges {
			fmt.Fprintf(w, "%g %20.12f %20.12f %20.12f\n",
				pc.Q, pc.Pos[0], pc.Pos[1], pc.Pos[2])
		}
	}
	return w.Flush()
}

// runKernel runs the command with stdin redirected from base.in and
// stdout to base.out
func runKernel(command, base string) error {
	cmd := exec.Command(command)
	infile, err := os.Open(base + ".in")
	if err != nil {
		return err
	}
	defer infile.Close()
	outfile, err := os.Create(base + ".out")
	if err != nil {
		return err
	}
	defer outfile.Close()
	cmd.Stdin = infile
	cmd.Stdout = outfile
	cmd.Stderr = outfile
	return cmd.Run()
}

// output collects the records a kernel run prints
type output struct {
	energy     float64
	haveEnergy bool
	orbitals   []float64
	charges    []float64
	homo       int
	iterations int
	converged  bool
	excEnergy  []float64
	excOsc     []float64
	grad       []float64
	surfaces   []float64
	couplings  [][3]float64 // i, j, value
}

var errLine = regexp.MustCompile(`(?i)[^_]error`)

// readOut parses the key=value records of a kernel output file
func readOut(filename string) (*output, error) {
	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		return nil, ErrFileNotFound
	} else if err != nil {
		return nil, err
	}
	defer f.Close()
	out := &output{converged: true}
	scanner := bufio.NewScanner(f)
	blank := true
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			blank = false
		}
		if errLine.MatchString(line) {
			return nil, fmt.Errorf("%w: %s", ErrFileContainsError,
				strings.TrimSpace(line))
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasSuffix(fields[0], "=") {
			continue
		}
		key := strings.TrimSuffix(fields[0], "=")
		vals, err := parseFloats(fields[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadOutput, line)
		}
		switch key {
		case "energy":
			out.energy = vals[0]
			out.haveEnergy = true
		case "orbital":
			out.orbitals = append(out.orbitals, vals[0])
		case "charge":
			out.charges = append(out.charges, vals[0])
		case "homo":
			out.homo = int(vals[0])
		case "iterations":
			out.iterations = int(vals[0])
		case "converged":
			out.converged = vals[0] != 0
		case "excitation":
			if len(vals) != 2 {
				return nil, fmt.Errorf("%w: %q", ErrBadOutput, line)
			}
			out.excEnergy = append(out.excEnergy, vals[0])
			out.excOsc = append(out.excOsc, vals[1])
		case "grad":
			out.grad = append(out.grad, vals...)
		case "surface":
			out.surfaces = append(out.surfaces, vals[0])
		case "coupling":
			if len(vals) != 3 {
				return nil, fmt.Errorf("%w: %q", ErrBadOutput, line)
			}
			out.couplings = append(out.couplings, [3]float64{vals[0], vals[1], vals[2]})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if blank {
		return nil, ErrBlankOutput
	}
	return out, nil
}

func parseFloats(fields []string) ([]float64, error) {
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// run writes the exchange file, invokes the kernel, and parses its
// output
func (e *Extern) run(task string, in kernel.Input) (*output, error) {
	if err := in.Check(); err != nil {
		return nil, err
	}
	base := filepath.Join(e.dir(), "kernel")
	if err := e.writeInput(base+".in", task, in); err != nil {
		return nil, err
	}
	if err := runKernel(e.command, base); err != nil {
		// a nonzero exit still leaves diagnostics in the output file
		if out, rerr := readOut(base + ".out"); rerr != nil {
			return out, rerr
		}
		return nil, err
	}
	return readOut(base + ".out")
}

// SCF implements kernel.GroundState
func (e *Extern) SCF(in kernel.Input) (*kernel.SCFResult, error) {
	out, err := e.run("scf", in)
	if err != nil {
		return nil, err
	}
	if !out.haveEnergy {
		return nil, ErrEnergyNotFound
	}
	res := &kernel.SCFResult{
		Energy:          out.energy,
		OrbitalEnergies: out.orbitals,
		Charges:         out.charges,
		HOMO:            out.homo,
		Iterations:      out.iterations,
	}
	if !out.converged {
		return res, fmt.Errorf("%w: SCF after %d iterations",
			kernel.ErrNotConverged, out.iterations)
	}
	return res, nil
}

// Excitations implements kernel.ExcitedStates
func (e *Extern) Excitations(in kernel.Input) (*kernel.ExcResult, error) {
	out, err := e.run("excitations", in)
	if err != nil {
		return nil, err
	}
	if len(out.excEnergy) != in.Nstates {
		return nil, fmt.Errorf("%w: %d excitations, wanted %d",
			ErrBadOutput, len(out.excEnergy), in.Nstates)
	}
	return &kernel.ExcResult{
		Energies:            out.excEnergy,
		OscillatorStrengths: out.excOsc,
	}, nil
}

// Gradient implements kernel.Gradients
func (e *Extern) Gradient(in kernel.Input) (*kernel.GradResult, error) {
	out, err := e.run("gradient", in)
	if err != nil {
		return nil, err
	}
	if !out.haveEnergy {
		return nil, ErrEnergyNotFound
	}
	if len(out.grad) != 3*in.Natoms() {
		return nil, fmt.Errorf("%w: %d gradient components, wanted %d",
			ErrBadOutput, len(out.grad), 3*in.Natoms())
	}
	return &kernel.GradResult{Energy: out.energy, Gradient: out.grad}, nil
}

// Surfaces implements kernel.Surfaces
func (e *Extern) Surfaces(in kernel.Input) (*kernel.SurfaceResult, error) {
	out, err := e.run("surfaces", in)
	if err != nil {
		return nil, err
	}
	nst := in.Nstates + 1
	if len(out.surfaces) != nst {
		return nil, fmt.Errorf("%w: %d surfaces, wanted %d",
			ErrBadOutput, len(out.surfaces), nst)
	}
	if len(out.grad) != 3*in.Natoms() {
		return nil, fmt.Errorf("%w: %d gradient components, wanted %d",
			ErrBadOutput, len(out.grad), 3*in.Natoms())
	}
	res := &kernel.SurfaceResult{
		Energies:  out.surfaces,
		Gradient:  out.grad,
		Couplings: make([][]float64, nst),
	}
	for s := range res.Couplings {
		res.Couplings[s] = make([]float64, nst)
	}
	for _, c := range out.couplings {
		i, j := int(c[0]), int(c[1])
		if i < 0 || j < 0 || i >= nst || j >= nst {
			return nil, fmt.Errorf("%w: coupling %d,%d outside 0..%d",
				ErrBadOutput, i, j, nst-1)
		}
		res.Couplings[i][j] = c[2]
		res.Couplings[j][i] = -c[2]
	}
	return res, nil
}
