package extern

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kangmg/DFTBaby/kernel"
)

// fakeKernel installs a script that ignores its input and prints the
// canned output file
func fakeKernel(t *testing.T, canned string) *Extern {
	t.Helper()
	abs, err := filepath.Abs(canned)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "kernel.sh")
	err = os.WriteFile(script, []byte("#!/bin/sh\ncat "+abs+"\n"), 0o755)
	if err != nil {
		t.Fatal(err)
	}
	return &Extern{command: script, workDir: dir}
}

func h2() kernel.Input {
	return kernel.Input{
		Z:            []int{1, 1},
		Coords:       []float64{0, 0, 0, 0, 0, 1.4},
		Multiplicity: 1,
		SCF:          kernel.SCFParams{Conv: 1e-6, MaxIter: 100},
	}
}

func TestSCF(t *testing.T) {
	e := fakeKernel(t, "testfiles/scf.out")
	res, err := e.SCF(h2())
	if err != nil {
		t.Fatal(err)
	}
	if res.Energy != -4.07798301 {
		t.Errorf("got %v, wanted -4.07798301\n", res.Energy)
	}
	if len(res.OrbitalEnergies) != 3 || res.OrbitalEnergies[0] != -0.35216 {
		t.Errorf("got orbitals %v\n", res.OrbitalEnergies)
	}
	if len(res.Charges) != 3 || res.Charges[0] != -0.40 {
		t.Errorf("got charges %v\n", res.Charges)
	}
	if res.HOMO != 1 || res.Iterations != 14 {
		t.Errorf("got HOMO %d after %d iterations\n",
			res.HOMO, res.Iterations)
	}
}

func TestSCFNotConverged(t *testing.T) {
	e := fakeKernel(t, "testfiles/noconv.out")
	res, err := e.SCF(h2())
	if !errors.Is(err, kernel.ErrNotConverged) {
		t.Fatalf("got %v, wanted ErrNotConverged\n", err)
	}
	if res == nil || res.Iterations != 200 {
		t.Error("non-convergence must still return the best intermediate")
	}
}

func TestExcitations(t *testing.T) {
	e := fakeKernel(t, "testfiles/exc.out")
	in := h2()
	in.Nstates = 3
	res, err := e.Excitations(in)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.21034, 0.24511, 0.27398}
	for i := range want {
		if res.Energies[i] != want[i] {
			t.Errorf("state %d: got %v, wanted %v\n",
				i, res.Energies[i], want[i])
		}
	}
	if res.OscillatorStrengths[2] != 0.0031 {
		t.Errorf("got f = %v, wanted 0.0031\n", res.OscillatorStrengths[2])
	}
	in.Nstates = 5
	if _, err := e.Excitations(in); !errors.Is(err, ErrBadOutput) {
		t.Errorf("got %v, wanted ErrBadOutput on short state count\n", err)
	}
}

func TestGradient(t *testing.T) {
	e := fakeKernel(t, "testfiles/grad.out")
	res, err := e.Gradient(h2())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Gradient) != 6 {
		t.Fatalf("got %d components, wanted 6\n", len(res.Gradient))
	}
	if res.Gradient[2] != -0.013450 || res.Gradient[5] != 0.013450 {
		t.Errorf("got gradient %v\n", res.Gradient)
	}
}

func TestSurfaces(t *testing.T) {
	e := fakeKernel(t, "testfiles/surf.out")
	in := h2()
	in.Nstates = 2
	in.State = 1
	res, err := e.Surfaces(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Energies) != 3 {
		t.Fatalf("got %d energies, wanted 3\n", len(res.Energies))
	}
	if res.Couplings[0][1] != 0.0124 || res.Couplings[1][0] != -0.0124 {
		t.Errorf("got couplings %v\n", res.Couplings)
	}
	if res.Couplings[2][1] != -0.0086 {
		t.Errorf("got %v, wanted -0.0086\n", res.Couplings[2][1])
	}
}

func TestReadOutErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		want error
	}{
		{"missing", "testfiles/nonexistent.out", ErrFileNotFound},
		{"blank", "testfiles/blank.out", ErrBlankOutput},
		{"error message", "testfiles/error.out", ErrFileContainsError},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := readOut(test.file)
			if !errors.Is(err, test.want) {
				t.Errorf("got %v, wanted %v\n", err, test.want)
			}
		})
	}
}

func TestNoEnergy(t *testing.T) {
	// cat copies the exchange file back out, which has records but no
	// energy
	e := &Extern{command: "cat", workDir: t.TempDir()}
	_, err := e.SCF(h2())
	if !errors.Is(err, ErrEnergyNotFound) {
		t.Errorf("got %v, wanted ErrEnergyNotFound\n", err)
	}
}

func TestWriteInput(t *testing.T) {
	dir := t.TempDir()
	e := &Extern{workDir: dir, paramDir: "/opt/params"}
	in := h2()
	in.SCF.LongRange = true
	in.PointCharges = []kernel.PointCharge{{Q: -0.8, Pos: [3]float64{5, 0, 0}}}
	file := filepath.Join(dir, "kernel.in")
	if err := e.writeInput(file, "scf", in); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{
		"task scf\n", "long_range 1\n", "parameter_dir /opt/params\n",
		"geometry 2\n", "point_charges 1\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("input file missing %q\n", want)
		}
	}
}

func TestRegistry(t *testing.T) {
	if _, err := kernel.New("extern", kernel.Options{}); err == nil {
		t.Error("extern without a command should fail")
	}
	k, err := kernel.New("extern", kernel.Options{Command: "dftb_kernel"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := k.(kernel.Surfaces); !ok {
		t.Error("extern must provide the surfaces capability")
	}
}
