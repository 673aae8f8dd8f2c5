package driver

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	dftbaby "github.com/kangmg/DFTBaby"
	"github.com/kangmg/DFTBaby/config"
	"github.com/kangmg/DFTBaby/kernel"
	_ "github.com/kangmg/DFTBaby/kernel/model"
)

// water builds a bent H2O in bohr
func water(t *testing.T) *dftbaby.Geometry {
	t.Helper()
	g, err := dftbaby.NewGeometry(
		[]string{"O", "H", "H"},
		[]float64{
			0, 0, 0.22,
			0, 1.43, -0.89,
			0, -1.43, -0.89,
		})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// defaultConfig loads the documented defaults (no file, no flags)
func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestDFTB2(t *testing.T) {
	cfg := defaultConfig(t)
	geom := water(t)
	backend, err := NewBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDFTB2(cfg, geom, backend)
	if err != nil {
		t.Fatal(err)
	}
	res, err := d.Run()
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Error("default thresholds should converge")
	}
	if res.Energy >= 0 {
		t.Errorf("got %v, wanted a bound molecule\n", res.Energy)
	}
	if len(res.OrbitalEnergies) != geom.Valence() {
		t.Errorf("got %d orbitals, wanted %d\n",
			len(res.OrbitalEnergies), geom.Valence())
	}
	if len(res.Charges) != 3 {
		t.Errorf("got %d charges, wanted 3\n", len(res.Charges))
	}
	var buf bytes.Buffer
	res.Summarize(&buf, geom)
	if !bytes.Contains(buf.Bytes(), []byte("HOMO")) {
		t.Error("summary should mark the HOMO")
	}
}

func TestDFTB2NotConverged(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.DFTBaby.SCFConv = 1e-14
	cfg.DFTBaby.SCFMaxIter = 2
	backend, err := NewBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDFTB2(cfg, water(t), backend)
	if err != nil {
		t.Fatal(err)
	}
	res, err := d.Run()
	if !errors.Is(err, kernel.ErrNotConverged) {
		t.Fatalf("got %v, wanted ErrNotConverged\n", err)
	}
	if res == nil || res.Converged {
		t.Error("non-convergence must be reported, not accepted")
	}
}

func TestCapabilityCheck(t *testing.T) {
	cfg := defaultConfig(t)
	_, err := NewDFTB2(cfg, water(t), struct{}{})
	if !errors.Is(err, kernel.ErrCapability) {
		t.Errorf("got %v, wanted ErrCapability\n", err)
	}
}

func TestPointCharges(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "charges.dat")
	data := "# q x y z\n-0.8 5.0 0.0 0.0\n\n0.4 -5.0 0.0 0.0\n"
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	pcs, err := ReadPointCharges(file)
	if err != nil {
		t.Fatal(err)
	}
	if len(pcs) != 2 || pcs[0].Q != -0.8 || pcs[1].Pos[0] != -5.0 {
		t.Errorf("got %+v\n", pcs)
	}

	bad := filepath.Join(dir, "bad.dat")
	if err := os.WriteFile(bad, []byte("-0.8 5.0 0.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPointCharges(bad); !errors.Is(err, ErrPointCharges) {
		t.Errorf("got %v, wanted ErrPointCharges\n", err)
	}

	// the embedded run shifts the energy relative to the bare one
	cfg := defaultConfig(t)
	backend, _ := NewBackend(cfg)
	d, err := NewDFTB2(cfg, water(t), backend)
	if err != nil {
		t.Fatal(err)
	}
	bare, err := d.Run()
	if err != nil {
		t.Fatal(err)
	}
	cfg2 := defaultConfig(t)
	cfg2.DFTBaby.Charge = 1
	cfg2.QMMM.PointCharges = file
	backend2, _ := NewBackend(cfg2)
	d2, err := NewDFTB2(cfg2, water(t), backend2)
	if err != nil {
		t.Fatal(err)
	}
	embedded, err := d2.Run()
	if err != nil {
		t.Fatal(err)
	}
	if embedded.Energy == bare.Energy {
		t.Error("point charges had no effect on the energy")
	}
}
