package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// no file at all: every documented option resolves to its default
	c, err := Load("testfiles/no_such_file.cfg", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.DFTBaby.Charge)
	assert.Equal(t, 1, c.DFTBaby.Multiplicity)
	assert.Equal(t, 5, c.DFTBaby.Nstates)
	assert.Equal(t, 1e-6, c.DFTBaby.SCFConv)
	assert.True(t, c.DFTBaby.LongRange)
	assert.Equal(t, "model", c.DFTBaby.Kernel)
	assert.Equal(t, "bfgs", c.GeomOpt.Method)
	assert.Equal(t, 500, c.GeomOpt.MaxSteps)
	assert.Equal(t, 1e-4, c.GeomOpt.GradTol)
	assert.Equal(t, "optimized.xyz", c.GeomOpt.OutFile)
	assert.Equal(t, 1, c.SurfaceHopping.InitialState)
	assert.Equal(t, 0.1, c.SurfaceHopping.NuclearStep)
	assert.Equal(t, int64(-1), c.SurfaceHopping.Seed)
	assert.Equal(t, 0.01, c.SurfaceHopping.CouplingThreshold)
	assert.True(t, c.SurfaceHopping.Decoherence)
	assert.Equal(t, "dynamics.xyz", c.SurfaceHopping.TrajectoryFile)
	assert.Equal(t, "electrostatic", c.QMMM.Embedding)
}

func TestLoadFile(t *testing.T) {
	c, err := Load("testfiles/dftbaby.cfg", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, c.DFTBaby.Charge)
	assert.Equal(t, 2, c.DFTBaby.Multiplicity)
	assert.Equal(t, 10, c.DFTBaby.Nstates)
	assert.Equal(t, 1e-8, c.DFTBaby.SCFConv)
	assert.False(t, c.DFTBaby.LongRange, "booleans are 0/1")
	assert.Equal(t, "cg", c.GeomOpt.Method)
	assert.Equal(t, 250, c.GeomOpt.MaxSteps)
	// options the file omits keep their defaults
	assert.Equal(t, 1e-4, c.GeomOpt.GradTol)
	assert.Equal(t, 50, c.SurfaceHopping.Nsteps)
	assert.Equal(t, 0.05, c.SurfaceHopping.NuclearStep)
	assert.Equal(t, int64(42), c.SurfaceHopping.Seed)
	assert.Equal(t, "charges.dat", c.QMMM.PointCharges)
}

func TestUnknownSectionPreserved(t *testing.T) {
	c, err := Load("testfiles/dftbaby.cfg", nil, nil)
	require.NoError(t, err)
	require.Contains(t, c.Sections, "analysis")
	assert.Equal(t, "1", c.Sections["analysis"]["plot"])
}

func TestFlagOverride(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddCommonFlags(fs)
	AddExcitedFlags(fs)
	require.NoError(t, fs.Parse([]string{"--nstates=3", "--charge=-1"}))
	c, err := Load("testfiles/dftbaby.cfg", fs, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, c.DFTBaby.Nstates, "flag beats file")
	assert.Equal(t, -1, c.DFTBaby.Charge)
	// unset flags must not clobber file values with flag defaults
	assert.Equal(t, 2, c.DFTBaby.Multiplicity)
}

func TestSetOverride(t *testing.T) {
	c, err := Load("testfiles/dftbaby.cfg", nil,
		[]string{"surfacehopping.nsteps=7", "DFTBaby.charge = 0"})
	require.NoError(t, err)
	assert.Equal(t, 7, c.SurfaceHopping.Nsteps)
	assert.Equal(t, 0, c.DFTBaby.Charge)

	_, err = Load("testfiles/dftbaby.cfg", nil, []string{"nodots"})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestBadCoercion(t *testing.T) {
	_, err := Load("testfiles/badint.cfg", nil, nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestKeyOutsideSection(t *testing.T) {
	_, err := Load("testfiles/nosection.cfg", nil, nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		sets []string
	}{
		{"bad method", []string{"geometryoptimization.method=simplex"}},
		{"negative nstates", []string{"dftbaby.nstates=-1"}},
		{"zero multiplicity", []string{"dftbaby.multiplicity=0"}},
		{"zero timestep", []string{"surfacehopping.nuclear_step=0"}},
		{"initial state beyond nstates", []string{
			"dftbaby.nstates=2", "surfacehopping.initial_state=3"}},
		{"bad embedding", []string{"qmmm.embedding=polarizable"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load("testfiles/no_such_file.cfg", nil, test.sets)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestParseINI(t *testing.T) {
	sections, err := parseINI("testfiles/dftbaby.cfg")
	require.NoError(t, err)
	assert.Equal(t, "2", sections["dftbaby"]["multiplicity"],
		"inline comments are stripped")
	assert.Equal(t, "cg", sections["geometryoptimization"]["method"])
}
