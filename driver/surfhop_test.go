package driver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dftbaby "github.com/kangmg/DFTBaby"
	"github.com/kangmg/DFTBaby/config"
)

func dynConfig(t *testing.T) *config.Config {
	cfg := defaultConfig(t)
	cfg.DFTBaby.Nstates = 2
	cfg.SurfaceHopping.InitialState = 1
	cfg.SurfaceHopping.Nsteps = 20
	cfg.SurfaceHopping.NuclearStep = 0.1
	cfg.SurfaceHopping.Seed = 42
	cfg.SurfaceHopping.OutputStep = 5
	cfg.SurfaceHopping.CheckpointStep = 10
	return cfg
}

func newDynamics(t *testing.T, cfg *config.Config, vel []float64) *SurfaceHopping {
	t.Helper()
	backend, err := NewBackend(cfg)
	require.NoError(t, err)
	s, err := NewSurfaceHopping(cfg, water(t), vel, backend)
	require.NoError(t, err)
	s.SetDir(t.TempDir())
	return s
}

func TestSurfaceHoppingOutputs(t *testing.T) {
	cfg := dynConfig(t)
	s := newDynamics(t, cfg, nil)
	res, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, 20, res.Steps)
	assert.InDelta(t, 2.0, res.Time, 1e-9)

	for _, name := range []string{
		"dynamics.xyz", "state.dat", "restart.json",
		"energy_0.dat", "energy_1.dat", "energy_2.dat",
		"coeff_0.dat", "coeff_1.dat", "coeff_2.dat",
	} {
		_, err := os.Stat(filepath.Join(s.dir, name))
		assert.NoError(t, err, name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, "state.dat"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// the initial frame plus nsteps/output_step
	assert.Len(t, lines, 5)
}

func TestSeededRunsReproduce(t *testing.T) {
	run := func() Checkpoint {
		cfg := dynConfig(t)
		s := newDynamics(t, cfg, nil)
		_, err := s.Run()
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(s.dir, "restart.json"))
		require.NoError(t, err)
		var ch Checkpoint
		require.NoError(t, json.Unmarshal(data, &ch))
		return ch
	}
	assert.Equal(t, run(), run(), "same seed, same trajectory")
}

func TestThresholdBlocksHops(t *testing.T) {
	cfg := dynConfig(t)
	cfg.SurfaceHopping.CouplingThreshold = 1e9
	s := newDynamics(t, cfg, nil)
	res, err := s.Run()
	require.NoError(t, err)
	assert.Zero(t, res.Hops)
	assert.Equal(t, cfg.SurfaceHopping.InitialState, res.FinalState)
}

func TestFrustratedHopKeepsVelocities(t *testing.T) {
	cfg := dynConfig(t)
	s := newDynamics(t, cfg, nil)
	res, err := s.evaluate()
	require.NoError(t, err)
	// tiny velocities cannot pay for an upward hop
	for i := range s.v {
		s.v[i] = 1e-8
	}
	before := append([]float64{}, s.v...)
	hopped := s.tryHop(2, s.geom.Masses3(), res)
	assert.False(t, hopped)
	assert.Equal(t, 1, s.frustrated)
	assert.Equal(t, before, s.v)
	assert.Equal(t, 1, s.state)
}

func TestCheckpointRoundTrip(t *testing.T) {
	cfg := dynConfig(t)
	s := newDynamics(t, cfg, nil)
	_, err := s.Run()
	require.NoError(t, err)
	file := filepath.Join(s.dir, "save.json")
	require.NoError(t, s.SaveCheckpoint(file))

	s2 := newDynamics(t, cfg, nil)
	require.NoError(t, s2.LoadCheckpoint(file))
	assert.Equal(t, s.step, s2.step)
	assert.Equal(t, s.state, s2.state)
	assert.Equal(t, s.x, s2.x)
	assert.Equal(t, s.v, s2.v)
	assert.Equal(t, s.c, s2.c)
}

func TestRestartKeepsHistory(t *testing.T) {
	cfg := dynConfig(t)
	cfg.SurfaceHopping.Nsteps = 10
	s := newDynamics(t, cfg, nil)
	_, err := s.Run()
	require.NoError(t, err)
	file := filepath.Join(s.dir, "save.json")
	require.NoError(t, s.SaveCheckpoint(file))

	// resume in the same directory and double the step budget
	cfg2 := dynConfig(t)
	cfg2.SurfaceHopping.Nsteps = 20
	backend, err := NewBackend(cfg2)
	require.NoError(t, err)
	s2, err := NewSurfaceHopping(cfg2, water(t), nil, backend)
	require.NoError(t, err)
	s2.SetDir(s.dir)
	require.NoError(t, s2.LoadCheckpoint(file))
	res, err := s2.Run()
	require.NoError(t, err)
	assert.Equal(t, 20, res.Steps)

	data, err := os.ReadFile(filepath.Join(s.dir, "state.dat"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// the first run's rows (t = 0, 0.5, 1.0) plus t = 1.5, 2.0;
	// no duplicate of the restart-time row
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[0]), "0.0000"),
		"row written before the restart must survive it")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[4]), "2.0000"))

	energy, err := os.ReadFile(filepath.Join(s.dir, "energy_0.dat"))
	require.NoError(t, err)
	assert.Len(t,
		strings.Split(strings.TrimSpace(string(energy)), "\n"), 5)
}

func TestRestartContinues(t *testing.T) {
	cfg := dynConfig(t)
	s := newDynamics(t, cfg, nil)
	_, err := s.Run()
	require.NoError(t, err)
	file := filepath.Join(s.dir, "save.json")
	require.NoError(t, s.SaveCheckpoint(file))

	cfg2 := dynConfig(t)
	cfg2.SurfaceHopping.Nsteps = 30
	s2 := newDynamics(t, cfg2, nil)
	require.NoError(t, s2.LoadCheckpoint(file))
	res, err := s2.Run()
	require.NoError(t, err)
	assert.Equal(t, 30, res.Steps)
}

func TestVelocityLengthCheck(t *testing.T) {
	cfg := dynConfig(t)
	backend, err := NewBackend(cfg)
	require.NoError(t, err)
	_, err = NewSurfaceHopping(cfg, water(t), []float64{1, 2, 3}, backend)
	assert.ErrorIs(t, err, dftbaby.ErrLengthMismatch)
}

func TestGzipTrajectory(t *testing.T) {
	cfg := dynConfig(t)
	cfg.SurfaceHopping.TrajectoryFile = "dynamics.xyz.gz"
	s := newDynamics(t, cfg, nil)
	_, err := s.Run()
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(s.dir, "dynamics.xyz.gz"))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
