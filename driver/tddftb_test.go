package driver

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTDDFTB(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.DFTBaby.Charge = 1
	cfg.DFTBaby.Multiplicity = 2
	cfg.DFTBaby.Nstates = 10
	backend, err := NewBackend(cfg)
	require.NoError(t, err)
	d, err := NewTDDFTB(cfg, water(t), backend)
	require.NoError(t, err)
	res, err := d.Run()
	require.NoError(t, err)

	require.Len(t, res.Energies, 10)
	require.Len(t, res.OscillatorStrengths, 10)
	for i, e := range res.Energies {
		assert.GreaterOrEqual(t, res.OscillatorStrengths[i], 0.0,
			"state %d oscillator strength", i)
		if i > 0 {
			assert.GreaterOrEqual(t, e, res.Energies[i-1],
				"state %d energy ordering", i)
		}
	}
	assert.NotNil(t, res.Ground)
	assert.Less(t, res.Ground.Energy, 0.0)

	var buf bytes.Buffer
	res.Summarize(&buf)
	assert.Contains(t, buf.String(), "state")
}

func TestTDDFTBSameGeometrySameSpectrum(t *testing.T) {
	cfg := defaultConfig(t)
	backend, err := NewBackend(cfg)
	require.NoError(t, err)
	run := func() []float64 {
		d, err := NewTDDFTB(cfg, water(t), backend)
		require.NoError(t, err)
		res, err := d.Run()
		require.NoError(t, err)
		return res.Energies
	}
	assert.Equal(t, run(), run(),
		"fixed geometry and nstates must give a fixed spectrum")
}
