// Package config loads dftbaby.cfg, the INI-style configuration file
// shared by all calculation drivers. Options live in named sections
// (DFTBaby, GeometryOptimization, SurfaceHopping, QMMM); every
// documented option has a default, so a missing file is not an error.
// Command-line flags override file values, which override defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrConfig tags every configuration failure: unreadable files,
// malformed lines, and values that cannot be coerced to the declared
// option type
var ErrConfig = errors.New("configuration error")

// DFTBaby holds the [DFTBaby] section: the electronic-structure
// options every driver consumes
type DFTBaby struct {
	Charge          int     `mapstructure:"charge"`
	Multiplicity    int     `mapstructure:"multiplicity"`
	SCFConv         float64 `mapstructure:"scf_conv"`
	SCFMaxIter      int     `mapstructure:"scf_maxiter"`
	Mixing          float64 `mapstructure:"mixing"`
	LongRange       bool    `mapstructure:"long_range_correction"`
	LongRangeRadius float64 `mapstructure:"long_range_radius"`
	Nstates         int     `mapstructure:"nstates"`
	Kernel          string  `mapstructure:"kernel"`
	KernelCommand   string  `mapstructure:"kernel_command"`
	ParameterDir    string  `mapstructure:"parameter_dir"`
	Verbose         int     `mapstructure:"verbose"`
}

// GeomOpt holds the [GeometryOptimization] section
type GeomOpt struct {
	Method      string  `mapstructure:"method"`
	MaxSteps    int     `mapstructure:"max_steps"`
	GradTol     float64 `mapstructure:"grad_tol"`
	EnergyTol   float64 `mapstructure:"energy_tol"`
	State       int     `mapstructure:"state"`
	Constraints string  `mapstructure:"constraints"`
	OutFile     string  `mapstructure:"output_file"`
}

// SurfaceHopping holds the [SurfaceHopping] section. NuclearStep is
// in fs; the coupling threshold gates the stochastic hop decision.
type SurfaceHopping struct {
	InitialState      int     `mapstructure:"initial_state"`
	Nsteps            int     `mapstructure:"nsteps"`
	NuclearStep       float64 `mapstructure:"nuclear_step"`
	Seed              int64   `mapstructure:"seed"`
	CouplingThreshold float64 `mapstructure:"scalar_coupling_threshold"`
	Decoherence       bool    `mapstructure:"decoherence_correction"`
	DecoherenceC      float64 `mapstructure:"decoherence_constant"`
	OutputStep        int     `mapstructure:"output_step"`
	CheckpointStep    int     `mapstructure:"checkpoint_step"`
	TrajectoryFile    string  `mapstructure:"trajectory_file"`
}

// QMMM holds the [QMMM] section. Only electrostatic embedding through
// an external point-charge file is handled here; the MM force field
// lives with the compiled kernels.
type QMMM struct {
	PointCharges string `mapstructure:"point_charges"`
	Embedding    string `mapstructure:"embedding"`
}

// Config is the parsed configuration for one run. It is built once by
// Load and read-only afterwards. Sections keeps the raw file content,
// unknown sections included, for kernels that take free-form options.
type Config struct {
	DFTBaby        DFTBaby        `mapstructure:"dftbaby"`
	GeomOpt        GeomOpt        `mapstructure:"geometryoptimization"`
	SurfaceHopping SurfaceHopping `mapstructure:"surfacehopping"`
	QMMM           QMMM           `mapstructure:"qmmm"`

	Sections map[string]map[string]string `mapstructure:"-"`
}

// Documented defaults, applied whenever the file or flag does not
// supply a value
var defaults = map[string]interface{}{
	"dftbaby.charge":                0,
	"dftbaby.multiplicity":          1,
	"dftbaby.scf_conv":              1e-6,
	"dftbaby.scf_maxiter":           100,
	"dftbaby.mixing":                0.33,
	"dftbaby.long_range_correction": true,
	"dftbaby.long_range_radius":     3.03,
	"dftbaby.nstates":               5,
	"dftbaby.kernel":                "model",
	"dftbaby.kernel_command":        "",
	"dftbaby.parameter_dir":         "",
	"dftbaby.verbose":               1,

	"geometryoptimization.method":      "bfgs",
	"geometryoptimization.max_steps":   500,
	"geometryoptimization.grad_tol":    1e-4,
	"geometryoptimization.energy_tol":  1e-6,
	"geometryoptimization.state":       0,
	"geometryoptimization.constraints": "",
	"geometryoptimization.output_file": "optimized.xyz",

	"surfacehopping.initial_state":             1,
	"surfacehopping.nsteps":                    1000,
	"surfacehopping.nuclear_step":              0.1,
	"surfacehopping.seed":                      int64(-1),
	"surfacehopping.scalar_coupling_threshold": 0.01,
	"surfacehopping.decoherence_correction":    true,
	"surfacehopping.decoherence_constant":      0.1,
	"surfacehopping.output_step":               1,
	"surfacehopping.checkpoint_step":           100,
	"surfacehopping.trajectory_file":           "dynamics.xyz",

	"qmmm.point_charges": "",
	"qmmm.embedding":     "electrostatic",
}

// flagKeys maps CLI flag names to their option keys. A flag only
// participates if the calling command registered it.
var flagKeys = map[string]string{
	"charge":         "dftbaby.charge",
	"multiplicity":   "dftbaby.multiplicity",
	"nstates":        "dftbaby.nstates",
	"scf-conv":       "dftbaby.scf_conv",
	"scf-maxiter":    "dftbaby.scf_maxiter",
	"long-range":     "dftbaby.long_range_correction",
	"kernel":         "dftbaby.kernel",
	"kernel-command": "dftbaby.kernel_command",
	"parameter-dir":  "dftbaby.parameter_dir",
	"verbose":        "dftbaby.verbose",
	"method":         "geometryoptimization.method",
	"max-steps":      "geometryoptimization.max_steps",
	"grad-tol":       "geometryoptimization.grad_tol",
	"energy-tol":     "geometryoptimization.energy_tol",
	"state":          "geometryoptimization.state",
	"constraints":    "geometryoptimization.constraints",
	"steps":          "surfacehopping.nsteps",
	"timestep":       "surfacehopping.nuclear_step",
	"initial-state":  "surfacehopping.initial_state",
	"seed":           "surfacehopping.seed",
	"trajectory":     "surfacehopping.trajectory_file",
}

// Load builds the configuration for a run: documented defaults,
// overlaid with filename if it exists, overlaid with any registered
// flags from fs and generic section.key=value entries in sets. A
// missing file is fine; an unreadable or malformed one is not.
func Load(filename string, fs *pflag.FlagSet, sets []string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	sections := make(map[string]map[string]string)
	if _, err := os.Stat(filename); err == nil {
		sections, err = parseINI(filename)
		if err != nil {
			return nil, err
		}
		merged := make(map[string]interface{}, len(sections))
		for name, kv := range sections {
			sub := make(map[string]interface{}, len(kv))
			for k, val := range kv {
				sub[k] = val
			}
			merged[name] = sub
		}
		if err := v.MergeConfigMap(merged); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrConfig, err)
				}
			}
		}
	}
	for _, s := range sets {
		split := strings.SplitN(s, "=", 2)
		if len(split) != 2 || !strings.Contains(split[0], ".") {
			return nil, fmt.Errorf(
				"%w: --set wants section.key=value, got %q", ErrConfig, s)
		}
		v.Set(strings.ToLower(strings.TrimSpace(split[0])),
			strings.TrimSpace(split[1]))
	}
	var c Config
	err := v.Unmarshal(&c, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.ErrorUnused = false
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	c.Sections = sections
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate applies the cross-option checks that type coercion cannot
// catch
func (c *Config) Validate() error {
	switch c.GeomOpt.Method {
	case "bfgs", "cg", "newton", "steepest":
	default:
		return fmt.Errorf("%w: unknown optimization method %q",
			ErrConfig, c.GeomOpt.Method)
	}
	if c.DFTBaby.Nstates < 0 {
		return fmt.Errorf("%w: nstates must be >= 0, got %d",
			ErrConfig, c.DFTBaby.Nstates)
	}
	if c.DFTBaby.Multiplicity < 1 {
		return fmt.Errorf("%w: multiplicity must be >= 1, got %d",
			ErrConfig, c.DFTBaby.Multiplicity)
	}
	if c.DFTBaby.SCFConv <= 0 {
		return fmt.Errorf("%w: scf_conv must be positive, got %g",
			ErrConfig, c.DFTBaby.SCFConv)
	}
	if c.SurfaceHopping.NuclearStep <= 0 {
		return fmt.Errorf("%w: nuclear_step must be positive, got %g",
			ErrConfig, c.SurfaceHopping.NuclearStep)
	}
	if c.SurfaceHopping.InitialState < 0 ||
		c.SurfaceHopping.InitialState > c.DFTBaby.Nstates {
		return fmt.Errorf("%w: initial_state %d outside 0..nstates (%d)",
			ErrConfig, c.SurfaceHopping.InitialState, c.DFTBaby.Nstates)
	}
	if c.SurfaceHopping.OutputStep < 1 {
		return fmt.Errorf("%w: output_step must be >= 1, got %d",
			ErrConfig, c.SurfaceHopping.OutputStep)
	}
	switch c.QMMM.Embedding {
	case "electrostatic", "mechanical":
	default:
		return fmt.Errorf("%w: unknown embedding %q",
			ErrConfig, c.QMMM.Embedding)
	}
	return nil
}
