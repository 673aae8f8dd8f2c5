package config

import "github.com/spf13/pflag"

// Flag defaults come from the defaults table so the --help output and
// the documented defaults cannot drift apart.
func dint(key string) int       { return defaults[key].(int) }
func dint64(key string) int64   { return defaults[key].(int64) }
func dfloat(key string) float64 { return defaults[key].(float64) }
func dbool(key string) bool     { return defaults[key].(bool) }
func dstring(key string) string { return defaults[key].(string) }

// AddCommonFlags registers the [DFTBaby] options and the generic
// override machinery shared by every driver CLI
func AddCommonFlags(fs *pflag.FlagSet) {
	fs.String("config", "dftbaby.cfg", "configuration file")
	fs.StringArray("set", nil,
		"override any option as section.key=value (repeatable)")
	fs.Int("charge", dint("dftbaby.charge"), "total molecular charge")
	fs.Int("multiplicity", dint("dftbaby.multiplicity"),
		"spin multiplicity 2S+1")
	fs.Float64("scf-conv", dfloat("dftbaby.scf_conv"),
		"SCF energy convergence threshold (hartree)")
	fs.Int("scf-maxiter", dint("dftbaby.scf_maxiter"),
		"maximum SCF iterations")
	fs.Bool("long-range", dbool("dftbaby.long_range_correction"),
		"enable the long-range correction")
	fs.String("kernel", dstring("dftbaby.kernel"),
		"numerical kernel backend (model, extern)")
	fs.String("kernel-command", dstring("dftbaby.kernel_command"),
		"command run by the extern backend")
	fs.String("parameter-dir", dstring("dftbaby.parameter_dir"),
		"directory with Slater-Koster parameter tables")
	fs.Int("verbose", dint("dftbaby.verbose"), "verbosity level")
}

// AddExcitedFlags registers the options of the excited-state drivers
func AddExcitedFlags(fs *pflag.FlagSet) {
	fs.Int("nstates", dint("dftbaby.nstates"),
		"number of excited states")
}

// AddOptFlags registers the [GeometryOptimization] options
func AddOptFlags(fs *pflag.FlagSet) {
	fs.String("method", dstring("geometryoptimization.method"),
		"update rule: bfgs, cg, newton, or steepest")
	fs.Int("max-steps", dint("geometryoptimization.max_steps"),
		"optimization step budget")
	fs.Float64("grad-tol", dfloat("geometryoptimization.grad_tol"),
		"gradient-norm convergence threshold")
	fs.Float64("energy-tol", dfloat("geometryoptimization.energy_tol"),
		"energy-change convergence threshold")
	fs.Int("state", dint("geometryoptimization.state"),
		"electronic state to optimize (0 = ground)")
	fs.String("constraints", dstring("geometryoptimization.constraints"),
		"equality constraints, e.g. \"bond 1 2 1.4; angle 1 2 3 104.5\"")
}

// AddDynamicsFlags registers the [SurfaceHopping] options
func AddDynamicsFlags(fs *pflag.FlagSet) {
	fs.Int("steps", dint("surfacehopping.nsteps"),
		"number of dynamics steps")
	fs.Float64("timestep", dfloat("surfacehopping.nuclear_step"),
		"nuclear time step (fs)")
	fs.Int("initial-state", dint("surfacehopping.initial_state"),
		"initially populated electronic state")
	fs.Int64("seed", dint64("surfacehopping.seed"),
		"RNG seed for the hop decision, -1 for time-based")
	fs.String("trajectory", dstring("surfacehopping.trajectory_file"),
		"trajectory output file (.gz for compression)")
}
