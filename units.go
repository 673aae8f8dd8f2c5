package dftbaby

// Conversion factors between atomic units and the units used in input
// and output files. Calculations run in atomic units throughout:
// lengths in bohr, energies in hartree, times in a.u., masses in
// electron masses.
const (
	BohrToAng    = 0.529177249
	AngToBohr    = 1.0 / BohrToAng
	HartreeToEV  = 27.211396132
	EVToHartree  = 1.0 / HartreeToEV
	AUTimeToFs   = 0.02418884254
	FsToAUTime   = 1.0 / AUTimeToFs
	AMUToAU      = 1822.888486
	KBoltzmannAU = 3.1668114e-6 // hartree/K
)
