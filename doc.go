/*
DFTBaby
-------
Orchestration layer for tight-binding DFT calculations: configuration,
geometry and trajectory I/O, and the workflow drivers that tie the
compiled numerical kernels together. The numerical work itself happens
behind the capability interfaces in the kernel package; everything here
is glue between input files, kernels, and output files.
*/
package dftbaby
