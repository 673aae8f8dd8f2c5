// surfhop integrates a fewest-switches surface-hopping trajectory.
// The geometry file may be a dual-block initial-condition file with
// velocities; a plain XYZ starts from rest.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	dftbaby "github.com/kangmg/DFTBaby"
	"github.com/kangmg/DFTBaby/config"
	"github.com/kangmg/DFTBaby/driver"
	_ "github.com/kangmg/DFTBaby/kernel/extern"
	_ "github.com/kangmg/DFTBaby/kernel/model"
)

func main() {
	cmd := &cobra.Command{
		Use:          "surfhop [flags] geometry.xyz",
		Short:        "non-adiabatic surface-hopping dynamics",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}
	config.AddCommonFlags(cmd.Flags())
	config.AddExcitedFlags(cmd.Flags())
	config.AddDynamicsFlags(cmd.Flags())
	cmd.Flags().StringP("restart", "c", "",
		"continue from a restart.json checkpoint")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readGeometry accepts either the dual-block initial-condition format
// or a plain XYZ, which starts the trajectory from rest
func readGeometry(filename string) (*dftbaby.Geometry, []float64, error) {
	geom, vel, err := dftbaby.ReadInitialConditions(filename)
	if errors.Is(err, dftbaby.ErrVelocityCount) {
		geom, err = dftbaby.ReadXYZ(filename)
		return geom, nil, err
	}
	return geom, vel, err
}

func run(cmd *cobra.Command, args []string) error {
	fs := cmd.Flags()
	cfgFile, _ := fs.GetString("config")
	sets, _ := fs.GetStringArray("set")
	cfg, err := config.Load(cfgFile, fs, sets)
	if err != nil {
		return err
	}
	geom, vel, err := readGeometry(args[0])
	if err != nil {
		return err
	}
	backend, err := driver.NewBackend(cfg)
	if err != nil {
		return err
	}
	s, err := driver.NewSurfaceHopping(cfg, geom, vel, backend)
	if err != nil {
		return err
	}
	if restart, _ := fs.GetString("restart"); restart != "" {
		if err := s.LoadCheckpoint(restart); err != nil {
			return err
		}
	}
	res, err := s.Run()
	if err != nil {
		return err
	}
	fmt.Printf("trajectory finished: %d steps, %.2f fs\n", res.Steps, res.Time)
	fmt.Printf("final state %d at %18.10f hartree\n",
		res.FinalState, res.FinalEnergy)
	fmt.Printf("%d hops, %d frustrated\n", res.Hops, res.Frustrated)
	return nil
}
