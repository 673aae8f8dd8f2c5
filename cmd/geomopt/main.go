// geomopt minimizes the energy of the configured electronic state
// over the nuclear coordinates and writes the optimized geometry.
package main

import (
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
		Use:          "geomopt [flags] geometry.xyz",
		Short:        "geometry optimization on a tight-binding surface",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}
	config.AddCommonFlags(cmd.Flags())
	config.AddExcitedFlags(cmd.Flags())
	config.AddOptFlags(cmd.Flags())
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	fs := cmd.Flags()
	cfgFile, _ := fs.GetString("config")
	sets, _ := fs.GetStringArray("set")
	cfg, err := config.Load(cfgFile, fs, sets)
	if err != nil {
		return err
	}
	geom, err := dftbaby.ReadXYZ(args[0])
	if err != nil {
		return err
	}
	backend, err := driver.NewBackend(cfg)
	if err != nil {
		return err
	}
	g, err := driver.NewGeomOpt(cfg, geom, backend)
	if err != nil {
		return err
	}
	res, err := g.Run()
	if err != nil {
		return err
	}
	fmt.Printf("%s after %d steps (%d kernel evaluations)\n",
		res.State, res.Steps, res.Evaluations)
	fmt.Printf("final energy:        %18.10f hartree\n", res.Energy)
	fmt.Printf("final gradient norm: %18.10f\n", res.GradNorm)
	if cfg.GeomOpt.OutFile != "" {
		fmt.Printf("geometry written to %s\n", cfg.GeomOpt.OutFile)
	}
	return nil
}
