// tddftb runs the linear-response excited-state calculation and
// prints the excitation spectrum.
package main

import (
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
		Use:          "tddftb [flags] geometry.xyz",
		Short:        "linear-response TD-DFTB excitation energies",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}
	config.AddCommonFlags(cmd.Flags())
	config.AddExcitedFlags(cmd.Flags())
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
	d, err := driver.NewTDDFTB(cfg, geom, backend)
	if err != nil {
		return err
	}
	res, err := d.Run()
	if err != nil {
		return err
	}
	res.Summarize(os.Stdout)
	return nil
}
