// dftb2 runs a ground-state tight-binding calculation on an XYZ
// geometry and prints the energy, orbital, and charge tables.
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
		Use:          "dftb2 [flags] geometry.xyz",
		Short:        "self-consistent-charge tight-binding ground state",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}
	config.AddCommonFlags(cmd.Flags())
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
	d, err := driver.NewDFTB2(cfg, geom, backend)
	if err != nil {
		return err
	}
	res, err := d.Run()
	if res == nil {
		return err
	}
	if err != nil {
		driver.Warn("%v", err)
	}
	res.Summarize(os.Stdout, geom)
	return nil
}
