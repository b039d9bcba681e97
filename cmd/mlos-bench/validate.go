package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kkanellis/MLOS/internal/environment"
	"github.com/kkanellis/MLOS/internal/optimizer"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check an experiment config, its tunables and its environment tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLauncher()
		if err != nil {
			return err
		}
		factory := &environment.Factory{Registry: l.registry, Globals: l.cfg.Globals}
		env, err := factory.Build(l.cfg.Environment)
		if err != nil {
			return err
		}
		opt, err := optimizer.New(l.cfg.Optimizer, env.Tunables())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "experiment:  %s\n", l.cfg.ExperimentID)
		fmt.Fprintf(w, "environment: %s (%s)\n", env.Name(), l.cfg.Environment.Class)
		fmt.Fprintf(w, "optimizer:   %s, %s %s\n", opt.Name(), opt.Direction(), opt.Target())
		fmt.Fprintf(w, "tunables:    %s\n", env.Tunables())
		return nil
	},
}
