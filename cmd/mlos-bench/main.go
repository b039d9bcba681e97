package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kkanellis/MLOS/pkg/logger"
)

var (
	configFile  string
	configPaths []string
	globalFiles []string
	params      []string
	logFile     string
	logLevel    string

	logCloser io.Closer

	rootCmd = &cobra.Command{
		Use:   "mlos-bench",
		Short: "Benchmark and autotune systems by searching their tunable parameters",
		Long: `mlos-bench runs benchmark trials against an environment, feeding the
results to an optimizer that proposes the next configuration to try.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel, logFile)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "experiment config file (YAML or JSON)")
	flags.StringSliceVar(&configPaths, "config-path", nil, "directories searched for config and tunables files")
	flags.StringSliceVar(&globalFiles, "globals", nil, "KEY=value files with global parameters, later files win")
	flags.StringArrayVarP(&params, "param", "p", nil, "global parameter override key=value (repeatable)")
	flags.StringVar(&logFile, "log", "", "also write JSON logs to this file")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")

	rootCmd.AddCommand(runCmd, validateCmd, migrateCmd, serveCmd)
}

// setupLogging installs the default logger. An empty level means info until
// the config is loaded.
func setupLogging(level, path string) error {
	if level == "" {
		level = "info"
	}
	if !logger.ValidLevel(level) {
		return fmt.Errorf("invalid log level: %q", level)
	}
	if path == "" {
		logger.SetDefault(logger.NewText(level, os.Stderr))
		return nil
	}
	l, closer, err := logger.NewFile(level, path)
	if err != nil {
		return err
	}
	logger.SetDefault(l)
	logCloser = closer
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
