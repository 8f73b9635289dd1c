// Package main provides the inspectra CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inspectra/inspectra/pkg/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   "inspectra",
		Short: "Grade and manage inspection results",
		Long: `Inspectra aggregates topic and direction grades of inspections into an
overall grade using configurable strategies, and manages the inspection
database.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file (default: search for .inspectra/config.yaml)")

	cfgFn := func() *config.Config { return loadConfig(cfgPath) }
	rootCmd.AddCommand(
		newGradeCmd(cfgFn),
		newMigrateCmd(cfgFn),
	)
	return rootCmd
}

// loadConfig reads the config file (searched from the working directory
// when path is empty), then .env and environment overrides.
func loadConfig(path string) *config.Config {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			path = config.FindConfigFile(cwd)
		}
	}

	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		} else {
			cfg = loaded
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	return cfg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
