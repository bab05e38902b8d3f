// Package cmd implements the sonido-critique command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/RyanBlaney/sonido-critique/config"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var cmdRoot = &cobra.Command{
	Use:           config.AppName,
	Short:         "Analyze a track and get production feedback against reference artists",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cmdRoot.PersistentFlags().String("config", "", "path to a YAML config file (default: XDG config dir)")
	cmdRoot.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	cmdRoot.PersistentFlags().Bool("no-color", false, "disable colored output")
}

// Execute runs the root command
func Execute() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config named by --config, applies --log-level and --no-color, and
// tags the command context with the command name for loggers built from it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	// stdout carries reports and JSON, so every log line goes to stderr
	logging.SetGlobalLogger(logging.NewWriterLogger(os.Stderr, os.Stderr, level))
	noColor, _ := cmd.Flags().GetBool("no-color")
	if noColor {
		color.NoColor = true
	}
	if noColor || !isatty.IsTerminal(os.Stderr.Fd()) {
		logging.DisableColors()
	} else {
		logging.EnableColors()
	}
	cmd.SetContext(logging.ContextWithFields(cmd.Context(), logging.Fields{"command": cmd.Name()}))

	return cfg, nil
}
