package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skillissue/mockview/internal/config"
	"github.com/skillissue/mockview/internal/utils"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mockview",
		Short: "mockview - run and review mock technical interviews",
		Long: `mockview runs adaptive mock technical interviews.

It builds a topic plan from a candidate's background and a job description,
asks questions over a live or simulated audio loop, follows up on vague or
wrong answers, and writes a coverage report when the interview ends.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentFlags().String("project", ".", "Directory to search for "+config.FileName)
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newSynthesizeCommand())
	cmd.AddCommand(newSimulateCommand())
	cmd.AddCommand(newReportCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newCacheCommand())
	cmd.AddCommand(newSessionCommand())

	return cmd
}

// loadConfig reads the project configuration and resolves its relative
// directories against the project directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, err := cmd.Flags().GetString("project")
	if err != nil {
		return nil, err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory: %w", err)
	}

	cfg, err := config.Load(absDir)
	if err != nil {
		return nil, err
	}
	utils.ResolvePaths(absDir, &cfg.Paths.Output, &cfg.Paths.Sessions, &cfg.Cache.Dir)
	slog.Debug("Loaded configuration", "project", absDir, "store", cfg.Store.Kind,
		"generator", cfg.Backends.Generator.Provider, "scorer", cfg.Backends.Scorer.Provider)
	return cfg, nil
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
