package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skillissue/mockview/internal/cache"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the context profile cache",
		Long: `Manage the context profile cache.

The cache stores synthesized topic plans so repeated interviews over the
same documents skip synthesis. Entries are keyed by the documents, the
interview parameters, the synthesis settings and the extra vocabulary.`,
	}

	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheClearCommand() *cobra.Command {
	var cacheDir string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the context profile cache",
		Long: `Clear all cached context profiles.

The next interview over any pair of documents will synthesize its topic
plan from scratch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cacheDir == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				cacheDir = cfg.Cache.Dir
			}

			// Resolve to absolute path
			absDir, err := filepath.Abs(cacheDir)
			if err != nil {
				return fmt.Errorf("resolving cache directory: %w", err)
			}

			c := cache.New(absDir)
			if err := c.Clear(); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared: %s\n", absDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Cache directory to clear (default: cache.dir from the project configuration)")

	return cmd
}
