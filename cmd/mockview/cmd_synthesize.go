package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skillissue/mockview/internal/orchestration"
	"github.com/skillissue/mockview/internal/spinner"
)

func newSynthesizeCommand() *cobra.Command {
	var (
		flags      interviewFlags
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Build the interview topic plan from a resume and a job description",
		Long: `Build the interview topic plan from a resume and a job description.

Topics found in either document are weighted by where they appear, how
recently the candidate used them and how critical the role says they are.
Use --output to save the profile and pass it to "simulate --profile".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			runner := orchestration.NewRunner(cfg, nil, nil, flags.cacheOption(cfg)...)
			stop := spinner.Start(cmd.ErrOrStderr(), "Synthesizing topic plan...")
			profile, err := flags.profile(cmd.Context(), runner)
			stop()
			if err != nil {
				return err
			}

			printTopics(cmd.OutOrStdout(), profile)

			if outputPath != "" {
				data, err := json.MarshalIndent(profile, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling profile: %w", err)
				}
				if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
					return fmt.Errorf("creating output directory: %w", err)
				}
				if err := os.WriteFile(outputPath, data, 0o644); err != nil {
					return fmt.Errorf("writing profile: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Profile saved to: %s\n", outputPath)
			}
			return nil
		},
	}

	flags.bind(cmd, false)
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the context profile as JSON")

	return cmd
}
