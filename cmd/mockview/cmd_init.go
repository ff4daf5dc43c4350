package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skillissue/mockview/internal/config"
	"github.com/skillissue/mockview/internal/wizard"
)

const exampleScriptName = "example.script.yaml"

const exampleScript = `# A scripted candidate for "mockview simulate".
name: example
answers:
  - text: "I have used goroutines and channels to build a worker pool that drains a queue with backpressure"
  - text: "um I mostly deployed things"
    fillers: ["so"]
    resume: "with helm charts and rolling updates on kubernetes"
    resume_after: 400ms
  - text: "I would check the query plan first and add an index"
    barge_in: true
  - silent: true
`

func newInitCommand() *cobra.Command {
	var (
		useDefaults bool
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a mockview project configuration",
		Long: `Create a .mockview.yaml project configuration and an example
simulation script.

The guided form asks for the question generator, scorer, interview budgets
and session store. Use --yes to write the defaults without asking.

If no directory is specified, the current directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return initCommandE(cmd, dir, useDefaults, force)
		},
	}

	cmd.Flags().BoolVarP(&useDefaults, "yes", "y", false, "Write the default configuration without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")

	return cmd
}

func initCommandE(cmd *cobra.Command, dir string, useDefaults, force bool) error {
	// Create the root directory if it doesn't exist
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", cfgPath, err)
	}

	answers := wizard.DefaultAnswers()
	if !useDefaults {
		a, err := wizard.Run(cmd.InOrStdin(), cmd.OutOrStdout(), answers)
		if err != nil {
			return err
		}
		answers = *a
	}

	data, err := wizard.GenerateConfigYAML(answers)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", config.FileName, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Created:")
	fmt.Fprintf(out, "  %s\n", cfgPath)

	scriptPath := filepath.Join(dir, exampleScriptName)
	if _, err := os.Stat(scriptPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(scriptPath, []byte(exampleScript), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", exampleScriptName, err)
		}
		fmt.Fprintf(out, "  %s\n", scriptPath)
	}
	return nil
}
