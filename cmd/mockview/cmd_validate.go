package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillissue/mockview/internal/validation"
)

func newValidateCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check scripts, configuration files and reports against their schemas",
		Long: `Check files against the embedded JSON schemas.

The kind of each file is detected from its name: .mockview.yaml is a project
configuration, *.json is an exported report and anything else is a
simulation script. Use --kind to override the detection.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				errs, err := validation.ValidateFile(path, validation.Kind(kind))
				if err != nil {
					return err
				}
				if len(errs) == 0 {
					fmt.Fprintf(out, "✓ %s\n", path)
					continue
				}
				failed++
				fmt.Fprintf(out, "✗ %s\n", path)
				for _, e := range errs {
					fmt.Fprintf(out, "    %s\n", e)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) failed validation", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "File kind: script, config, report (default: detect from name)")

	return cmd
}
