package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillissue/mockview/internal/models"
	"github.com/skillissue/mockview/internal/reporting"
	"github.com/skillissue/mockview/internal/store"
)

func newReportCommand() *cobra.Command {
	var (
		format     string
		outputPath string
		rebuild    bool
	)

	cmd := &cobra.Command{
		Use:   "report [session-id]",
		Short: "Show the report of an archived session",
		Long: `Show the report of an archived session.

With no session id, lists the sessions in the file store. Use --rebuild
to build the report again from the archived session instead of reading
the archived report.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			f, err := reporting.ParseFormat(format)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := store.Open(ctx, cfg.Store, cfg.Paths.Output)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close() //nolint:errcheck

			if len(args) == 0 {
				return listArchivedSessions(cmd, st)
			}

			id := args[0]
			var r *models.SessionReport
			if rebuild {
				sess, err := st.LoadSession(ctx, id)
				if err != nil {
					return fmt.Errorf("loading session %s: %w", id, err)
				}
				r = reporting.Build(sess)
			} else {
				r, err = st.LoadReport(ctx, id)
				if err != nil {
					return fmt.Errorf("loading report %s: %w", id, err)
				}
			}
			return writeReport(cmd.OutOrStdout(), r, f, outputPath)
		},
	}

	cmd.Flags().StringVar(&format, "format", string(reporting.FormatText), "Report format: text, json, markdown, html, junit")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the rendered report to a file instead of stdout")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Rebuild the report from the archived session")

	return cmd
}

func listArchivedSessions(cmd *cobra.Command, st store.Store) error {
	fs, ok := st.(*store.FileStore)
	if !ok {
		return errors.New("listing sessions requires the file store; pass a session id")
	}
	ids, err := fs.Sessions()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(ids) == 0 {
		fmt.Fprintln(out, "No archived sessions found.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}
