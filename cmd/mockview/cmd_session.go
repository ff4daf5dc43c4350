package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillissue/mockview/internal/session"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "View and manage session logs",
		Long: `View and manage session event logs.

Session logs are NDJSON files written during interviews when session_log is
enabled. They record the full lifecycle: questions, turn boundaries,
interruptions, evaluations and follow-up decisions.`,
	}

	cmd.AddCommand(newSessionListCommand())
	cmd.AddCommand(newSessionViewCommand())

	return cmd
}

func newSessionListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded session logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			logDir, err := sessionDir(cmd, dir)
			if err != nil {
				return err
			}

			files, err := session.ListSessions(logDir)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("listing sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No session logs found.")
				return nil
			}

			fmt.Fprintf(out, "%-56s %-8s %s\n", "File", "Events", "Modified")
			fmt.Fprintln(out, strings.Repeat("─", 84))
			for _, f := range files {
				fmt.Fprintf(out, "%-56s %-8d %s\n", f.Name, f.NumEvents, f.ModTime.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to search for session logs (default: paths.sessions)")

	return cmd
}

func newSessionViewCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "view <session-file|session-id>",
		Short: "View a session timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				logDir, err := sessionDir(cmd, dir)
				if err != nil {
					return err
				}
				if path, err = findSessionLog(logDir, args[0]); err != nil {
					return err
				}
			}

			events, err := session.ReadEvents(path)
			if err != nil {
				return fmt.Errorf("reading session: %w", err)
			}

			session.RenderTimeline(cmd.OutOrStdout(), events)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to search for session logs (default: paths.sessions)")

	return cmd
}

func sessionDir(cmd *cobra.Command, dir string) (string, error) {
	if dir != "" {
		return filepath.Abs(dir)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return cfg.Paths.Sessions, nil
}

// findSessionLog returns the newest log recorded for a session id.
func findSessionLog(dir, id string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*-"+id+"-session.jsonl"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no session log for %q in %s", id, dir)
	}
	// timestamp prefixes sort chronologically
	return matches[len(matches)-1], nil
}
