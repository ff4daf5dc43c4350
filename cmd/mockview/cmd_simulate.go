package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/skillissue/mockview/internal/capability"
	"github.com/skillissue/mockview/internal/config"
	"github.com/skillissue/mockview/internal/models"
	"github.com/skillissue/mockview/internal/orchestration"
	"github.com/skillissue/mockview/internal/reporting"
	"github.com/skillissue/mockview/internal/store"
	"github.com/skillissue/mockview/internal/telemetry"
)

type simulateOptions struct {
	interviewFlags
	format      string
	outputPath  string
	metricsPath string
	sessionLog  bool
	verbose     bool
}

func newSimulateCommand() *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate <script>",
		Short: "Run an interview against a scripted candidate",
		Long: `Run a full interview against a scripted candidate.

The script supplies the candidate's answers, pauses, interruptions and
fillers; questions come from the configured generator and answers are
scored by the configured scorer. The session and its report are archived
in the configured store when the interview ends, including when it is
interrupted with Ctrl+C.

Exits with status 1 when the session ended before concluding.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return simulateCommandE(cmd, args[0], &opts)
		},
	}

	opts.bind(cmd, true)
	cmd.Flags().StringVar(&opts.format, "format", string(reporting.FormatText), "Report format: text, json, markdown, html, junit")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Write the rendered report to a file instead of stdout")
	cmd.Flags().StringVar(&opts.metricsPath, "metrics", "", "Write Prometheus metrics in textfile format")
	cmd.Flags().BoolVar(&opts.sessionLog, "session-log", false, "Write an NDJSON event log for the session")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Echo answers and scores as they happen")

	return cmd
}

func simulateCommandE(cmd *cobra.Command, scriptPath string, opts *simulateOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("session-log") {
		cfg.SessionLog = &opts.sessionLog
	}
	format, err := reporting.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	script, err := capability.LoadScript(scriptPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	backends, err := capability.NewBackends(ctx, cfg.Backends, nil)
	if err != nil {
		return err
	}
	defer backends.Close() //nolint:errcheck

	st, err := store.Open(ctx, cfg.Store, cfg.Paths.Output)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close() //nolint:errcheck

	exporters, err := configuredExporters(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var echo io.Writer
	if opts.verbose {
		echo = out
	}
	candidate := capability.NewScriptedCandidate(script, clock.New(), echo)
	metrics := telemetry.NewMetrics()

	runnerOpts := append([]orchestration.RunnerOption{
		orchestration.WithAudio(candidate, candidate),
		orchestration.WithStore(st),
		orchestration.WithExporters(exporters...),
		orchestration.WithMetrics(metrics),
	}, opts.cacheOption(cfg)...)
	runner := orchestration.NewRunner(cfg, backends.Generator, backends.Scorer, runnerOpts...)
	runner.OnProgress(progressListener(out, opts.verbose))

	profile, err := opts.profile(ctx, runner)
	if err != nil {
		return err
	}
	if opts.verbose {
		printTopics(out, profile)
	}

	res, runErr := runner.Run(ctx, profile)
	if res == nil {
		return runErr
	}

	if err := writeReport(out, res.Report, format, opts.outputPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "Session %s archived (%s store)\n", res.Session.ID, cfg.Store.Kind)
	if res.LogPath != "" {
		fmt.Fprintf(out, "Session log: %s\n", res.LogPath)
	}
	for _, loc := range res.Exports {
		fmt.Fprintf(out, "Report exported to: %s\n", loc)
	}

	if opts.metricsPath != "" {
		if err := metrics.WriteTextfile(opts.metricsPath); err != nil {
			slog.Warn("Failed to write metrics", "path", opts.metricsPath, "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if !res.Report.Complete {
		return &IncompleteSessionError{
			Message: fmt.Sprintf("session %s is incomplete: %s", res.Session.ID, res.Report.IncompleteReason),
		}
	}
	return nil
}

// configuredExporters returns the remote exporters named in cfg.
func configuredExporters(cfg *config.Config) ([]reporting.Exporter, error) {
	if cfg.Export.AzureAccountURL == "" {
		return nil, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure credential: %w", err)
	}
	e, err := reporting.NewBlobExporter(cfg.Export.AzureAccountURL, cfg.Export.AzureContainer, cred)
	if err != nil {
		return nil, err
	}
	return []reporting.Exporter{e}, nil
}

// writeReport renders r to path, or to w when path is empty.
func writeReport(w io.Writer, r *models.SessionReport, format reporting.Format, path string) error {
	data, err := reporting.Render(r, format)
	if err != nil {
		return err
	}
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	fmt.Fprintf(w, "Report saved to: %s\n", path)
	return nil
}
