package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/skillissue/mockview/internal/cache"
	"github.com/skillissue/mockview/internal/config"
	"github.com/skillissue/mockview/internal/models"
	"github.com/skillissue/mockview/internal/orchestration"
	"github.com/skillissue/mockview/internal/session"
)

// interviewFlags name the documents and parameters an interview is
// planned from.
type interviewFlags struct {
	resumePath  string
	jobPath     string
	profilePath string
	role        string
	seniority   string
	difficulty  float64
	noCache     bool
}

func (f *interviewFlags) bind(cmd *cobra.Command, withProfile bool) {
	cmd.Flags().StringVar(&f.resumePath, "resume", "", "Candidate background document (markdown or plain text)")
	cmd.Flags().StringVar(&f.jobPath, "job", "", "Target role description (markdown or plain text)")
	cmd.Flags().StringVar(&f.role, "role", "", "Role being interviewed for")
	cmd.Flags().StringVar(&f.seniority, "seniority", string(models.SenioritySenior), "Seniority: junior, mid, senior, staff")
	cmd.Flags().Float64Var(&f.difficulty, "difficulty", 0.5, "Question difficulty in [0,1]")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Skip the context profile cache")
	if withProfile {
		cmd.Flags().StringVar(&f.profilePath, "profile", "", "Use a saved context profile instead of --resume/--job")
	}
}

func (f *interviewFlags) params() (models.DomainParameters, error) {
	p := models.DomainParameters{
		Role:       strings.TrimSpace(f.role),
		Seniority:  models.Seniority(strings.ToLower(f.seniority)),
		Difficulty: f.difficulty,
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid interview parameters: %w", err)
	}
	return p, nil
}

func (f *interviewFlags) cacheOption(cfg *config.Config) []orchestration.RunnerOption {
	if f.noCache || cfg.Cache.Enabled == nil || !*cfg.Cache.Enabled {
		return nil
	}
	return []orchestration.RunnerOption{orchestration.WithCache(cache.New(cfg.Cache.Dir))}
}

// profile loads the saved profile or synthesizes one from the documents.
func (f *interviewFlags) profile(ctx context.Context, r *orchestration.Runner) (*models.ContextProfile, error) {
	if f.profilePath != "" {
		data, err := os.ReadFile(f.profilePath)
		if err != nil {
			return nil, fmt.Errorf("reading profile: %w", err)
		}
		var p models.ContextProfile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parsing profile %s: %w", f.profilePath, err)
		}
		return &p, nil
	}

	if f.resumePath == "" || f.jobPath == "" {
		return nil, errors.New("--resume and --job are required")
	}
	params, err := f.params()
	if err != nil {
		return nil, err
	}
	resume, err := os.ReadFile(f.resumePath)
	if err != nil {
		return nil, fmt.Errorf("reading resume: %w", err)
	}
	job, err := os.ReadFile(f.jobPath)
	if err != nil {
		return nil, fmt.Errorf("reading job description: %w", err)
	}
	return r.Synthesize(ctx, string(resume), string(job), params)
}

func printTopics(w io.Writer, p *models.ContextProfile) {
	params := p.Params()
	fmt.Fprintf(w, "Interview plan for %s (%s), %d topic(s)\n\n", params.Role, params.Seniority, p.Len())

	fmt.Fprintf(w, "%s %s %s %s\n", padRight("Topic", 28), padRight("Source", 10), padRight("Weight", 8), "Depth")
	fmt.Fprintln(w, strings.Repeat("─", 56))
	for _, t := range p.Topics() {
		fmt.Fprintf(w, "%s %s %s %d\n",
			padRight(truncateName(t.Label, 28), 28), padRight(string(t.Source), 10), padRight(fmt.Sprintf("%.2f", t.Weight), 8), t.DepthLevel)
	}
	fmt.Fprintln(w)
}

// truncateName shortens a name to maxLen runes, replacing the last rune with "…" if needed.
func truncateName(name string, maxLen int) string {
	runes := []rune(name)
	if len(runes) <= maxLen {
		return name
	}
	return string(runes[:maxLen-1]) + "…"
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

// progressListener prints questions and decisions as the interview runs.
func progressListener(w io.Writer, verbose bool) orchestration.ProgressListener {
	return func(_ string, ev session.Event) {
		switch ev.Type {
		case session.EventQuestion:
			fmt.Fprintf(w, "Q%v [%v, depth %v] %v\n", asInt(ev.Data["turn"])+1, ev.Data["topic_id"], ev.Data["depth"], ev.Data["text"])
		case session.EventTurnClosed:
			if verbose {
				fmt.Fprintf(w, "  answer: %v\n", ev.Data["transcript"])
			}
		case session.EventEvaluation:
			if verbose {
				fmt.Fprintf(w, "  relevance=%.2f correctness=%.2f\n", ev.Data["relevance"], ev.Data["correctness"])
			}
		case session.EventDecision:
			fmt.Fprintf(w, "  → %v\n", ev.Data["decision"])
		case session.EventSessionEnd:
			fmt.Fprintf(w, "Interview ended: %v after %v turn(s)\n\n", ev.Data["reason"], ev.Data["turns"])
		}
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
