package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/skillissue/mockview/internal/models"
)

// InterpretScore returns a plain-language label for a numeric score (0–1).
func InterpretScore(score float64) string {
	pct := score * 100
	switch {
	case pct > 90:
		return "Excellent (>90%)"
	case pct >= 70:
		return "Good (70-90%)"
	case pct >= 50:
		return "Needs Work (50-70%)"
	default:
		return "Poor (<50%)"
	}
}

// InterpretCoverage explains how many topics were demonstrated.
func InterpretCoverage(adequate, covered, total int) string {
	switch {
	case total == 0:
		return "No topics were planned."
	case covered == 0:
		return "No topics were discussed."
	case adequate == total:
		return fmt.Sprintf("Every planned topic was demonstrated (%d/%d).", adequate, total)
	case adequate == 0:
		return fmt.Sprintf("None of the %d discussed topics were demonstrated.", covered)
	default:
		return fmt.Sprintf("%d of %d planned topics were demonstrated; %d were discussed.", adequate, total, covered)
	}
}

// InterpretDiscrepancy explains one discrepancy in a sentence.
func InterpretDiscrepancy(d models.Discrepancy, label string) string {
	switch d.Tag {
	case models.TagResumeOverstated:
		return fmt.Sprintf("%s is on the resume, but the answer in turn %d fell short of it.", label, d.TurnIndex+1)
	case models.TagKnowledgeGap:
		return fmt.Sprintf("%s is required for the role and was never demonstrated.", label)
	case models.TagOffTopic:
		return fmt.Sprintf("The answer in turn %d drifted away from %s.", d.TurnIndex+1, label)
	default:
		return fmt.Sprintf("%s: %s", label, d.Tag)
	}
}

// FormatSummaryReport produces a plain-language summary of a session report.
func FormatSummaryReport(r *models.SessionReport) string {
	var b strings.Builder

	s := r.Summary
	b.WriteString("=== Interpretation ===\n\n")
	if !r.Complete {
		b.WriteString(fmt.Sprintf("Incomplete session: %s\n\n", r.IncompleteReason))
	}

	if s.TurnsEvaluated > 0 {
		b.WriteString(fmt.Sprintf("Relevance:     %.2f — %s\n", s.MeanRelevance, InterpretScore(s.MeanRelevance)))
		b.WriteString(fmt.Sprintf("Correctness:   %.2f — %s\n", s.MeanCorrectness, InterpretScore(s.MeanCorrectness)))
		if ci := s.RelevanceCI; ci != nil {
			b.WriteString(fmt.Sprintf("               %.0f%% of resampled sessions score relevance between %.2f and %.2f\n", ci.Confidence*100, ci.Lower, ci.Upper))
		}
	} else {
		b.WriteString("No answers could be scored.\n")
	}
	b.WriteString(fmt.Sprintf("Coverage:      %s\n", InterpretCoverage(s.TopicsAdequate, s.TopicsCovered, len(r.Coverage))))
	if !r.EndedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Duration:      %v\n", r.EndedAt.Sub(r.StartedAt).Round(time.Second)))
	}
	b.WriteString(fmt.Sprintf("Turns:         %d asked, %d scored, %d unavailable\n", s.TurnsTotal, s.TurnsEvaluated, s.TurnsUnavailable))
	if s.MeanSTAR > 0 || s.RedFlags > 0 {
		b.WriteString(fmt.Sprintf("Structure:     STAR %.2f, %d red flag(s)\n", s.MeanSTAR, s.RedFlags))
	}
	if s.BargeIns > 0 || s.Reopens > 0 {
		b.WriteString(fmt.Sprintf("Turn-taking:   %d interruptions, %d resumed answers\n", s.BargeIns, s.Reopens))
	}

	labels := make(map[string]string, len(r.Coverage))
	if len(r.Coverage) > 0 {
		b.WriteString("\nPer-Topic Interpretation:\n")
		for _, c := range r.Coverage {
			labels[c.TopicID] = c.Label
			icon := "✓"
			if c.Status != models.CoverageAdequate {
				icon = "✗"
			}
			b.WriteString(fmt.Sprintf("  %s %s (%s): %s\n", icon, c.Label, c.Source, c.Status))
			if c.Turns > 0 {
				b.WriteString(fmt.Sprintf("    Best relevance: %.2f — %s\n", c.BestRelevance, InterpretScore(c.BestRelevance)))
			}
			if c.Summary != "" {
				b.WriteString(fmt.Sprintf("    %s\n", c.Summary))
			}
		}
	}

	if len(r.Discrepancies) > 0 {
		b.WriteString("\nDiscrepancies:\n")
		for _, d := range r.Discrepancies {
			label := labels[d.TopicID]
			if label == "" {
				label = d.TopicID
			}
			b.WriteString(fmt.Sprintf("  - %s\n", InterpretDiscrepancy(d, label)))
		}
	}

	return b.String()
}
