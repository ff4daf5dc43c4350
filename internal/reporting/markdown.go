package reporting

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/skillissue/mockview/internal/models"
)

// RenderMarkdown renders r as a Markdown document.
func RenderMarkdown(r *models.SessionReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Interview report: %s (%s)\n\n", r.Role, r.Seniority)
	fmt.Fprintf(&b, "Session `%s`", r.SessionID)
	if !r.StartedAt.IsZero() {
		fmt.Fprintf(&b, ", started %s", r.StartedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	b.WriteString(".\n\n")
	if !r.Complete {
		fmt.Fprintf(&b, "> **Incomplete:** %s\n\n", escapeCell(r.IncompleteReason))
	}

	s := r.Summary
	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Turns | %d |\n", s.TurnsTotal)
	fmt.Fprintf(&b, "| Scored turns | %d |\n", s.TurnsEvaluated)
	fmt.Fprintf(&b, "| Mean relevance | %.2f |\n", s.MeanRelevance)
	fmt.Fprintf(&b, "| Mean correctness | %.2f |\n", s.MeanCorrectness)
	if ci := s.RelevanceCI; ci != nil {
		fmt.Fprintf(&b, "| Relevance %.0f%% CI | %.2f – %.2f |\n", ci.Confidence*100, ci.Lower, ci.Upper)
	}
	fmt.Fprintf(&b, "| Topics demonstrated | %d / %d |\n", s.TopicsAdequate, len(r.Coverage))
	if s.MeanSTAR > 0 || s.RedFlags > 0 {
		fmt.Fprintf(&b, "| Mean STAR | %.2f |\n", s.MeanSTAR)
		fmt.Fprintf(&b, "| Red flags | %d |\n", s.RedFlags)
	}
	b.WriteString("\n")

	if len(r.Coverage) > 0 {
		b.WriteString("## Coverage\n\n")
		b.WriteString("| Topic | Source | Weight | Turns | Depth | Relevance | Correctness | Status |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|\n")
		for _, c := range r.Coverage {
			fmt.Fprintf(&b, "| %s | %s | %.2f | %d | %d | %.2f | %.2f | %s |\n",
				escapeCell(c.Label), c.Source, c.Weight, c.Turns, c.MaxDepth, c.BestRelevance, c.BestCorrectness, c.Status)
		}
		b.WriteString("\n")
		for _, c := range r.Coverage {
			if c.Summary != "" {
				fmt.Fprintf(&b, "- **%s**: %s\n", escapeCell(c.Label), c.Summary)
			}
		}
		b.WriteString("\n")
	}

	if len(r.Timeline) > 0 {
		b.WriteString("## Timeline\n\n")
		for _, e := range r.Timeline {
			fmt.Fprintf(&b, "### Turn %d: %s (depth %d)\n\n", e.Index+1, e.TopicID, e.Depth)
			fmt.Fprintf(&b, "**Q:** %s\n\n", e.Question)
			if e.Transcript != "" {
				fmt.Fprintf(&b, "**A:** %s\n\n", e.Transcript)
			} else {
				b.WriteString("**A:** _no answer_\n\n")
			}
			var notes []string
			if e.Relevance != nil && e.Correctness != nil {
				notes = append(notes, fmt.Sprintf("relevance %.2f, correctness %.2f", *e.Relevance, *e.Correctness))
			}
			if e.Unavailable {
				notes = append(notes, "score unavailable")
			}
			if e.Superseded {
				notes = append(notes, "superseded by a continued answer")
			}
			if e.BargedIn {
				notes = append(notes, "candidate interrupted the question")
			}
			for _, tag := range e.Tags {
				notes = append(notes, string(tag))
			}
			if m := e.Metrics; m != nil {
				notes = append(notes, fmt.Sprintf("STAR %.2f", m.STAR))
				if len(m.RedFlags) > 0 {
					notes = append(notes, "red flags: "+strings.Join(m.RedFlags, ", "))
				}
			}
			if e.Decision != "" {
				notes = append(notes, "next: "+string(e.Decision))
			}
			if len(notes) > 0 {
				fmt.Fprintf(&b, "_%s_\n\n", strings.Join(notes, "; "))
			}
		}
	}

	if len(r.Discrepancies) > 0 {
		labels := make(map[string]string, len(r.Coverage))
		for _, c := range r.Coverage {
			labels[c.TopicID] = c.Label
		}
		b.WriteString("## Discrepancies\n\n")
		for _, d := range r.Discrepancies {
			label := labels[d.TopicID]
			if label == "" {
				label = d.TopicID
			}
			fmt.Fprintf(&b, "- **%s**: %s\n", d.Tag, InterpretDiscrepancy(d, label))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// RenderHTML renders r as a standalone HTML page.
func RenderHTML(r *models.SessionReport) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table),
		goldmark.WithRendererOptions(gmhtml.WithXHTML()),
	)
	var body bytes.Buffer
	if err := md.Convert([]byte(RenderMarkdown(r)), &body); err != nil {
		return nil, fmt.Errorf("rendering report html: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>Interview report %s</title>\n", html.EscapeString(r.SessionID))
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
