// Package reporting turns a finished session into a report and renders it.
package reporting

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/skillissue/mockview/internal/evaluation"
	"github.com/skillissue/mockview/internal/models"
	"github.com/skillissue/mockview/internal/statistics"
)

// ConfidenceLevel of the relevance interval.
const ConfidenceLevel = 0.95

// Build derives the report for s. It does not modify s and returns the same
// report, byte for byte once marshaled, every time it is called on the same
// session.
func Build(s *models.Session) *models.SessionReport {
	params := s.Profile.Params()
	r := &models.SessionReport{
		SessionID: s.ID,
		Role:      params.Role,
		Seniority: params.Seniority,
		Complete:  s.Complete(),
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Timeline:  make([]models.TimelineEntry, 0, len(s.Turns)),
		Coverage:  make([]models.TopicCoverage, 0, s.Profile.Len()),
	}
	if !r.Complete {
		r.IncompleteReason = incompleteReason(s)
	}

	for i := range s.Turns {
		r.Timeline = append(r.Timeline, timelineEntry(&s.Turns[i]))
	}
	r.Coverage = coverage(s)
	r.Discrepancies = discrepancies(s)
	r.Summary = summarize(s, r)

	for i := range s.Turns {
		for _, a := range s.Turns[i].Annotations {
			r.Annotations = append(r.Annotations, models.TurnAnnotation{TurnIndex: i, Annotation: a})
		}
	}
	return r
}

func incompleteReason(s *models.Session) string {
	switch {
	case s.State != models.StateTerminal:
		return fmt.Sprintf("session still %s", s.State)
	case s.EndDetail != "":
		return fmt.Sprintf("%s: %s", s.EndReason, s.EndDetail)
	default:
		return string(s.EndReason)
	}
}

func timelineEntry(t *models.Turn) models.TimelineEntry {
	e := models.TimelineEntry{
		Index:          t.Index,
		TopicID:        t.TopicID,
		Depth:          t.Depth,
		Question:       t.Question,
		QuestionSource: t.QuestionSource,
		Transcript:     t.Transcript,
		Outcome:        t.Outcome,
		BoundaryReason: t.BoundaryReason,
		Decision:       t.Decision,
		BargedIn:       t.BargedIn,
		Degradations:   append([]string(nil), t.Degradations...),
	}
	if ev := t.Evaluation; ev != nil {
		e.Superseded = ev.Superseded
		e.Unavailable = ev.Unavailable
		if !ev.Unavailable {
			rel, cor := round4(ev.Relevance), round4(ev.Correctness)
			e.Relevance, e.Correctness = &rel, &cor
			e.Tags = append([]models.DiscrepancyTag(nil), ev.Tags...)
			e.Metrics = ev.Metrics.Clone()
		}
	}
	return e
}

func coverage(s *models.Session) []models.TopicCoverage {
	out := make([]models.TopicCoverage, 0, s.Profile.Len())
	for _, topic := range s.Profile.Topics() {
		c := models.TopicCoverage{
			TopicID: topic.ID,
			Label:   topic.Label,
			Source:  topic.Source,
			Weight:  topic.Weight,
			Status:  models.CoverageNotAsked,
		}
		var star, flags []string
		for i := range s.Turns {
			t := &s.Turns[i]
			if t.TopicID != topic.ID || t.Reopened || !t.Closed() {
				continue
			}
			c.Turns++
			c.MaxDepth = max(c.MaxDepth, t.Depth)
			if c.Status == models.CoverageNotAsked {
				c.Status = models.CoverageInadequate
			}
			if !t.Evaluation.Counts() {
				continue
			}
			c.BestRelevance = max(c.BestRelevance, round4(t.Evaluation.Relevance))
			c.BestCorrectness = max(c.BestCorrectness, round4(t.Evaluation.Correctness))
			if s.Thresholds.Adequate(t.Evaluation) {
				c.Status = models.CoverageAdequate
			}
			if m := t.Evaluation.Metrics; m != nil {
				star = appendMissing(star, m.STARParts...)
				flags = appendMissing(flags, m.RedFlags...)
			}
		}
		c.Summary = topicSummary(c, star, flags)
		out = append(out, c)
	}
	return out
}

// topicSummary condenses a topic's turns into one line. STAR parts keep
// their canonical order; red flags are sorted.
func topicSummary(c models.TopicCoverage, star, flags []string) string {
	if c.Status == models.CoverageNotAsked {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d turn(s) up to depth %d", c.Turns, c.MaxDepth)
	if c.BestRelevance > 0 || c.BestCorrectness > 0 {
		fmt.Fprintf(&b, "; best answer %.2f relevance, %.2f correctness", c.BestRelevance, c.BestCorrectness)
	} else {
		b.WriteString("; no scored answer")
	}
	if len(star) > 0 {
		var ordered []string
		for _, part := range []string{models.STARSituation, models.STARTask, models.STARAction, models.STARResult} {
			if slices.Contains(star, part) {
				ordered = append(ordered, part)
			}
		}
		fmt.Fprintf(&b, "; STAR %s", strings.Join(ordered, "/"))
	}
	if len(flags) > 0 {
		sorted := slices.Clone(flags)
		slices.Sort(sorted)
		fmt.Fprintf(&b, "; red flags: %s", strings.Join(sorted, ", "))
	}
	return b.String() + "."
}

func appendMissing(list []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(list, it) {
			list = append(list, it)
		}
	}
	return list
}

// discrepancies lists per-turn tags in turn order followed by the
// session-level knowledge gaps in profile order.
func discrepancies(s *models.Session) []models.Discrepancy {
	out := make([]models.Discrepancy, 0)
	for i := range s.Turns {
		t := &s.Turns[i]
		if !t.Evaluation.Counts() {
			continue
		}
		for _, tag := range t.Evaluation.Tags {
			out = append(out, models.Discrepancy{Tag: tag, TopicID: t.TopicID, TurnIndex: t.Index})
		}
	}
	return append(out, evaluation.KnowledgeGaps(s)...)
}

func summarize(s *models.Session, r *models.SessionReport) models.ReportSummary {
	sum := models.ReportSummary{
		TurnsTotal: len(s.Turns),
		TagCounts:  make(map[models.DiscrepancyTag]int),
	}

	var relevance, correctness, star []float64
	for i := range s.Turns {
		t := &s.Turns[i]
		if t.BargedIn {
			sum.BargeIns++
		}
		if t.Reopened {
			sum.Reopens++
		}
		switch {
		case t.Evaluation == nil:
		case t.Evaluation.Unavailable:
			sum.TurnsUnavailable++
		case t.Evaluation.Counts():
			sum.TurnsEvaluated++
			relevance = append(relevance, t.Evaluation.Relevance)
			correctness = append(correctness, t.Evaluation.Correctness)
			if m := t.Evaluation.Metrics; m != nil {
				star = append(star, m.STAR)
				sum.RedFlags += len(m.RedFlags)
			}
		}
	}

	for _, c := range r.Coverage {
		if c.Status != models.CoverageNotAsked {
			sum.TopicsCovered++
		}
		if c.Status == models.CoverageAdequate {
			sum.TopicsAdequate++
		}
	}
	for _, d := range r.Discrepancies {
		sum.TagCounts[d.Tag]++
	}

	rel := statistics.Describe(relevance)
	sum.MeanRelevance = round4(rel.Mean)
	sum.MinRelevance = round4(rel.Min)
	sum.MaxRelevance = round4(rel.Max)
	sum.MeanCorrectness = round4(statistics.Describe(correctness).Mean)
	sum.MeanSTAR = round4(statistics.Describe(star).Mean)
	if len(relevance) >= 2 {
		ci := statistics.BootstrapCI(relevance, ConfidenceLevel, statistics.ReportSeed)
		sum.RelevanceCI = &models.ConfidenceInterval{
			Lower:      round4(ci.Lower),
			Upper:      round4(ci.Upper),
			Mean:       round4(ci.Mean),
			Confidence: ci.ConfidenceLevel,
		}
	}
	return sum
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
