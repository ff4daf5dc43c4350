package capability

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/skillissue/mockview/internal/models"
)

const generatorSystemPrompt = `You are a technical interviewer running a spoken mock interview.
Ask exactly one question. Keep it under 60 words, conversational, and answerable out loud.
Do not number the question, add preamble, or include the answer.`

const scorerSystemPrompt = `You grade spoken interview answers.
Reply with a single JSON object and nothing else:
{"relevance": <0..1>, "correctness": <0..1>, "rationale": "<one sentence>",
 "star": ["situation"|"task"|"action"|"result", ...], "red_flags": ["<short description>", ...]}
relevance measures how directly the answer addresses the question.
correctness measures technical accuracy and depth for the stated seniority.
star lists the STAR components the answer contains.
red_flags lists blame-shifting, avoidance, contradictions or implausible claims; leave it empty when there are none.`

func generatorPrompt(req GenerateRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Role: %s (%s), difficulty %.2f.\n", req.Params.Role, req.Params.Seniority, req.Params.Difficulty)
	fmt.Fprintf(&sb, "Topic: %s.\n", topicLabel(req))
	if len(req.Topic.ExpectedKnowledge) > 0 {
		fmt.Fprintf(&sb, "Relevant concepts: %s.\n", strings.Join(req.Topic.ExpectedKnowledge, ", "))
	}
	switch {
	case req.Topic.Source.IsClaimed():
		sb.WriteString("The candidate claims experience with this topic.\n")
	default:
		sb.WriteString("The role requires this topic; the candidate did not mention it.\n")
	}
	fmt.Fprintf(&sb, "Depth level: %d of 3 (0 is introductory).\n", req.Depth)
	if req.PreviousQuestion != "" {
		fmt.Fprintf(&sb, "Previous question: %s\n", req.PreviousQuestion)
	}
	if req.RecentTranscript != "" {
		fmt.Fprintf(&sb, "Candidate's previous answer: %s\n", req.RecentTranscript)
		if req.Depth > 0 {
			sb.WriteString("Ask a follow-up that digs into the weakest or vaguest part of that answer.\n")
		} else {
			sb.WriteString("Move on to this topic. Build on that answer only where it leads here naturally.\n")
		}
	}
	return sb.String()
}

func scorerPrompt(req ScoreRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Role: %s (%s).\n", req.Params.Role, req.Params.Seniority)
	fmt.Fprintf(&sb, "Topic: %s.\n", req.Topic.Label)
	if len(req.Topic.ExpectedKnowledge) > 0 {
		fmt.Fprintf(&sb, "Expected concepts: %s.\n", strings.Join(req.Topic.ExpectedKnowledge, ", "))
	}
	fmt.Fprintf(&sb, "Question: %s\n", req.Question)
	fmt.Fprintf(&sb, "Answer transcript: %s\n", req.Transcript)
	return sb.String()
}

func topicLabel(req GenerateRequest) string {
	if req.Topic.Label != "" {
		return req.Topic.Label
	}
	return req.Topic.ID
}

var errNoScore = errors.New("response did not contain a score object")

// ParseScore reads a score object out of free-form model output. Scores on
// a 0-10 or 0-100 scale are normalized to [0,1].
func ParseScore(output string) (Score, error) {
	raw := extractJSONObject(output)
	if raw == "" || !gjson.Valid(raw) {
		return Score{}, errNoScore
	}
	parsed := gjson.Parse(raw)
	rel := parsed.Get("relevance")
	cor := parsed.Get("correctness")
	if rel.Type != gjson.Number || cor.Type != gjson.Number {
		return Score{}, fmt.Errorf("%w: relevance and correctness must be numbers", errNoScore)
	}
	return Score{
		Relevance:   normalizeScale(rel.Float()),
		Correctness: normalizeScale(cor.Float()),
		Rationale:   strings.TrimSpace(parsed.Get("rationale").String()),
		Metrics:     parseMetrics(parsed),
	}, nil
}

// parseMetrics reads the optional star and red_flags fields. It returns nil
// when the reply carries neither.
func parseMetrics(parsed gjson.Result) *models.AnswerMetrics {
	star := parsed.Get("star")
	flags := parsed.Get("red_flags")
	if !star.IsArray() && !flags.IsArray() {
		return nil
	}
	m := &models.AnswerMetrics{}
	seen := make(map[string]bool)
	for _, part := range star.Array() {
		p := strings.ToLower(strings.TrimSpace(part.String()))
		if !starPart(p) || seen[p] {
			continue
		}
		seen[p] = true
		m.STARParts = append(m.STARParts, p)
	}
	if star.IsArray() {
		m.STARParts = orderSTAR(m.STARParts)
	}
	m.STAR = float64(len(m.STARParts)) / 4
	for _, f := range flags.Array() {
		if s := strings.TrimSpace(f.String()); s != "" {
			m.RedFlags = append(m.RedFlags, s)
		}
	}
	return m
}

func normalizeScale(v float64) float64 {
	switch {
	case v > 10:
		v /= 100
	case v > 1:
		v /= 10
	}
	return clamp01(v)
}

// extractJSONObject returns the first balanced {...} span, skipping
// markdown fences and prose around it.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// cleanQuestion strips quoting and labels models like to add.
func cleanQuestion(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Question:", "Q:", "Interviewer:"} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = strings.TrimSpace(s[len(prefix):])
		}
	}
	return strings.Trim(s, "\"` \n")
}
