package models

// DiscrepancyTag flags a mismatch between claims, requirements and answers.
type DiscrepancyTag string

const (
	TagResumeOverstated DiscrepancyTag = "resume-overstated"
	TagKnowledgeGap     DiscrepancyTag = "knowledge-gap"
	TagOffTopic         DiscrepancyTag = "off-topic"
)

// FollowUpDecision is the dialogue policy's choice after an evaluation.
type FollowUpDecision string

const (
	DecisionRepeatDeeper FollowUpDecision = "repeat-deeper"
	DecisionAdvanceTopic FollowUpDecision = "advance-topic"
	DecisionConclude     FollowUpDecision = "conclude-session"
)

// EvaluationResult scores one turn.
type EvaluationResult struct {
	Relevance   float64          `json:"relevance"`
	Correctness float64          `json:"correctness"`
	Tags        []DiscrepancyTag `json:"tags,omitempty"`
	Rationale   string           `json:"rationale,omitempty"`
	Unavailable bool             `json:"unavailable,omitempty"`
	Superseded  bool             `json:"superseded,omitempty"`
	Metrics     *AnswerMetrics   `json:"metrics,omitempty"`
	DurationMs  int64            `json:"duration_ms"`
}

// STAR components an answer can contain.
const (
	STARSituation = "situation"
	STARTask      = "task"
	STARAction    = "action"
	STARResult    = "result"
)

// AnswerMetrics breaks a score down into the signals behind it. Scores are
// in [0,1]; Confidence is 1 for an assertive answer with no hedging.
type AnswerMetrics struct {
	Depth        float64  `json:"depth"`
	Completeness float64  `json:"completeness"`
	Specificity  float64  `json:"specificity"`
	Confidence   float64  `json:"confidence"`
	STAR         float64  `json:"star"`
	STARParts    []string `json:"star_parts,omitempty"`
	RedFlags     []string `json:"red_flags,omitempty"`
}

// Clone returns a deep copy of m.
func (m *AnswerMetrics) Clone() *AnswerMetrics {
	if m == nil {
		return nil
	}
	c := *m
	c.STARParts = append([]string(nil), m.STARParts...)
	c.RedFlags = append([]string(nil), m.RedFlags...)
	return &c
}

// HasTag reports whether tag is present.
func (r *EvaluationResult) HasTag(tag DiscrepancyTag) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Counts reports whether the result should contribute to statistics.
func (r *EvaluationResult) Counts() bool {
	return r != nil && !r.Unavailable && !r.Superseded
}

// Thresholds are the scoring cut-offs in force for a session.
type Thresholds struct {
	Vagueness float64 `json:"vagueness"`
	Gap       float64 `json:"gap"`
	OffTopic  float64 `json:"off_topic"`
}

// Adequate reports whether r demonstrates the topic under th.
func (th Thresholds) Adequate(r *EvaluationResult) bool {
	return r.Counts() && r.Relevance >= th.Vagueness && r.Correctness >= th.Gap
}
