package models

import "time"

// SessionReport is the structured post-session output.
type SessionReport struct {
	SessionID        string           `json:"session_id"`
	Role             string           `json:"role"`
	Seniority        Seniority        `json:"seniority"`
	Complete         bool             `json:"complete"`
	IncompleteReason string           `json:"incomplete_reason,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	EndedAt          time.Time        `json:"ended_at"`
	Summary          ReportSummary    `json:"summary"`
	Coverage         []TopicCoverage  `json:"coverage"`
	Timeline         []TimelineEntry  `json:"timeline"`
	Discrepancies    []Discrepancy    `json:"discrepancies"`
	Annotations      []TurnAnnotation `json:"annotations,omitempty"`
}

// ReportSummary holds order-independent aggregate statistics.
type ReportSummary struct {
	TurnsTotal       int                    `json:"turns_total"`
	TurnsEvaluated   int                    `json:"turns_evaluated"`
	TurnsUnavailable int                    `json:"turns_unavailable"`
	TopicsCovered    int                    `json:"topics_covered"`
	TopicsAdequate   int                    `json:"topics_adequate"`
	MeanRelevance    float64                `json:"mean_relevance"`
	MeanCorrectness  float64                `json:"mean_correctness"`
	MinRelevance     float64                `json:"min_relevance"`
	MaxRelevance     float64                `json:"max_relevance"`
	RelevanceCI      *ConfidenceInterval    `json:"relevance_ci,omitempty"`
	TagCounts        map[DiscrepancyTag]int `json:"tag_counts"`
	BargeIns         int                    `json:"barge_ins"`
	Reopens          int                    `json:"reopens"`
	MeanSTAR         float64                `json:"mean_star"`
	RedFlags         int                    `json:"red_flags"`
}

// ConfidenceInterval is a bootstrap interval over a sample mean.
type ConfidenceInterval struct {
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Mean       float64 `json:"mean"`
	Confidence float64 `json:"confidence"`
}

// CoverageStatus summarizes how a topic fared.
type CoverageStatus string

const (
	CoverageAdequate   CoverageStatus = "adequate"
	CoverageInadequate CoverageStatus = "inadequate"
	CoverageNotAsked   CoverageStatus = "not-asked"
)

// TopicCoverage reports per-topic results in profile order.
type TopicCoverage struct {
	TopicID         string         `json:"topic_id"`
	Label           string         `json:"label"`
	Source          TopicSource    `json:"source"`
	Weight          float64        `json:"weight"`
	Turns           int            `json:"turns"`
	MaxDepth        int            `json:"max_depth"`
	BestRelevance   float64        `json:"best_relevance"`
	BestCorrectness float64        `json:"best_correctness"`
	Status          CoverageStatus `json:"status"`
	Summary         string         `json:"summary,omitempty"`
}

// TimelineEntry is one turn in the report timeline.
type TimelineEntry struct {
	Index          int              `json:"index"`
	TopicID        string           `json:"topic_id"`
	Depth          int              `json:"depth"`
	Question       string           `json:"question"`
	QuestionSource QuestionSource   `json:"question_source"`
	Transcript     string           `json:"transcript"`
	Outcome        TurnOutcome      `json:"outcome"`
	BoundaryReason string           `json:"boundary_reason,omitempty"`
	Relevance      *float64         `json:"relevance,omitempty"`
	Correctness    *float64         `json:"correctness,omitempty"`
	Tags           []DiscrepancyTag `json:"tags,omitempty"`
	Metrics        *AnswerMetrics   `json:"metrics,omitempty"`
	Decision       FollowUpDecision `json:"decision,omitempty"`
	Superseded     bool             `json:"superseded,omitempty"`
	Unavailable    bool             `json:"unavailable,omitempty"`
	BargedIn       bool             `json:"barged_in,omitempty"`
	Degradations   []string         `json:"degradations,omitempty"`
}

// Discrepancy is a tag with its origin. TurnIndex is -1 for tags derived
// over the whole session.
type Discrepancy struct {
	Tag       DiscrepancyTag `json:"tag"`
	TopicID   string         `json:"topic_id"`
	TurnIndex int            `json:"turn_index"`
}

// TurnAnnotation is an external annotation with its owning turn.
type TurnAnnotation struct {
	TurnIndex int `json:"turn_index"`
	Annotation
}
