package models

import (
	"strings"
	"time"
)

// Utterance is one recognized fragment. Start and End are offsets from the
// origin of the recognition stream.
type Utterance struct {
	Seq        int           `json:"seq"`
	Text       string        `json:"text"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Confidence float64       `json:"confidence"`
	NonLexical bool          `json:"non_lexical,omitempty"`
}

// Annotation is an externally supplied signal (proctoring, affect) that is
// stored with the session and forwarded to the report.
type Annotation struct {
	Type       string        `json:"type"`
	Confidence float64       `json:"confidence"`
	From       time.Duration `json:"from"`
	To         time.Duration `json:"to"`
	Detail     string        `json:"detail,omitempty"`
}

// TurnOutcome is how a turn was closed.
type TurnOutcome string

const (
	OutcomeOpen        TurnOutcome = ""
	OutcomeCompleted   TurnOutcome = "completed"
	OutcomeInterrupted TurnOutcome = "interrupted"
	OutcomeTimedOut    TurnOutcome = "timed-out"
)

// Boundary reasons attached to closed turns.
const (
	ReasonSilence        = "silence"
	ReasonCeiling        = "ceiling"
	ReasonRecognitionGap = "recognition-gap"
	ReasonNoAnswer       = "no-answer"
	ReasonPreempted      = "preempted"
	ReasonCancelled      = "cancelled"
)

// QuestionSource records where a turn's question came from.
type QuestionSource string

const (
	QuestionGenerated    QuestionSource = "generated"
	QuestionPrefetched   QuestionSource = "prefetched"
	QuestionFallback     QuestionSource = "fallback"
	QuestionContinuation QuestionSource = "continuation"
)

// Turn is one question/answer exchange.
type Turn struct {
	Index          int               `json:"index"`
	TopicID        string            `json:"topic_id"`
	Question       string            `json:"question"`
	QuestionSource QuestionSource    `json:"question_source"`
	Depth          int               `json:"depth"`
	Utterances     []Utterance       `json:"utterances,omitempty"`
	Transcript     string            `json:"transcript"`
	Outcome        TurnOutcome       `json:"outcome"`
	BoundaryReason string            `json:"boundary_reason,omitempty"`
	BargedIn       bool              `json:"barged_in,omitempty"`
	ContinuationOf *int              `json:"continuation_of,omitempty"`
	Reopened       bool              `json:"reopened,omitempty"`
	Evaluation     *EvaluationResult `json:"evaluation,omitempty"`
	Decision       FollowUpDecision  `json:"decision,omitempty"`
	Annotations    []Annotation      `json:"annotations,omitempty"`
	Degradations   []string          `json:"degradations,omitempty"`
	OpenedAt       time.Time         `json:"opened_at"`
	ClosedAt       time.Time         `json:"closed_at,omitempty"`
}

// Closed is true once the turn has an outcome.
func (t *Turn) Closed() bool {
	return t.Outcome != OutcomeOpen
}

// CountsTowardBudget reports whether the turn uses up the turn budget.
// Reopened turns are folded into their continuation and preempted turns
// never received an answer.
func (t *Turn) CountsTowardBudget() bool {
	return t.Closed() && !t.Reopened && t.Outcome != OutcomeInterrupted
}

// HasAnswer is true when at least one lexical utterance was captured.
func (t *Turn) HasAnswer() bool {
	for _, u := range t.Utterances {
		if !u.NonLexical && strings.TrimSpace(u.Text) != "" {
			return true
		}
	}
	return false
}

// JoinTranscript concatenates the lexical utterances in start order.
func JoinTranscript(utts []Utterance) string {
	var parts []string
	for _, u := range utts {
		if u.NonLexical {
			continue
		}
		if s := strings.TrimSpace(u.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
