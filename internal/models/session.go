package models

import "time"

// DialogueState is the orchestrator's position in the interview.
type DialogueState string

const (
	StateIntake      DialogueState = "intake"
	StateQuestioning DialogueState = "questioning"
	StateEvaluating  DialogueState = "evaluating"
	StateDeciding    DialogueState = "deciding"
	StateConcluding  DialogueState = "concluding"
	StateTerminal    DialogueState = "terminal"
)

// EndReason explains how a session reached the terminal state.
type EndReason string

const (
	EndConcluded       EndReason = "concluded"
	EndCancelled       EndReason = "cancelled"
	EndUpstreamFailure EndReason = "upstream-failure"
)

// Session is the full record of one interview. It is owned by a single
// orchestrator goroutine while the interview runs.
type Session struct {
	ID         string          `json:"id"`
	Profile    *ContextProfile `json:"profile"`
	Thresholds Thresholds      `json:"thresholds"`
	Turns      []Turn          `json:"turns"`
	State      DialogueState   `json:"state"`
	TurnBudget int             `json:"turn_budget"`
	TimeBudget time.Duration   `json:"time_budget"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    time.Time       `json:"ended_at,omitempty"`
	Explored   []string        `json:"explored_topics,omitempty"`
	EndReason  EndReason       `json:"end_reason,omitempty"`
	EndDetail  string          `json:"end_detail,omitempty"`
}

// NewSession creates a session in the intake state.
func NewSession(id string, profile *ContextProfile, th Thresholds, turnBudget int, timeBudget time.Duration, now time.Time) *Session {
	return &Session{
		ID:         id,
		Profile:    profile,
		Thresholds: th,
		State:      StateIntake,
		TurnBudget: turnBudget,
		TimeBudget: timeBudget,
		StartedAt:  now,
	}
}

// AppendTurn adds a turn and returns its index.
func (s *Session) AppendTurn(t Turn) int {
	t.Index = len(s.Turns)
	s.Turns = append(s.Turns, t)
	return t.Index
}

// Turn returns a pointer to the turn at idx, or nil.
func (s *Session) Turn(idx int) *Turn {
	if idx < 0 || idx >= len(s.Turns) {
		return nil
	}
	return &s.Turns[idx]
}

// TurnsUsed counts turns against the turn budget.
func (s *Session) TurnsUsed() int {
	n := 0
	for i := range s.Turns {
		if s.Turns[i].CountsTowardBudget() {
			n++
		}
	}
	return n
}

// TimeRemaining returns how much of the time budget is left at now. A zero
// budget means unlimited.
func (s *Session) TimeRemaining(now time.Time) time.Duration {
	if s.TimeBudget <= 0 {
		return time.Duration(1<<63 - 1)
	}
	return s.TimeBudget - now.Sub(s.StartedAt)
}

// IsExplored reports whether topicID has been left behind by advance-topic.
func (s *Session) IsExplored(topicID string) bool {
	for _, id := range s.Explored {
		if id == topicID {
			return true
		}
	}
	return false
}

// MarkExplored records topicID as explored once.
func (s *Session) MarkExplored(topicID string) {
	if !s.IsExplored(topicID) {
		s.Explored = append(s.Explored, topicID)
	}
}

// Complete is true when the session concluded normally.
func (s *Session) Complete() bool {
	return s.State == StateTerminal && s.EndReason == EndConcluded
}
