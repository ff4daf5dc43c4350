package session

import "time"

// EventType identifies the kind of session event.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventQuestion     EventType = "question"
	EventTurnClosed   EventType = "turn_closed"
	EventBargeIn      EventType = "barge_in"
	EventReopen       EventType = "reopen"
	EventEvaluation   EventType = "evaluation"
	EventDecision     EventType = "decision"
	EventDegraded     EventType = "degraded"
	EventError        EventType = "error"
)

// Event is a single timestamped entry in a session log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return NewEventAt(time.Now(), t, data)
}

// NewEventAt creates an event stamped at ts.
func NewEventAt(ts time.Time, t EventType, data map[string]any) Event {
	return Event{
		Timestamp: ts.UTC(),
		Type:      t,
		Data:      data,
	}
}

// SessionStartData returns event data for a session start.
func SessionStartData(role, seniority string, topicCount, turnBudget int) map[string]any {
	return map[string]any{
		"role":        role,
		"seniority":   seniority,
		"topic_count": topicCount,
		"turn_budget": turnBudget,
	}
}

// SessionEndData returns event data for a session end.
func SessionEndData(reason string, turns int, durationMs int64) map[string]any {
	return map[string]any{
		"reason":      reason,
		"turns":       turns,
		"duration_ms": durationMs,
	}
}

// QuestionData returns event data for a dispatched question.
func QuestionData(turn int, topicID string, depth int, source, text string) map[string]any {
	return map[string]any{
		"turn":     turn,
		"topic_id": topicID,
		"depth":    depth,
		"source":   source,
		"text":     text,
	}
}

// TurnClosedData returns event data for a closed turn.
func TurnClosedData(turn int, outcome, reason, transcript string) map[string]any {
	return map[string]any{
		"turn":       turn,
		"outcome":    outcome,
		"reason":     reason,
		"transcript": transcript,
	}
}

// EvaluationData returns event data for an evaluation result.
func EvaluationData(turn int, relevance, correctness float64, unavailable, superseded bool, tags []string) map[string]any {
	return map[string]any{
		"turn":        turn,
		"relevance":   relevance,
		"correctness": correctness,
		"unavailable": unavailable,
		"superseded":  superseded,
		"tags":        tags,
	}
}

// DecisionData returns event data for a follow-up decision.
func DecisionData(turn int, decision, nextTopic string) map[string]any {
	return map[string]any{
		"turn":       turn,
		"decision":   decision,
		"next_topic": nextTopic,
	}
}

// TurnData returns event data that only names a turn.
func TurnData(turn int) map[string]any {
	return map[string]any{"turn": turn}
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
