// Package capability defines the external services an interview depends on
// and the backends that provide them.
package capability

//go:generate go tool mockgen -source=capability.go -destination=capabilitymock/mocks.go -package=capabilitymock

import (
	"context"

	"github.com/skillissue/mockview/internal/models"
)

// GenerateRequest asks for the next interview question.
type GenerateRequest struct {
	Topic  models.Topic
	Depth  int
	Params models.DomainParameters
	// PreviousQuestion and RecentTranscript carry the immediately preceding
	// turn. Both are empty for the opening question.
	PreviousQuestion string
	RecentTranscript string
}

// Generator produces question text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ScoreRequest asks for an assessment of one answer.
type ScoreRequest struct {
	Question   string
	Transcript string
	Topic      models.Topic
	Params     models.DomainParameters
}

// Score is a raw assessment. Values are clamped to [0,1] by the caller.
type Score struct {
	Relevance   float64
	Correctness float64
	Rationale   string
	// Metrics is the optional breakdown behind the two scores.
	Metrics *models.AnswerMetrics
}

// Scorer judges an answer.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (Score, error)
}

// Recognizer streams recognized fragments. Offsets are relative to the
// stream origin. The channel is closed when the stream ends.
type Recognizer interface {
	Stream(ctx context.Context) (<-chan models.Utterance, error)
}

// Speaker renders system speech. Speak blocks until playback finishes or
// ctx is cancelled.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}
