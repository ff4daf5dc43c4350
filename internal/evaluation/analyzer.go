// Package evaluation scores answers and derives discrepancy tags.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/skillissue/mockview/internal/capability"
	"github.com/skillissue/mockview/internal/models"
)

// Options configure an Analyzer.
type Options struct {
	Thresholds models.Thresholds
	// Timeout bounds each scoring attempt. Zero means no per-attempt bound.
	Timeout time.Duration
	// Backoff is the wait before the single retry.
	Backoff time.Duration
}

// Analyzer evaluates closed turns with a Scorer.
type Analyzer struct {
	scorer capability.Scorer
	opts   Options
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(scorer capability.Scorer, opts Options) *Analyzer {
	return &Analyzer{scorer: scorer, opts: opts}
}

// Thresholds returns the thresholds the analyzer tags with.
func (a *Analyzer) Thresholds() models.Thresholds { return a.opts.Thresholds }

// Evaluate scores turn against topic. When the scorer fails twice the
// result is marked unavailable and an *models.EvaluationTimeoutError is
// returned alongside it. A cancelled ctx returns ctx.Err().
func (a *Analyzer) Evaluate(ctx context.Context, turn models.Turn, topic models.Topic, params models.DomainParameters) (models.EvaluationResult, error) {
	start := time.Now()
	transcript := strings.TrimSpace(turn.Transcript)
	if transcript == "" {
		result := models.EvaluationResult{Rationale: "no answer captured"}
		result.Tags = a.unansweredTags(topic, result)
		return result, nil
	}

	req := capability.ScoreRequest{
		Question:   turn.Question,
		Transcript: transcript,
		Topic:      topic,
		Params:     params,
	}

	var (
		score    capability.Score
		attempts int
		lastErr  error
	)
	backoff := retry.WithMaxRetries(1, retry.NewConstant(max(a.opts.Backoff, time.Millisecond)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		attemptCtx := ctx
		if a.opts.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
			defer cancel()
		}
		s, err := a.scorer.Score(attemptCtx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Debug("Scoring attempt failed", "turn", turn.Index, "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}
		score = s
		return nil
	})
	if ctx.Err() != nil {
		return models.EvaluationResult{}, ctx.Err()
	}
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		timeoutErr := &models.EvaluationTimeoutError{TurnIndex: turn.Index, Attempts: attempts, Err: lastErr}
		return models.EvaluationResult{
			Unavailable: true,
			Rationale:   timeoutErr.Error(),
			DurationMs:  time.Since(start).Milliseconds(),
		}, timeoutErr
	}

	result := models.EvaluationResult{
		Relevance:   clamp01(score.Relevance),
		Correctness: clamp01(score.Correctness),
		Rationale:   score.Rationale,
		Metrics:     score.Metrics.Clone(),
		DurationMs:  time.Since(start).Milliseconds(),
	}
	result.Tags = a.Tags(topic, result)
	return result, nil
}

// Tags derives the per-turn discrepancy tags for result.
func (a *Analyzer) Tags(topic models.Topic, result models.EvaluationResult) []models.DiscrepancyTag {
	if result.Unavailable {
		return nil
	}
	var tags []models.DiscrepancyTag
	if result.Relevance < a.opts.Thresholds.OffTopic {
		tags = append(tags, models.TagOffTopic)
	}
	if topic.Source.IsClaimed() && result.Correctness < a.opts.Thresholds.Gap {
		tags = append(tags, models.TagResumeOverstated)
	}
	return tags
}

// unansweredTags tags a turn without an answer. Silence says nothing about
// topicality, so it is never off-topic, but a claimed topic left unanswered
// still counts as overstated.
func (a *Analyzer) unansweredTags(topic models.Topic, result models.EvaluationResult) []models.DiscrepancyTag {
	var tags []models.DiscrepancyTag
	for _, tag := range a.Tags(topic, result) {
		if tag != models.TagOffTopic {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Apply attaches result to turn. A result for a reopened turn is kept but
// marked superseded.
func Apply(turn *models.Turn, result models.EvaluationResult) error {
	if turn == nil {
		return errors.New("nil turn")
	}
	if !turn.Closed() {
		return fmt.Errorf("turn %d is still open", turn.Index)
	}
	if turn.Reopened {
		result.Superseded = true
	}
	r := result
	r.Tags = append([]models.DiscrepancyTag(nil), result.Tags...)
	r.Metrics = result.Metrics.Clone()
	turn.Evaluation = &r
	return nil
}

// KnowledgeGaps tags every required-only topic that never received an
// adequate evaluation. The session is not modified.
func KnowledgeGaps(s *models.Session) []models.Discrepancy {
	if s == nil || s.Profile == nil {
		return nil
	}
	adequate := make(map[string]bool)
	for i := range s.Turns {
		t := &s.Turns[i]
		if t.Evaluation != nil && s.Thresholds.Adequate(t.Evaluation) {
			adequate[t.TopicID] = true
		}
	}
	var gaps []models.Discrepancy
	for _, topic := range s.Profile.Topics() {
		if topic.Source != models.SourceRequired || adequate[topic.ID] {
			continue
		}
		gaps = append(gaps, models.Discrepancy{Tag: models.TagKnowledgeGap, TopicID: topic.ID, TurnIndex: -1})
	}
	return gaps
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
