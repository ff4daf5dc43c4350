package dialogue

import (
	"time"

	"github.com/skillissue/mockview/internal/models"
)

// Policy holds the follow-up rules.
type Policy struct {
	VaguenessThreshold float64
	MaxDepth           int
	TurnBudget         int
	// TimeBudget of zero means unlimited.
	TimeBudget time.Duration
}

// DecideInput is what Decide looks at after a turn is evaluated.
type DecideInput struct {
	// Evaluation is nil when the turn had no usable score.
	Evaluation    *models.EvaluationResult
	Depth         int
	TurnsUsed     int
	TimeRemaining time.Duration
	// HasUnexplored is true when some topic other than the current one is
	// still unexplored.
	HasUnexplored bool
}

// Decide applies the follow-up rules in order: budgets, vagueness, topic
// exhaustion, advance.
func Decide(p Policy, in DecideInput) models.FollowUpDecision {
	if p.TurnBudget > 0 && in.TurnsUsed >= p.TurnBudget {
		return models.DecisionConclude
	}
	if p.TimeBudget > 0 && in.TimeRemaining <= 0 {
		return models.DecisionConclude
	}
	if in.Evaluation.Counts() && in.Evaluation.Relevance < p.VaguenessThreshold && in.Depth < p.MaxDepth {
		return models.DecisionRepeatDeeper
	}
	if !in.HasUnexplored {
		return models.DecisionConclude
	}
	return models.DecisionAdvanceTopic
}

// SelectNext picks the highest-weight topic for which skip returns false.
// Ties go to topics claimed by both documents, then to profile order.
func SelectNext(profile *models.ContextProfile, skip func(id string) bool) (models.Topic, bool) {
	var (
		best  models.Topic
		found bool
	)
	for _, t := range profile.Topics() {
		if skip != nil && skip(t.ID) {
			continue
		}
		if !found || better(t, best) {
			best, found = t, true
		}
	}
	return best, found
}

func better(a, b models.Topic) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	return a.Source == models.SourceBoth && b.Source != models.SourceBoth
}
