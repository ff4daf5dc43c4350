package dialogue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillissue/mockview/internal/capability"
	"github.com/skillissue/mockview/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.DialogueState
		want     bool
	}{
		{models.StateIntake, models.StateQuestioning, true},
		{models.StateIntake, models.StateEvaluating, false},
		{models.StateQuestioning, models.StateEvaluating, true},
		{models.StateQuestioning, models.StateQuestioning, true},
		{models.StateQuestioning, models.StateDeciding, false},
		{models.StateEvaluating, models.StateDeciding, true},
		{models.StateEvaluating, models.StateQuestioning, true},
		{models.StateDeciding, models.StateQuestioning, true},
		{models.StateDeciding, models.StateEvaluating, false},
		{models.StateIntake, models.StateConcluding, true},
		{models.StateDeciding, models.StateConcluding, true},
		{models.StateConcluding, models.StateConcluding, false},
		{models.StateConcluding, models.StateTerminal, true},
		{models.StateConcluding, models.StateQuestioning, false},
		{models.StateEvaluating, models.StateTerminal, true},
		{models.StateTerminal, models.StateQuestioning, false},
		{models.StateTerminal, models.StateTerminal, false},
		{models.StateTerminal, models.StateConcluding, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition(t *testing.T) {
	s := &models.Session{State: models.StateIntake}
	require.NoError(t, Transition(s, models.StateQuestioning))
	assert.Equal(t, models.StateQuestioning, s.State)

	err := Transition(s, models.StateDeciding)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "questioning -> deciding")
	assert.Equal(t, models.StateQuestioning, s.State)
}

func TestDecide(t *testing.T) {
	p := Policy{VaguenessThreshold: 0.5, MaxDepth: 2, TurnBudget: 5, TimeBudget: time.Minute}
	vague := &models.EvaluationResult{Relevance: 0.3, Correctness: 0.3}
	solid := &models.EvaluationResult{Relevance: 0.8, Correctness: 0.7}

	tests := []struct {
		name string
		in   DecideInput
		want models.FollowUpDecision
	}{
		{
			name: "vague answer goes deeper",
			in:   DecideInput{Evaluation: vague, Depth: 0, TurnsUsed: 1, TimeRemaining: time.Minute, HasUnexplored: true},
			want: models.DecisionRepeatDeeper,
		},
		{
			name: "vague answer at max depth advances",
			in:   DecideInput{Evaluation: vague, Depth: 2, TurnsUsed: 1, TimeRemaining: time.Minute, HasUnexplored: true},
			want: models.DecisionAdvanceTopic,
		},
		{
			name: "solid answer advances",
			in:   DecideInput{Evaluation: solid, Depth: 0, TurnsUsed: 1, TimeRemaining: time.Minute, HasUnexplored: true},
			want: models.DecisionAdvanceTopic,
		},
		{
			name: "no topics left concludes",
			in:   DecideInput{Evaluation: solid, Depth: 0, TurnsUsed: 1, TimeRemaining: time.Minute},
			want: models.DecisionConclude,
		},
		{
			name: "vague answer without topics left still goes deeper",
			in:   DecideInput{Evaluation: vague, Depth: 1, TurnsUsed: 1, TimeRemaining: time.Minute},
			want: models.DecisionRepeatDeeper,
		},
		{
			name: "turn budget used concludes",
			in:   DecideInput{Evaluation: vague, Depth: 0, TurnsUsed: 5, TimeRemaining: time.Minute, HasUnexplored: true},
			want: models.DecisionConclude,
		},
		{
			name: "time budget exhausted concludes",
			in:   DecideInput{Evaluation: vague, Depth: 0, TurnsUsed: 1, TimeRemaining: 0, HasUnexplored: true},
			want: models.DecisionConclude,
		},
		{
			name: "unavailable evaluation does not go deeper",
			in:   DecideInput{Evaluation: &models.EvaluationResult{Unavailable: true}, TurnsUsed: 1, TimeRemaining: time.Minute, HasUnexplored: true},
			want: models.DecisionAdvanceTopic,
		},
		{
			name: "missing evaluation does not go deeper",
			in:   DecideInput{TurnsUsed: 1, TimeRemaining: time.Minute, HasUnexplored: true},
			want: models.DecisionAdvanceTopic,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(p, tt.in))
		})
	}
}

func TestDecide_UnlimitedTime(t *testing.T) {
	p := Policy{VaguenessThreshold: 0.5, MaxDepth: 1, TurnBudget: 5}
	got := Decide(p, DecideInput{TurnsUsed: 1, TimeRemaining: -time.Hour, HasUnexplored: true})
	assert.Equal(t, models.DecisionAdvanceTopic, got)
}

func TestSelectNext(t *testing.T) {
	profile := models.NewContextProfile([]models.Topic{
		{ID: "sql", Source: models.SourceRequired, Weight: 0.6},
		{ID: "go", Source: models.SourceClaimed, Weight: 0.9},
		{ID: "kafka", Source: models.SourceClaimed, Weight: 0.7},
		{ID: "grpc", Source: models.SourceBoth, Weight: 0.7},
		{ID: "redis", Source: models.SourceClaimed, Weight: 0.6},
	}, models.DomainParameters{Seniority: models.SenioritySenior}, "fp")

	skip := map[string]bool{}
	var order []string
	for {
		topic, ok := SelectNext(profile, func(id string) bool { return skip[id] })
		if !ok {
			break
		}
		order = append(order, topic.ID)
		skip[topic.ID] = true
	}
	assert.Equal(t, []string{"go", "grpc", "kafka", "sql", "redis"}, order)

	_, ok := SelectNext(models.NewContextProfile(nil, models.DomainParameters{}, ""), nil)
	assert.False(t, ok)
}

func TestFallbackQuestions(t *testing.T) {
	f := newFallbackQuestions(2)
	goTopic := models.Topic{ID: "go", Label: "Go"}

	assert.Equal(t, capability.GenericQuestion("Go"), f.question(goTopic))

	f.remember("go", "How do goroutines get scheduled?")
	assert.Equal(t, "How do goroutines get scheduled?", f.question(goTopic))

	f.remember("kafka", "q1")
	f.remember("sql", "q2")
	assert.Equal(t, capability.GenericQuestion("Go"), f.question(goTopic), "oldest entry should be evicted")
}
