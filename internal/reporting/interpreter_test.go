package reporting

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skillissue/mockview/internal/models"
)

func TestInterpretScore(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.95, "Excellent (>90%)"},
		{0.9, "Good (70-90%)"},
		{0.7, "Good (70-90%)"},
		{0.5, "Needs Work (50-70%)"},
		{0.49, "Poor (<50%)"},
		{0, "Poor (<50%)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InterpretScore(tt.score), "score %.2f", tt.score)
	}
}

func TestInterpretCoverage(t *testing.T) {
	assert.Equal(t, "No topics were planned.", InterpretCoverage(0, 0, 0))
	assert.Equal(t, "No topics were discussed.", InterpretCoverage(0, 0, 3))
	assert.Equal(t, "Every planned topic was demonstrated (3/3).", InterpretCoverage(3, 3, 3))
	assert.Equal(t, "None of the 2 discussed topics were demonstrated.", InterpretCoverage(0, 2, 3))
	assert.Equal(t, "2 of 4 planned topics were demonstrated; 3 were discussed.", InterpretCoverage(2, 3, 4))
}

func TestInterpretDiscrepancy(t *testing.T) {
	assert.Equal(t, "Go is on the resume, but the answer in turn 1 fell short of it.",
		InterpretDiscrepancy(models.Discrepancy{Tag: models.TagResumeOverstated, TopicID: "go", TurnIndex: 0}, "Go"))
	assert.Equal(t, "The answer in turn 4 drifted away from Kafka.",
		InterpretDiscrepancy(models.Discrepancy{Tag: models.TagOffTopic, TopicID: "kafka", TurnIndex: 3}, "Kafka"))
}

func TestFormatSummaryReport(t *testing.T) {
	out := FormatSummaryReport(Build(newTestSession()))

	assert.True(t, strings.HasPrefix(out, "=== Interpretation ==="))
	assert.Contains(t, out, "Coverage:      2 of 4 planned topics were demonstrated; 3 were discussed.")
	assert.Contains(t, out, "Duration:      12m0s")
	assert.Contains(t, out, "Turns:         5 asked, 4 scored, 0 unavailable")
	assert.Contains(t, out, "Turn-taking:   1 interruptions, 1 resumed answers")
	assert.Contains(t, out, "✗ SQL (required): not-asked")
	assert.Contains(t, out, "Go is on the resume, but the answer in turn 1 fell short of it.")
	assert.NotContains(t, out, "Incomplete session")
}

func TestFormatSummaryReport_NothingScored(t *testing.T) {
	sess := newTestSession()
	for i := range sess.Turns {
		sess.Turns[i].Evaluation = &models.EvaluationResult{Unavailable: true}
	}
	sess.EndReason = models.EndUpstreamFailure

	out := FormatSummaryReport(Build(sess))
	assert.Contains(t, out, "Incomplete session: upstream-failure")
	assert.Contains(t, out, "No answers could be scored.")
}
