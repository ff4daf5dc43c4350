package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const validScriptYAML = `name: steady-candidate
word_pace: 120ms
answers:
  - text: "I built a worker pool with bounded channels"
    delay: 400ms
  - silent: true
  - text: "Kubernetes schedules pods onto nodes"
    barge_in: true
    fillers: ["um"]
    resume: "and it restarts them on failure"
    resume_after: 1500ms
`

const invalidScriptYAML = `answers:
  - text: "fine"
    delay: soon
  - silent: true
    text: "cannot be both"
extra: 1
`

const validConfigYAML = `timing:
  debounce: 500ms
policy:
  max_depth: 1
  vagueness_threshold: 0.6
backends:
  generator:
    provider: openai
    model: gpt-4o-mini
    params:
      temperature: 0.3
store:
  kind: redis
  redis_url: redis://localhost:6379/0
`

const invalidConfigYAML = `policy:
  vagueness_threshold: 1.5
store:
  kind: postgres
`

const validReportJSON = `{
  "session_id": "s-1",
  "role": "Backend Engineer",
  "seniority": "senior",
  "complete": true,
  "started_at": "2026-01-01T10:00:00Z",
  "ended_at": "2026-01-01T10:20:00Z",
  "summary": {
    "turns_total": 1, "turns_evaluated": 1, "turns_unavailable": 0,
    "topics_covered": 1, "topics_adequate": 1,
    "mean_relevance": 0.8, "mean_correctness": 0.7,
    "tag_counts": {}
  },
  "coverage": [{"topic_id": "go", "source": "both", "weight": 0.9, "status": "adequate"}],
  "timeline": [{"index": 0, "topic_id": "go", "depth": 0, "question": "q", "outcome": "completed", "relevance": 0.8}],
  "discrepancies": []
}`

func TestValidateScriptBytes(t *testing.T) {
	require.Empty(t, ValidateScriptBytes([]byte(validScriptYAML)))

	errs := ValidateScriptBytes([]byte(invalidScriptYAML))
	require.NotEmpty(t, errs)
	joined := strings.Join(errs, "\n")
	require.Contains(t, joined, "delay")
	require.Contains(t, joined, "extra")
}

func TestValidateConfigBytes(t *testing.T) {
	require.Empty(t, ValidateConfigBytes([]byte(validConfigYAML)))
	require.Empty(t, ValidateConfigBytes([]byte("")))

	errs := ValidateConfigBytes([]byte(invalidConfigYAML))
	require.NotEmpty(t, errs)
	joined := strings.Join(errs, "\n")
	require.Contains(t, joined, "vagueness_threshold")
	require.Contains(t, joined, "kind")
}

func TestValidateReportBytes(t *testing.T) {
	require.Empty(t, ValidateReportBytes([]byte(validReportJSON)))

	bad := strings.Replace(validReportJSON, `"seniority": "senior"`, `"seniority": "wizard"`, 1)
	errs := ValidateReportBytes([]byte(bad))
	require.NotEmpty(t, errs)
	require.Contains(t, strings.Join(errs, "\n"), "seniority")

	require.NotEmpty(t, ValidateReportBytes([]byte("{not json")))
}

func TestValidateYAMLBytes_ParseError(t *testing.T) {
	errs := ValidateScriptBytes([]byte("answers: [\n"))
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "YAML parse error")
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, ".mockview.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(invalidConfigYAML), 0o644))
	errs, err := ValidateFile(cfgPath, "")
	require.NoError(t, err)
	require.NotEmpty(t, errs)

	scriptPath := filepath.Join(dir, "candidate.yaml")
	require.NoError(t, os.WriteFile(scriptPath, []byte(validScriptYAML), 0o644))
	errs, err = ValidateFile(scriptPath, "")
	require.NoError(t, err)
	require.Empty(t, errs)

	_, err = ValidateFile(filepath.Join(dir, "missing.yaml"), KindScript)
	require.Error(t, err)
}

func TestDetectKind(t *testing.T) {
	require.Equal(t, KindConfig, DetectKind("/a/.mockview.yaml"))
	require.Equal(t, KindReport, DetectKind("reports/s-1.json"))
	require.Equal(t, KindScript, DetectKind("scripts/strong.yaml"))
}
