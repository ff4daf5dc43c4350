package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/skillissue/mockview/internal/config"
	"github.com/skillissue/mockview/internal/models"
)

var goTopic = models.Topic{
	ID:                "go",
	Label:             "Go",
	Source:            models.SourceBoth,
	Weight:            0.9,
	DepthLevel:        2,
	Aliases:           []string{"golang"},
	ExpectedKnowledge: []string{"goroutines", "channels", "context cancellation"},
}

func TestTemplateQuestion(t *testing.T) {
	tests := []struct {
		name  string
		req   GenerateRequest
		wants string
	}{
		{name: "claimed intro", req: GenerateRequest{Topic: goTopic}, wants: "Your background mentions Go"},
		{name: "required intro", req: GenerateRequest{Topic: models.Topic{ID: "kafka", Label: "Kafka", Source: models.SourceRequired}}, wants: "This role relies on Kafka"},
		{name: "first follow-up uses a concept", req: GenerateRequest{Topic: goTopic, Depth: 1}, wants: "How does channels work"},
		{name: "deep follow-up", req: GenerateRequest{Topic: goTopic, Depth: 2}, wants: "Suppose context cancellation misbehaves"},
		{name: "no concepts", req: GenerateRequest{Topic: models.Topic{ID: "rust", Source: models.SourceClaimed}, Depth: 2}, wants: "depth with rust"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewTemplateGenerator().Generate(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Contains(t, q, tt.wants)
			assert.Equal(t, q, TemplateQuestion(tt.req))
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTemplateGenerator().Generate(ctx, GenerateRequest{Topic: goTopic})
	require.ErrorIs(t, err, context.Canceled)
}

func TestGenericQuestion(t *testing.T) {
	assert.Equal(t, "Can you tell me about your experience with Go?", GenericQuestion(" Go "))
	assert.Contains(t, GenericQuestion(""), "recent technical challenge")
}

func TestHeuristicScorer(t *testing.T) {
	s := NewHeuristicScorer()
	ctx := context.Background()
	question := "How do goroutines and channels help you build concurrent Go services?"

	strong, err := s.Score(ctx, ScoreRequest{
		Question:   question,
		Topic:      goTopic,
		Transcript: "I built a Go ingestion service where each connection ran in its own goroutines and results flowed through buffered channels. We measured p99 latency at 40ms and reduced memory by 30% because context cancellation stopped abandoned work instead of leaking goroutines.",
	})
	require.NoError(t, err)

	vague, err := s.Score(ctx, ScoreRequest{
		Question:   question,
		Topic:      goTopic,
		Transcript: "I think maybe it is kind of fast, I guess, not sure really.",
	})
	require.NoError(t, err)

	empty, err := s.Score(ctx, ScoreRequest{Question: question, Topic: goTopic, Transcript: "  "})
	require.NoError(t, err)

	assert.Greater(t, strong.Relevance, vague.Relevance)
	assert.Greater(t, strong.Correctness, vague.Correctness)
	assert.GreaterOrEqual(t, strong.Relevance, 0.7)
	assert.Less(t, vague.Relevance, 0.3)
	assert.Zero(t, empty.Relevance)
	assert.Zero(t, empty.Correctness)

	for _, sc := range []Score{strong, vague, empty} {
		assert.GreaterOrEqual(t, sc.Relevance, 0.0)
		assert.LessOrEqual(t, sc.Relevance, 1.0)
		assert.GreaterOrEqual(t, sc.Correctness, 0.0)
		assert.LessOrEqual(t, sc.Correctness, 1.0)
	}

	again, err := s.Score(ctx, ScoreRequest{Question: question, Topic: goTopic, Transcript: "I think maybe it is kind of fast, I guess, not sure really."})
	require.NoError(t, err)
	assert.Equal(t, vague, again)
}

func TestMeasureAnswer(t *testing.T) {
	assert.Nil(t, MeasureAnswer(ScoreRequest{Transcript: "  "}))

	star := MeasureAnswer(ScoreRequest{
		Question:   "Tell me about a Go service you scaled.",
		Topic:      goTopic,
		Transcript: "The project was a Go ingestion service that kept timing out. I was responsible for latency. For example, I profiled it and I rewrote the hot path because allocations dominated. As a result p99 dropped by 40 ms and we saved 30% of the memory.",
	})
	require.NotNil(t, star)
	assert.Equal(t, []string{models.STARSituation, models.STARTask, models.STARAction, models.STARResult}, star.STARParts)
	assert.Equal(t, 1.0, star.STAR)
	assert.Empty(t, star.RedFlags)
	assert.Greater(t, star.Depth, 0.5)

	weak := MeasureAnswer(ScoreRequest{
		Question:   "Tell me about a Go service you scaled.",
		Topic:      goTopic,
		Transcript: "I think maybe it was done by others. The outage was their fault and I'd rather not talk about it.",
	})
	require.NotNil(t, weak)
	assert.Empty(t, weak.STARParts)
	assert.Zero(t, weak.STAR)
	assert.Equal(t, []string{"blame-shifting", "avoidance"}, weak.RedFlags)
	assert.Less(t, weak.Confidence, star.Confidence)
	assert.Less(t, weak.Depth, star.Depth)

	for _, m := range []*models.AnswerMetrics{star, weak} {
		for _, v := range []float64{m.Depth, m.Completeness, m.Specificity, m.Confidence, m.STAR} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		rel     float64
		cor     float64
		wantErr bool
	}{
		{name: "plain", output: `{"relevance": 0.7, "correctness": 0.4, "rationale": "ok"}`, rel: 0.7, cor: 0.4},
		{name: "fenced", output: "Here you go:\n```json\n{\"relevance\": 0.9, \"correctness\": 1}\n```", rel: 0.9, cor: 1},
		{name: "ten point scale", output: `{"relevance": 7, "correctness": 3.5}`, rel: 0.7, cor: 0.35},
		{name: "percent scale", output: `{"relevance": 85, "correctness": 40}`, rel: 0.85, cor: 0.4},
		{name: "negative clamps", output: `{"relevance": -1, "correctness": 0}`, rel: 0, cor: 0},
		{name: "braces in rationale", output: `{"rationale": "uses {} maps", "relevance": 0.5, "correctness": 0.5}`, rel: 0.5, cor: 0.5},
		{name: "no json", output: "The answer was good.", wantErr: true},
		{name: "string scores", output: `{"relevance": "high", "correctness": "low"}`, wantErr: true},
		{name: "unbalanced", output: `{"relevance": 0.5`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScore(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.rel, got.Relevance, 1e-9)
			assert.InDelta(t, tt.cor, got.Correctness, 1e-9)
		})
	}
}

func TestCleanQuestion(t *testing.T) {
	assert.Equal(t, "What is a mutex?", cleanQuestion(`  Question: "What is a mutex?" `))
	assert.Equal(t, "Why?", cleanQuestion("Interviewer: Why?"))
	assert.Equal(t, "", cleanQuestion("  "))
}

// fakeModel is a canned llms.Model.
type fakeModel struct {
	reply string
	err   error
	msgs  []llms.MessageContent
}

func (m *fakeModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	m.msgs = msgs
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func TestLLMGenerator(t *testing.T) {
	model := &fakeModel{reply: "Q: How would you tune GOMAXPROCS?"}
	gen, err := NewLLMGenerator(model, map[string]any{"temperature": 0.2})
	require.NoError(t, err)
	require.InDelta(t, 0.2, gen.temperature, 1e-9)

	q, err := gen.Generate(context.Background(), GenerateRequest{
		Topic:            goTopic,
		Depth:            1,
		Params:           models.DomainParameters{Role: "Backend Engineer", Seniority: models.SenioritySenior, Difficulty: 0.5},
		PreviousQuestion: "Tell me about Go.",
		RecentTranscript: "I used it a bit.",
	})
	require.NoError(t, err)
	assert.Equal(t, "How would you tune GOMAXPROCS?", q)

	require.Len(t, model.msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.msgs[0].Role)
	human, ok := model.msgs[1].Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Contains(t, human.Text, "I used it a bit.")
	assert.Contains(t, human.Text, "goroutines, channels")

	model.reply = "  "
	_, err = gen.Generate(context.Background(), GenerateRequest{Topic: goTopic})
	require.Error(t, err)

	model.err = errors.New("rate limited")
	_, err = gen.Generate(context.Background(), GenerateRequest{Topic: goTopic})
	require.ErrorContains(t, err, "rate limited")
}

func TestLLMScorer(t *testing.T) {
	model := &fakeModel{reply: `Sure. {"relevance": 0.6, "correctness": 0.3, "rationale": "shallow"}`}
	sc, err := NewLLMScorer(model, nil)
	require.NoError(t, err)

	got, err := sc.Score(context.Background(), ScoreRequest{Question: "q", Transcript: "a", Topic: goTopic})
	require.NoError(t, err)
	assert.Equal(t, 0.6, got.Relevance)
	assert.Equal(t, 0.3, got.Correctness)
	assert.Equal(t, "shallow", got.Rationale)
	require.NotNil(t, got.Metrics, "lexical breakdown is attached to judge scores")
	assert.Empty(t, got.Metrics.RedFlags)

	model.reply = `{"relevance": 0.6, "correctness": 0.3, "star": ["result", "Situation", "bogus"], "red_flags": ["blames the team"]}`
	got, err = sc.Score(context.Background(), ScoreRequest{
		Question:   "q",
		Transcript: "Honestly it was their fault, I just helped with it.",
		Topic:      goTopic,
	})
	require.NoError(t, err)
	require.NotNil(t, got.Metrics)
	assert.Equal(t, []string{models.STARSituation, models.STARResult}, got.Metrics.STARParts)
	assert.Equal(t, 0.5, got.Metrics.STAR)
	assert.Equal(t, []string{"blame-shifting", "blames the team"}, got.Metrics.RedFlags)

	model.reply = "no idea"
	_, err = sc.Score(context.Background(), ScoreRequest{Question: "q", Transcript: "a"})
	require.ErrorIs(t, err, errNoScore)
}

func TestDecodeParams(t *testing.T) {
	p, err := decodeParams(map[string]any{"base_url": "http://localhost:11434", "api_key_env": "MY_KEY", "max_tokens": 64})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", p.BaseURL)
	assert.Equal(t, 64, p.MaxTokens)

	t.Setenv("MY_KEY", "secret")
	assert.Equal(t, "secret", p.apiKey("OTHER"))

	_, err = decodeParams(map[string]any{"max_tokens": "lots"})
	require.Error(t, err)
}

func TestNewLLM_UnsupportedProvider(t *testing.T) {
	_, err := NewLLM(context.Background(), config.BackendConfig{Provider: "watson"})
	require.ErrorContains(t, err, "unsupported llm provider")

	_, err = NewLLM(context.Background(), config.BackendConfig{Provider: ProviderGoogle, Params: map[string]any{"base_url": "http://x"}})
	require.ErrorContains(t, err, "base_url")
}

func TestNewBackends(t *testing.T) {
	b, err := NewBackends(context.Background(), config.New().Backends, nil)
	require.NoError(t, err)
	assert.IsType(t, &TemplateGenerator{}, b.Generator)
	assert.IsType(t, &HeuristicScorer{}, b.Scorer)
	require.NoError(t, b.Close())

	var built []string
	opts := &BackendsOptions{
		NewLLM: func(ctx context.Context, cfg config.BackendConfig) (llms.Model, error) {
			built = append(built, cfg.Provider+"/"+cfg.Model)
			return &fakeModel{}, nil
		},
	}
	cfg := config.BackendsConfig{
		Generator: config.BackendConfig{Provider: ProviderOllama, Model: "llama3"},
		Scorer:    config.BackendConfig{Provider: ProviderOpenAI, Model: "gpt-4o-mini"},
	}
	b, err = NewBackends(context.Background(), cfg, opts)
	require.NoError(t, err)
	assert.IsType(t, &LLMGenerator{}, b.Generator)
	assert.IsType(t, &LLMScorer{}, b.Scorer)
	assert.Equal(t, []string{"ollama/llama3", "openai/gpt-4o-mini"}, built)

	_, err = NewBackends(context.Background(), config.BackendsConfig{Generator: config.BackendConfig{Provider: "magic"}}, nil)
	require.ErrorContains(t, err, "unknown generator provider")

	_, err = NewBackends(context.Background(), config.BackendsConfig{Scorer: config.BackendConfig{Provider: "magic"}}, nil)
	require.ErrorContains(t, err, "unknown scorer provider")
}
