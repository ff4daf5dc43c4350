package capability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/skillissue/mockview/internal/config"
)

// Provider names accepted in backend configuration.
const (
	ProviderTemplate  = "template"
	ProviderHeuristic = "heuristic"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "googleai"
	ProviderOllama    = "ollama"
	ProviderCopilot   = "copilot"
)

// llmParams are the provider specific keys under backends.*.params.
type llmParams struct {
	BaseURL      string  `mapstructure:"base_url"`
	APIKeyEnv    string  `mapstructure:"api_key_env"`
	Organization string  `mapstructure:"organization"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
}

func decodeParams(params map[string]any) (llmParams, error) {
	var p llmParams
	if len(params) == 0 {
		return p, nil
	}
	if err := mapstructure.Decode(params, &p); err != nil {
		return p, fmt.Errorf("decoding backend params: %w", err)
	}
	return p, nil
}

func (p llmParams) apiKey(fallbackEnv string) string {
	env := p.APIKeyEnv
	if env == "" {
		env = fallbackEnv
	}
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// NewLLM builds a langchaingo model for one of the hosted or local
// providers.
func NewLLM(ctx context.Context, cfg config.BackendConfig) (llms.Model, error) {
	p, err := decodeParams(cfg.Params)
	if err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if key := p.apiKey("OPENAI_API_KEY"); key != "" {
			opts = append(opts, openai.WithToken(key))
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		if p.Organization != "" {
			opts = append(opts, openai.WithOrganization(p.Organization))
		}
		return openai.New(opts...)
	case ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithModel(cfg.Model)}
		if key := p.apiKey("ANTHROPIC_API_KEY"); key != "" {
			opts = append(opts, anthropic.WithToken(key))
		}
		if p.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(p.BaseURL))
		}
		return anthropic.New(opts...)
	case ProviderGoogle:
		opts := []googleai.Option{googleai.WithDefaultModel(cfg.Model)}
		if key := p.apiKey("GOOGLE_API_KEY"); key != "" {
			opts = append(opts, googleai.WithAPIKey(key))
		}
		if p.BaseURL != "" {
			return nil, errors.New("googleai does not support a custom base_url")
		}
		return googleai.New(ctx, opts...)
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if p.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(p.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// LLMGenerator generates questions with a langchaingo model.
type LLMGenerator struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

// NewLLMGenerator wraps model. params may be nil.
func NewLLMGenerator(model llms.Model, params map[string]any) (*LLMGenerator, error) {
	p, err := decodeParams(params)
	if err != nil {
		return nil, err
	}
	if p.Temperature == 0 {
		p.Temperature = 0.7
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = 200
	}
	return &LLMGenerator{model: model, temperature: p.Temperature, maxTokens: p.MaxTokens}, nil
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	out, err := complete(ctx, g.model, generatorSystemPrompt, generatorPrompt(req),
		llms.WithTemperature(g.temperature), llms.WithMaxTokens(g.maxTokens))
	if err != nil {
		return "", err
	}
	q := cleanQuestion(out)
	if q == "" {
		return "", errors.New("model returned an empty question")
	}
	return q, nil
}

// LLMScorer scores answers with a langchaingo model.
type LLMScorer struct {
	model     llms.Model
	maxTokens int
}

// NewLLMScorer wraps model. params may be nil.
func NewLLMScorer(model llms.Model, params map[string]any) (*LLMScorer, error) {
	p, err := decodeParams(params)
	if err != nil {
		return nil, err
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = 300
	}
	return &LLMScorer{model: model, maxTokens: p.MaxTokens}, nil
}

// Score implements Scorer.
func (s *LLMScorer) Score(ctx context.Context, req ScoreRequest) (Score, error) {
	out, err := complete(ctx, s.model, scorerSystemPrompt, scorerPrompt(req),
		llms.WithTemperature(0), llms.WithMaxTokens(s.maxTokens))
	if err != nil {
		return Score{}, err
	}
	score, err := ParseScore(out)
	if err != nil {
		return Score{}, err
	}
	return withJudgeMetrics(req, score), nil
}

func complete(ctx context.Context, model llms.Model, system, prompt string, opts ...llms.CallOption) (string, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
