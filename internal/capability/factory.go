package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/skillissue/mockview/internal/config"
)

// Backends is the configured generator and scorer pair.
type Backends struct {
	Generator Generator
	Scorer    Scorer

	closers []func() error
}

// BackendsOptions customizes NewBackends, mostly for tests.
type BackendsOptions struct {
	Copilot *CopilotOptions
	// NewLLM overrides model construction for langchaingo providers.
	NewLLM func(ctx context.Context, cfg config.BackendConfig) (llms.Model, error)
}

// NewBackends builds the backends named in cfg.
func NewBackends(ctx context.Context, cfg config.BackendsConfig, opts *BackendsOptions) (*Backends, error) {
	if opts == nil {
		opts = &BackendsOptions{}
	}
	newLLM := opts.NewLLM
	if newLLM == nil {
		newLLM = NewLLM
	}

	b := &Backends{}
	// generator and scorer share one client; the model is chosen per session
	var shared *Copilot
	sharedCopilot := func() *Copilot {
		if shared == nil {
			shared = NewCopilot("", opts.Copilot)
			b.closers = append(b.closers, shared.Close)
		}
		return shared
	}

	switch cfg.Generator.Provider {
	case "", ProviderTemplate:
		b.Generator = NewTemplateGenerator()
	case ProviderCopilot:
		b.Generator = sharedCopilot().GeneratorFor(cfg.Generator.Model)
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderOllama:
		model, err := newLLM(ctx, cfg.Generator)
		if err != nil {
			return nil, fmt.Errorf("creating %s generator: %w", cfg.Generator.Provider, err)
		}
		gen, err := NewLLMGenerator(model, cfg.Generator.Params)
		if err != nil {
			return nil, err
		}
		b.Generator = gen
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Generator.Provider)
	}

	switch cfg.Scorer.Provider {
	case "", ProviderHeuristic:
		b.Scorer = NewHeuristicScorer()
	case ProviderCopilot:
		b.Scorer = sharedCopilot().ScorerFor(cfg.Scorer.Model)
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderOllama:
		model, err := newLLM(ctx, cfg.Scorer)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("creating %s scorer: %w", cfg.Scorer.Provider, err)
		}
		sc, err := NewLLMScorer(model, cfg.Scorer.Params)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Scorer = sc
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unknown scorer provider %q", cfg.Scorer.Provider)
	}
	return b, nil
}

// Close releases backend resources.
func (b *Backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	b.closers = nil
	return errors.Join(errs...)
}
