package capability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	copilot "github.com/github/copilot-sdk/go"

	"github.com/skillissue/mockview/internal/utils"
)

// Copilot runs generation and scoring prompts through the GitHub Copilot
// SDK. One client is shared; every prompt gets a fresh session so answers
// never leak between turns.
type Copilot struct {
	model  string
	client copilotClient

	startOnce sync.Once
	startErr  error
}

// CopilotOptions customizes NewCopilot.
type CopilotOptions struct {
	NewCopilotClient func(clientOptions *copilot.ClientOptions) copilotClient
}

// NewCopilot creates a Copilot backend. model may be blank, in which case
// the Copilot CLI picks its own default.
func NewCopilot(model string, options *CopilotOptions) *Copilot {
	clientOptions := &copilot.ClientOptions{
		LogLevel:  "error",
		AutoStart: copilot.Bool(false),
	}

	factory := newCopilotClient
	if options != nil && options.NewCopilotClient != nil {
		factory = options.NewCopilotClient
	}
	return &Copilot{model: model, client: factory(clientOptions)}
}

// Generator returns a Generator backed by c.
func (c *Copilot) Generator() Generator { return c.GeneratorFor(c.model) }

// GeneratorFor returns a Generator that asks model on c's client. A blank
// model falls back to c's own.
func (c *Copilot) GeneratorFor(model string) Generator {
	return copilotGenerator{c: c, model: c.modelOr(model)}
}

// Scorer returns a Scorer backed by c.
func (c *Copilot) Scorer() Scorer { return c.ScorerFor(c.model) }

// ScorerFor returns a Scorer that asks model on c's client. A blank model
// falls back to c's own.
func (c *Copilot) ScorerFor(model string) Scorer {
	return copilotScorer{c: c, model: c.modelOr(model)}
}

func (c *Copilot) modelOr(model string) string {
	if model == "" {
		return c.model
	}
	return model
}

// Close stops the underlying client.
func (c *Copilot) Close() error {
	if err := c.client.Stop(); err != nil {
		slog.Info("failed to stop copilot client", "error", err)
		return err
	}
	return nil
}

func (c *Copilot) ask(ctx context.Context, model, prompt string) (string, error) {
	c.startOnce.Do(func() {
		// autostart races when sessions are created from several goroutines
		c.startErr = c.client.Start(ctx)
	})
	if c.startErr != nil {
		return "", fmt.Errorf("copilot failed to start: %w", c.startErr)
	}

	session, err := c.client.CreateSession(ctx, &copilot.SessionConfig{
		Model:               model,
		OnPermissionRequest: denyAllTools,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	var (
		mu    sync.Mutex
		parts []string
	)
	unsubscribe := session.On(func(evt copilot.SessionEvent) {
		if evt.Type == copilot.AssistantMessage && evt.Data.Content != nil {
			mu.Lock()
			parts = append(parts, *evt.Data.Content)
			mu.Unlock()
		}
		utils.CopilotEventToSlog(ctx, evt)
	})
	defer unsubscribe()

	if _, err := session.SendAndWait(ctx, copilot.MessageOptions{Prompt: prompt}); err != nil {
		return "", err
	}

	mu.Lock()
	defer mu.Unlock()
	return strings.TrimSpace(strings.Join(parts, "")), nil
}

type copilotGenerator struct {
	c     *Copilot
	model string
}

func (g copilotGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	out, err := g.c.ask(ctx, g.model, generatorSystemPrompt+"\n\n"+generatorPrompt(req))
	if err != nil {
		return "", err
	}
	q := cleanQuestion(out)
	if q == "" {
		return "", fmt.Errorf("copilot returned an empty question")
	}
	return q, nil
}

type copilotScorer struct {
	c     *Copilot
	model string
}

func (s copilotScorer) Score(ctx context.Context, req ScoreRequest) (Score, error) {
	out, err := s.c.ask(ctx, s.model, scorerSystemPrompt+"\n\n"+scorerPrompt(req))
	if err != nil {
		return Score{}, err
	}
	score, err := ParseScore(out)
	if err != nil {
		return Score{}, err
	}
	return withJudgeMetrics(req, score), nil
}

// interview prompts never need tools
func denyAllTools(request copilot.PermissionRequest, invocation copilot.PermissionInvocation) (copilot.PermissionRequestResult, error) {
	return copilot.PermissionRequestResult{Kind: "denied-interactively-by-user"}, nil
}
