package capability

import (
	"context"
	"fmt"
	"strings"
)

// TemplateGenerator builds questions from fixed templates. It needs no
// network access and doubles as the generic fallback.
type TemplateGenerator struct{}

// NewTemplateGenerator returns a TemplateGenerator.
func NewTemplateGenerator() *TemplateGenerator { return &TemplateGenerator{} }

// Generate implements Generator.
func (g *TemplateGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return TemplateQuestion(req), nil
}

// TemplateQuestion is the deterministic question for req.
func TemplateQuestion(req GenerateRequest) string {
	label := req.Topic.Label
	if label == "" {
		label = req.Topic.ID
	}
	concept := ""
	if n := len(req.Topic.ExpectedKnowledge); n > 0 {
		concept = req.Topic.ExpectedKnowledge[req.Depth%n]
	}

	switch {
	case req.Depth == 0 && req.Topic.Source.IsClaimed():
		return fmt.Sprintf("Your background mentions %s. Can you walk me through a project where you relied on it?", label)
	case req.Depth == 0:
		return fmt.Sprintf("This role relies on %s. How have you worked with it, and what would you want to know before using it in production?", label)
	case req.Depth == 1 && concept != "":
		return fmt.Sprintf("Let's go a level deeper on %s. How does %s work, and where have you seen it go wrong?", label, concept)
	case concept != "":
		return fmt.Sprintf("Suppose %s misbehaves under load in a %s system you own. How would you diagnose it, and what tradeoffs would you weigh?", concept, label)
	}
	return fmt.Sprintf("Can you give a concrete example that shows your depth with %s?", label)
}

// GenericQuestion is the last-resort question when nothing else is known.
func GenericQuestion(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "Can you tell me about a recent technical challenge you solved?"
	}
	return fmt.Sprintf("Can you tell me about your experience with %s?", label)
}
