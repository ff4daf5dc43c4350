package utils

import (
	"context"
	"log/slog"

	copilot "github.com/github/copilot-sdk/go"
)

// CopilotEventToSlog logs a Copilot session event at debug level. Prompt
// content is logged only by length.
func CopilotEventToSlog(ctx context.Context, event copilot.SessionEvent) {
	if !slog.Default().Enabled(ctx, slog.LevelDebug) {
		return
	}

	attrs := []any{
		"type", event.Type,
	}

	attrs = addLenIf(attrs, "contentLen", event.Data.Content)
	attrs = addLenIf(attrs, "deltaLen", event.Data.DeltaContent)
	attrs = addIf(attrs, "toolName", event.Data.ToolName)
	attrs = addLenIf(attrs, "reasoningLen", event.Data.ReasoningText)

	slog.Debug("Copilot event received", attrs...)
}

func addIf[T any](attrs []any, name string, v *T) []any {
	if v != nil {
		attrs = append(attrs, name)
		attrs = append(attrs, *v)
	}

	return attrs
}

func addLenIf(attrs []any, name string, s *string) []any {
	if s != nil {
		attrs = append(attrs, name, len(*s))
	}
	return attrs
}
