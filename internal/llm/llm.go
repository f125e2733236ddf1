// Package llm talks to the text-generation providers.
package llm

import (
	"context"

	"parts-assistant/internal/models"
)

// Completer produces one assistant reply for a system instruction, the
// prior conversation and a new user message. Implementations run with
// temperature 0.
type Completer interface {
	Complete(ctx context.Context, system string, history models.History, user string) (string, error)
}

// Ensure implementations satisfy interface.
var (
	_ Completer = (*OllamaLLM)(nil)
	_ Completer = (*OpenAILLM)(nil)
)
