package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parts-assistant/internal/models"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

// OpenAILLM generates replies with an OpenAI-compatible chat API.
type OpenAILLM struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAILLM creates a chat client for model. baseURL may point at any
// OpenAI-compatible server such as llama.cpp; empty means the public API.
func NewOpenAILLM(apiKey, baseURL, model string, timeout time.Duration) *OpenAILLM {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAILLM{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
	}
}

// Complete generates a reply from the chat model
func (o *OpenAILLM) Complete(ctx context.Context, system string, history models.History, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, turn := range history {
		if turn.Role == models.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(user))

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       shared.ChatModel(o.model),
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("failed to generate response: no choices returned")
	}

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
