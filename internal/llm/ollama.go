package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parts-assistant/internal/models"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// OllamaLLM handles interactions with the Ollama chat API
type OllamaLLM struct {
	Client  *api.Client
	Model   string
	Timeout time.Duration
}

// NewOllamaLLM creates a new Ollama LLM client. An empty host falls back to
// OLLAMA_HOST.
func NewOllamaLLM(host string, model string, timeout time.Duration) (*OllamaLLM, error) {
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = u
	}
	client := api.NewClient(hostURL, http.DefaultClient)

	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaLLM{
		Client:  client,
		Model:   model,
		Timeout: timeout,
	}, nil
}

// Complete generates a reply from the chat model
func (o *OllamaLLM) Complete(ctx context.Context, system string, history models.History, user string) (string, error) {
	messages := make([]api.Message, 0, len(history)+2)
	if system != "" {
		messages = append(messages, api.Message{Role: "system", Content: system})
	}
	for _, turn := range history {
		messages = append(messages, api.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, api.Message{Role: models.RoleUser, Content: user})

	req := api.ChatRequest{
		Model:    o.Model,
		Messages: messages,
		Options: map[string]interface{}{
			"temperature": 0,
			"num_predict": 1024,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	var responseBuilder strings.Builder
	err := o.Client.Chat(ctx, &req, func(resp api.ChatResponse) error {
		_, err := responseBuilder.WriteString(resp.Message.Content)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	return strings.TrimSpace(responseBuilder.String()), nil
}
