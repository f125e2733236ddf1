package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"parts-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCompleter struct {
	system  string
	history models.History
	user    string
	reply   string
	err     error
}

func (r *recordingCompleter) Complete(_ context.Context, system string, history models.History, user string) (string, error) {
	r.system, r.history, r.user = system, history, user
	return r.reply, r.err
}

func TestCitation(t *testing.T) {
	assert.Equal(t, "", Citation(nil))
	assert.Equal(t, "\n\nReferências: Páginas 12 do manual.", Citation([]models.Chunk{{Page: 12}}))
	assert.Equal(t, "\n\nReferências: Páginas 7, 3, 9 do manual.",
		Citation([]models.Chunk{{Page: 7}, {Page: 3}, {Page: 7}, {Page: 9}}))
}

func TestCompose(t *testing.T) {
	rec := &recordingCompleter{reply: "  Pressione o botão ON.  "}
	chunks := []models.Chunk{
		{Page: 4, Text: "Para ligar, pressione ON."},
		{Page: 1, Text: "Introdução."},
	}

	answer, err := NewAnswerComposer(rec).Compose(context.Background(), "Como ligo o equipamento?", chunks)
	require.NoError(t, err)
	assert.Equal(t, "Pressione o botão ON.\n\nReferências: Páginas 4, 1 do manual.", answer)

	assert.Equal(t, "Como ligo o equipamento?", rec.user)
	assert.Empty(t, rec.history)
	assert.Equal(t,
		"Você é um assistente que responde perguntas com base no seguinte manual.\n\n"+
			"Página 4: Para ligar, pressione ON.\n\nPágina 1: Introdução.",
		rec.system)
}

func TestComposeError(t *testing.T) {
	rec := &recordingCompleter{err: errors.New("503")}
	_, err := NewAnswerComposer(rec).Compose(context.Background(), "q", nil)
	assert.ErrorContains(t, err, "503")
}

func TestOllamaComplete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Options map[string]any `json:"options"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"{\"pieces\":"},"done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"[]}"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	o, err := NewOllamaLLM(srv.URL, "m", 0)
	require.NoError(t, err)

	history := models.History{}.Append(
		models.Turn{Role: models.RoleUser, Content: "oi"},
		models.Turn{Role: models.RoleAssistant, Content: "olá"},
	)
	reply, err := o.Complete(context.Background(), "sys", history, "martelo amanhã")
	require.NoError(t, err)
	assert.Equal(t, `{"pieces":[]}`, reply)

	assert.Equal(t, "m", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "martelo amanhã", got.Messages[3].Content)
	assert.EqualValues(t, 0, got.Options["temperature"])
}

func TestOllamaCompleteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	o, err := NewOllamaLLM(srv.URL, "m", 0)
	require.NoError(t, err)

	_, err = o.Complete(context.Background(), "", nil, "x")
	assert.ErrorContains(t, err, "model not loaded")
}

func TestOpenAIComplete(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"gpt-4-turbo",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":" resposta "}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAILLM("test-key", srv.URL, "gpt-4-turbo", 0)
	reply, err := o.Complete(context.Background(), "sys", models.History{{Role: models.RoleAssistant, Content: "a"}}, "q")
	require.NoError(t, err)
	assert.Equal(t, "resposta", reply)

	assert.Equal(t, "gpt-4-turbo", got.Model)
	assert.Zero(t, got.Temperature)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[2].Role)
}
