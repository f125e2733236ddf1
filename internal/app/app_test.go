package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parts-assistant/internal/config"
	"parts-assistant/internal/embedding"
	"parts-assistant/internal/llm"
	"parts-assistant/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama serves /api/embeddings with keyword vectors and /api/chat with
// a fixed intent or manual answer depending on the system prompt.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embeddings":
			var req struct {
				Prompt string `json:"prompt"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			vec := []float64{0, 0, 1}
			switch text := strings.ToLower(req.Prompt); {
			case strings.Contains(text, "luva"):
				vec = []float64{1, 0, 0}
			case strings.Contains(text, "martelo"):
				vec = []float64{0, 1, 0}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
		case "/api/chat":
			var req struct {
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			reply := "Use luvas."
			if strings.Contains(req.Messages[0].Content, "identificar peças") {
				reply = `{"pieces": ["martelo"], "date": "2024-10-17"}`
			}
			w.Header().Set("Content-Type", "application/x-ndjson")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"model":   "fake",
				"message": map[string]string{"role": "assistant", "content": reply},
				"done":    true,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, ollamaURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	manual := filepath.Join(dir, "manual.txt")
	pages := []string{
		"Use luvas de proteção ao manusear peças.",
		"O martelo deve ser guardado na caixa.",
		"Texto geral sobre o setor de ferramentas.",
	}
	require.NoError(t, os.WriteFile(manual, []byte(strings.Join(pages, "\f")), 0o644))

	cfg := config.DefaultConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLite.Path = filepath.Join(dir, "catalog.db")
	cfg.LLM.Host = ollamaURL
	cfg.LLM.Model = "fake"
	cfg.Embedding.Host = ollamaURL
	cfg.Embedding.Model = "fake-embed"
	cfg.Manual.Path = manual
	cfg.Server.RequestTimeout = 0
	require.NoError(t, cfg.Validate())
	return cfg
}

func seed(t *testing.T, cfg *config.Config) {
	t.Helper()
	ctx := context.Background()
	store, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Initialize(ctx))
	_, err = store.UpsertItems(ctx, []models.Item{
		{SAP: "1001", Category: "ferramenta", Description: "MARTELO"},
		{SAP: "1002", Category: "ferramenta", Description: "ALICATE UNIVERSAL"},
	})
	require.NoError(t, err)

	day := time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC)
	_, err = store.UpsertSlots(ctx, []models.Slot{
		{SAP: "1001", Date: day, Hour: 9},
		{SAP: "1001", Date: day, Hour: 10},
		{SAP: "1001", Date: day, Hour: 11, Occupied: true},
	})
	require.NoError(t, err)
}

func postJSON(t *testing.T, url string, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestNewServesRequestsEndToEnd(t *testing.T) {
	cfg := testConfig(t, fakeOllama(t).URL)
	seed(t, cfg)

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 3, a.Index.Current().Len())
	assert.Equal(t, 3, a.Index.Current().Dimension())

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	t.Run("availability", func(t *testing.T) {
		status, body := postJSON(t, srv.URL+"/main", map[string]string{
			"prompt":          "Preciso de um martelo amanhã",
			"conversation_id": "c1",
		})
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, "2024-10-17", body["date"])
		assert.Equal(t, []any{float64(9), float64(10)}, body["common_hours"])
		assert.Equal(t, []any{}, body["unmatched_pieces"])
		require.Len(t, body["found_pieces"], 1)

		history, err := a.Conversations.Get(context.Background(), "c1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.RoleUser, history[0].Role)
	})

	t.Run("manual", func(t *testing.T) {
		status, body := postJSON(t, srv.URL+"/main", map[string]string{
			"prompt":          "O que o manual diz sobre luvas?",
			"conversation_id": "c2",
		})
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, "Use luvas.\n\nReferências: Páginas 1, 2, 3 do manual.", body["answer"])
	})

	t.Run("validation", func(t *testing.T) {
		status, body := postJSON(t, srv.URL+"/consulta", map[string]string{"prompt": "martelo"})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "conversation_id não fornecido.", body["error"])
	})

	t.Run("ready", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/ready")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestNewFailsOnMissingManual(t *testing.T) {
	cfg := testConfig(t, fakeOllama(t).URL)
	cfg.Manual.Path = filepath.Join(t.TempDir(), "missing.pdf")

	_, err := New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read manual")
}

func TestBackendSelection(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.Cache.Driver = "none"
	assert.Nil(t, NewCache(cfg, nil))
	cfg.Cache.Driver = "memory"
	c := NewCache(cfg, nil)
	require.NotNil(t, c)

	e, err := NewEmbedder(cfg, c, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &embedding.CachedEmbedder{}, e)

	e, err = NewEmbedder(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &embedding.OllamaEmbedder{}, e)

	cfg.Embedding.Backend = "openai"
	e, err = NewEmbedder(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &embedding.OpenAIEmbedder{}, e)

	cfg.LLM.Backend = "openai"
	completer, err := NewCompleter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAILLM{}, completer)

	cfg.LLM.Backend = "bogus"
	_, err = NewCompleter(cfg)
	assert.Error(t, err)

	// redis requested without a connection falls back to memory
	cfg.Conversation.Backend = "redis"
	assert.NotNil(t, NewConversationStore(cfg, nil))
}
