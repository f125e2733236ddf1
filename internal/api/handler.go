// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"parts-assistant/internal/assistant"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const maxBodyBytes = 1 << 20

// RequestHandler processes one assistant request.
type RequestHandler interface {
	Handle(ctx context.Context, req assistant.Request) (assistant.Response, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Handler serves the assistant endpoints.
type Handler struct {
	assistant RequestHandler
	checks    map[string]ReadinessCheck
	logger    zerolog.Logger
}

// NewHandler creates the HTTP handler. checks are run by /ready.
func NewHandler(a RequestHandler, checks map[string]ReadinessCheck, logger zerolog.Logger) *Handler {
	return &Handler{assistant: a, checks: checks, logger: logger}
}

// Main handles POST /main and its legacy alias POST /consulta.
func (h *Handler) Main(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || !gjson.ValidBytes(body) {
		h.writeError(w, http.StatusBadRequest, "Corpo da requisição inválido.")
		return
	}

	// fields are read leniently: a numeric conversation_id is accepted
	doc := gjson.ParseBytes(body)
	req := assistant.Request{
		Prompt:         doc.Get("prompt").String(),
		ConversationID: doc.Get("conversation_id").String(),
	}

	resp, err := h.assistant.Handle(r.Context(), req)
	if err != nil {
		var verr *assistant.ValidationError
		var perr *assistant.ProcessingError
		switch {
		case errors.As(err, &verr):
			h.writeError(w, http.StatusBadRequest, verr.Message)
		case errors.As(err, &perr):
			h.writeError(w, http.StatusInternalServerError, perr.UserMessage())
		default:
			h.logger.Error().Err(err).Msg("unexpected handler error")
			h.writeError(w, http.StatusInternalServerError, "Erro ao processar a consulta: "+err.Error())
		}
		return
	}

	h.writeJSON(w, http.StatusOK, resp.Body())
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "parts-assistant"})
}

// Ready handles GET /ready by running every readiness check.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			h.logger.Warn().Err(err).Str("check", name).Msg("readiness check failed")
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	h.writeJSON(w, status, map[string]any{"status": state, "checks": results})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("failed to write response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
