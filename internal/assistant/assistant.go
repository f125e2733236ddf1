// Package assistant answers user turns: it routes each request, resolves
// piece availability or answers from the manual, and keeps the
// conversation history.
package assistant

import (
	"context"
	"strings"
	"time"

	"parts-assistant/internal/catalog"
	"parts-assistant/internal/conversation"
	"parts-assistant/internal/intent"
	"parts-assistant/internal/models"
	"parts-assistant/internal/observability"

	"github.com/rs/zerolog"
)

// IntentExtractor reads pieces and a date from a user turn.
type IntentExtractor interface {
	Extract(ctx context.Context, utterance string, history models.History) (models.Intent, models.History, error)
}

// AvailabilityResolver finds the hours at which all ids are free.
type AvailabilityResolver interface {
	CommonAvailability(ctx context.Context, ids []string, date time.Time) ([]int, error)
}

// PassageRetriever returns the manual passages nearest to a question.
type PassageRetriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]models.Chunk, error)
}

// AnswerComposer writes a cited answer from passages.
type AnswerComposer interface {
	Compose(ctx context.Context, question string, chunks []models.Chunk) (string, error)
}

// Deps are the collaborators of an Assistant.
type Deps struct {
	Classifier       intent.Classifier
	Extractor        IntentExtractor
	Matcher          catalog.Matcher
	Resolver         AvailabilityResolver
	Retriever        PassageRetriever
	Composer         AnswerComposer
	Conversations    conversation.Store
	Logger           zerolog.Logger
	Location         *time.Location
	MatchConcurrency int
	TopK             int
}

// Assistant handles requests. It is safe for concurrent use.
type Assistant struct {
	Deps
	now func() time.Time
}

// New creates an assistant.
func New(d Deps) *Assistant {
	if d.Classifier == nil {
		d.Classifier = intent.NewKeywordClassifier()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.MatchConcurrency < 1 {
		d.MatchConcurrency = 4
	}
	return &Assistant{Deps: d, now: time.Now}
}

// Handle processes one request.
func (a *Assistant) Handle(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, &ValidationError{Message: MsgMissingPrompt}
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		return Response{}, &ValidationError{Message: MsgMissingConversation}
	}

	start := time.Now()
	logger := observability.ForRequest(ctx, a.Logger, req.ConversationID)
	route := a.Classifier.Classify(req.Prompt)

	var (
		resp Response
		err  error
	)
	if route == intent.RouteManual {
		resp, err = a.handleManual(ctx, req, logger)
	} else {
		resp, err = a.handleAvailability(ctx, req, logger)
	}
	if err != nil {
		return Response{}, err
	}

	logger.Info().
		Str("route", route.String()).
		Str("outcome", resp.Outcome.String()).
		Dur("duration", time.Since(start)).
		Msg("request handled")
	return resp, nil
}

func (a *Assistant) handleAvailability(ctx context.Context, req Request, logger zerolog.Logger) (Response, error) {
	var (
		in         models.Intent
		prior      models.History
		extractErr error
	)
	// a cross-process conflict on a shared store reruns fn, and with it the
	// extraction, against the newer history
	err := a.Conversations.Update(ctx, req.ConversationID, func(h models.History) (models.History, error) {
		prior = h
		var updated models.History
		in, updated, extractErr = a.Extractor.Extract(ctx, req.Prompt, h)
		return updated, nil
	})
	if err != nil {
		return Response{}, a.fail(logger, "conversation", err)
	}
	if extractErr != nil {
		return Response{}, a.fail(logger, "extract", extractErr)
	}

	if in.Empty() {
		return Response{Outcome: OutcomeMessage, Message: MsgNothingIdentified}, nil
	}

	pieces, dateExpr := carryForward(in, prior)
	date := intent.ResolveDate(dateExpr, a.now().In(a.Location))

	results, err := catalog.MatchAll(ctx, a.Matcher, pieces, a.MatchConcurrency)
	if err != nil {
		return Response{}, a.fail(logger, "match", err)
	}

	result := &AvailabilityResult{
		FoundPieces:     []models.Item{},
		UnmatchedPieces: []string{},
		Date:            date.Format(time.DateOnly),
	}
	var ids []string
	seen := make(map[string]bool)
	for _, r := range results {
		if !r.Matched() {
			result.UnmatchedPieces = append(result.UnmatchedPieces, r.Requested)
			continue
		}
		if seen[r.Item.SAP] {
			continue
		}
		seen[r.Item.SAP] = true
		result.FoundPieces = append(result.FoundPieces, *r.Item)
		ids = append(ids, r.Item.SAP)
	}

	hours, err := a.Resolver.CommonAvailability(ctx, ids, date)
	if err != nil {
		return Response{}, a.fail(logger, "availability", err)
	}
	if hours == nil {
		hours = []int{}
	}
	result.CommonHours = hours

	logger.Debug().
		Strs("pieces", pieces).
		Int("found", len(result.FoundPieces)).
		Int("unmatched", len(result.UnmatchedPieces)).
		Str("date", result.Date).
		Msg("availability resolved")

	return Response{Outcome: OutcomeAvailability, Availability: result}, nil
}

func (a *Assistant) handleManual(ctx context.Context, req Request, logger zerolog.Logger) (Response, error) {
	chunks, err := a.Retriever.Retrieve(ctx, req.Prompt, a.TopK)
	if err != nil {
		return Response{}, a.fail(logger, "retrieve", err)
	}

	answer, err := a.Composer.Compose(ctx, req.Prompt, chunks)
	if err != nil {
		return Response{}, a.fail(logger, "compose", err)
	}

	err = a.Conversations.Update(ctx, req.ConversationID, func(h models.History) (models.History, error) {
		return h.Append(
			models.Turn{Role: models.RoleUser, Content: req.Prompt},
			models.Turn{Role: models.RoleAssistant, Content: answer},
		), nil
	})
	if err != nil {
		return Response{}, a.fail(logger, "conversation", err)
	}

	return Response{Outcome: OutcomeManual, Answer: answer}, nil
}

func (a *Assistant) fail(logger zerolog.Logger, stage string, err error) error {
	logger.Error().Err(err).Str("stage", stage).Msg("request failed")
	return &ProcessingError{Stage: stage, Err: err}
}

// carryForward fills in what the current turn left out from earlier turns.
// No pieces: the most recent pieces are reused. Pieces but no date: the
// earlier pieces are kept alongside the new ones and the earlier date is
// reused.
func carryForward(in models.Intent, prior models.History) ([]string, string) {
	previous := intent.LastPieces(prior)

	switch {
	case len(in.Pieces) == 0:
		return dedupePieces(previous), in.Date
	case in.Date == "" && len(previous) > 0:
		return dedupePieces(append(append([]string{}, previous...), in.Pieces...)), intent.LastDate(prior)
	default:
		return dedupePieces(in.Pieces), in.Date
	}
}

// dedupePieces drops blank and repeated descriptions, comparing without
// case or diacritics, and keeps first occurrences in order.
func dedupePieces(pieces []string) []string {
	out := make([]string, 0, len(pieces))
	seen := make(map[string]bool, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		key := catalog.Normalize(p)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
