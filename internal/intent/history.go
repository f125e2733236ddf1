package intent

import "parts-assistant/internal/models"

// LastPieces returns the most recent non-empty piece list found in the
// assistant turns of history, or nil.
func LastPieces(history models.History) []string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != models.RoleAssistant {
			continue
		}
		if res := ParseReply(history[i].Content); res.OK && len(res.Intent.Pieces) > 0 {
			return res.Intent.Pieces
		}
	}
	return nil
}

// LastDate returns the most recent date expression found in the assistant
// turns of history, or "".
func LastDate(history models.History) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != models.RoleAssistant {
			continue
		}
		if res := ParseReply(history[i].Content); res.OK && res.Intent.Date != "" {
			return res.Intent.Date
		}
	}
	return ""
}
