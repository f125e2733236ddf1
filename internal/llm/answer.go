package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"parts-assistant/internal/models"
)

const manualInstruction = "Você é um assistente que responde perguntas com base no seguinte manual."

// AnswerComposer writes manual answers grounded on retrieved passages.
type AnswerComposer struct {
	completer Completer
}

// NewAnswerComposer creates a composer using completer.
func NewAnswerComposer(completer Completer) *AnswerComposer {
	return &AnswerComposer{completer: completer}
}

// Compose answers question from chunks and appends the page citation.
func (c *AnswerComposer) Compose(ctx context.Context, question string, chunks []models.Chunk) (string, error) {
	answer, err := c.completer.Complete(ctx, BuildManualPrompt(chunks), nil, question)
	if err != nil {
		return "", fmt.Errorf("failed to compose answer: %w", err)
	}
	return strings.TrimSpace(answer) + Citation(chunks), nil
}

// BuildManualPrompt creates the system instruction carrying the passages
// as context, one block per page.
func BuildManualPrompt(chunks []models.Chunk) string {
	var promptBuilder strings.Builder

	promptBuilder.WriteString(manualInstruction)
	for _, chunk := range chunks {
		promptBuilder.WriteString("\n\n")
		fmt.Fprintf(&promptBuilder, "Página %d: %s", chunk.Page, chunk.Text)
	}

	return promptBuilder.String()
}

// Citation returns the reference suffix listing the pages of chunks, each
// once, in retrieval order. It is empty when there are no chunks.
func Citation(chunks []models.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	seen := make(map[int]bool, len(chunks))
	pages := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.Page] {
			continue
		}
		seen[c.Page] = true
		pages = append(pages, strconv.Itoa(c.Page))
	}

	return "\n\nReferências: Páginas " + strings.Join(pages, ", ") + " do manual."
}
