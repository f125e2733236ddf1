package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"parts-assistant/internal/llm"
	"parts-assistant/internal/models"

	"github.com/invopop/jsonschema"
)

// payload is the JSON object the model is asked to return.
type payload struct {
	Pieces []string `json:"pieces" jsonschema:"description=Descrições das peças ou ferramentas mencionadas"`
	Date   string   `json:"date,omitempty" jsonschema:"format=date,description=Data no formato AAAA-MM-DD"`
}

var payloadSchema = generateSchema[payload]()

func generateSchema[T any]() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	data, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		panic(fmt.Sprintf("failed to generate schema: %v", err))
	}
	return string(data)
}

// Extractor asks the text-generation provider for the pieces and date a
// user turn mentions, keeping the conversation as context.
type Extractor struct {
	completer llm.Completer
	loc       *time.Location
	now       func() time.Time
}

// NewExtractor creates an extractor resolving relative dates in loc.
func NewExtractor(completer llm.Completer, loc *time.Location) *Extractor {
	if loc == nil {
		loc = time.Local
	}
	return &Extractor{completer: completer, loc: loc, now: time.Now}
}

// SystemPrompt returns the instruction sent with every extraction.
func (e *Extractor) SystemPrompt() string {
	today := e.now().In(e.loc).Format(time.DateOnly)

	var b strings.Builder
	b.WriteString("Você é um assistente que ajuda a identificar peças e datas mencionadas em um texto. ")
	b.WriteString("Mantenha o contexto da conversa ao interpretar o pedido do usuário. ")
	b.WriteString("Retorne apenas um JSON válido com as peças e a data em formato ISO (AAAA-MM-DD), ")
	b.WriteString("resolvendo datas relativas como 'hoje' ou 'amanhã' para datas absolutas, sem texto adicional. ")
	fmt.Fprintf(&b, "A data de hoje é %s. ", today)
	b.WriteString(`Exemplo: {"pieces": ["peça1", "peça2"], "date": "2024-10-29"}`)
	b.WriteString("\nEsquema JSON da resposta: ")
	b.WriteString(payloadSchema)
	return b.String()
}

// Extract reads the intent of utterance given the prior history. The
// returned history has the utterance appended, followed by the raw reply
// when the provider answered. A reply without a usable JSON payload gives
// an empty intent and no error; a provider failure gives an empty intent
// and the error.
func (e *Extractor) Extract(ctx context.Context, utterance string, history models.History) (models.Intent, models.History, error) {
	userTurn := models.Turn{Role: models.RoleUser, Content: utterance}

	reply, err := e.completer.Complete(ctx, e.SystemPrompt(), history, utterance)
	if err != nil {
		return models.Intent{}, history.Append(userTurn), fmt.Errorf("failed to extract pieces: %w", err)
	}

	updated := history.Append(userTurn, models.Turn{Role: models.RoleAssistant, Content: reply})
	return ParseReply(reply).Intent, updated, nil
}
