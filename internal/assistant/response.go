package assistant

import (
	"fmt"

	"parts-assistant/internal/models"
)

// User-facing messages.
const (
	MsgMissingPrompt       = "Prompt não fornecido."
	MsgMissingConversation = "conversation_id não fornecido."
	MsgNothingIdentified   = "Nenhuma peça ou data identificada no prompt."
	processingErrorPrefix  = "Erro ao processar a consulta: "
)

// Request is one user turn.
type Request struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversation_id"`
}

// Outcome tells which kind of response was produced.
type Outcome int

const (
	OutcomeAvailability Outcome = iota
	OutcomeManual
	OutcomeMessage
)

func (o Outcome) String() string {
	switch o {
	case OutcomeManual:
		return "manual"
	case OutcomeMessage:
		return "message"
	default:
		return "availability"
	}
}

// AvailabilityResult answers an availability question. Collections are
// never nil.
type AvailabilityResult struct {
	FoundPieces     []models.Item `json:"found_pieces"`
	UnmatchedPieces []string      `json:"unmatched_pieces"`
	CommonHours     []int         `json:"common_hours"`
	Date            string        `json:"date"`
}

// Response is the result of handling a request.
type Response struct {
	Outcome      Outcome
	Availability *AvailabilityResult
	Answer       string
	Message      string
}

// Body returns the JSON document sent to the client.
func (r Response) Body() any {
	switch r.Outcome {
	case OutcomeManual:
		return map[string]string{"answer": r.Answer}
	case OutcomeMessage:
		return map[string]string{"message": r.Message}
	default:
		return r.Availability
	}
}

// ValidationError reports a malformed request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ProcessingError reports a collaborator failure while handling a request.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// UserMessage is the error text shown to the client.
func (e *ProcessingError) UserMessage() string {
	return processingErrorPrefix + e.Err.Error()
}
