package models

import "time"

// Item is a catalog entry for a tool or part. SAP is the canonical id.
type Item struct {
	SAP         string `json:"sap" parquet:"sap"`
	Category    string `json:"categoria" parquet:"categoria"`
	Description string `json:"descricao" parquet:"descricao"`
}

// Slot is one hour of one item on one date.
type Slot struct {
	SAP      string    `json:"sap"`
	Date     time.Time `json:"data"`
	Hour     int       `json:"hora"`
	Occupied bool      `json:"ocupado"`
}

// Intent is the structured reading of a single user turn.
type Intent struct {
	Pieces []string `json:"pieces"`
	Date   string   `json:"date,omitempty"`
	Manual bool     `json:"-"`
}

// Empty reports whether neither pieces nor a date were identified.
func (i Intent) Empty() bool {
	return len(i.Pieces) == 0 && i.Date == ""
}

// Conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is the ordered list of turns of a conversation.
type History []Turn

// Append returns a copy of h with turns added, leaving h untouched.
func (h History) Append(turns ...Turn) History {
	out := make(History, 0, len(h)+len(turns))
	out = append(out, h...)
	return append(out, turns...)
}

// MatchResult is the outcome of resolving one requested description
// against the catalog. Item is nil when nothing cleared the threshold.
type MatchResult struct {
	Requested string  `json:"requested"`
	Item      *Item   `json:"item,omitempty"`
	Score     float64 `json:"score"`
}

// Matched reports whether an item was found.
func (m MatchResult) Matched() bool {
	return m.Item != nil
}

// Page is the text of one page of the reference manual.
type Page struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// Chunk is a page-scoped piece of the manual with its embedding.
type Chunk struct {
	Page      int       `json:"page"`
	Text      string    `json:"text"`
	Embedding []float64 `json:"-"`
}
