// Package intent reads what a user turn asks for: which route it takes,
// which pieces and which date it mentions.
package intent

import (
	"strings"

	"parts-assistant/internal/catalog"
)

// Route is the processing path of a request.
type Route int

const (
	// RouteAvailability checks when the mentioned pieces are free.
	RouteAvailability Route = iota
	// RouteManual answers a question about the reference manual.
	RouteManual
)

func (r Route) String() string {
	if r == RouteManual {
		return "manual"
	}
	return "availability"
}

// Classifier decides the route of an utterance.
type Classifier interface {
	Classify(utterance string) Route
}

// DefaultManualKeywords route a request to the manual when contained in it.
var DefaultManualKeywords = []string{"manual", "guide", "instruction", "guia", "instrução", "instruções"}

// KeywordClassifier routes to the manual when the utterance contains one
// of its keywords, ignoring case and diacritics.
type KeywordClassifier struct {
	keywords []string
}

// NewKeywordClassifier creates a classifier over keywords, or the default
// vocabulary when none are given.
func NewKeywordClassifier(keywords ...string) *KeywordClassifier {
	if len(keywords) == 0 {
		keywords = DefaultManualKeywords
	}
	folded := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = catalog.Normalize(kw); kw != "" {
			folded = append(folded, kw)
		}
	}
	return &KeywordClassifier{keywords: folded}
}

// Classify returns RouteManual if any keyword occurs in utterance.
func (c *KeywordClassifier) Classify(utterance string) Route {
	text := catalog.Normalize(utterance)
	for _, kw := range c.keywords {
		if strings.Contains(text, kw) {
			return RouteManual
		}
	}
	return RouteAvailability
}
