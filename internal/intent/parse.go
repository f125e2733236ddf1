package intent

import (
	"strings"

	"parts-assistant/internal/models"

	"github.com/tidwall/gjson"
)

// maxReplyBytes bounds the scanned prefix of a reply. The bracket scan
// restarts at every opening bracket, so its cost grows with the square of
// the scanned length; 16 KiB is several times the longest reply the
// extraction prompt produces.
const maxReplyBytes = 16 << 10

// Result is the outcome of reading a provider reply. OK is false when no
// usable JSON payload was found, in which case Intent is empty.
type Result struct {
	OK     bool
	Intent models.Intent
}

// ParseReply finds the first JSON payload embedded in a free-text reply
// and reads the pieces and date from it. An object is read for its
// "pieces" and "date" fields; a bare array of strings is taken as the
// piece list. It never fails: anything unusable yields Result{OK: false}.
func ParseReply(text string) Result {
	if len(text) > maxReplyBytes {
		text = text[:maxReplyBytes]
	}
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		end := matchingClose(text, start)
		if end < 0 {
			continue
		}
		candidate := text[start : end+1]
		if !gjson.Valid(candidate) {
			continue
		}
		doc := gjson.Parse(candidate)
		if doc.IsArray() {
			pieces, ok := stringList(doc)
			if !ok {
				continue
			}
			return Result{OK: true, Intent: models.Intent{Pieces: pieces}}
		}
		return Result{OK: true, Intent: readObject(doc)}
	}
	return Result{}
}

func readObject(doc gjson.Result) models.Intent {
	var in models.Intent

	pieces := doc.Get("pieces")
	switch {
	case pieces.IsArray():
		pieces.ForEach(func(_, v gjson.Result) bool {
			if v.Type == gjson.String || v.Type == gjson.Number {
				if s := strings.TrimSpace(v.String()); s != "" {
					in.Pieces = append(in.Pieces, s)
				}
			}
			return true
		})
	case pieces.Type == gjson.String:
		if s := strings.TrimSpace(pieces.String()); s != "" {
			in.Pieces = []string{s}
		}
	}

	if date := doc.Get("date"); date.Type == gjson.String {
		in.Date = strings.TrimSpace(date.String())
	}
	return in
}

func stringList(doc gjson.Result) ([]string, bool) {
	var out []string
	ok := true
	doc.ForEach(func(_, v gjson.Result) bool {
		if v.Type != gjson.String {
			ok = false
			return false
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out, ok
}

// matchingClose returns the index of the bracket closing the one at start,
// skipping brackets inside JSON strings, or -1 if it is never closed.
func matchingClose(text string, start int) int {
	var stack []byte
	inString, escaped := false, false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}
