package processor

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"parts-assistant/internal/models"

	"github.com/ledongthuc/pdf"
)

var (
	spaceRe   = regexp.MustCompile(`[ \t\r\v]+`)
	paraSepRe = regexp.MustCompile(`\n\s*\n+`)
)

// PDFProcessor turns the reference manual into page-scoped passages
type PDFProcessor struct {
	// MinPageChars drops pages whose cleaned text is shorter (cover pages,
	// blank separators)
	MinPageChars int
}

// NewPDFProcessor creates a new PDF processor
func NewPDFProcessor(minPageChars int) *PDFProcessor {
	return &PDFProcessor{MinPageChars: minPageChars}
}

// ExtractPages reads the manual at filePath and returns one passage per
// non-blank page, numbered from 1. Plain-text manuals (.txt) are split on
// form feeds.
func (p *PDFProcessor) ExtractPages(filePath string) ([]models.Page, error) {
	if strings.EqualFold(filepath.Ext(filePath), ".txt") {
		return p.extractTextPages(filePath)
	}

	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var pages []models.Page
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		pages = p.appendPage(pages, i, text)
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no text found in %s", filePath)
	}
	return pages, nil
}

func (p *PDFProcessor) extractTextPages(filePath string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manual: %w", err)
	}

	var pages []models.Page
	for i, text := range strings.Split(string(data), "\f") {
		pages = p.appendPage(pages, i+1, text)
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no text found in %s", filePath)
	}
	return pages, nil
}

func (p *PDFProcessor) appendPage(pages []models.Page, number int, text string) []models.Page {
	text = normalizeWhitespace(text)
	if text == "" || len(text) < p.MinPageChars {
		return pages
	}
	return append(pages, models.Page{Number: number, Text: text})
}

// normalizeWhitespace collapses runs of blanks and keeps paragraph breaks
func normalizeWhitespace(text string) string {
	text = spaceRe.ReplaceAllString(text, " ")
	text = paraSepRe.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
