// Package extract parses uploaded papers and pulls out the metadata the
// retrieval layer indexes: title, authors, organizations, and contact emails,
// plus the full text for chunking.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned when the uploaded bytes are not a PDF document.
var ErrNotPDF = errors.New("extract: not a PDF document")

// Metadata is the structured information pulled from a paper's first page.
type Metadata struct {
	Title         string
	Authors       []string
	Organizations []string
	Emails        []string
}

// Result carries the extracted metadata plus the document's full text.
type Result struct {
	Metadata
	FullText string
}

// Extractor turns raw document bytes into a Result.
type Extractor interface {
	Extract(data []byte) (*Result, error)
}

// PDFExtractor extracts text and metadata from PDF files. The heuristics are
// tuned for scientific papers: the first line is the title, author names and
// affiliations sit in the header block above the abstract, and emails appear
// as plain tokens anywhere in the text.
type PDFExtractor struct{}

// NewPDF returns a PDF extractor.
func NewPDF() *PDFExtractor { return &PDFExtractor{} }

// headerLines bounds how far past the title we scan for authors and
// affiliations. Paper headers rarely run longer than a handful of lines.
const headerLines = 5

var (
	// Two capitalized words, optionally followed by footnote markers
	// ("Jane Doe", "Jane Doe1", "Jane Doe*2").
	namePattern = regexp.MustCompile(`\b([A-Z][a-z]+ [A-Z][a-z]+)(?:\d+|\*\d*|\d+\+)?\b`)

	// A run of capitalized words — affiliation candidates are filtered
	// further by institutionKeywords below.
	orgPattern = regexp.MustCompile(`\b([A-Z][a-zA-Z]*(?: (?:[A-Z][a-zA-Z]*|of|for|and))* [A-Z][a-zA-Z]*)\b`)
)

// institutionKeywords mark a capitalized phrase as an affiliation rather
// than a person's name.
var institutionKeywords = []string{
	"university",
	"institute",
	"laboratory",
	"college",
	"school",
	"department",
	"center",
	"centre",
	"research",
	"corporation",
	"academy",
}

// IsPDF reports whether the data begins with the PDF magic bytes.
func IsPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

// Extract parses the PDF and returns its metadata and full text. It returns
// ErrNotPDF when the bytes are not a PDF.
func (e *PDFExtractor) Extract(data []byte) (*Result, error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("extract: pdf reader: %w", err)
	}

	full, err := plainText(r)
	if err != nil {
		return nil, fmt.Errorf("extract: pdf plaintext: %w", err)
	}

	lines := firstPageLines(r, full)

	res := &Result{FullText: full}
	res.Metadata = FromText(lines, full)
	return res, nil
}

// FromText derives metadata from first-page lines and the full text. Split
// out from Extract so the heuristics are testable without a real PDF.
func FromText(lines []string, full string) Metadata {
	var m Metadata
	if len(lines) > 0 {
		m.Title = strings.TrimSpace(lines[0])
	}
	m.Emails = extractEmails(full)
	m.Authors, m.Organizations = extractHeader(lines)
	return m
}

// plainText returns the whole document's text with whitespace collapsed.
func plainText(r *pdf.Reader) (string, error) {
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return collapseWhitespace(string(b)), nil
}

// firstPageLines returns the text rows of page one. When row extraction
// fails it falls back to splitting the full text, which loses layout but
// still lets the title heuristic work.
func firstPageLines(r *pdf.Reader, full string) []string {
	if r.NumPage() >= 1 {
		page := r.Page(1)
		if !page.V.IsNull() {
			if rows, err := page.GetTextByRow(); err == nil && len(rows) > 0 {
				lines := make([]string, 0, len(rows))
				for _, row := range rows {
					var sb strings.Builder
					for _, word := range row.Content {
						sb.WriteString(word.S)
					}
					if s := strings.TrimSpace(sb.String()); s != "" {
						lines = append(lines, s)
					}
				}
				return lines
			}
		}
	}
	return strings.Split(full, "\n")
}

// extractEmails collects tokens that look like email addresses, deduplicated
// in first-seen order.
func extractEmails(text string) []string {
	var emails []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(text) {
		if !strings.Contains(word, "@") || !strings.Contains(word, ".") {
			continue
		}
		word = strings.Trim(word, ".,;:()[]{}<>")
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true
		emails = append(emails, word)
	}
	return emails
}

// extractHeader scans the lines between the title and the abstract for
// author names and affiliations. Phrases containing an institution keyword
// are classified as organizations; the remainder of the name matches are
// authors. Both lists are deduplicated in first-seen order.
func extractHeader(lines []string) (authors, organizations []string) {
	seenAuthor := make(map[string]bool)
	seenOrg := make(map[string]bool)

	end := len(lines)
	if end > headerLines+1 {
		end = headerLines + 1
	}
	for _, line := range lines[min(1, len(lines)):end] {
		if strings.Contains(line, "Abstract") {
			break
		}
		for _, match := range namePattern.FindAllStringSubmatch(line, -1) {
			name := match[1]
			if isInstitution(name) || seenAuthor[name] {
				continue
			}
			seenAuthor[name] = true
			authors = append(authors, name)
		}
		for _, match := range orgPattern.FindAllStringSubmatch(line, -1) {
			phrase := match[1]
			if !isInstitution(phrase) || seenAuthor[phrase] || seenOrg[phrase] {
				continue
			}
			seenOrg[phrase] = true
			organizations = append(organizations, phrase)
		}
	}
	return authors, organizations
}

func isInstitution(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range institutionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	var sb strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !lastSpace {
				sb.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		sb.WriteRune(r)
	}
	return strings.TrimSpace(sb.String())
}
