// Package facet implements the keyword-based question classifier that routes
// a free-text question to one of the metadata facets a paper is indexed
// under, or to the general content chunks when no facet keyword matches.
// The classifier is a deliberate design choice over a learned model: the
// keyword sets and their priority order are fixed so behaviour is fully
// enumerable in tests.
package facet

import "strings"

// Facet is a named metadata category used to scope similarity search.
type Facet string

const (
	// Title scopes search to paper title vectors.
	Title Facet = "title"
	// Authors scopes search to author list vectors.
	Authors Facet = "authors"
	// Organizations scopes search to organization/affiliation vectors.
	Organizations Facet = "organizations"
	// Emails scopes search to contact email vectors.
	Emails Facet = "emails"
	// Chunk is the general-content facet covering full-text chunks.
	Chunk Facet = "chunk"
)

// Metadata lists the four metadata facets in classification priority order.
// Chunk is excluded — it is the fallback, not a metadata field.
var Metadata = []Facet{Title, Authors, Organizations, Emails}

// keywords maps each metadata facet to the phrases that select it. Matching
// is case-insensitive substring containment, so multi-word phrases like
// "who wrote" match anywhere in the question.
var keywords = map[Facet][]string{
	Title:         {"title", "called", "named"},
	Authors:       {"author", "who wrote", "researcher", "scientist"},
	Organizations: {"organization", "university", "institute", "lab", "where", "affiliation"},
	Emails:        {"email", "contact", "reach out"},
}

// Classify maps a question to the facet its keywords select. Facets are
// tested in the fixed priority order title > authors > organizations >
// emails; the first facet with a matching keyword wins, so a question
// containing both "author" and "university" classifies as Authors. Questions
// matching no keyword classify as Chunk (general content). Classify is total:
// it never fails, for any input.
func Classify(question string) Facet {
	q := strings.ToLower(question)
	for _, f := range Metadata {
		for _, kw := range keywords[f] {
			if strings.Contains(q, kw) {
				return f
			}
		}
	}
	return Chunk
}

// Valid reports whether s names one of the five defined facets.
func Valid(s string) bool {
	switch Facet(s) {
	case Title, Authors, Organizations, Emails, Chunk:
		return true
	}
	return false
}
