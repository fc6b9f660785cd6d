package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/scichat/scichat-go/internal/facet"
)

// seedStore populates a MemoryStore with one entry per facet for document "d1".
func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	entries := []Entry{
		{ID: "d1_title", DocumentID: "d1", Facet: facet.Title, Text: "Attention Is All You Need", Vector: []float32{1, 0, 0}},
		{ID: "d1_authors", DocumentID: "d1", Facet: facet.Authors, Text: "Vaswani et al.", Vector: []float32{0, 1, 0}},
		{ID: "d1_organizations", DocumentID: "d1", Facet: facet.Organizations, Text: "Google Brain", Vector: []float32{0, 0, 1}},
		{ID: "d1_emails", DocumentID: "d1", Facet: facet.Emails, Text: "avaswani@google.com", Vector: []float32{1, 1, 0}},
		{ID: "d1_chunk_0", DocumentID: "d1", Facet: facet.Chunk, Text: "The dominant sequence transduction models...", ChunkIndex: 0, Vector: []float32{1, 0, 1}},
	}
	if err := s.Upsert(context.Background(), entries); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return s
}

func TestMemoryStore_FacetFilteredQuery(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	matches, err := s.Query(context.Background(), []float32{1, 1, 1}, facet.Authors, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Facet != facet.Authors {
		t.Errorf("match facet = %q, want %q", matches[0].Facet, facet.Authors)
	}
	if matches[0].Text != "Vaswani et al." {
		t.Errorf("match text = %q", matches[0].Text)
	}
}

func TestMemoryStore_UnfilteredQueryRanksByScore(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	matches, err := s.Query(context.Background(), []float32{1, 0, 0}, "", 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ID != "d1_title" {
		t.Errorf("top match = %q, want d1_title", matches[0].ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("matches not in descending score order: %v then %v", matches[0].Score, matches[1].Score)
	}
}

func TestMemoryStore_IdempotentUpsert(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	before := s.Len()

	// Re-upsert the same keys with changed text — size must not grow.
	err := s.Upsert(context.Background(), []Entry{
		{ID: "d1_title", DocumentID: "d1", Facet: facet.Title, Text: "Attention Is All You Need", Vector: []float32{1, 0, 0}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if s.Len() != before {
		t.Errorf("store size changed after re-upsert: %d -> %d", before, s.Len())
	}
}

func TestMemoryStore_Documents(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	docs, err := s.Documents(context.Background())
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	d := docs[0]
	if d.ID != "d1" || d.Title != "Attention Is All You Need" || d.Authors != "Vaswani et al." {
		t.Errorf("unexpected document metadata: %+v", d)
	}
	if d.Organizations != "Google Brain" || d.Emails != "avaswani@google.com" {
		t.Errorf("unexpected document metadata: %+v", d)
	}
}

func TestMemoryStore_Unavailable(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	s.SetUnavailable(true)

	if _, err := s.Query(context.Background(), []float32{1, 0, 0}, "", 5); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Query error = %v, want ErrUnavailable", err)
	}
	if _, err := s.Documents(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Documents error = %v, want ErrUnavailable", err)
	}
}

func TestRetriever_DelegatesFacetFilter(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	r, err := NewRetriever(s, 10)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	matches, err := r.Retrieve(context.Background(), []float32{1, 1, 1}, facet.Emails, 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(matches) != 1 || matches[0].Facet != facet.Emails {
		t.Errorf("expected the single emails entry, got %+v", matches)
	}
}

func TestRetriever_UnavailableStorePropagates(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.SetUnavailable(true)
	r, err := NewRetriever(s, 10)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), []float32{1}, "", 5); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Retrieve error = %v, want ErrUnavailable", err)
	}
}

func TestNewRetriever_NilStore(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil, 5); err == nil {
		t.Error("expected error for nil store")
	}
}
