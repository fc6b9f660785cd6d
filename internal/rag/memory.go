package rag

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/scichat/scichat-go/internal/facet"
)

// MemoryStore is an in-memory VectorStore using brute-force cosine
// similarity. It backs unit tests and index-free development runs; the
// production store is Qdrant.
type MemoryStore struct {
	// mu guards entries and order.
	mu sync.RWMutex
	// entries maps logical vector key to the stored entry.
	entries map[string]Entry
	// order preserves insertion order of keys for stable listings.
	order []string
	// unavailable simulates an unreachable index when set.
	unavailable bool
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// SetUnavailable toggles simulated index unavailability. While set, Query and
// Documents return ErrUnavailable.
func (s *MemoryStore) SetUnavailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = v
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Upsert stores or overwrites entries keyed by Entry.ID.
func (s *MemoryStore) Upsert(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return ErrUnavailable
	}
	for _, e := range entries {
		if _, exists := s.entries[e.ID]; !exists {
			s.order = append(s.order, e.ID)
		}
		s.entries[e.ID] = e
	}
	return nil
}

// Query ranks all stored entries by cosine similarity to vector, restricted
// to entries with the given facet when non-empty, and returns the top-k.
func (s *MemoryStore) Query(_ context.Context, vector []float32, f facet.Facet, topK int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return nil, ErrUnavailable
	}

	matches := make([]Match, 0, len(s.entries))
	for _, key := range s.order {
		e := s.entries[key]
		if f != "" && e.Facet != f {
			continue
		}
		matches = append(matches, Match{
			ID:         e.ID,
			DocumentID: e.DocumentID,
			Facet:      e.Facet,
			Text:       e.Text,
			ChunkIndex: e.ChunkIndex,
			Score:      cosine(vector, e.Vector),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Documents derives the per-paper metadata list from the stored metadata
// entries, in first-seen order.
func (s *MemoryStore) Documents(_ context.Context) ([]DocumentMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return nil, ErrUnavailable
	}

	byDoc := make(map[string]*DocumentMeta)
	var docOrder []string
	for _, key := range s.order {
		e := s.entries[key]
		if e.Facet == facet.Chunk || e.DocumentID == "" {
			continue
		}
		meta, ok := byDoc[e.DocumentID]
		if !ok {
			meta = &DocumentMeta{ID: e.DocumentID}
			byDoc[e.DocumentID] = meta
			docOrder = append(docOrder, e.DocumentID)
		}
		switch e.Facet {
		case facet.Title:
			meta.Title = e.Text
		case facet.Authors:
			meta.Authors = e.Text
		case facet.Organizations:
			meta.Organizations = e.Text
		case facet.Emails:
			meta.Emails = e.Text
		}
	}

	docs := make([]DocumentMeta, 0, len(docOrder))
	for _, id := range docOrder {
		docs = append(docs, *byDoc[id])
	}
	return docs, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// cosine returns the cosine similarity of a and b, or 0 when either vector
// has zero magnitude.
func cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
