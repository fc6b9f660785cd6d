package rag

import (
	"context"
	"fmt"

	"github.com/scichat/scichat-go/internal/facet"
)

// StoreRetriever implements the Retriever interface by delegating the
// facet-filtered similarity search to a VectorStore. It exists so the answer
// engine depends on the narrow Retrieve operation rather than the full store
// surface, and so tests can substitute either side independently.
type StoreRetriever struct {
	// store performs the vector similarity search.
	store VectorStore

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a StoreRetriever over the given VectorStore.
// defaultTopK sets the fallback result count when Retrieve is called with topK=0.
func NewRetriever(store VectorStore, defaultTopK int) (*StoreRetriever, error) {
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 10
	}
	return &StoreRetriever{store: store, defaultTopK: defaultTopK}, nil
}

// Retrieve returns the top-k matches for the query vector, restricted to the
// given facet when non-empty. If topK is 0 the configured default is used.
func (r *StoreRetriever) Retrieve(ctx context.Context, vector []float32, f facet.Facet, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	matches, err := r.store.Query(ctx, vector, f, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	return matches, nil
}
