// Package rag defines the interfaces for the retrieval side of the paper
// question-answering pipeline: vector storage, embedding, and facet-aware
// retrieval. Concrete implementations (Qdrant, the in-memory store) satisfy
// these interfaces so the answer engine and indexer never depend on a
// specific backend.
package rag

import (
	"context"
	"errors"

	"github.com/scichat/scichat-go/internal/facet"
)

// ErrUnavailable indicates the vector index could not be reached. Callers
// map it to a 503 for /ask and to an empty list for /documents.
var ErrUnavailable = errors.New("rag: vector index unavailable")

// Entry is one vector to be stored, keyed deterministically by the document
// it came from and the facet it represents.
type Entry struct {
	// ID is the logical vector key, derived from the document id and facet
	// (for example "d42_title" or "d42_chunk_3"). Re-indexing the same
	// document produces the same IDs, so upserts overwrite in place.
	ID string

	// Vector is the embedding for Text.
	Vector []float32

	// DocumentID identifies the source paper.
	DocumentID string

	// Facet is the metadata category this vector represents, or facet.Chunk
	// for a full-text window.
	Facet facet.Facet

	// Text is the raw text the vector was computed from. Stored alongside
	// the vector so retrieval can return the passage directly.
	Text string

	// ChunkIndex is the position of this window within the document's full
	// text. Only meaningful when Facet is facet.Chunk.
	ChunkIndex int
}

// Match is one retrieval result: a stored entry plus its similarity score.
type Match struct {
	// ID is the logical vector key of the stored entry.
	ID string
	// DocumentID identifies the source paper.
	DocumentID string
	// Facet is the metadata category of the matched entry.
	Facet facet.Facet
	// Text is the stored passage or metadata value.
	Text string
	// ChunkIndex is the chunk position for chunk-facet matches.
	ChunkIndex int
	// Score is the cosine similarity assigned by the index.
	Score float32
}

// DocumentMeta is the per-paper metadata view derived from indexed entries,
// backing GET /documents.
type DocumentMeta struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Authors       string `json:"authors"`
	Organizations string `json:"organizations"`
	Emails        string `json:"emails"`
}

// VectorStore is the interface for persisting and searching paper embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or overwrites the given entries, keyed by Entry.ID.
	Upsert(ctx context.Context, entries []Entry) error

	// Query returns up to topK entries ranked by descending similarity to
	// vector. A non-empty facet restricts results to entries with that
	// facet; an empty facet searches the whole index.
	Query(ctx context.Context, vector []float32, f facet.Facet, topK int) ([]Match, error)

	// Documents derives the list of known papers and their metadata from
	// the indexed entries.
	Documents(ctx context.Context) ([]DocumentMeta, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever produces the candidate passages for a question embedding,
// optionally restricted to one facet.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k matches for the given query vector. An
	// empty facet searches unfiltered.
	Retrieve(ctx context.Context, vector []float32, f facet.Facet, topK int) ([]Match, error)
}
