// Package indexer implements the document indexing pipeline. It turns an
// extracted paper into vector store entries: one embedding per metadata
// facet (title, authors, organizations, emails) plus one embedding per
// overlapping chunk of the full text. The pipeline is invoked after each
// upload and by the `scichat ingest` CLI command.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scichat/scichat-go/internal/chunker"
	"github.com/scichat/scichat-go/internal/extract"
	"github.com/scichat/scichat-go/internal/facet"
	"github.com/scichat/scichat-go/internal/rag"
)

// Fallback texts indexed when extraction produced no value for a facet.
// Indexing the fallback keeps facet queries answerable for every document.
const (
	FallbackTitle         = "Unknown Title"
	FallbackAuthors       = "Unknown Authors"
	FallbackOrganizations = "Unknown Organizations"
	FallbackEmails        = "No email information"
)

// Document is a paper ready for indexing. Metadata fields are flat strings;
// use NewDocument to build one from extraction output with fallbacks applied.
type Document struct {
	ID            string
	Title         string
	Authors       string
	Organizations string
	Emails        string
	FullText      string
}

// NewDocument flattens extraction output into an indexable Document,
// substituting fallback texts for missing metadata.
func NewDocument(id string, res *extract.Result) Document {
	d := Document{
		ID:            id,
		Title:         strings.TrimSpace(res.Title),
		Authors:       strings.Join(res.Authors, ", "),
		Organizations: strings.Join(res.Organizations, ", "),
		Emails:        strings.Join(res.Emails, ", "),
		FullText:      res.FullText,
	}
	if d.Title == "" {
		d.Title = FallbackTitle
	}
	if d.Authors == "" {
		d.Authors = FallbackAuthors
	}
	if d.Organizations == "" {
		d.Organizations = FallbackOrganizations
	}
	if d.Emails == "" {
		d.Emails = FallbackEmails
	}
	return d
}

// facetText returns the document's text for a metadata facet.
func (d Document) facetText(f facet.Facet) string {
	switch f {
	case facet.Title:
		return d.Title
	case facet.Authors:
		return d.Authors
	case facet.Organizations:
		return d.Organizations
	case facet.Emails:
		return d.Emails
	}
	return ""
}

// Config holds the configuration for the indexing pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per full-text chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared between consecutive
	// chunks. Defaults to 200 if zero.
	ChunkOverlap int

	// BatchSize is the number of entries upserted per vector store call.
	// Defaults to 100 if zero.
	BatchSize int

	// Dimensions is the embedding dimensionality, used to build zero-vector
	// placeholders when embedding fails. Defaults to 384 if zero.
	Dimensions int
}

// Result summarizes one indexing run.
type Result struct {
	// Vectors is the total number of entries upserted, metadata included.
	Vectors int

	// Chunks is the number of full-text chunks indexed.
	Chunks int

	// DegradedVectors counts entries stored with a zero-vector placeholder
	// because embedding them failed.
	DegradedVectors int

	// FailedBatches counts batches whose upsert failed. Their entries are
	// missing from the store; the run still succeeds as long as at least
	// one batch was stored.
	FailedBatches int
}

// Indexer orchestrates the chunk → embed → upsert flow for one document.
type Indexer struct {
	embedder rag.Embedder
	store    rag.VectorStore
	cfg      *Config
	log      *slog.Logger
}

// New constructs an Indexer from the provided dependencies and config.
func New(embedder rag.Embedder, store rag.VectorStore, cfg *Config, log *slog.Logger) (*Indexer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("indexer: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("indexer: store must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("indexer: chunk overlap %d must be smaller than chunk size %d: %w",
			cfg.ChunkOverlap, cfg.ChunkSize, chunker.ErrInvalidConfig)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}

	return &Indexer{embedder: embedder, store: store, cfg: cfg, log: log}, nil
}

// Index embeds and stores one document. Every metadata facet is indexed
// under the ID "{docID}_{facet}" and every full-text chunk under
// "{docID}_chunk_{i}", so re-indexing the same document overwrites its
// previous entries instead of duplicating them.
//
// Batches are independent: an embedding failure degrades the affected
// entries to zero vectors, and an upsert failure skips the batch while the
// remaining batches are still attempted. Index returns an error only when
// every batch failed to store.
func (ix *Indexer) Index(ctx context.Context, doc Document) (*Result, error) {
	if strings.TrimSpace(doc.ID) == "" {
		return nil, fmt.Errorf("indexer: document ID must not be empty")
	}

	entries := make([]rag.Entry, 0, len(facet.Metadata))
	for _, f := range facet.Metadata {
		entries = append(entries, rag.Entry{
			ID:         fmt.Sprintf("%s_%s", doc.ID, f),
			DocumentID: doc.ID,
			Facet:      f,
			Text:       doc.facetText(f),
			ChunkIndex: -1,
		})
	}

	chunks, err := chunker.Split(doc.FullText, ix.cfg.ChunkSize, ix.cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("indexer: chunking failed for %s: %w", doc.ID, err)
	}
	for i, chunk := range chunks {
		entries = append(entries, rag.Entry{
			ID:         fmt.Sprintf("%s_chunk_%d", doc.ID, i),
			DocumentID: doc.ID,
			Facet:      facet.Chunk,
			Text:       chunk,
			ChunkIndex: i,
		})
	}

	res := &Result{Chunks: len(chunks)}
	var lastErr error
	for start := 0; start < len(entries); start += ix.cfg.BatchSize {
		end := start + ix.cfg.BatchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		res.DegradedVectors += ix.embedWithFallback(ctx, doc.ID, batch)

		if err := ix.store.Upsert(ctx, batch); err != nil {
			ix.log.Warn("indexer: upsert failed, continuing with remaining batches",
				slog.String("document_id", doc.ID),
				slog.Int("batch_start", start),
				slog.String("error", err.Error()),
			)
			res.FailedBatches++
			lastErr = err
			continue
		}
		res.Vectors += len(batch)
	}
	if res.Vectors == 0 {
		return nil, fmt.Errorf("indexer: all %d upsert batches failed for %s: %w",
			res.FailedBatches, doc.ID, lastErr)
	}

	ix.log.Info("indexer: document indexed",
		slog.String("document_id", doc.ID),
		slog.Int("vectors", res.Vectors),
		slog.Int("chunks", res.Chunks),
		slog.Int("failed_batches", res.FailedBatches),
	)
	return res, nil
}

// embedWithFallback fills in each entry's Vector. When the batched embed
// call fails, every text is retried on its own so one bad text cannot
// degrade its batch mates; entries that still fail get a zero-vector
// placeholder. Returns the number of degraded entries.
func (ix *Indexer) embedWithFallback(ctx context.Context, docID string, batch []rag.Entry) int {
	err := ix.embedBatch(ctx, batch)
	if err == nil {
		return 0
	}
	ix.log.Warn("indexer: batch embedding failed, retrying entries individually",
		slog.String("document_id", docID),
		slog.String("error", err.Error()),
	)

	degraded := 0
	for i := range batch {
		if err := ix.embedBatch(ctx, batch[i:i+1]); err != nil {
			ix.log.Warn("indexer: embedding failed, storing zero vector",
				slog.String("entry_id", batch[i].ID),
				slog.String("error", err.Error()),
			)
			batch[i].Vector = make([]float32, ix.cfg.Dimensions)
			degraded++
		}
	}
	return degraded
}

// embedBatch fills in the Vector field of each entry in place.
func (ix *Indexer) embedBatch(ctx context.Context, batch []rag.Entry) error {
	texts := make([]string, len(batch))
	for i, e := range batch {
		texts[i] = e.Text
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
	}
	for i := range batch {
		batch[i].Vector = vectors[i]
	}
	return nil
}
