package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/scichat/scichat-go/internal/extract"
	"github.com/scichat/scichat-go/internal/indexer"
	"github.com/scichat/scichat-go/internal/logging"
)

// NewIngestCmd constructs the `scichat ingest` command, which extracts and
// indexes local PDF files into the vector store without going through the
// HTTP server.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file.pdf ...]",
		Short: "Extract and index local PDF papers into the vector store",
		Long: `Extract metadata and full text from local PDF files and index them into
the Qdrant vector store, exactly as an HTTP upload would.

Indexing runs synchronously; the command exits once every paper is
searchable. Re-ingesting a file under the same document ID overwrites its
previous vectors.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: document-embeddings)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  scichat ingest attention.pdf
  scichat ingest papers/*.pdf
  EMBEDDING_PROVIDER=openai scichat ingest paper.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			store, err := buildStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer store.Close()

			ix, err := indexer.New(emb, store, &indexer.Config{
				ChunkSize:    getEnvInt("CHUNK_SIZE", 0),
				ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 0),
			}, log)
			if err != nil {
				return fmt.Errorf("ingest: failed to create indexer: %w", err)
			}

			extractor := extract.NewPDF()

			for _, path := range args {
				if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
					return fmt.Errorf("ingest: %s: only PDF files are supported", path)
				}

				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: failed to read %s: %w", path, err)
				}

				res, err := extractor.Extract(data)
				if err != nil {
					return fmt.Errorf("ingest: failed to extract %s: %w", path, err)
				}

				doc := indexer.NewDocument(uuid.NewString(), res)

				result, err := ix.Index(ctx, doc)
				if err != nil {
					return fmt.Errorf("ingest: failed to index %s: %w", path, err)
				}

				log.Info("paper indexed",
					slog.String("file", filepath.Base(path)),
					slog.String("document_id", doc.ID),
					slog.String("title", doc.Title),
					slog.Int("vectors", result.Vectors),
					slog.Int("chunks", result.Chunks),
				)
				fmt.Printf("indexed %s (%s): %d vectors\n", filepath.Base(path), doc.ID, result.Vectors)
			}

			return nil
		},
	}

	return cmd
}
