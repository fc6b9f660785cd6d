package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/scichat/scichat-go/internal/answer"
	"github.com/scichat/scichat-go/internal/catalog"
	"github.com/scichat/scichat-go/internal/convo"
	"github.com/scichat/scichat-go/internal/indexer"
	"github.com/scichat/scichat-go/internal/logging"
	"github.com/scichat/scichat-go/internal/provider"
	"github.com/scichat/scichat-go/internal/rag"
	"github.com/scichat/scichat-go/internal/server"
	"github.com/scichat/scichat-go/internal/tracing"
)

// NewServeCmd constructs the `scichat serve` command, which starts the HTTP
// server and serves the web dashboard.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the SciChat HTTP server and web dashboard",
		Long: `Start the SciChat HTTP server on localhost.

The server exposes a REST API for uploading papers, listing indexed
documents, and conversational question answering, and serves the web
dashboard for interactive use.

Examples:
  scichat serve
  scichat serve --port 9090
  MODEL_PROVIDER=azure scichat serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			providerCfg, err := provider.ConfigFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			store, err := buildStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer store.Close()

			// Open the upload catalog. SCICHAT_UPLOADS_DB overrides the
			// default path (~/.scichat/uploads.db). Set to "disabled" to
			// run without upload records.
			var cat *catalog.Catalog
			dbPath := os.Getenv("SCICHAT_UPLOADS_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = catalog.DefaultDBPath()
					if err != nil {
						log.Warn("catalog: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					c, catErr := catalog.Open(dbPath)
					if catErr != nil {
						log.Warn("catalog: failed to open, disabling", slog.Any("error", catErr))
					} else {
						cat = c
						defer func() { _ = c.Close() }()
						log.Info("catalog: opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("catalog: disabled via SCICHAT_UPLOADS_DB=disabled")
			}

			ix, err := indexer.New(emb, store, &indexer.Config{
				ChunkSize:    getEnvInt("CHUNK_SIZE", 0),
				ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 0),
			}, log)
			if err != nil {
				return fmt.Errorf("serve: failed to create indexer: %w", err)
			}

			var recorder indexer.StatusRecorder
			if cat != nil {
				recorder = cat
			}
			queue, err := indexer.NewQueue(ix, recorder, nil, log)
			if err != nil {
				return fmt.Errorf("serve: failed to create indexing queue: %w", err)
			}
			defer queue.Close()

			retriever, err := rag.NewRetriever(store, 0)
			if err != nil {
				return fmt.Errorf("serve: failed to create retriever: %w", err)
			}

			conversations := convo.NewStore()

			engine, err := answer.New(&answer.Config{
				ChatModel:     chatModel,
				Embedder:      emb,
				Retriever:     retriever,
				Conversations: conversations,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create answer engine: %w", err)
			}

			pingers := []server.Pinger{
				server.NewEmbedderPinger(emb, getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))),
				server.NewQdrantPinger(store.Client()),
			}
			if cat != nil {
				pingers = append(pingers, server.NewCatalogPinger(cat))
			}

			srv, err := server.New(engine, queue, store, cat, conversations, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				APIKey:    os.Getenv("SCICHAT_API_KEY"),
				UploadDir: os.Getenv("SCICHAT_UPLOAD_DIR"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
