package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scichat/scichat-go/internal/answer"
	"github.com/scichat/scichat-go/internal/catalog"
	"github.com/scichat/scichat-go/internal/convo"
	"github.com/scichat/scichat-go/internal/extract"
	"github.com/scichat/scichat-go/internal/indexer"
	"github.com/scichat/scichat-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// UploadDir, if set, is the directory where raw uploaded PDFs are kept.
	// If empty, uploads are indexed but the original bytes are discarded.
	UploadDir string
	// StaticDir is the directory serving the web dashboard at "/".
	// Defaults to "web/static".
	StaticDir string
	// MaxUploadBytes caps the size of an uploaded PDF. Defaults to 32 MiB.
	MaxUploadBytes int64
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil, a private registry is created.
	Registry *prometheus.Registry
}

// asker is the interface handleAsk calls to answer a question.
// *answer.Engine satisfies it; tests inject a fake.
type asker interface {
	Ask(ctx context.Context, req *answer.Request) (*answer.Response, error)
}

// enqueuer schedules a document for background indexing.
// *indexer.Queue satisfies it; tests inject a fake.
type enqueuer interface {
	// Enqueue reports false when the queue is full or closed.
	Enqueue(doc indexer.Document) bool
}

// docLister derives the list of indexed papers from the vector index.
// Any rag.VectorStore satisfies it.
type docLister interface {
	Documents(ctx context.Context) ([]rag.DocumentMeta, error)
}

// uploadCatalog records uploads and reports their indexing status.
// *catalog.Catalog satisfies it; tests inject a fake.
type uploadCatalog interface {
	Record(ctx context.Context, id, filename, title string) error
	List(ctx context.Context) ([]catalog.Upload, error)
}

// Server is the HTTP server that exposes the paper upload, retrieval, and
// question answering API.
type Server struct {
	// asker answers questions over the indexed corpus.
	asker asker
	// queue accepts documents for background indexing.
	queue enqueuer
	// docs lists the papers currently in the vector index.
	docs docLister
	// catalog persists upload records for GET /uploads.
	catalog uploadCatalog
	// conversations holds multi-turn chat history.
	conversations *convo.Store
	// extractor parses uploaded PDFs into text and metadata.
	extractor extract.Extractor
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments exported at GET /metrics.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// ConversationID continues an existing conversation when set.
	// When empty the server starts a new conversation and returns its ID.
	ConversationID string `json:"conversation_id,omitempty"`
	// MetadataOnly restricts retrieval to the metadata facet matching the
	// question (title, authors, organizations, emails).
	MetadataOnly bool `json:"metadata_only,omitempty"`
}

// askResponse is the JSON response for POST /ask.
type askResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// ConversationID identifies the conversation for follow-up questions.
	ConversationID string `json:"conversation_id"`
}

// documentResponse is the JSON shape of one paper's metadata, returned by
// POST /upload and as the elements of GET /documents.
type documentResponse struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Authors       string `json:"authors"`
	Organizations string `json:"organizations"`
	Emails        string `json:"emails"`
}

// uploadResponse is one element of the GET /uploads listing.
type uploadResponse struct {
	// ID is the document ID assigned at upload time.
	ID string `json:"id"`
	// Filename is the original name of the uploaded file.
	Filename string `json:"filename"`
	// Title is the extracted paper title.
	Title string `json:"title"`
	// Status is "pending", "indexed", or "failed".
	Status string `json:"status"`
	// Error is the failure reason when Status is "failed".
	Error string `json:"error,omitempty"`
	// CreatedAt is when the upload was registered.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time `json:"updated_at"`
}
