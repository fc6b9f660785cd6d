package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scichat/scichat-go/internal/answer"
	"github.com/scichat/scichat-go/internal/extract"
	"github.com/scichat/scichat-go/internal/indexer"
	"github.com/scichat/scichat-go/internal/logging"
	"github.com/scichat/scichat-go/internal/rag"
)

// handleUpload handles POST /upload. It accepts a multipart form with a
// "file" field containing a PDF, extracts its text and metadata, registers
// the upload in the catalog, and enqueues the document for background
// indexing. The response carries the extracted metadata immediately — the
// paper becomes searchable once the queue has processed it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.metrics.uploadsTotal.WithLabelValues("rejected").Inc()
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		s.metrics.uploadsTotal.WithLabelValues("rejected").Inc()
		http.Error(w, "Only PDF files are supported", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.metrics.uploadsTotal.WithLabelValues("error").Inc()
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	res, err := s.extractor.Extract(data)
	if err != nil {
		if errors.Is(err, extract.ErrNotPDF) {
			s.metrics.uploadsTotal.WithLabelValues("rejected").Inc()
			http.Error(w, "Only PDF files are supported", http.StatusBadRequest)
			return
		}
		log.Error("PDF extraction failed",
			slog.String("filename", header.Filename),
			slog.Any("error", err),
		)
		s.metrics.uploadsTotal.WithLabelValues("error").Inc()
		http.Error(w, "failed to process PDF", http.StatusInternalServerError)
		return
	}

	docID := uuid.NewString()
	doc := indexer.NewDocument(docID, res)

	if s.cfg.UploadDir != "" {
		if err := s.saveUpload(docID, data); err != nil {
			// The document still gets indexed; only the raw copy is lost.
			log.Warn("failed to persist uploaded PDF", slog.Any("error", err))
		}
	}

	if s.catalog != nil {
		if err := s.catalog.Record(r.Context(), docID, header.Filename, doc.Title); err != nil {
			log.Warn("failed to record upload in catalog", slog.Any("error", err))
		}
	}

	if !s.queue.Enqueue(doc) {
		s.metrics.uploadsTotal.WithLabelValues("queue_full").Inc()
		http.Error(w, "indexing queue is full, retry later", http.StatusServiceUnavailable)
		return
	}

	log.Info("upload accepted",
		slog.String("document_id", docID),
		slog.String("filename", header.Filename),
		slog.String("title", doc.Title),
		slog.Duration("extract_duration", time.Since(start)),
	)
	s.metrics.uploadsTotal.WithLabelValues("accepted").Inc()

	s.writeJSON(w, http.StatusOK, documentResponse{
		ID:            docID,
		Title:         doc.Title,
		Authors:       doc.Authors,
		Organizations: doc.Organizations,
		Emails:        doc.Emails,
	})
}

// saveUpload writes the raw PDF bytes under the configured upload directory,
// keyed by document ID.
func (s *Server) saveUpload(docID string, data []byte) error {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.cfg.UploadDir, docID+".pdf"), data, 0o644)
}

// handleAsk handles POST /ask. Questions run against the vector index and
// the LLM; an unreachable index maps to 503 so clients can distinguish
// "no index yet" from a hard failure.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	resp, err := s.asker.Ask(r.Context(), &answer.Request{
		Question:       req.Question,
		ConversationID: req.ConversationID,
		MetadataOnly:   req.MetadataOnly,
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, rag.ErrUnavailable) {
			outcome = "unavailable"
			http.Error(w, "Search index not available", http.StatusServiceUnavailable)
		} else {
			http.Error(w, "failed to answer question", http.StatusInternalServerError)
		}
		log.Error("ask failed", slog.String("outcome", outcome), slog.Any("error", err))
		s.observeAsk(outcome, start)
		return
	}

	s.observeAsk("ok", start)
	s.writeJSON(w, http.StatusOK, askResponse{
		Answer:         resp.Answer,
		ConversationID: resp.ConversationID,
	})
}

// observeAsk records one ask request's outcome and latency.
func (s *Server) observeAsk(outcome string, start time.Time) {
	s.metrics.askTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// handleDocuments handles GET /documents. The listing is derived from the
// vector index; when the index is unreachable the endpoint degrades to an
// empty list rather than an error, so the dashboard always renders.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	metas, err := s.docs.Documents(r.Context())
	if err != nil {
		log := logging.FromContext(r.Context())
		log.Warn("document listing failed", slog.Any("error", err))
		metas = nil
	}

	resp := make([]documentResponse, 0, len(metas))
	for _, m := range metas {
		resp = append(resp, documentResponse{
			ID:            m.ID,
			Title:         m.Title,
			Authors:       m.Authors,
			Organizations: m.Organizations,
			Emails:        m.Emails,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleUploads handles GET /uploads, returning the catalog's upload records
// newest first, including indexing status.
func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.writeJSON(w, http.StatusOK, []uploadResponse{})
		return
	}

	ups, err := s.catalog.List(r.Context())
	if err != nil {
		log := logging.FromContext(r.Context())
		log.Error("upload listing failed", slog.Any("error", err))
		http.Error(w, "failed to list uploads", http.StatusInternalServerError)
		return
	}

	resp := make([]uploadResponse, 0, len(ups))
	for _, u := range ups {
		resp = append(resp, uploadResponse{
			ID:        u.ID,
			Filename:  u.Filename,
			Title:     u.Title,
			Status:    string(u.Status),
			Error:     u.Error,
			CreatedAt: u.CreatedAt,
			UpdatedAt: u.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleClearConversation handles DELETE /conversations/{id}. Clearing an
// unknown conversation is a no-op so the operation is idempotent.
func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.conversations.Clear(id)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":          "success",
		"conversation_id": id,
	})
}
