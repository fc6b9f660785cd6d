package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scichat/scichat-go/internal/answer"
	"github.com/scichat/scichat-go/internal/catalog"
	"github.com/scichat/scichat-go/internal/convo"
	"github.com/scichat/scichat-go/internal/extract"
	"github.com/scichat/scichat-go/internal/indexer"
	"github.com/scichat/scichat-go/internal/rag"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// newTestServer builds a minimal *Server with a private metrics registry.
// Individual tests attach the fakes they need.
func newTestServer() *Server {
	return &Server{
		cfg:           &Config{MaxUploadBytes: defaultMaxUploadBytes},
		log:           slog.New(slog.DiscardHandler),
		conversations: convo.NewStore(),
		extractor:     extract.NewPDF(),
		metrics:       newServerMetrics(prometheus.NewRegistry()),
	}
}

// fakeAsker is a test double for the asker interface.
type fakeAsker struct {
	// resp and err are returned by Ask.
	resp *answer.Response
	err  error
	// lastReq records the most recent Ask request.
	lastReq *answer.Request
}

func (f *fakeAsker) Ask(_ context.Context, req *answer.Request) (*answer.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// fakeQueue is a test double for the enqueuer interface.
type fakeQueue struct {
	// accept is returned by Enqueue.
	accept bool
	// docs records every enqueued document.
	docs []indexer.Document
}

func (f *fakeQueue) Enqueue(doc indexer.Document) bool {
	if !f.accept {
		return false
	}
	f.docs = append(f.docs, doc)
	return true
}

// fakeCatalog is a test double for the uploadCatalog interface.
type fakeCatalog struct {
	recorded []string
	uploads  []catalog.Upload
	listErr  error
}

func (f *fakeCatalog) Record(_ context.Context, id, _, _ string) error {
	f.recorded = append(f.recorded, id)
	return nil
}

func (f *fakeCatalog) List(_ context.Context) ([]catalog.Upload, error) {
	return f.uploads, f.listErr
}

// fakeExtractor is a test double for extract.Extractor.
type fakeExtractor struct {
	res *extract.Result
	err error
}

func (f *fakeExtractor) Extract(_ []byte) (*extract.Result, error) {
	return f.res, f.err
}

// multipartBody builds a multipart/form-data body with a single "file" field.
func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// ---------------------------------------------------------------------------
// POST /upload
// ---------------------------------------------------------------------------

// TestHandleUpload_RejectsNonPDFExtension verifies that a filename without a
// .pdf extension is rejected with 400 before the body is parsed.
func TestHandleUpload_RejectsNonPDFExtension(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.queue = &fakeQueue{accept: true}

	body, ct := multipartBody(t, "paper.docx", []byte("not a pdf"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()

	s.handleUpload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Only PDF files are supported") {
		t.Errorf("unexpected error body: %q", w.Body.String())
	}
}

// TestHandleUpload_RejectsNonPDFContent verifies that a .pdf filename whose
// bytes are not a PDF is rejected with 400.
func TestHandleUpload_RejectsNonPDFContent(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.queue = &fakeQueue{accept: true}

	body, ct := multipartBody(t, "paper.pdf", []byte("plain text, wrong magic"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()

	s.handleUpload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d — body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Only PDF files are supported") {
		t.Errorf("unexpected error body: %q", w.Body.String())
	}
}

// TestHandleUpload_MissingFileField verifies that a multipart form without a
// "file" field receives 400.
func TestHandleUpload_MissingFileField(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.queue = &fakeQueue{accept: true}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("other", "value")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	s.handleUpload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// TestHandleUpload_AcceptsAndEnqueues verifies the happy path: metadata is
// extracted, the upload is recorded, the document is enqueued, and the
// response carries the extracted metadata with a fresh document ID.
func TestHandleUpload_AcceptsAndEnqueues(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{accept: true}
	cat := &fakeCatalog{}

	s := newTestServer()
	s.queue = queue
	s.catalog = cat
	s.extractor = &fakeExtractor{res: &extract.Result{
		Metadata: extract.Metadata{
			Title:         "Attention Is All You Need",
			Authors:       []string{"Ashish Vaswani", "Noam Shazeer"},
			Organizations: []string{"Google Brain"},
			Emails:        []string{"avaswani@google.com"},
		},
		FullText: "Attention Is All You Need. The dominant sequence models...",
	}}

	body, ct := multipartBody(t, "attention.pdf", []byte("%PDF-1.4 stub"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()

	s.handleUpload(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp documentResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" {
		t.Error("expected a non-empty document ID")
	}
	if resp.Title != "Attention Is All You Need" {
		t.Errorf("title: got %q", resp.Title)
	}
	if resp.Authors != "Ashish Vaswani, Noam Shazeer" {
		t.Errorf("authors: got %q", resp.Authors)
	}

	if len(queue.docs) != 1 {
		t.Fatalf("expected 1 enqueued document, got %d", len(queue.docs))
	}
	if queue.docs[0].ID != resp.ID {
		t.Errorf("enqueued ID %q does not match response ID %q", queue.docs[0].ID, resp.ID)
	}
	if len(cat.recorded) != 1 || cat.recorded[0] != resp.ID {
		t.Errorf("expected catalog record for %q, got %v", resp.ID, cat.recorded)
	}
}

// TestHandleUpload_QueueFull verifies that a full indexing queue maps to 503.
func TestHandleUpload_QueueFull(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.queue = &fakeQueue{accept: false}
	s.extractor = &fakeExtractor{res: &extract.Result{
		Metadata: extract.Metadata{Title: "Paper"},
		FullText: "text",
	}}

	body, ct := multipartBody(t, "paper.pdf", []byte("%PDF-1.4 stub"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()

	s.handleUpload(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /ask
// ---------------------------------------------------------------------------

// TestHandleAsk_AnswersQuestion verifies the happy path response shape and
// that the request fields reach the engine.
func TestHandleAsk_AnswersQuestion(t *testing.T) {
	t.Parallel()

	ask := &fakeAsker{resp: &answer.Response{
		Answer:         "The transformer architecture.",
		ConversationID: "conv-1",
	}}
	s := newTestServer()
	s.asker = ask

	body := `{"question":"What does the paper propose?","conversation_id":"conv-1","metadata_only":true}`
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "The transformer architecture." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if resp.ConversationID != "conv-1" {
		t.Errorf("conversation_id: got %q", resp.ConversationID)
	}

	if ask.lastReq == nil {
		t.Fatal("engine was not called")
	}
	if !ask.lastReq.MetadataOnly {
		t.Error("metadata_only flag did not reach the engine")
	}
	if ask.lastReq.ConversationID != "conv-1" {
		t.Errorf("conversation ID did not reach the engine: %q", ask.lastReq.ConversationID)
	}
}

// TestHandleAsk_IndexUnavailable verifies that an unreachable vector index
// maps to 503 with the canonical message.
func TestHandleAsk_IndexUnavailable(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.asker = &fakeAsker{err: fmt.Errorf("answer: retrieval failed: %w", rag.ErrUnavailable)}

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"anything"}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Search index not available") {
		t.Errorf("unexpected error body: %q", w.Body.String())
	}
}

// TestHandleAsk_EngineError verifies that a non-index failure maps to 500.
func TestHandleAsk_EngineError(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.asker = &fakeAsker{err: errors.New("boom")}

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"anything"}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

// TestHandleAsk_EmptyQuestion verifies that a blank question receives 400
// without reaching the engine.
func TestHandleAsk_EmptyQuestion(t *testing.T) {
	t.Parallel()

	ask := &fakeAsker{}
	s := newTestServer()
	s.asker = ask

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"   "}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if ask.lastReq != nil {
		t.Error("engine must not be called for an empty question")
	}
}

// TestHandleAsk_InvalidJSON verifies that a malformed body receives 400.
func TestHandleAsk_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.asker = &fakeAsker{}

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader("{not json"))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /documents
// ---------------------------------------------------------------------------

// TestHandleDocuments_ListsIndexedPapers verifies the listing derived from
// the vector store's metadata entries.
func TestHandleDocuments_ListsIndexedPapers(t *testing.T) {
	t.Parallel()

	store := rag.NewMemoryStore()
	err := store.Upsert(context.Background(), []rag.Entry{
		{ID: "doc1_title", Vector: []float32{1}, DocumentID: "doc1", Facet: "title", Text: "Paper One"},
		{ID: "doc1_authors", Vector: []float32{1}, DocumentID: "doc1", Facet: "authors", Text: "Alice Smith"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	s := newTestServer()
	s.docs = store

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	w := httptest.NewRecorder()

	s.handleDocuments(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp []documentResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected 1 document, got %d", len(resp))
	}
	if resp[0].ID != "doc1" || resp[0].Title != "Paper One" || resp[0].Authors != "Alice Smith" {
		t.Errorf("unexpected document: %+v", resp[0])
	}
}

// TestHandleDocuments_EmptyListOnStoreError verifies the degraded path:
// a store error yields 200 with an empty JSON array, never a 5xx.
func TestHandleDocuments_EmptyListOnStoreError(t *testing.T) {
	t.Parallel()

	store := rag.NewMemoryStore()
	store.SetUnavailable(true)

	s := newTestServer()
	s.docs = store

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	w := httptest.NewRecorder()

	s.handleDocuments(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("expected empty JSON array, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// GET /uploads
// ---------------------------------------------------------------------------

// TestHandleUploads_ListsCatalog verifies the upload listing shape.
func TestHandleUploads_ListsCatalog(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.catalog = &fakeCatalog{uploads: []catalog.Upload{
		{ID: "a", Filename: "a.pdf", Title: "Paper A", Status: catalog.StatusIndexed},
		{ID: "b", Filename: "b.pdf", Title: "Paper B", Status: catalog.StatusFailed, Error: "extraction failed"},
	}}

	req := httptest.NewRequest(http.MethodGet, "/uploads", nil)
	w := httptest.NewRecorder()

	s.handleUploads(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp []uploadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(resp))
	}
	if resp[0].Status != "indexed" {
		t.Errorf("status: got %q", resp[0].Status)
	}
	if resp[1].Error != "extraction failed" {
		t.Errorf("error: got %q", resp[1].Error)
	}
}

// TestHandleUploads_CatalogError verifies that a catalog failure maps to 500.
func TestHandleUploads_CatalogError(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.catalog = &fakeCatalog{listErr: errors.New("db locked")}

	req := httptest.NewRequest(http.MethodGet, "/uploads", nil)
	w := httptest.NewRecorder()

	s.handleUploads(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// DELETE /conversations/{id}
// ---------------------------------------------------------------------------

// TestHandleClearConversation verifies that clearing removes history and is
// idempotent for unknown IDs.
func TestHandleClearConversation(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.conversations.AppendTurn("conv-1", "q", "a")

	for _, id := range []string{"conv-1", "conv-1", "never-existed"} {
		req := httptest.NewRequest(http.MethodDelete, "/conversations/"+id, nil)
		req.SetPathValue("id", id)
		w := httptest.NewRecorder()

		s.handleClearConversation(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("id=%q: expected 200, got %d", id, w.Code)
		}
	}

	if n := s.conversations.Len("conv-1"); n != 0 {
		t.Errorf("expected cleared history, got %d messages", n)
	}
}

// ---------------------------------------------------------------------------
// Metric route labels
// ---------------------------------------------------------------------------

// TestRouteLabel verifies that dynamic paths collapse to bounded label values.
func TestRouteLabel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want string
	}{
		{"/ask", "/ask"},
		{"/upload", "/upload"},
		{"/documents", "/documents"},
		{"/conversations/abc-123", "/conversations/{id}"},
		{"/api/health", "/api/health"},
		{"/metrics", "/metrics"},
		{"/", "/static"},
		{"/index.html", "/static"},
	}

	for _, tc := range cases {
		if got := routeLabel(tc.path); got != tc.want {
			t.Errorf("routeLabel(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
