package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StatusRecorder receives the outcome of each background indexing job. The
// upload catalog implements it; tests use a fake.
type StatusRecorder interface {
	MarkIndexed(ctx context.Context, documentID string) error
	MarkFailed(ctx context.Context, documentID, reason string) error
}

// nopRecorder is used when no catalog is wired in.
type nopRecorder struct{}

func (nopRecorder) MarkIndexed(context.Context, string) error   { return nil }
func (nopRecorder) MarkFailed(context.Context, string, string) error { return nil }

// Queue runs indexing jobs on background workers so uploads can be
// acknowledged before their embeddings are computed. Jobs are processed in
// submission order per worker; a full queue rejects instead of blocking the
// upload handler.
type Queue struct {
	ix      *Indexer
	status  StatusRecorder
	jobs    chan Document
	log     *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// QueueConfig holds the configuration for a Queue.
type QueueConfig struct {
	// Buffer is the number of pending jobs the queue holds before Enqueue
	// starts rejecting. Defaults to 32 if zero.
	Buffer int

	// Workers is the number of concurrent indexing workers. Defaults to 1,
	// which preserves submission order.
	Workers int

	// JobTimeout bounds a single document's indexing run. Defaults to 2m.
	JobTimeout time.Duration
}

// NewQueue constructs a Queue. A nil status recorder disables outcome
// reporting.
func NewQueue(ix *Indexer, status StatusRecorder, cfg *QueueConfig, log *slog.Logger) (*Queue, error) {
	if ix == nil {
		return nil, fmt.Errorf("indexer: queue requires an indexer")
	}
	if status == nil {
		status = nopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 32
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}

	q := &Queue{
		ix:      ix,
		status:  status,
		jobs:    make(chan Document, cfg.Buffer),
		log:     log,
		timeout: cfg.JobTimeout,
	}
	q.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.worker()
	}
	return q, nil
}

// Enqueue submits a document for background indexing. It returns false when
// the queue is full or already closed.
func (q *Queue) Enqueue(doc Document) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case q.jobs <- doc:
		return true
	default:
		q.log.Warn("indexer: queue full, rejecting job", slog.String("document_id", doc.ID))
		return false
	}
}

// Close stops accepting jobs and blocks until in-flight jobs finish.
func (q *Queue) Close() {
	close(q.jobs)
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for doc := range q.jobs {
		q.run(doc)
	}
}

// run indexes one document and records the outcome. A panic in the pipeline
// fails the job instead of killing the worker.
func (q *Queue) run(doc Document) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.log.Error("indexer: job panicked",
				slog.String("document_id", doc.ID),
				slog.Any("panic", r),
			)
			q.markFailed(ctx, doc.ID, fmt.Sprintf("panic: %v", r))
		}
	}()

	if _, err := q.ix.Index(ctx, doc); err != nil {
		q.log.Error("indexer: job failed",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()),
		)
		q.markFailed(ctx, doc.ID, err.Error())
		return
	}

	if err := q.status.MarkIndexed(ctx, doc.ID); err != nil {
		q.log.Warn("indexer: recording indexed status failed",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (q *Queue) markFailed(ctx context.Context, id, reason string) {
	if err := q.status.MarkFailed(ctx, id, reason); err != nil {
		q.log.Warn("indexer: recording failed status failed",
			slog.String("document_id", id),
			slog.String("error", err.Error()),
		)
	}
}
