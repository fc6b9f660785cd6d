package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scichat/scichat-go/internal/rag"
)

// recordingStatus collects MarkIndexed/MarkFailed calls.
type recordingStatus struct {
	mu      sync.Mutex
	indexed []string
	failed  map[string]string
	done    chan struct{}
}

func newRecordingStatus(expect int) *recordingStatus {
	rs := &recordingStatus{failed: make(map[string]string), done: make(chan struct{}, expect)}
	return rs
}

func (r *recordingStatus) MarkIndexed(_ context.Context, id string) error {
	r.mu.Lock()
	r.indexed = append(r.indexed, id)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingStatus) MarkFailed(_ context.Context, id, reason string) error {
	r.mu.Lock()
	r.failed[id] = reason
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingStatus) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for job outcomes")
		}
	}
}

func TestQueueProcessesJobs(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	ix := newTestIndexer(t, &fakeEmbedder{dims: 4}, store, &Config{Dimensions: 4})
	rs := newRecordingStatus(2)
	q, err := NewQueue(ix, rs, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	if !q.Enqueue(Document{ID: "a", Title: "A", FullText: "first paper"}) {
		t.Fatal("Enqueue rejected job a")
	}
	if !q.Enqueue(Document{ID: "b", Title: "B", FullText: "second paper"}) {
		t.Fatal("Enqueue rejected job b")
	}
	rs.wait(t, 2)
	q.Close()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.indexed) != 2 {
		t.Errorf("indexed = %v, want both documents", rs.indexed)
	}
	if len(rs.failed) != 0 {
		t.Errorf("failed = %v, want none", rs.failed)
	}
	if len(store.entries) == 0 {
		t.Error("no entries reached the store")
	}
}

func TestQueueMarksFailedJobs(t *testing.T) {
	t.Parallel()

	// A failing store aborts indexing, which must surface as MarkFailed.
	ix := newTestIndexer(t, &fakeEmbedder{dims: 4}, &captureStore{fail: true}, &Config{Dimensions: 4})
	rs := newRecordingStatus(1)
	q, err := NewQueue(ix, rs, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	if !q.Enqueue(Document{ID: "broken", Title: "B"}) {
		t.Fatal("Enqueue rejected job")
	}
	rs.wait(t, 1)
	q.Close()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.failed["broken"]; !ok {
		t.Errorf("failed = %v, want entry for %q", rs.failed, "broken")
	}
	if len(rs.indexed) != 0 {
		t.Errorf("indexed = %v, want none", rs.indexed)
	}
}

// blockingStore parks the worker inside Upsert until released, so tests can
// fill the queue buffer deterministically.
type blockingStore struct {
	captureStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) Upsert(ctx context.Context, entries []rag.Entry) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.captureStore.Upsert(ctx, entries)
}

func TestQueueRejectsWhenFull(t *testing.T) {
	t.Parallel()

	store := &blockingStore{started: make(chan struct{}), release: make(chan struct{})}
	ix := newTestIndexer(t, &fakeEmbedder{dims: 4}, &captureStore{}, &Config{Dimensions: 4})
	ix.store = store

	q, err := NewQueue(ix, nil, &QueueConfig{Buffer: 1}, discardLogger())
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	// First job occupies the single worker, second fills the buffer.
	q.Enqueue(Document{ID: "w1", Title: "T"})
	select {
	case <-store.started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never reached the store")
	}
	if !q.Enqueue(Document{ID: "w2", Title: "T"}) {
		t.Fatal("buffer slot should have accepted w2")
	}
	if q.Enqueue(Document{ID: "w3", Title: "T"}) {
		t.Error("Enqueue accepted a job beyond the buffer")
	}
	close(store.release)
	q.Close()
}

func TestQueueEnqueueAfterClose(t *testing.T) {
	t.Parallel()

	ix := newTestIndexer(t, &fakeEmbedder{dims: 4}, &captureStore{}, &Config{Dimensions: 4})
	q, err := NewQueue(ix, nil, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	q.Close()
	if q.Enqueue(Document{ID: "late", Title: "T"}) {
		t.Error("Enqueue accepted a job after Close")
	}
}
