package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/scichat/scichat-go/internal/facet"
)

// DefaultCollection is the fixed logical name of the paper embedding index.
const DefaultCollection = "document-embeddings"

// metaProbeLimit bounds how many metadata entries the Documents probe pulls
// from the index when deriving the per-paper metadata list.
const metaProbeLimit = 100

// pointNamespace is the fixed UUIDv5 namespace under which logical vector
// keys are hashed into Qdrant point IDs. The derivation is deterministic, so
// re-indexing a document overwrites its prior points instead of duplicating
// them.
var pointNamespace = uuid.MustParse("b2c1d6a4-9e3f-4a57-8f20-3d05c4ab91ee")

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name (default: DefaultCollection).
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this
	// collection. Must match the embedding function's output dimension.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it with cosine distance if necessary), and returns a
// ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// Client exposes the underlying gRPC client for readiness probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w: %v", ErrUnavailable, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// pointID derives the deterministic Qdrant point UUID for a logical vector key.
func pointID(key string) string {
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

// Upsert stores or overwrites the given entries. Point IDs are derived from
// Entry.ID, so repeated upserts of the same entry replace the stored point.
func (s *QdrantStore) Upsert(ctx context.Context, entries []Entry) error {
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		payload := map[string]any{
			"key":         e.ID,
			"document_id": e.DocumentID,
			"facet":       string(e.Facet),
			"text":        e.Text,
		}
		if e.Facet == facet.Chunk {
			payload["chunk_index"] = e.ChunkIndex
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(e.ID)),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Query performs a cosine similarity search and returns the top-k results.
// A non-empty facet is applied as a payload equality filter before ranking.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, f facet.Facet, topK int) ([]Match, error) {
	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if f != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("facet", string(f))},
		}
	}

	results, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w: %v", ErrUnavailable, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, matchFromPayload(r.Id.GetUuid(), r.Score, r.Payload))
	}

	return matches, nil
}

// Documents derives the per-paper metadata list from the metadata entries in
// the index. A zero-vector probe restricted to the metadata facets pulls a
// bounded sample; entries are then grouped by document id.
func (s *QdrantStore) Documents(ctx context.Context) ([]DocumentMeta, error) {
	probe := make([]float32, s.cfg.VectorSize)
	limit := uint64(metaProbeLimit)

	facets := make([]string, 0, len(facet.Metadata))
	for _, f := range facet.Metadata {
		facets = append(facets, string(f))
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(probe...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeywords("facet", facets...)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: document listing failed: %w: %v", ErrUnavailable, err)
	}

	byDoc := make(map[string]*DocumentMeta)
	var order []string
	for _, r := range results {
		m := matchFromPayload(r.Id.GetUuid(), r.Score, r.Payload)
		if m.DocumentID == "" {
			continue
		}
		meta, ok := byDoc[m.DocumentID]
		if !ok {
			meta = &DocumentMeta{ID: m.DocumentID}
			byDoc[m.DocumentID] = meta
			order = append(order, m.DocumentID)
		}
		switch m.Facet {
		case facet.Title:
			meta.Title = m.Text
		case facet.Authors:
			meta.Authors = m.Text
		case facet.Organizations:
			meta.Organizations = m.Text
		case facet.Emails:
			meta.Emails = m.Text
		}
	}

	docs := make([]DocumentMeta, 0, len(order))
	for _, id := range order {
		docs = append(docs, *byDoc[id])
	}
	return docs, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// matchFromPayload rebuilds a Match from a stored point's payload.
func matchFromPayload(pointUUID string, score float32, payload map[string]*qdrant.Value) Match {
	m := Match{ID: pointUUID, Score: score}
	if payload == nil {
		return m
	}
	if v, ok := payload["key"]; ok {
		m.ID = v.GetStringValue()
	}
	if v, ok := payload["document_id"]; ok {
		m.DocumentID = v.GetStringValue()
	}
	if v, ok := payload["facet"]; ok {
		m.Facet = facet.Facet(v.GetStringValue())
	}
	if v, ok := payload["text"]; ok {
		m.Text = v.GetStringValue()
	}
	if v, ok := payload["chunk_index"]; ok {
		m.ChunkIndex = int(v.GetIntegerValue())
	}
	return m
}
