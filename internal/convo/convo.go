// Package convo keeps per-conversation question/answer history in memory.
// Conversations are identified by server-generated UUIDs and live for the
// lifetime of the process; persistence across restarts is out of scope.
package convo

import (
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// conversation is one message history with its own lock, so appends to
// different conversations never contend with each other.
type conversation struct {
	mu   sync.Mutex
	msgs []*schema.Message
}

// Store holds all active conversations. Safe for concurrent use. The
// store-level lock guards only map lookup, creation, and deletion; message
// access goes through the per-conversation lock.
type Store struct {
	mu    sync.RWMutex
	convs map[string]*conversation
}

// NewStore returns an empty conversation store.
func NewStore() *Store {
	return &Store{convs: make(map[string]*conversation)}
}

// conv returns the conversation for id, creating it when create is set.
// Returns nil for an unknown id when create is false.
func (s *Store) conv(id string, create bool) *conversation {
	s.mu.RLock()
	c := s.convs[id]
	s.mu.RUnlock()
	if c != nil || !create {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c = s.convs[id]; c == nil {
		c = &conversation{}
		s.convs[id] = c
	}
	return c
}

// Resolve returns the conversation ID to use for a request. An empty or
// unknown ID starts a fresh conversation; a fresh ID is a new UUID.
func (s *Store) Resolve(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// History returns a copy of the conversation's messages in turn order.
// Unknown IDs yield an empty history.
func (s *Store) History(id string) []*schema.Message {
	c := s.conv(id, false)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*schema.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// AppendTurn records one completed question/answer exchange. The
// conversation is created on first append.
func (s *Store) AppendTurn(id, question, answer string) {
	c := s.conv(id, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs,
		schema.UserMessage(question),
		schema.AssistantMessage(answer, nil),
	)
}

// Clear removes a conversation. Clearing an unknown ID is a no-op, so the
// delete endpoint stays idempotent.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, id)
}

// Len reports the number of stored messages for a conversation.
func (s *Store) Len(id string) int {
	c := s.conv(id, false)
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}
