package ephemeral

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tbourn/scenario-chat/internal/domain"
)

// MemoryStore keeps state in bounded, expiring LRU caches inside the process.
type MemoryStore struct {
	mu         sync.Mutex
	convs      *expirable.LRU[string, *Conversation]
	expansions *expirable.LRU[string, map[string]bool]
}

// NewMemoryStore holds at most maxEntries items of each kind for ttl.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		convs:      expirable.NewLRU[string, *Conversation](maxEntries, nil, ttl),
		expansions: expirable.NewLRU[string, map[string]bool](maxEntries, nil, ttl),
	}
}

func (s *MemoryStore) PutConversation(_ context.Context, c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs.Add(c.ID, c.clone())
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return c.clone(), nil
}

// ListConversations returns ownerID's demo conversations, newest first.
func (s *MemoryStore) ListConversations(_ context.Context, ownerID string) ([]*Conversation, error) {
	s.mu.Lock()
	var out []*Conversation
	for _, c := range s.convs.Values() {
		if c.OwnerID == ownerID {
			out = append(out, c.clone())
		}
	}
	s.mu.Unlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) AppendMessages(_ context.Context, id string, msgs ...domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs.Get(id)
	if !ok {
		return ErrNotFound
	}
	next := c.clone()
	next.Messages = append(next.Messages, msgs...)
	s.convs.Add(id, next)
	return nil
}

func (s *MemoryStore) SetMessageStatus(_ context.Context, id, messageID string, status domain.MessageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs.Get(id)
	if !ok {
		return ErrNotFound
	}
	next := c.clone()
	next.setStatus(messageID, status)
	s.convs.Add(id, next)
	return nil
}

func (s *MemoryStore) ClearMessages(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs.Get(id)
	if !ok {
		return ErrNotFound
	}
	next := c.clone()
	next.Messages = nil
	s.convs.Add(id, next)
	return nil
}

// Expansion returns a copy of the stored state; an unknown user gets an
// empty map.
func (s *MemoryStore) Expansion(_ context.Context, userID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]bool{}
	if st, ok := s.expansions.Get(userID); ok {
		for k, v := range st {
			out[k] = v
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveExpansion(_ context.Context, userID string, state map[string]bool) error {
	cp := make(map[string]bool, len(state))
	for k, v := range state {
		cp[k] = v
	}
	s.mu.Lock()
	s.expansions.Add(userID, cp)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs.Purge()
	s.expansions.Purge()
	return nil
}

func sortNewestFirst(cs []*Conversation) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].ID > cs[j].ID
		}
		return cs[i].CreatedAt.After(cs[j].CreatedAt)
	})
}
