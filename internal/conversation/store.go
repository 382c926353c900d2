// Package conversation holds multi-turn chat sessions. Sessions live in
// process memory behind an explicit store interface so a persistent backend
// can be substituted without touching callers.
package conversation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "docqa/internal/errors"
	"docqa/internal/models"
	"docqa/internal/ownership"
)

// Message roles. Exactly these two are valid.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GlobalScope is the sentinel collection label for conversations that span
// all of an owner's collections.
const GlobalScope = "global-search"

// Message is one turn within a conversation. Context carries the evidence
// cited by assistant turns.
type Message struct {
	Role      string              `json:"role"`
	Content   string              `json:"content"`
	Context   []models.QueryMatch `json:"context,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Conversation is an append-only sequence of turns owned by one identity.
// Messages are strictly ordered by insertion and never reordered.
type Conversation struct {
	ID             string    `json:"id"`
	CollectionName string    `json:"collection_name"`
	Owner          string    `json:"user_id"`
	Messages       []Message `json:"messages"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store keeps conversations. Implementations return snapshots; callers
// never share mutable state with the store.
type Store interface {
	Start(scopeLabel, ownerID string) Conversation
	Get(id string) (Conversation, error)
	AddMessage(id, role, content string, evidence []models.QueryMatch) (Message, error)
	ListByOwner(ownerID string) []Conversation
}

// MemoryStore is the in-process Store. A positive TTL evicts conversations
// idle for longer than the TTL, swept lazily on writes; zero keeps them for
// the life of the process.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	ttl           time.Duration
}

// NewMemoryStore creates an in-memory conversation store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		ttl:           ttl,
	}
}

// Start allocates a fresh conversation with a process-unique id.
func (s *MemoryStore) Start(scopeLabel, ownerID string) Conversation {
	if scopeLabel == "" {
		scopeLabel = GlobalScope
	}

	now := time.Now().UTC()
	conv := &Conversation{
		ID:             fmt.Sprintf("conv-%s-%s", ownerID, uuid.New()),
		CollectionName: scopeLabel,
		Owner:          ownerID,
		Messages:       []Message{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	s.conversations[conv.ID] = conv
	return snapshot(conv)
}

// Get returns a snapshot of a conversation, or a not-found error.
func (s *MemoryStore) Get(id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, apperrors.NotFound("conversation", id)
	}
	return snapshot(conv), nil
}

// AddMessage appends a turn and bumps the conversation's update time. An
// unknown id fails without creating anything.
func (s *MemoryStore) AddMessage(id, role, content string, evidence []models.QueryMatch) (Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return Message{}, apperrors.InvalidInput("unknown message role %q", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return Message{}, apperrors.NotFound("conversation", id)
	}

	msg := Message{
		Role:      role,
		Content:   content,
		Context:   evidence,
		Timestamp: time.Now().UTC(),
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.Timestamp
	return msg, nil
}

// ListByOwner returns the owner's conversations, most recently active
// first.
func (s *MemoryStore) ListByOwner(ownerID string) []Conversation {
	want := ownership.Canonical(ownerID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Conversation
	for _, conv := range s.conversations {
		if ownership.Canonical(conv.Owner) == want {
			out = append(out, snapshot(conv))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// sweepLocked drops conversations idle past the TTL. Caller holds the write
// lock.
func (s *MemoryStore) sweepLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for id, conv := range s.conversations {
		if now.Sub(conv.UpdatedAt) > s.ttl {
			delete(s.conversations, id)
		}
	}
}

func snapshot(conv *Conversation) Conversation {
	out := *conv
	out.Messages = make([]Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return out
}

var _ Store = (*MemoryStore)(nil)
