package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parleychat/parley/internal/core"
)

// MemoryStore is an in-memory Store for tests and ephemeral mode.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]core.Conversation
	messages      map[string][]core.StoredMessage
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]core.Conversation),
		messages:      make(map[string][]core.StoredMessage),
	}
}

// CreateConversation persists conv, assigning an ID and timestamps.
func (m *MemoryStore) CreateConversation(ctx context.Context, conv *core.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	m.conversations[conv.ID] = *conv
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MemoryStore) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, core.Errorf(core.ErrNotFound, "conversation %s", id)
	}
	return &conv, nil
}

// ListConversations returns conversations, most recently updated first.
func (m *MemoryStore) ListConversations(ctx context.Context, limit, offset int) ([]core.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	convs := make([]core.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		convs = append(convs, c)
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	if offset >= len(convs) {
		return []core.Conversation{}, nil
	}
	convs = convs[offset:]
	if len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

// DeleteConversation removes a conversation and its messages.
func (m *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return core.Errorf(core.ErrNotFound, "conversation %s", id)
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

// AppendMessage adds a message and bumps the conversation timestamp.
func (m *MemoryStore) AppendMessage(ctx context.Context, conversationID string, msg core.Message) (*core.StoredMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, core.Errorf(core.ErrNotFound, "conversation %s", conversationID)
	}

	stored := core.StoredMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		CreatedAt:      time.Now().UTC(),
	}
	m.messages[conversationID] = append(m.messages[conversationID], stored)

	conv.UpdatedAt = stored.CreatedAt
	m.conversations[conversationID] = conv

	return &stored, nil
}

// Messages returns a conversation's messages in insertion order.
func (m *MemoryStore) Messages(ctx context.Context, conversationID string) ([]core.StoredMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[conversationID]
	out := make([]core.StoredMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
