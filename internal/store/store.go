// Package store persists conversations and their messages.
package store

import (
	"context"

	"github.com/parleychat/parley/internal/core"
)

// Store defines the interface for conversation persistence.
type Store interface {
	// CreateConversation persists a new conversation and assigns an ID.
	CreateConversation(ctx context.Context, conv *core.Conversation) error

	// GetConversation retrieves a conversation by its ID.
	GetConversation(ctx context.Context, id string) (*core.Conversation, error)

	// ListConversations returns conversations ordered by most recent
	// activity first.
	ListConversations(ctx context.Context, limit, offset int) ([]core.Conversation, error)

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessage adds a message to a conversation and bumps its
	// updated timestamp.
	AppendMessage(ctx context.Context, conversationID string, msg core.Message) (*core.StoredMessage, error)

	// Messages returns a conversation's messages in insertion order.
	Messages(ctx context.Context, conversationID string) ([]core.StoredMessage, error)

	// Close releases the underlying resources.
	Close() error
}
