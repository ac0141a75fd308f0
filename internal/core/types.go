package core

import "time"

// Role identifies who authored a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the uniform request shape handed to the dispatcher.
// The dispatcher never retains it after the call returns.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// LastUserMessage returns the index of the most recent message with
// role user, or -1 if none exists.
func (r ChatRequest) LastUserMessage() int {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// Choice is one completion alternative inside a ChatResponse.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatResponse is the common non-streaming response shape every
// provider's reply is normalized into. Immutable after construction.
type ChatResponse struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Text returns the first choice's message content, or "" when the
// response carries no choices.
func (r *ChatResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Provider identifies one of the supported LLM backends.
type Provider string

const (
	ProviderGroq       Provider = "groq"
	ProviderClaude     Provider = "claude"
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
	ProviderFlowise    Provider = "flowise"
	ProviderNeura      Provider = "neura"
	ProviderGoogle     Provider = "google"
)

// Providers lists every supported backend.
func Providers() []Provider {
	return []Provider{
		ProviderGroq,
		ProviderClaude,
		ProviderOpenAI,
		ProviderOpenRouter,
		ProviderFlowise,
		ProviderNeura,
		ProviderGoogle,
	}
}

// Valid reports whether p names a supported backend.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGroq, ProviderClaude, ProviderOpenAI, ProviderOpenRouter,
		ProviderFlowise, ProviderNeura, ProviderGoogle:
		return true
	}
	return false
}

// ParseProvider maps an identifier to a Provider, substituting fallback
// for unrecognized values. The silent substitution mirrors the UI
// contract where an unknown selection degrades to the default backend;
// callers that need strict validation should check Valid instead.
func ParseProvider(s string, fallback Provider) Provider {
	p := Provider(s)
	if p.Valid() {
		return p
	}
	return fallback
}

// Conversation is a persisted chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Provider  Provider  `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoredMessage is a persisted chat message with its row identity.
type StoredMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
