package llm

import "context"

// Message is one role-tagged entry in a conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Generator defines a pluggable text-generation backend. The same
// backend serves free-form replies and intent classification; callers
// control the distinction through the message list they pass.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}
