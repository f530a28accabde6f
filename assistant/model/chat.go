// Package model defines the chat capability shared by every LLM backend.
package model

import (
	"context"
	"strings"
)

// ChatModel is the single capability every LLM backend provides.
//
// Implementations receive the full conversation in order: the system
// instruction first, then alternating user/assistant turns, ending with the
// newest user turn. They should:
//   - Convert Message values to the provider's wire format.
//   - Respect context cancellation and deadlines.
//   - Return provider failures as errors rather than canned text.
//
// Retries and fallbacks are not the backend's concern; the gateway owns that
// policy.
//
// Example usage:
//
//	m := openai.NewChatModel(openai.Config{APIKey: key, Model: "gpt-4o"})
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleSystem, Content: "You are Vu AI."},
//	    {Role: model.RoleUser, Content: "Where is the library?"},
//	})
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message is one turn of a conversation.
type Message struct {
	// Role identifies the sender. Use the Role* constants.
	Role string

	// Content is the turn text.
	Content string
}

// Standard conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOut is the result of a single completion.
type ChatOut struct {
	// Text is the generated reply.
	Text string

	// Usage reports token consumption when the provider returns it.
	// Zero values mean the provider did not report usage.
	Usage Usage
}

// Usage counts the tokens consumed by one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// SplitSystem separates system turns from the rest of the conversation.
//
// Several providers take the system instruction as a separate parameter.
// Multiple system turns are joined with a blank line.
func SplitSystem(messages []Message) (string, []Message) {
	var system strings.Builder
	rest := make([]Message, 0, len(messages))

	for _, msg := range messages {
		if msg.Role != RoleSystem {
			rest = append(rest, msg)
			continue
		}
		if system.Len() > 0 {
			system.WriteString("\n\n")
		}
		system.WriteString(msg.Content)
	}

	return system.String(), rest
}

// LastUserMessage returns the content of the newest user turn, or "" if
// the conversation has none.
func LastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
