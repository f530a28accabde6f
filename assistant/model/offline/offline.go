// Package offline provides a ChatModel that needs no network or credential.
//
// It is the backend of last resort when the configured provider cannot be
// initialised. It still honours navigation requests so the client UI keeps
// working.
package offline

import (
	"context"
	"strings"

	"github.com/dshills/vuai/assistant/model"
)

// ProviderName identifies this backend in status reports.
const ProviderName = "mock"

const replyPrefix = "I am currently in Offline/Fallback Mode because valid API keys were not found. " +
	"But I can still help you navigate! 🚀"

// ChatModel answers every conversation with a canned reply.
type ChatModel struct{}

// NewChatModel returns the offline backend.
func NewChatModel() *ChatModel {
	return &ChatModel{}
}

// Chat implements the model.ChatModel interface. It never fails unless the
// context is already done.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}
	return model.ChatOut{Text: Reply(model.LastUserMessage(messages))}, nil
}

// Reply builds the canned reply for a user message, appending a navigation
// directive when the message asks to go somewhere.
func Reply(message string) string {
	return replyPrefix + navigationTag(strings.ToLower(message))
}

func navigationTag(lower string) string {
	if !strings.Contains(lower, "navigate") && !strings.Contains(lower, "go to") {
		return ""
	}

	switch {
	case strings.Contains(lower, "notes"):
		return " {{NAVIGATE: semester-notes}}"
	case strings.Contains(lower, "video"):
		return " {{NAVIGATE: advanced-videos}}"
	default:
		return " {{NAVIGATE: overview}}"
	}
}
