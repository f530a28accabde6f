package model

import (
	"context"
	"sync"
)

// MockChatModel is a test implementation of ChatModel.
//
// It provides configurable responses, call history tracking and error
// injection, and is safe for concurrent use.
//
// Example usage:
//
//	mock := &MockChatModel{
//	    Responses: []ChatOut{
//	        {Text: "First response"},
//	        {Text: "Second response"},
//	    },
//	}
//	out, err := mock.Chat(ctx, messages)
//	// Returns "First response", then "Second response" on subsequent calls
//
// Example with error injection:
//
//	mock := &MockChatModel{Err: errors.New("API error")}
type MockChatModel struct {
	// Responses contains the sequence of responses to return.
	// If all responses are consumed, the last response repeats.
	Responses []ChatOut

	// Err, if set, is returned instead of a response.
	Err error

	// ChatFunc, if set, computes the response from the received messages.
	// It takes precedence over Responses but not over Err.
	ChatFunc func(ctx context.Context, messages []Message) (ChatOut, error)

	// Calls records every invocation.
	Calls []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records a single invocation of Chat.
type MockChatCall struct {
	Messages []Message
}

// Chat implements the ChatModel interface.
//
// The call is always recorded, including when the context is already done.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	m.mu.Lock()
	recorded := make([]Message, len(messages))
	copy(recorded, messages)
	m.Calls = append(m.Calls, MockChatCall{Messages: recorded})
	fn := m.ChatFunc
	err := m.Err
	m.mu.Unlock()

	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}
	if err != nil {
		return ChatOut{}, err
	}
	if fn != nil {
		return fn(ctx, messages)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}

	return m.Responses[idx], nil
}

// Reset clears the call history and rewinds the response sequence.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of times Chat has been called.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}

// LastCall returns the most recent invocation and whether one exists.
func (m *MockChatModel) LastCall() (MockChatCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Calls) == 0 {
		return MockChatCall{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}
