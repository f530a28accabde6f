package emit

import "sync"

// BufferedEmitter stores events in memory, keyed by conversation.
//
// Use it in tests and for short debugging sessions. It keeps at most
// maxPerConversation events per conversation, dropping the oldest.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter(0)
//	svc := assistant.NewService(composer, gw, cache, assistant.WithEmitter(emitter))
//	svc.Chat(ctx, req)
//	events := emitter.GetHistory("u1")
type BufferedEmitter struct {
	mu                 sync.RWMutex
	events             map[string][]Event // conversationID -> events
	maxPerConversation int
}

// HistoryFilter narrows GetHistoryWithFilter. Empty fields match everything.
type HistoryFilter struct {
	RequestID string
	Msg       string
}

// DefaultBufferSize is used when NewBufferedEmitter receives a non-positive size.
const DefaultBufferSize = 1000

// NewBufferedEmitter creates a BufferedEmitter.
func NewBufferedEmitter(maxPerConversation int) *BufferedEmitter {
	if maxPerConversation <= 0 {
		maxPerConversation = DefaultBufferSize
	}
	return &BufferedEmitter{
		events:             make(map[string][]Event),
		maxPerConversation: maxPerConversation,
	}
}

// Emit stores an event.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := append(b.events[event.ConversationID], event)
	if over := len(events) - b.maxPerConversation; over > 0 {
		events = append([]Event(nil), events[over:]...)
	}
	b.events[event.ConversationID] = events
}

// GetHistory returns a copy of the events for a conversation, oldest first.
func (b *BufferedEmitter) GetHistory(conversationID string) []Event {
	return b.GetHistoryWithFilter(conversationID, HistoryFilter{})
}

// GetHistoryWithFilter returns the events for a conversation that match
// every non-empty filter field.
func (b *BufferedEmitter) GetHistoryWithFilter(conversationID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[conversationID] {
		if filter.RequestID != "" && event.RequestID != filter.RequestID {
			continue
		}
		if filter.Msg != "" && event.Msg != filter.Msg {
			continue
		}
		result = append(result, event)
	}
	return result
}

// Clear removes one conversation's events, or all events when
// conversationID is empty.
func (b *BufferedEmitter) Clear(conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conversationID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, conversationID)
}
