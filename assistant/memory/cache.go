// Package memory holds recent conversation turns per conversation id.
//
// Each conversation keeps at most a fixed window of turns; the oldest turns
// are dropped first. The number of distinct conversations is bounded too:
// when the bound is reached the least recently used conversation is evicted.
// Nothing is persisted.
package memory

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/vuai/assistant/model"
)

// Defaults used when the caller passes a non-positive size.
const (
	DefaultWindow           = 6
	DefaultMaxConversations = 10000
)

// Conversation is the turn history of one conversation id.
//
// Callers that read, call a backend and then push must hold the lock for the
// whole sequence so concurrent requests on the same id do not lose turns.
// A conversation stays reachable through its Cache while it is locked or
// waited on, even if the LRU evicts it in the meantime.
type Conversation struct {
	mu     sync.Mutex
	cache  *Cache
	id     string
	window int
	turns  []model.Message

	refs int // holders and waiters; guarded by cache.mu
}

// Lock acquires exclusive access to the conversation.
func (c *Conversation) Lock() {
	if c.cache != nil {
		c.cache.pin(c)
	}
	c.mu.Lock()
}

// Unlock releases the conversation.
func (c *Conversation) Unlock() {
	c.mu.Unlock()
	if c.cache != nil {
		c.cache.unpin(c)
	}
}

// Turns returns a copy of the stored turns, oldest first. The caller must
// hold the lock.
func (c *Conversation) Turns() []model.Message {
	out := make([]model.Message, len(c.turns))
	copy(out, c.turns)
	return out
}

// Push appends a user turn and an assistant turn, then trims the history to
// the window. The caller must hold the lock.
func (c *Conversation) Push(user, assistant string) {
	c.turns = append(c.turns,
		model.Message{Role: model.RoleUser, Content: user},
		model.Message{Role: model.RoleAssistant, Content: assistant},
	)
	if over := len(c.turns) - c.window; over > 0 {
		trimmed := make([]model.Message, c.window)
		copy(trimmed, c.turns[over:])
		c.turns = trimmed
	}
}

// Cache maps conversation ids to their recent turns. It is safe for
// concurrent use.
type Cache struct {
	mu            sync.Mutex
	window        int
	conversations *lru.Cache[string, *Conversation]
	inUse         map[string]*Conversation
}

// New creates a Cache keeping window turns per conversation and at most
// maxConversations idle conversations. An odd window is rounded up so a
// trim never splits a user/assistant pair.
func New(window, maxConversations int) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	window += window % 2
	if maxConversations <= 0 {
		maxConversations = DefaultMaxConversations
	}

	// lru.New only fails for a non-positive size.
	conversations, _ := lru.New[string, *Conversation](maxConversations)
	return &Cache{
		window:        window,
		conversations: conversations,
		inUse:         make(map[string]*Conversation),
	}
}

// Window returns the per-conversation turn cap.
func (c *Cache) Window() int {
	return c.window
}

// lookup returns the live conversation for id. The caller must hold c.mu.
func (c *Cache) lookup(id string) (*Conversation, bool) {
	if conv, ok := c.conversations.Get(id); ok {
		return conv, true
	}
	conv, ok := c.inUse[id]
	return conv, ok
}

func (c *Cache) pin(conv *Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv.refs++
	c.inUse[conv.id] = conv
}

// unpin puts a conversation evicted while in use back into the LRU once
// its last holder lets go, so its turns survive.
func (c *Cache) unpin(conv *Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv.refs--
	if conv.refs > 0 {
		return
	}
	delete(c.inUse, conv.id)
	if !c.conversations.Contains(conv.id) {
		c.conversations.Add(conv.id, conv)
	}
}

// Conversation returns the conversation for id, creating it if absent.
func (c *Cache) Conversation(id string) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conv, ok := c.lookup(id); ok {
		return conv
	}
	conv := &Conversation{cache: c, id: id, window: c.window}
	c.conversations.Add(id, conv)
	return conv
}

// Read returns a copy of the turns stored for id, or an empty slice when id
// is unseen. Read does not create a conversation.
func (c *Cache) Read(id string) []model.Message {
	c.mu.Lock()
	conv, ok := c.lookup(id)
	c.mu.Unlock()
	if !ok {
		return []model.Message{}
	}

	conv.Lock()
	defer conv.Unlock()
	return conv.Turns()
}

// Append pushes a user and assistant turn for id, creating the
// conversation if needed, and trims it to the window.
func (c *Cache) Append(id, user, assistant string) {
	conv := c.Conversation(id)
	conv.Lock()
	defer conv.Unlock()
	conv.Push(user, assistant)
}

// Len returns the number of conversations held, counting in-use ones the
// LRU has already evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.conversations.Len()
	for id := range c.inUse {
		if !c.conversations.Contains(id) {
			n++
		}
	}
	return n
}
