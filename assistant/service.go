// Package assistant answers campus chat requests.
//
// Service.Chat is the request pipeline: it composes a role-specific system
// instruction, adds the conversation's recent turns, asks the provider
// gateway for a reply and records the exchange. It always produces a reply;
// backend failures and internal errors turn into fixed apology text.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/vuai/assistant/emit"
	"github.com/dshills/vuai/assistant/gateway"
	"github.com/dshills/vuai/assistant/memory"
	"github.com/dshills/vuai/assistant/model"
	"github.com/dshills/vuai/assistant/prompt"
	"github.com/dshills/vuai/assistant/store"
)

// Fixed replies.
const (
	EmptyMessageReply    = "Please ask me something! [!]"
	UnexpectedErrorReply = "An unexpected error occurred."
)

// saveTimeout bounds the best-effort conversation log write.
const saveTimeout = 5 * time.Second

// Generator produces a reply for a conversation. *gateway.Gateway
// implements it.
type Generator interface {
	Generate(ctx context.Context, messages []model.Message) gateway.Result
}

// ChatLog receives completed exchanges. store.Store implements it.
type ChatLog interface {
	SaveChat(ctx context.Context, record store.ChatRecord) (store.ChatRecord, error)
}

// ChatRequest is one inbound chat message.
type ChatRequest struct {
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
	Role     string `json:"role"`
	UserName string `json:"user_name,omitempty"`
}

// ChatResponse is the reply to a ChatRequest.
type ChatResponse struct {
	Response string `json:"response"`
}

// Service handles chat requests. It is safe for concurrent use.
type Service struct {
	composer  *prompt.Composer
	generator Generator
	cache     *memory.Cache

	emitter emit.Emitter
	metrics *Metrics
	costs   *CostTracker
	chatLog ChatLog
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEmitter sets the event emitter. Default: emit.NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(s *Service) {
		if e != nil {
			s.emitter = e
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCostTracker enables cost accounting.
func WithCostTracker(ct *CostTracker) Option {
	return func(s *Service) { s.costs = ct }
}

// WithChatLog writes every completed exchange to log.
func WithChatLog(log ChatLog) Option {
	return func(s *Service) { s.chatLog = log }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for record timestamps and
// durations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service.
func NewService(composer *prompt.Composer, generator Generator, cache *memory.Cache, opts ...Option) *Service {
	s := &Service{
		composer:  composer,
		generator: generator,
		cache:     cache,
		emitter:   emit.NewNullEmitter(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat answers req.
//
// Chat never fails. A blank message is answered with EmptyMessageReply
// without calling the backend. When every backend fails the reply is
// gateway.Apology, and an internal panic yields UnexpectedErrorReply.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (resp ChatResponse) {
	requestID := uuid.NewString()
	message := strings.TrimSpace(req.Message)

	if message == "" {
		s.emitter.Emit(emit.Event{RequestID: requestID, ConversationID: req.UserID, Msg: emit.MsgChatRejected})
		s.metrics.RecordChat("rejected")
		return ChatResponse{Response: EmptyMessageReply}
	}

	start := s.now()
	s.emitter.Emit(emit.Event{
		RequestID:      requestID,
		ConversationID: req.UserID,
		Msg:            emit.MsgChatStart,
		Meta:           map[string]interface{}{"role": req.Role},
	})

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "chat request panicked",
				slog.String("request_id", requestID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			s.emitter.Emit(emit.Event{
				RequestID:      requestID,
				ConversationID: req.UserID,
				Msg:            emit.MsgChatError,
				Meta:           map[string]interface{}{"error": fmt.Sprint(r)},
			})
			s.metrics.RecordChat("error")
			resp = ChatResponse{Response: UnexpectedErrorReply}
		}
	}()

	result := s.exchange(ctx, req, message)

	s.observe(ctx, requestID, req.UserID, result, s.now().Sub(start))
	s.save(ctx, req, message, result)

	return ChatResponse{Response: result.Text}
}

// exchange runs the compose, history, generate and push sequence under the
// conversation lock.
func (s *Service) exchange(ctx context.Context, req ChatRequest, message string) gateway.Result {
	system := s.composer.Compose(req.Role, req.UserName)

	conv := s.cache.Conversation(req.UserID)
	conv.Lock()
	defer conv.Unlock()

	history := conv.Turns()
	messages := make([]model.Message, 0, len(history)+2)
	messages = append(messages, model.Message{Role: model.RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, model.Message{Role: model.RoleUser, Content: message})

	result := s.generator.Generate(ctx, messages)
	conv.Push(message, result.Text)
	return result
}

func (s *Service) observe(ctx context.Context, requestID, conversationID string, result gateway.Result, elapsed time.Duration) {
	for _, a := range result.Attempts {
		outcome := "ok"
		if a.Err != nil {
			outcome = a.Kind.String()
		}
		s.metrics.RecordAttempt(a.Provider, a.Model, outcome, a.Duration)

		meta := map[string]interface{}{
			"provider":    a.Provider,
			"model":       a.Model,
			"duration_ms": a.Duration.Milliseconds(),
			"result":      outcome,
		}
		if a.Err != nil {
			meta["error"] = a.Err.Error()
		}
		s.emitter.Emit(emit.Event{RequestID: requestID, ConversationID: conversationID, Msg: emit.MsgProviderResult, Meta: meta})
	}

	if result.Outcome == gateway.OutcomeDegraded {
		s.metrics.RecordFallback()
	}
	s.metrics.RecordChat(result.Outcome.String())
	s.metrics.SetActiveConversations(s.cache.Len())

	meta := map[string]interface{}{
		"outcome":     result.Outcome.String(),
		"duration_ms": elapsed.Milliseconds(),
	}

	if result.Outcome != gateway.OutcomeFailed {
		in, out := result.Usage.InputTokens, result.Usage.OutputTokens
		var cost float64
		if s.costs != nil {
			cost = s.costs.Record(result.Model, in, out, conversationID)
		}
		s.metrics.RecordUsage(result.Model, in, out, cost)

		meta["provider"] = result.Provider
		meta["model"] = result.Model
		meta["tokens_in"] = in
		meta["tokens_out"] = out
		meta["cost_usd"] = cost
	} else if result.Err != nil {
		meta["error"] = result.Err.Error()
		s.logger.ErrorContext(ctx, "all chat backends failed",
			slog.String("request_id", requestID),
			slog.Any("error", result.Err),
		)
	}

	s.emitter.Emit(emit.Event{RequestID: requestID, ConversationID: conversationID, Msg: emit.MsgChatComplete, Meta: meta})
}

// save writes the exchange to the chat log. Failures are logged and
// otherwise ignored.
func (s *Service) save(ctx context.Context, req ChatRequest, message string, result gateway.Result) {
	if s.chatLog == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	_, err := s.chatLog.SaveChat(saveCtx, store.ChatRecord{
		UserID:    req.UserID,
		Role:      req.Role,
		UserName:  req.UserName,
		Message:   message,
		Response:  result.Text,
		Provider:  result.Provider,
		Model:     result.Model,
		Outcome:   result.Outcome.String(),
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to save chat record",
			slog.String("conversation_id", req.UserID),
			slog.Any("error", err),
		)
	}
}
