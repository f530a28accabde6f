// Package server exposes the assistant over HTTP.
//
// Endpoints:
//   - POST /chat        - answer a chat message (always 200 for a valid body)
//   - POST /login       - exchange username and password for a bearer token
//   - GET  /admin/data  - dump users and the conversation log (admin token)
//   - GET  /health      - liveness probe
//   - GET  /            - composite status of the store and chat backend,
//     plus token usage and estimated spend when a cost tracker is set
//   - GET  /metrics     - Prometheus metrics, when a gatherer is configured
//
// Error responses carry a JSON body of the form {"detail": "..."}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/vuai/assistant"
	"github.com/dshills/vuai/assistant/auth"
	"github.com/dshills/vuai/assistant/emit"
	"github.com/dshills/vuai/assistant/store"
)

// Admin dump bounds.
const (
	AdminUserLimit = 100
	AdminChatLimit = 500
)

const (
	// statusPingTimeout bounds the store ping behind GET /.
	statusPingTimeout = 2 * time.Second

	// maxBodyBytes bounds JSON request bodies.
	maxBodyBytes = 1 << 20
)

// Chatter answers chat requests. *assistant.Service implements it.
type Chatter interface {
	Chat(ctx context.Context, req assistant.ChatRequest) assistant.ChatResponse
}

// BackendStatus describes the active chat backend. *gateway.Gateway
// implements it.
type BackendStatus interface {
	Offline() bool
	Provider() string
	Model() string
}

// Server routes HTTP requests to the chat service, the auth service and
// the store.
type Server struct {
	chat    Chatter
	auth    *auth.Service
	store   store.Store
	backend BackendStatus

	emitter  emit.Emitter
	metrics  *assistant.Metrics
	gatherer prometheus.Gatherer
	costs    *assistant.CostTracker
	limiter  *RateLimiter
	logger   *slog.Logger

	handler http.Handler
	srv     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEmitter sets the emitter used for login events.
func WithEmitter(e emit.Emitter) Option {
	return func(s *Server) {
		if e != nil {
			s.emitter = e
		}
	}
}

// WithMetrics counts HTTP responses and serves gatherer on /metrics.
func WithMetrics(m *assistant.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithCostTracker reports usage totals on GET / and recent calls in the
// admin dump.
func WithCostTracker(ct *assistant.CostTracker) Option {
	return func(s *Server) { s.costs = ct }
}

// WithRateLimiter limits /chat and /login per client address.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// New creates a Server.
func New(chat Chatter, authSvc *auth.Service, st store.Store, backend BackendStatus, opts ...Option) *Server {
	s := &Server{
		chat:    chat,
		auth:    authSvc,
		store:   st,
		backend: backend,
		emitter: emit.NewNullEmitter(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chat", s.limiter.Limit(s.handleChat))
	mux.HandleFunc("POST /login", s.limiter.Limit(s.handleLogin))
	mux.HandleFunc("GET /admin/data", s.handleAdminData)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleStatus)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return Chain(
		Recovery(s.logger),
		RequestLog(s.logger, s.metrics.RecordHTTP),
		CORS(),
	)(mux)
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string, readTimeout, writeTimeout time.Duration) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}

	s.logger.Info("server listening", slog.String("addr", addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("server shutting down")
	return s.srv.Shutdown(ctx)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type adminData struct {
	TotalUsers int                 `json:"total_users"`
	TotalChats int                 `json:"total_chats"`
	Users      []store.User        `json:"users"`
	Chats      []store.ChatRecord  `json:"chats"`
	LLMCalls   []assistant.LLMCall `json:"recent_llm_calls,omitempty"`
}

type status struct {
	SystemStatus  string `json:"system_status"`
	Database      string `json:"database"`
	LLMProvider   string `json:"llm_provider"`
	SelectedModel string `json:"selected_model"`
	Usage         *usage `json:"usage,omitempty"`
}

type usage struct {
	TotalCostUSD float64            `json:"total_cost_usd"`
	CostByModel  map[string]float64 `json:"cost_by_model"`
	TokensIn     int64              `json:"tokens_in"`
	TokensOut    int64              `json:"tokens_out"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req assistant.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.chat.Chat(r.Context(), req))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.emitter.Emit(emit.Event{Msg: emit.MsgLoginFailed, Meta: map[string]interface{}{"username": req.Username}})
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	case err != nil:
		s.logger.ErrorContext(r.Context(), "login failed", slog.String("username", req.Username), slog.Any("error", err))
		s.emitter.Emit(emit.Event{Msg: emit.MsgLoginFailed, Meta: map[string]interface{}{"username": req.Username, "error": err.Error()}})
		writeDetail(w, http.StatusInternalServerError, "Login is temporarily unavailable")
		return
	}

	s.emitter.Emit(emit.Event{Msg: emit.MsgLogin, Meta: map[string]interface{}{"username": session.Username, "role": session.Role}})
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleAdminData(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	if _, err := s.auth.Authorize(token, auth.RoleAdmin); err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			writeDetail(w, http.StatusForbidden, "Admin access required")
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	users, err := s.store.ListUsers(r.Context(), AdminUserLimit)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to retrieve admin data: "+err.Error())
		return
	}
	chats, err := s.store.ListChats(r.Context(), AdminChatLimit)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to retrieve admin data: "+err.Error())
		return
	}
	if users == nil {
		users = []store.User{}
	}
	if chats == nil {
		chats = []store.ChatRecord{}
	}

	writeJSON(w, http.StatusOK, adminData{
		TotalUsers: len(users),
		TotalChats: len(chats),
		Users:      users,
		Chats:      chats,
		LLMCalls:   s.recentCalls(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusPingTimeout)
	defer cancel()

	dbOK := s.store.Ping(ctx) == nil
	llmOK := !s.backend.Offline()

	resp := status{
		SystemStatus:  "ISSUES",
		Database:      "disconnected",
		LLMProvider:   "unavailable",
		SelectedModel: s.backend.Model(),
	}
	if dbOK {
		resp.Database = "connected"
	}
	if llmOK {
		resp.LLMProvider = s.backend.Provider()
	}
	if dbOK && llmOK {
		resp.SystemStatus = "OK"
	}
	if s.costs != nil {
		in, out := s.costs.TokenUsage()
		resp.Usage = &usage{
			TotalCostUSD: s.costs.TotalCost(),
			CostByModel:  s.costs.CostByModel(),
			TokensIn:     in,
			TokensOut:    out,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// recentCalls returns the newest AdminChatLimit costed calls, newest first.
func (s *Server) recentCalls() []assistant.LLMCall {
	if s.costs == nil {
		return nil
	}
	history := s.costs.History()
	if len(history) > AdminChatLimit {
		history = history[len(history)-AdminChatLimit:]
	}
	calls := make([]assistant.LLMCall, len(history))
	for i, c := range history {
		calls[len(history)-1-i] = c
	}
	return calls
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
