// Package gateway turns a configured list of chat backends into a single
// generate operation that never fails.
//
// A Gateway holds an ordered list of candidates, normally a primary backend
// and an optional secondary. Generate tries each candidate once under its
// own timeout, stops at the first success and reports a tagged Result. When
// every candidate fails the Result carries a fixed apology instead of an
// error.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/vuai/assistant/model"
)

// Apology is the reply returned when no candidate produced an answer.
const Apology = "I'm having trouble connecting to my brain right now. Please try again in a moment!"

// DefaultTimeout bounds each candidate attempt unless overridden.
const DefaultTimeout = 30 * time.Second

// DefaultProbeTimeout bounds the startup probe.
const DefaultProbeTimeout = 10 * time.Second

// ErrNoCandidates is reported when a Gateway has nothing to call.
var ErrNoCandidates = errors.New("no chat backend configured")

// Candidate is one backend the gateway may call.
type Candidate struct {
	// Provider is the canonical provider name, e.g. "openai".
	Provider string

	// Model is the model the backend calls.
	Model string

	// Chat performs the completion.
	Chat model.ChatModel

	// Timeout overrides the gateway default for this candidate.
	Timeout time.Duration
}

// Outcome tags how a Result was produced.
type Outcome int

const (
	// OutcomeSuccess means the first candidate answered.
	OutcomeSuccess Outcome = iota

	// OutcomeDegraded means a later candidate answered after an earlier one failed.
	OutcomeDegraded

	// OutcomeFailed means no candidate answered and Text is the apology.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Attempt records one candidate call.
type Attempt struct {
	Provider string
	Model    string
	Duration time.Duration
	Err      error
	Kind     ErrorKind
}

// Result is the tagged outcome of Generate.
type Result struct {
	// Text is the reply, or Apology when Outcome is OutcomeFailed.
	Text    string
	Outcome Outcome

	// Provider and Model identify the candidate that answered. Empty on failure.
	Provider string
	Model    string

	// Usage is the answering candidate's token usage.
	Usage model.Usage

	// Attempts lists every call in order.
	Attempts []Attempt

	// Err is the last candidate error when Outcome is OutcomeFailed.
	Err error
}

// Gateway selects between backends for each request.
type Gateway struct {
	candidates     []Candidate
	defaultTimeout time.Duration
	provider       string
	modelName      string
	offline        bool
	logger         *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSecondary appends a candidate tried after the primary fails.
func WithSecondary(c Candidate) Option {
	return func(g *Gateway) {
		g.candidates = append(g.candidates, c)
	}
}

// WithTimeout sets the default per-candidate timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.defaultTimeout = d
	}
}

// WithLogger sets the logger used for attempt failures.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithStatus overrides the provider and model reported by Provider and
// Model, and marks whether the primary is the offline backend.
func WithStatus(provider, modelName string, offline bool) Option {
	return func(g *Gateway) {
		g.provider = provider
		g.modelName = modelName
		g.offline = offline
	}
}

// New creates a Gateway with primary as the first candidate.
func New(primary Candidate, opts ...Option) *Gateway {
	g := &Gateway{
		candidates:     []Candidate{primary},
		defaultTimeout: DefaultTimeout,
		provider:       primary.Provider,
		modelName:      primary.Model,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate asks each candidate in order until one answers.
//
// Generate never returns an error; inspect Result.Outcome instead.
func (g *Gateway) Generate(ctx context.Context, messages []model.Message) Result {
	result := Result{Outcome: OutcomeFailed, Text: Apology, Err: ErrNoCandidates}

	for i, c := range g.candidates {
		if c.Chat == nil {
			continue
		}

		out, attempt := g.attempt(ctx, c, messages)
		result.Attempts = append(result.Attempts, attempt)

		if attempt.Err == nil {
			result.Text = out.Text
			result.Usage = out.Usage
			result.Provider = c.Provider
			result.Model = c.Model
			result.Err = nil
			result.Outcome = OutcomeSuccess
			if i > 0 {
				result.Outcome = OutcomeDegraded
			}
			return result
		}

		result.Err = attempt.Err
		g.logger.WarnContext(ctx, "chat backend failed",
			slog.String("provider", c.Provider),
			slog.String("model", c.Model),
			slog.String("kind", attempt.Kind.String()),
			slog.Int("attempt", i+1),
			slog.Any("error", attempt.Err),
		)

		// A caller that went away gets nothing from further candidates.
		if ctx.Err() != nil {
			break
		}
	}

	return result
}

func (g *Gateway) attempt(ctx context.Context, c Candidate, messages []model.Message) (model.ChatOut, Attempt) {
	attempt := Attempt{Provider: c.Provider, Model: c.Model}

	callCtx := ctx
	if timeout := candidateTimeout(c, g.defaultTimeout); timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.Chat.Chat(callCtx, messages)
	attempt.Duration = time.Since(start)

	if err == nil && strings.TrimSpace(out.Text) == "" {
		err = errEmptyReply
	}
	if err == nil && callCtx.Err() == context.DeadlineExceeded {
		err = callCtx.Err()
	}
	if err != nil {
		attempt.Err = err
		attempt.Kind = Classify(err)
		return model.ChatOut{}, attempt
	}

	out.Text = strings.TrimSpace(out.Text)
	return out, attempt
}

var errEmptyReply = errors.New("backend returned an empty reply")

// candidateTimeout resolves the timeout for a candidate:
// candidate override, then gateway default, then none.
func candidateTimeout(c Candidate, defaultTimeout time.Duration) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// Probe sends a short greeting to the primary candidate.
func (g *Gateway) Probe(ctx context.Context, timeout time.Duration) error {
	if len(g.candidates) == 0 || g.candidates[0].Chat == nil {
		return ErrNoCandidates
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := g.candidates[0].Chat.Chat(probeCtx, []model.Message{{Role: model.RoleUser, Content: "Hello"}})
	if err != nil {
		return fmt.Errorf("probe %s/%s: %w", g.candidates[0].Provider, g.candidates[0].Model, err)
	}
	return nil
}

// Offline reports whether the primary candidate is the offline backend.
func (g *Gateway) Offline() bool {
	return g.offline
}

// Provider returns the configured provider name.
func (g *Gateway) Provider() string {
	return g.provider
}

// Model returns the configured primary model.
func (g *Gateway) Model() string {
	return g.modelName
}

// Candidates returns a copy of the candidate list.
func (g *Gateway) Candidates() []Candidate {
	out := make([]Candidate, len(g.candidates))
	copy(out, g.candidates)
	return out
}
