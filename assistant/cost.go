package assistant

import (
	"fmt"
	"sync"
	"time"
)

// ModelPricing is a model's token price in USD per million tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultModelPricing covers the models this service is configured with by
// default. Unknown models are costed at zero. Prices change; override them
// with SetPricing.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":                      {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                 {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4-turbo":                 {InputPer1M: 10.00, OutputPer1M: 30.00},
	"gpt-3.5-turbo":               {InputPer1M: 0.50, OutputPer1M: 1.50},
	"claude-3-opus-20240229":      {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-3-5-sonnet-20241022":  {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-haiku-20240307":     {InputPer1M: 0.25, OutputPer1M: 1.25},
	"gemini-1.5-pro":              {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash":            {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-1.0-pro":              {InputPer1M: 0.50, OutputPer1M: 1.50},
	"Meta-Llama-3.1-70B-Instruct": {InputPer1M: 0.60, OutputPer1M: 1.20},
}

// DefaultCallHistory is how many recent calls a CostTracker keeps.
const DefaultCallHistory = 1000

// LLMCall is one costed backend call.
type LLMCall struct {
	Model          string    `json:"model"`
	InputTokens    int       `json:"tokens_in"`
	OutputTokens   int       `json:"tokens_out"`
	CostUSD        float64   `json:"cost_usd"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"user_id"`
}

// CostTracker accumulates token usage and estimated spend across all chat
// requests. Only the most recent calls are kept in the history; totals cover
// every call. It is safe for concurrent use.
//
// Usage:
//
//	tracker := assistant.NewCostTracker(0)
//	cost := tracker.Record("gpt-4o", 1000, 500, "u1")
//	fmt.Printf("total: $%.4f\n", tracker.TotalCost())
type CostTracker struct {
	mu           sync.RWMutex
	pricing      map[string]ModelPricing
	calls        []LLMCall
	next         int
	full         bool
	totalCost    float64
	modelCosts   map[string]float64
	inputTokens  int64
	outputTokens int64
	now          func() time.Time
}

// NewCostTracker creates a tracker keeping up to historySize recent calls.
// A non-positive size uses DefaultCallHistory.
func NewCostTracker(historySize int) *CostTracker {
	if historySize <= 0 {
		historySize = DefaultCallHistory
	}
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for model, p := range defaultModelPricing {
		pricing[model] = p
	}
	return &CostTracker{
		pricing:    pricing,
		calls:      make([]LLMCall, historySize),
		modelCosts: make(map[string]float64),
		now:        time.Now,
	}
}

// Record adds a call and returns its estimated cost in USD.
func (ct *CostTracker) Record(model string, inputTokens, outputTokens int, conversationID string) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	pricing := ct.pricing[model]
	cost := float64(inputTokens)/1_000_000*pricing.InputPer1M +
		float64(outputTokens)/1_000_000*pricing.OutputPer1M

	ct.calls[ct.next] = LLMCall{
		Model:          model,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		CostUSD:        cost,
		Timestamp:      ct.now(),
		ConversationID: conversationID,
	}
	ct.next = (ct.next + 1) % len(ct.calls)
	if ct.next == 0 {
		ct.full = true
	}

	ct.totalCost += cost
	ct.modelCosts[model] += cost
	ct.inputTokens += int64(inputTokens)
	ct.outputTokens += int64(outputTokens)
	return cost
}

// TotalCost returns the cumulative estimated cost.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.totalCost
}

// CostByModel returns a copy of the per-model cost breakdown.
func (ct *CostTracker) CostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	costs := make(map[string]float64, len(ct.modelCosts))
	for model, cost := range ct.modelCosts {
		costs[model] = cost
	}
	return costs
}

// TokenUsage returns cumulative input and output tokens.
func (ct *CostTracker) TokenUsage() (inputTokens, outputTokens int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inputTokens, ct.outputTokens
}

// History returns the retained calls, oldest first.
func (ct *CostTracker) History() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	if !ct.full {
		out := make([]LLMCall, ct.next)
		copy(out, ct.calls[:ct.next])
		return out
	}
	out := make([]LLMCall, 0, len(ct.calls))
	out = append(out, ct.calls[ct.next:]...)
	out = append(out, ct.calls[:ct.next]...)
	return out
}

// SetPricing overrides the price of a model.
func (ct *CostTracker) SetPricing(model string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[model] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	return fmt.Sprintf("CostTracker{TotalCost: $%.4f, InputTokens: %d, OutputTokens: %d}",
		ct.totalCost, ct.inputTokens, ct.outputTokens)
}
