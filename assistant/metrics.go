package assistant

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the chat service.
//
// Metrics exposed (all namespaced with "vuai_"):
//
//  1. chat_requests_total (counter): chat requests by outcome
//     (success, degraded, failed, rejected, error).
//  2. provider_attempts_total (counter): backend calls by provider, model and
//     result (ok or an error kind such as timeout).
//  3. provider_latency_ms (histogram): backend call duration by provider and model.
//  4. fallbacks_total (counter): requests answered by a secondary candidate.
//  5. active_conversations (gauge): conversations held in the cache.
//  6. tokens_total (counter): tokens by model and direction (input, output).
//  7. cost_usd_total (counter): estimated spend by model.
//  8. http_requests_total (counter): HTTP requests by route and status code.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := assistant.NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	chatRequests        *prometheus.CounterVec
	providerAttempts    *prometheus.CounterVec
	providerLatency     *prometheus.HistogramVec
	fallbacks           prometheus.Counter
	activeConversations prometheus.Gauge
	tokens              *prometheus.CounterVec
	cost                *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
}

// NewMetrics creates and registers the service metrics with registry. A nil
// registry uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		chatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vuai",
			Name:      "chat_requests_total",
			Help:      "Chat requests handled, by outcome",
		}, []string{"outcome"}),

		providerAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vuai",
			Name:      "provider_attempts_total",
			Help:      "Chat backend calls, by provider, model and result",
		}, []string{"provider", "model", "result"}),

		providerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vuai",
			Name:      "provider_latency_ms",
			Help:      "Chat backend call duration in milliseconds",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"provider", "model"}),

		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vuai",
			Name:      "fallbacks_total",
			Help:      "Chat requests answered by a secondary backend",
		}),

		activeConversations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vuai",
			Name:      "active_conversations",
			Help:      "Conversations currently held in the cache",
		}),

		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vuai",
			Name:      "tokens_total",
			Help:      "Tokens consumed, by model and direction",
		}, []string{"model", "direction"}),

		cost: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vuai",
			Name:      "cost_usd_total",
			Help:      "Estimated backend spend in USD, by model",
		}, []string{"model"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vuai",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status code",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) on() bool {
	return m != nil
}

// RecordChat counts a finished chat request.
func (m *Metrics) RecordChat(outcome string) {
	if !m.on() {
		return
	}
	m.chatRequests.WithLabelValues(outcome).Inc()
}

// RecordAttempt records one backend call. result is "ok" or an error kind.
func (m *Metrics) RecordAttempt(provider, model, result string, latency time.Duration) {
	if !m.on() {
		return
	}
	m.providerAttempts.WithLabelValues(provider, model, result).Inc()
	m.providerLatency.WithLabelValues(provider, model).Observe(float64(latency.Milliseconds()))
}

// RecordFallback counts a request answered by a secondary backend.
func (m *Metrics) RecordFallback() {
	if !m.on() {
		return
	}
	m.fallbacks.Inc()
}

// SetActiveConversations updates the cached conversation gauge.
func (m *Metrics) SetActiveConversations(n int) {
	if !m.on() {
		return
	}
	m.activeConversations.Set(float64(n))
}

// RecordUsage adds token counts and estimated cost for a model.
func (m *Metrics) RecordUsage(model string, inputTokens, outputTokens int, costUSD float64) {
	if !m.on() {
		return
	}
	m.tokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.tokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	if costUSD > 0 {
		m.cost.WithLabelValues(model).Add(costUSD)
	}
}

// RecordHTTP counts an HTTP response.
func (m *Metrics) RecordHTTP(route string, code int) {
	if !m.on() {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
