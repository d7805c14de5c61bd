// ABOUTME: Prometheus collectors for gateway activity
// ABOUTME: Counters for messages, webhook outcomes, rate limiting and poll votes

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so components don't need metrics wiring in
// tests.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived  prometheus.Counter
	MessagesSent      prometheus.Counter
	RateLimited       prometheus.Counter
	WebhookDeliveries *prometheus.CounterVec
	PollVotes         prometheus.Counter
	CallbackAnswers   prometheus.Counter
}

// New creates and registers the gateway collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botgateway_messages_received_total",
			Help: "Incoming messages enqueued for bots.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botgateway_messages_sent_total",
			Help: "Outgoing bot messages accepted.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botgateway_rate_limited_total",
			Help: "Sends rejected by the rate limiter.",
		}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botgateway_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome.",
		}, []string{"outcome"}),
		PollVotes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botgateway_poll_votes_total",
			Help: "Poll votes recorded.",
		}),
		CallbackAnswers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botgateway_callback_answers_total",
			Help: "Callback queries answered.",
		}),
	}

	reg.MustRegister(
		m.MessagesReceived, m.MessagesSent, m.RateLimited,
		m.WebhookDeliveries, m.PollVotes, m.CallbackAnswers,
	)
	return m
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The Inc helpers tolerate a nil receiver so components can run
// without metrics wiring.

func (m *Metrics) IncReceived() {
	if m != nil {
		m.MessagesReceived.Inc()
	}
}

func (m *Metrics) IncSent() {
	if m != nil {
		m.MessagesSent.Inc()
	}
}

func (m *Metrics) IncRateLimited() {
	if m != nil {
		m.RateLimited.Inc()
	}
}

func (m *Metrics) IncWebhook(outcome string) {
	if m != nil {
		m.WebhookDeliveries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncPollVote() {
	if m != nil {
		m.PollVotes.Inc()
	}
}

func (m *Metrics) IncCallbackAnswer() {
	if m != nil {
		m.CallbackAnswers.Inc()
	}
}
