// Package metrics holds the domain Prometheus collectors. HTTP-level metrics
// live in the middleware package; everything here counts backbone events so
// duplicate suppression, posting health, and grant volume are observable.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// UpdatesDispatched counts inbound updates by outcome:
	// handled | duplicate | ignored | error.
	UpdatesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_dispatched_total",
			Help: "Inbound updates by dispatch outcome.",
		},
		[]string{"outcome"},
	)

	// PostingJobs counts worker deliveries by result: sent | retried | failed.
	PostingJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_posting_jobs_total",
			Help: "Posting job delivery attempts by result.",
		},
		[]string{"result"},
	)

	// PostingQueueDepth gauges pending jobs observed at each worker poll.
	PostingQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_posting_queue_depth",
			Help: "Pending posting jobs due at the last worker poll.",
		},
	)

	// PaymentEvents counts normalized payment events by canonical status.
	PaymentEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_payment_events_total",
			Help: "Normalized payment events by canonical status.",
		},
		[]string{"status"},
	)

	// AccessGrants counts grant attempts by outcome:
	// granted | duplicate | rejected | error.
	AccessGrants = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_access_grants_total",
			Help: "Access grant attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// RelayMessages counts bridge traffic by direction: in | out | denied.
	RelayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_relay_messages_total",
			Help: "Relay bridge messages by direction.",
		},
		[]string{"direction"},
	)

	// RelayHeaderEntries gauges live reply-routing entries in the header map.
	RelayHeaderEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_relay_header_entries",
			Help: "Reply-routing entries currently held in the header map.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		UpdatesDispatched,
		PostingJobs,
		PostingQueueDepth,
		PaymentEvents,
		AccessGrants,
		RelayMessages,
		RelayHeaderEntries,
	)
}
