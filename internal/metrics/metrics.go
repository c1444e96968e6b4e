// Package metrics holds the Prometheus collectors for the ticketing service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ticketing"

// Registration outcomes used as the "outcome" label.
const (
	OutcomeSuccess           = "success"
	OutcomeAlreadyRegistered = "already_registered"
	OutcomeEventFull         = "event_full"
	OutcomeNotFound          = "not_found"
	OutcomeInvalid           = "invalid"
	OutcomeTransient         = "transient_conflict"
	OutcomeCancelled         = "cancelled"
	OutcomeStorage           = "storage_failure"
)

// Registry is the registry served on /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	// RegistrationAttempts counts registration attempts by outcome.
	RegistrationAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_attempts_total",
			Help:      "Total number of registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RegistrationDuration records end-to-end workflow latency.
	RegistrationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registration_duration_seconds",
			Help:      "Registration workflow latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	// TransactionRetries counts whole-transaction retries caused by lock
	// timeouts, serialization failures, or deadlocks.
	TransactionRetries = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_tx_retries_total",
			Help:      "Registration transaction retries by cause",
		},
		[]string{"cause"},
	)

	// TicketCodeCollisions counts regenerated ticket codes.
	TicketCodeCollisions = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_code_collisions_total",
			Help:      "Ticket codes regenerated after a uniqueness collision",
		},
	)
)
