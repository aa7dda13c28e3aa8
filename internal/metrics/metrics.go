package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "classbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time spent serving HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	bookingOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_outcomes_total",
			Help:      "Booking creation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Reserve and release transitions by outcome.",
		},
		[]string{"op", "outcome"},
	)

	generatorAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generator_attempts_total",
			Help:      "Synthetic booking submissions by result.",
		},
		[]string{"result"},
	)

	eventsForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_forwarded_total",
			Help:      "Domain events forwarded to the external sink by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bookingOutcomes,
			reservations,
			generatorAttempts,
			eventsForwarded,
		)
	})
}

func ObserveHTTP(route, code string, d time.Duration) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func IncBookingOutcome(outcome string) {
	bookingOutcomes.WithLabelValues(outcome).Inc()
}

func IncReservation(op, outcome string) {
	reservations.WithLabelValues(op, outcome).Inc()
}

func IncGeneratorAttempt(result string) {
	generatorAttempts.WithLabelValues(result).Inc()
}

func IncEventForwarded(result string) {
	eventsForwarded.WithLabelValues(result).Inc()
}
