// Package metrics holds the Prometheus collectors of the node.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "krist",
		Subsystem: "mining",
		Name:      "submissions_total",
		Help:      "Count of block submissions by result.",
	}, []string{"result"})
	submissionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "krist",
		Subsystem: "mining",
		Name:      "submission_duration_seconds",
		Help:      "Duration of block submissions by result.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})
	currentWork = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "krist",
		Subsystem: "mining",
		Name:      "work",
		Help:      "Current proof-of-work difficulty.",
	})

	wsSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "krist",
		Subsystem: "websocket",
		Name:      "sessions",
		Help:      "Number of live websocket sessions.",
	})
	wsEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "krist",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Count of broadcast events by category.",
	}, []string{"event"})
	wsRecipientsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "krist",
		Subsystem: "websocket",
		Name:      "recipients_total",
		Help:      "Count of sessions notified by event category.",
	}, []string{"event"})
	wsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "krist",
		Subsystem: "websocket",
		Name:      "dropped_messages_total",
		Help:      "Count of messages dropped because a session outbox was full.",
	})

	bridgePublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "krist",
		Subsystem: "bridge",
		Name:      "publish_total",
		Help:      "Count of events published through the bridge.",
	}, []string{"event", "status"})

	idempotencyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "krist",
		Subsystem: "http",
		Name:      "idempotency_total",
		Help:      "Count of requests by idempotency status.",
	}, []string{"status"})
)

// ObserveSubmission records one block submission
func ObserveSubmission(result string, started time.Time) {
	if result == "" {
		result = "unknown"
	}
	submissionsTotal.WithLabelValues(result).Inc()
	submissionDuration.WithLabelValues(result).Observe(time.Since(started).Seconds())
}

// SetWork records the current work
func SetWork(w uint64) {
	currentWork.Set(float64(w))
}

// SetSessions records the number of live sessions
func SetSessions(n int) {
	wsSessions.Set(float64(n))
}

// ObserveBroadcast records one broadcast and how many sessions received it
func ObserveBroadcast(event string, recipients int) {
	wsEventsTotal.WithLabelValues(event).Inc()
	wsRecipientsTotal.WithLabelValues(event).Add(float64(recipients))
}

// IncDropped records one dropped session message
func IncDropped() {
	wsDroppedTotal.Inc()
}

// ObserveBridgePublish records one bridge publish attempt
func ObserveBridgePublish(event string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	if event == "" {
		event = "unknown"
	}
	bridgePublishTotal.WithLabelValues(event, status).Inc()
}

// ObserveIdempotency records the idempotency status of a request
func ObserveIdempotency(status string) {
	idempotencyTotal.WithLabelValues(status).Inc()
}
