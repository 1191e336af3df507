// Package observability registers service-level Prometheus metrics.
package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/petcare/internal/domain"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "petcare",
		Subsystem: "store",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity appended to the store.",
	})

	activitiesLoggedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "petcare",
		Subsystem: "activities",
		Name:      "logged_total",
		Help:      "Number of activities accepted, labeled by type and source.",
	}, []string{"type", "source"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "petcare",
		Subsystem: "activities",
		Name:      "rejected_total",
		Help:      "Number of submissions rejected by validation, labeled by reason.",
	}, []string{"reason", "source"})

	chatRepliesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "petcare",
		Subsystem: "chat",
		Name:      "replies_total",
		Help:      "Number of assistant replies, labeled by the matched rule.",
	}, []string{"rule"})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, activitiesLoggedCounter, rejectedCounter, chatRepliesCounter)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordActivityLogged counts an accepted activity.
func RecordActivityLogged(activityType, source string) {
	activitiesLoggedCounter.WithLabelValues(activityType, source).Inc()
}

// RecordRejected counts a rejected submission by the failing rule.
func RecordRejected(err error, source string) {
	reason := "other"
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		reason = vErr.Field
	case errors.Is(err, domain.ErrFutureTimestamp):
		reason = "future_timestamp"
	}
	rejectedCounter.WithLabelValues(reason, source).Inc()
}

// RecordChatReply counts a reply by rule name.
func RecordChatReply(rule string) {
	chatRepliesCounter.WithLabelValues(rule).Inc()
}
