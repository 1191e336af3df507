package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "petcare",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of activity events successfully published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "petcare",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of activity events that failed to publish and were routed to the dead-letter list.",
	})

	droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "petcare",
		Subsystem: "outbox",
		Name:      "events_dropped_total",
		Help:      "Number of activity events dropped because the queue was full, the dispatcher had stopped or the payload could not be encoded.",
	})

	queueDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "petcare",
		Subsystem: "outbox",
		Name:      "queued_events",
		Help:      "Current number of events waiting in the outbox queue.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "petcare",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent draining and delivering outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "petcare",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Number of events routed to the dead-letter list, labeled by topic.",
	}, []string{"topic"})

	dlqProcessedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "petcare",
		Subsystem: "dlq",
		Name:      "messages_processed_total",
		Help:      "Number of dead-letter entries successfully redelivered.",
	}, []string{"topic", "event_type"})

	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "petcare",
		Subsystem: "dlq",
		Name:      "messages_quarantined_total",
		Help:      "Number of dead-letter entries quarantined after exhausting retries.",
	}, []string{"topic", "event_type"})

	dlqRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "petcare",
		Subsystem: "dlq",
		Name:      "retry_scheduled_total",
		Help:      "Number of times a dead-letter entry was scheduled for a future retry.",
	}, []string{"topic", "event_type"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "petcare",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Current number of dead-letter entries awaiting retry.",
	})
)

func init() {
	prometheus.MustRegister(
		deliveredCounter, failedCounter, droppedCounter, queueDepthGauge, batchDuration,
		dlqCounter, dlqProcessedCounter, dlqQuarantinedCounter, dlqRetryCounter, dlqBacklogGauge,
	)
}
