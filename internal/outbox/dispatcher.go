// Package outbox buffers accepted activities and delivers them to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/segmentio/kafka-go"

	"example.com/petcare/internal/domain"
	"example.com/petcare/internal/events"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Config holds dispatcher tunables. ShutdownTimeout bounds the final flush
// after the context is cancelled.
type Config struct {
	Topic           string
	PollInterval    time.Duration
	BatchSize       int
	QueueSize       int
	MaxRetries      int
	BaseDelay       time.Duration
	ShutdownTimeout time.Duration
}

// Dispatcher queues activity events in memory and drains them to Kafka in
// batches, routing failed deliveries to a dead-letter list.
type Dispatcher struct {
	producer         messageWriter
	registry         schemaRegistrar
	dlq              *DeadLetters
	logger           *log.Logger
	topic            string
	pollInterval     time.Duration
	batchSize        int
	shutdownTimeout  time.Duration
	queue            chan Message
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}

	// mu guards stopped against concurrent Publish calls.
	mu      sync.RWMutex
	stopped bool
}

// NewDispatcher constructs a Dispatcher. registry may be nil, in which case
// records are framed with schema id 0.
func NewDispatcher(producer messageWriter, registry schemaRegistrar, cfg Config, logger *log.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		producer:         producer,
		registry:         registry,
		dlq:              NewDeadLetters(cfg.MaxRetries, cfg.BaseDelay),
		logger:           logger.WithPrefix("outbox"),
		topic:            cfg.Topic,
		pollInterval:     cfg.PollInterval,
		batchSize:        cfg.BatchSize,
		shutdownTimeout:  cfg.ShutdownTimeout,
		queue:            make(chan Message, cfg.QueueSize),
		shutdownComplete: make(chan struct{}),
	}
}

// Publish implements domain.Publisher. It never blocks; events are dropped
// when the queue is full or the dispatcher has stopped.
func (d *Dispatcher) Publish(ctx context.Context, activity domain.Activity) {
	msg, err := newActivityLoggedMessage(d.topic, activity)
	if err != nil {
		d.logger.Error("encode event", "activity_id", activity.ID, "err", err)
		droppedCounter.Inc()
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.logger.Warn("dispatcher stopped, dropping event", "activity_id", activity.ID)
		droppedCounter.Inc()
		return
	}

	select {
	case d.queue <- msg:
		queueDepthGauge.Set(float64(len(d.queue)))
	default:
		d.logger.Warn("queue full, dropping event", "activity_id", activity.ID)
		droppedCounter.Inc()
	}
}

// Start launches the polling loop. It should be called in a goroutine.
// On cancellation the queue is flushed once more before Start returns.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("dispatch batch", "err", err)
		}
		if _, err := d.dlq.RunOnce(ctx, d.batchSize, d.deliver); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("dead-letter retry", "err", err)
		}

		select {
		case <-ctx.Done():
			d.flush()
			return
		case <-ticker.C:
		}
	}
}

// flush stops accepting events and delivers what is still queued. Events
// that cannot be delivered before the shutdown timeout land in the
// dead-letter list, so every accepted event is either delivered or counted.
func (d *Dispatcher) flush() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout)
	defer cancel()

	for len(d.queue) > 0 {
		if err := d.processBatch(ctx); err != nil {
			d.logger.Error("final dispatch batch", "err", err)
		}
	}
	if pending := d.dlq.Backlog(); pending > 0 {
		d.logger.Warn("stopped with undelivered events", "dead_letters", pending)
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

// DeadLetters exposes the dead-letter list for inspection.
func (d *Dispatcher) DeadLetters() *DeadLetters {
	return d.dlq
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages := d.drain()
	if len(messages) == 0 {
		return nil
	}
	defer func() {
		batchDuration.Observe(time.Since(start).Seconds())
	}()

	if err := d.deliver(ctx, messages); err != nil {
		failedCounter.Add(float64(len(messages)))
		d.logger.Warn("delivery failure, routing to dead-letter list", "count", len(messages), "err", err)
		for _, msg := range messages {
			d.dlq.Add(msg, err.Error())
		}
		return nil
	}

	deliveredCounter.Add(float64(len(messages)))
	return nil
}

func (d *Dispatcher) drain() []Message {
	messages := make([]Message, 0, d.batchSize)
	for len(messages) < d.batchSize {
		select {
		case msg := <-d.queue:
			messages = append(messages, msg)
		default:
			queueDepthGauge.Set(float64(len(d.queue)))
			return messages
		}
	}
	queueDepthGauge.Set(float64(len(d.queue)))
	return messages
}

func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	batches := make(map[string][]kafka.Message)

	for _, msg := range messages {
		meta, ok := schemaCatalog[msg.EventType]
		if !ok {
			return fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
		}

		schemaID, err := d.schemaID(ctx, msg.SchemaSubject, meta.Schema)
		if err != nil {
			return err
		}

		record := kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: encodeWireFormat(schemaID, msg.Payload),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
			},
		}
		batches[msg.Topic] = append(batches[msg.Topic], record)
	}

	for topic, batch := range batches {
		if err := d.producer.WriteMessages(ctx, topic, batch...); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	if d.registry == nil {
		return 0, nil
	}
	cacheKey := fmt.Sprintf("%s::%s", subject, schema)
	if cached, found := d.schemaIDCache.Load(cacheKey); found {
		return cached.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

// Message is a queued event awaiting delivery.
type Message struct {
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

func newActivityLoggedMessage(topic string, activity domain.Activity) (Message, error) {
	body, err := json.Marshal(events.NewActivityLogged(activity))
	if err != nil {
		return Message{}, err
	}
	return Message{
		EventType:     events.TypeActivityLogged,
		Topic:         topic,
		SchemaSubject: topic + "-value",
		PartitionKey:  activity.PetName,
		Payload:       body,
	}, nil
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeActivityLogged: {
		Schema: activityLoggedSchema,
	},
}
