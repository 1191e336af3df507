// Package consumer ingests device-submitted activities from Kafka.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/segmentio/kafka-go"

	"example.com/petcare/internal/events"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded submissions.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a decoded submission record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	EventType string
	SchemaID  int
	Source    string
	Event     events.ActivitySubmitted
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.Default().WithPrefix("consumer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Error("fetch", "err", err)
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Warn("decode", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", decodeErr)
			recordDecodeError(msg.Topic)
			// Malformed records are committed so they cannot block the partition.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Error("commit after decode failure", "err", commitErr)
			}
			continue
		}

		// Not committed, but a later commit on the partition moves past it.
		if handleErr := p.handler.Handle(ctx, event); handleErr != nil {
			p.logger.Error("handle", "event_type", event.EventType, "offset", event.Offset, "err", handleErr)
			recordHandlerError(event)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Error("commit", "err", commitErr)
		} else {
			recordProcessed(event)
		}
	}
}

// decodeMessage accepts plain JSON values as well as Schema Registry framed
// ones (magic byte 0 followed by a 4-byte schema id).
func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) == 0 {
		return Message{}, errors.New("empty payload")
	}

	eventType := events.TypeActivitySubmitted
	if value, ok := headerValue(msg, "event_type"); ok {
		eventType = string(value)
	}
	if eventType != events.TypeActivitySubmitted {
		return Message{}, fmt.Errorf("unsupported event_type %q", eventType)
	}

	body := msg.Value
	schemaID := 0
	if body[0] == 0 {
		if len(body) < 5 {
			return Message{}, fmt.Errorf("invalid payload length: %d", len(body))
		}
		schemaID = int(binary.BigEndian.Uint32(body[1:5]))
		body = body[5:]
	}

	var event events.ActivitySubmitted
	if err := json.Unmarshal(body, &event); err != nil {
		return Message{}, fmt.Errorf("decode payload: %w", err)
	}

	source := event.Source
	if source == "" {
		source = "kafka"
	}

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		EventType: eventType,
		SchemaID:  schemaID,
		Source:    source,
		Event:     event,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
