package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"example.com/petcare/internal/domain"
	"example.com/petcare/internal/events"
)

func TestDispatcherDeliversFramedEvents(t *testing.T) {
	ctx := context.Background()
	writer := &stubWriter{}
	registry := &stubRegistry{id: 7}
	d := newTestDispatcher(writer, registry)

	before := counterValue(t, deliveredCounter)
	d.Publish(ctx, sampleActivity("1_abcdef01"))
	d.Publish(ctx, sampleActivity("2_abcdef02"))

	require.NoError(t, d.processBatch(ctx))

	require.Len(t, writer.written["pet_activity_events"], 2)
	require.Equal(t, 1, registry.calls, "schema id is cached per subject")
	require.Equal(t, before+2, counterValue(t, deliveredCounter))

	record := writer.written["pet_activity_events"][0]
	require.Equal(t, "Rex", string(record.Key))
	require.Equal(t, byte(0), record.Value[0])
	require.Equal(t, uint32(7), binary.BigEndian.Uint32(record.Value[1:5]))

	var payload events.ActivityLogged
	require.NoError(t, json.Unmarshal(record.Value[5:], &payload))
	require.Equal(t, "1_abcdef01", payload.ActivityID)
	require.Equal(t, "walk", payload.Type)
	require.Equal(t, float64(30), payload.Amount)

	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, events.TypeActivityLogged, headers["event_type"])
	require.Equal(t, "pet_activity_events-value", headers["schema_subject"])
}

func TestDispatcherRoutesFailuresToDeadLetters(t *testing.T) {
	ctx := context.Background()
	writer := &stubWriter{err: errors.New("broker unavailable")}
	d := newTestDispatcher(writer, nil)

	d.Publish(ctx, sampleActivity("1_abcdef01"))
	require.NoError(t, d.processBatch(ctx))

	entries := d.DeadLetters().Snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, "broker unavailable", entries[0].Reason)

	writer.setErr(nil)
	processed, err := d.DeadLetters().RunOnce(ctx, 10, d.deliver)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Empty(t, d.DeadLetters().Snapshot())
	require.Len(t, writer.written["pet_activity_events"], 1)
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	d := NewDispatcher(&stubWriter{}, nil, Config{Topic: "pet_activity_events", QueueSize: 1}, log.New(io.Discard))

	before := counterValue(t, droppedCounter)
	d.Publish(context.Background(), sampleActivity("1_a"))
	d.Publish(context.Background(), sampleActivity("2_b"))

	require.Equal(t, before+1, counterValue(t, droppedCounter))
	require.Len(t, d.drain(), 1)
}

func TestDeadLettersBackoffAndQuarantine(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	l := NewDeadLetters(2, time.Minute)
	l.now = func() time.Time { return now }

	l.Add(Message{Topic: "t", EventType: events.TypeActivityLogged}, "boom")
	failing := func(context.Context, []Message) error { return errors.New("still down") }

	processed, err := l.RunOnce(ctx, 10, failing)
	require.NoError(t, err)
	require.Zero(t, processed)
	entry := l.Snapshot()[0]
	require.Equal(t, 1, entry.RetryCount)
	require.Equal(t, now.Add(time.Minute), entry.NextRetryAt)

	// not yet due
	processed, err = l.RunOnce(ctx, 10, failing)
	require.NoError(t, err)
	require.Zero(t, processed)
	require.Equal(t, 1, l.Snapshot()[0].RetryCount)

	now = now.Add(time.Minute)
	_, _ = l.RunOnce(ctx, 10, failing)
	entry = l.Snapshot()[0]
	require.Equal(t, 2, entry.RetryCount)
	require.Equal(t, now.Add(2*time.Minute), entry.NextRetryAt)

	now = now.Add(2 * time.Minute)
	_, _ = l.RunOnce(ctx, 10, failing)
	entry = l.Snapshot()[0]
	require.NotNil(t, entry.QuarantinedAt)
	require.Equal(t, "retry limit reached", entry.Reason)
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/pets-value/versions/latest":
			if !registered {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"id": 11}`))
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/pets-value/versions":
			registered = true
			_, _ = w.Write([]byte(`{"id": 11}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "pets-value", activityLoggedSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
	require.True(t, registered)

	var nilClient *SchemaRegistryClient
	id, err = nilClient.EnsureSchema(context.Background(), "pets-value", activityLoggedSchema)
	require.NoError(t, err)
	require.Zero(t, id)
}

func newTestDispatcher(writer messageWriter, registry schemaRegistrar) *Dispatcher {
	return NewDispatcher(writer, registry, Config{Topic: "pet_activity_events"}, log.New(io.Discard))
}

func sampleActivity(id string) domain.Activity {
	ts := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	return domain.Activity{
		ID:         id,
		PetName:    "Rex",
		Type:       domain.ActivityTypeWalk,
		Amount:     30,
		Timestamp:  ts,
		RecordedAt: ts.Add(time.Minute),
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

type stubWriter struct {
	mu      sync.Mutex
	err     error
	written map[string][]kafka.Message
}

func (w *stubWriter) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *stubWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.written == nil {
		w.written = make(map[string][]kafka.Message)
	}
	w.written[topic] = append(w.written[topic], msgs...)
	return nil
}

type stubRegistry struct {
	id    int
	calls int
}

func (r *stubRegistry) EnsureSchema(context.Context, string, string) (int, error) {
	r.calls++
	return r.id, nil
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	writer := &stubWriter{}
	d := NewDispatcher(writer, nil, Config{Topic: "pet_activity_events", PollInterval: 10 * time.Millisecond}, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	go d.Start(ctx)

	d.Publish(ctx, sampleActivity("1_abcdef01"))
	require.Eventually(t, func() bool {
		writer.mu.Lock()
		defer writer.mu.Unlock()
		return len(writer.written["pet_activity_events"]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	d.Wait()
}

func TestDispatcherObservesBatchDuration(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(&slowWriter{delay: 50 * time.Millisecond}, nil)

	before := histogramSum(t, batchDuration)
	d.Publish(ctx, sampleActivity("1_abcdef01"))
	require.NoError(t, d.processBatch(ctx))

	require.GreaterOrEqual(t, histogramSum(t, batchDuration)-before, 0.05)
}

func TestDispatcherFlushesQueueOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	writer := &stubWriter{}
	d := NewDispatcher(writer, nil, Config{Topic: "pet_activity_events", PollInterval: time.Hour}, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	go d.Start(ctx)

	d.Publish(ctx, sampleActivity("1_abcdef01"))
	d.Publish(ctx, sampleActivity("2_abcdef02"))
	cancel()
	d.Wait()

	writer.mu.Lock()
	require.Len(t, writer.written["pet_activity_events"], 2)
	writer.mu.Unlock()

	before := counterValue(t, droppedCounter)
	d.Publish(context.Background(), sampleActivity("3_abcdef03"))
	require.Equal(t, before+1, counterValue(t, droppedCounter))
	require.Empty(t, d.drain())
}

func TestDispatcherFlushRoutesUndeliveredToDeadLetters(t *testing.T) {
	writer := &stubWriter{err: errors.New("broker unavailable")}
	d := NewDispatcher(writer, nil, Config{Topic: "pet_activity_events", PollInterval: time.Hour}, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	go d.Start(ctx)

	d.Publish(ctx, sampleActivity("1_abcdef01"))
	cancel()
	d.Wait()

	require.Equal(t, 1, d.DeadLetters().Backlog())
	require.Len(t, d.DeadLetters().Snapshot(), 1)
}

func TestDeadLettersEvictOldestQuarantined(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	l := NewDeadLetters(1, time.Minute)
	l.now = func() time.Time { return now }
	l.maxQuarantined = 2

	for _, key := range []string{"a", "b", "c"} {
		l.Add(Message{Topic: "t", EventType: events.TypeActivityLogged, PartitionKey: key}, "boom")
	}
	failing := func(context.Context, []Message) error { return errors.New("still down") }

	_, err := l.RunOnce(ctx, 10, failing)
	require.NoError(t, err)
	require.Equal(t, 3, l.Backlog())

	now = now.Add(time.Minute)
	processed, err := l.RunOnce(ctx, 10, failing)
	require.NoError(t, err)
	require.Zero(t, processed)
	require.Zero(t, l.Backlog())

	entries := l.Snapshot()
	require.Len(t, entries, 2)
	require.Equal(t, "b", entries[0].Message.PartitionKey)
	require.Equal(t, "c", entries[1].Message.PartitionKey)
	for _, e := range entries {
		require.NotNil(t, e.QuarantinedAt)
	}
}

func histogramSum(t *testing.T, h prometheus.Histogram) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleSum()
}

type slowWriter struct {
	delay time.Duration
}

func (w *slowWriter) WriteMessages(context.Context, string, ...kafka.Message) error {
	time.Sleep(w.delay)
	return nil
}
