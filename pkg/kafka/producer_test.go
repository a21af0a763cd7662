package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	calls    int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestProducer(w Writer, cfg Config) *Producer {
	return NewProducer(w, cfg, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestConfig_Topic(t *testing.T) {
	assert.Equal(t, "games.merged", Config{}.Topic("games.merged"))
	assert.Equal(t, "fern.games.merged", Config{TopicPrefix: "fern"}.Topic("games.merged"))
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Brokers: []string{"localhost:9092"}}.Enabled())
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w, Config{TopicPrefix: "fern"})

	event, err := NewEvent("games.merged", "42", map[string]int64{"primary_id": 42})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), "games.merged", event))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "fern.games.merged", msg.Topic)
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, "games.merged", Header(msg, "event_type"))
	assert.Equal(t, SchemaVersion, Header(msg, "schema_version"))
	assert.Empty(t, Header(msg, "traceparent"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.JSONEq(t, `{"primary_id":42}`, string(decoded.Data))
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestProducer_BreakerOpens(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newTestProducer(w, Config{FailureThreshold: 2, OpenTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		event, err := NewEvent("etl.completed", "run", struct{}{})
		require.NoError(t, err)
		err = p.Publish(ctx, "etl.completed", event)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	event, err := NewEvent("etl.completed", "run", struct{}{})
	require.NoError(t, err)
	err = p.Publish(ctx, "etl.completed", event)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, w.calls, "open breaker short-circuits the writer")
}
