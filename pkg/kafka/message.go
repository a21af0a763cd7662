package kafka

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Event is the envelope every published message uses.
type Event struct {
	EventType     string          `json:"event_type"`
	SchemaVersion string          `json:"schema_version"`
	Key           string          `json:"key"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewEvent marshals data into an envelope.
func NewEvent(eventType, key string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Key:           key,
		Data:          raw,
	}, nil
}

func (e *Event) headers(ctx context.Context) []kafka.Header {
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "schema_version", Value: []byte(e.SchemaVersion)},
	}
	if traceParent := tracing.GetTraceParent(ctx); traceParent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceParent)})
	}
	return headers
}

// Header returns the value of the named header, or "".
func Header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
