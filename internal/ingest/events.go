package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventTypeBlobCreated is the canonical creation event type. Provider
// variants ending in ".BlobCreated" are accepted as well.
const EventTypeBlobCreated = "blob.created"

// BlobEvent is one normalized notification of object creation.
type BlobEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Container   string    `json:"container"`
	ObjectKey   string    `json:"object_key"`
	SizeBytes   uint64    `json:"size_bytes"`
	ContentType string    `json:"content_type"`
	EventTime   time.Time `json:"event_time"`
	ReceivedAt  time.Time `json:"received_at"`
}

// wireEvent mirrors the inbound webhook body. Some sources put the object
// path in "subject" instead of "object_key".
type wireEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Subject     string    `json:"subject"`
	ObjectKey   string    `json:"object_key"`
	Container   string    `json:"container"`
	Size        uint64    `json:"size"`
	ContentType string    `json:"content_type"`
	EventTime   time.Time `json:"event_time"`
}

// ParseEvent validates and normalizes a raw notification payload. Payloads
// missing event_id, object_key, or container fail with ErrMalformedEvent;
// non-creation event types fail with ErrUnsupportedEventType so the caller
// can acknowledge and drop them without dispatching.
func ParseEvent(raw []byte) (BlobEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return BlobEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	objectKey := w.ObjectKey
	if objectKey == "" {
		objectKey = strings.TrimPrefix(w.Subject, "/")
	}

	switch {
	case w.EventID == "":
		return BlobEvent{}, fmt.Errorf("%w: missing event_id", ErrMalformedEvent)
	case objectKey == "":
		return BlobEvent{}, fmt.Errorf("%w: missing object_key", ErrMalformedEvent)
	case w.Container == "":
		return BlobEvent{}, fmt.Errorf("%w: missing container", ErrMalformedEvent)
	}

	if !isCreationType(w.EventType) {
		return BlobEvent{}, fmt.Errorf("%w: %q", ErrUnsupportedEventType, w.EventType)
	}

	return BlobEvent{
		EventID:     w.EventID,
		EventType:   EventTypeBlobCreated,
		Container:   w.Container,
		ObjectKey:   objectKey,
		SizeBytes:   w.Size,
		ContentType: w.ContentType,
		EventTime:   w.EventTime,
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

func isCreationType(eventType string) bool {
	return eventType == EventTypeBlobCreated || strings.HasSuffix(eventType, ".BlobCreated")
}
