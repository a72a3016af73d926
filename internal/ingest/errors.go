package ingest

import "errors"

var (
	// ErrMalformedEvent marks payloads that are permanently rejected; the
	// source must not redeliver them.
	ErrMalformedEvent = errors.New("malformed event payload")

	// ErrUnsupportedEventType marks non-creation events, which are
	// acknowledged and dropped before dispatch.
	ErrUnsupportedEventType = errors.New("unsupported event type")

	// ErrLedgerConflict means another run currently owns the idempotency
	// key. Retryable after a delay.
	ErrLedgerConflict = errors.New("event key already in flight")

	// ErrCapacityExceeded means the dispatch queue is full. Surfaced to the
	// event source as backpressure so its own retry redelivers later.
	ErrCapacityExceeded = errors.New("dispatch queue full")

	// ErrDispatcherClosed means the service is shutting down.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)
