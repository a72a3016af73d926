package ingest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T, processor Processor) (*HTTPHandler, *Dispatcher) {
	t.Helper()
	d := newTestDispatcher(processor, &capturingSink{}, 1)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Close(ctx) //nolint:errcheck
	})
	return NewHTTPHandler(d, zap.NewNop(), 1<<20), d
}

func postEvent(h *HTTPHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

const validBody = `{
	"event_id": "e1",
	"event_type": "blob.created",
	"object_key": "invoice.pdf",
	"container": "in",
	"size": 1024
}`

func TestHandleEventEnqueued(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedProcessor{results: []Result{{Status: StatusSuccess}}})

	rec := postEvent(h, validBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enqueued"`)
}

func TestHandleEventMalformed(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedProcessor{results: []Result{{Status: StatusSuccess}}})

	rec := postEvent(h, `{"event_type": "blob.created", "container": "in"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEventNonCreationDropped(t *testing.T) {
	processor := &scriptedProcessor{results: []Result{{Status: StatusSuccess}}}
	h, _ := newTestHandler(t, processor)

	rec := postEvent(h, `{
		"event_id": "e1",
		"event_type": "blob.deleted",
		"object_key": "invoice.pdf",
		"container": "in"
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dropped"`)
	// Dropped events never reach the pool.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, processor.callCount())
}

func TestHandleEventBackpressure(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	processor := &scriptedProcessor{
		results: []Result{{Status: StatusSuccess}},
		gate:    gate,
	}

	d := NewDispatcher(DispatcherParams{
		Processor:   processor,
		DeadLetter:  &capturingSink{},
		Logger:      zap.NewNop(),
		Workers:     1,
		QueueSize:   1,
		MaxAttempts: 1,
		BackoffBase: time.Millisecond,
		BackoffMax:  time.Millisecond,
		RunTimeout:  time.Second,
	})
	d.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Close(ctx) //nolint:errcheck
	})
	h := NewHTTPHandler(d, zap.NewNop(), 1<<20)

	// Fill the worker and the queue, then expect 429.
	require.Equal(t, http.StatusOK, postEvent(h, validBody).Code)
	require.Eventually(t, func() bool {
		return postEvent(h, strings.Replace(validBody, "e1", "e2", 1)).Code == http.StatusOK
	}, time.Second, time.Millisecond)

	rec := postEvent(h, strings.Replace(validBody, "e1", "e3", 1))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
}

func TestHandleEventRejectedAfterShutdown(t *testing.T) {
	processor := &scriptedProcessor{results: []Result{{Status: StatusSuccess}}}
	d := newTestDispatcher(processor, &capturingSink{}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	h := NewHTTPHandler(d, zap.NewNop(), 1<<20)

	rec := postEvent(h, validBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleEventBodyTooLarge(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedProcessor{results: []Result{{Status: StatusSuccess}}})

	big := bytes.Repeat([]byte("a"), 64)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(big))
	rec := httptest.NewRecorder()
	small := NewHTTPHandler(h.dispatcher, zap.NewNop(), 16)
	small.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedProcessor{results: []Result{{Status: StatusSuccess}}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
