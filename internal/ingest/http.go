package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// HTTPHandler exposes the inbound notification webhook.
type HTTPHandler struct {
	dispatcher   *Dispatcher
	logger       *zap.Logger
	maxBodyBytes int64
	router       chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(dispatcher *Dispatcher, logger *zap.Logger, maxBodyBytes int64) *HTTPHandler {
	h := &HTTPHandler{
		dispatcher:   dispatcher,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.handleHealth)
	r.Post("/events", h.handleEvent)

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleEvent accepts one notification. Malformed payloads are permanently
// rejected with 400; non-creation events are acknowledged and dropped; a
// full queue answers 429 so the at-least-once source redelivers later.
func (h *HTTPHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	ev, err := ParseEvent(body)
	switch {
	case errors.Is(err, ErrUnsupportedEventType):
		writeJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
		return
	case err != nil:
		h.logger.Warn("event rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "malformed event payload")
		return
	}

	switch err := h.dispatcher.Enqueue(ev); {
	case errors.Is(err, ErrCapacityExceeded):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusTooManyRequests, "queue full, retry later")
		return
	case errors.Is(err, ErrDispatcherClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	case err != nil:
		h.logger.Error("enqueue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "enqueued",
		"event_id": ev.EventID,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
