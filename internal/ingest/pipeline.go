package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/blobrelay/internal/ledger"
	"github.com/your-org/blobrelay/pkg/storage/objectstore"
)

// Status classifies the outcome of one pipeline run.
type Status int

const (
	StatusSuccess Status = iota
	StatusSkipped
	StatusRetryable
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	case StatusRetryable:
		return "retryable"
	case StatusFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Process invocation.
type Result struct {
	Status  Status
	DestKey string
	Err     error
}

// PipelineParams wires the pipeline's collaborators.
type PipelineParams struct {
	Store         objectstore.Client
	Ledger        *ledger.Ledger
	Logger        *zap.Logger
	DestContainer string
	DestPrefix    string
}

// Pipeline copies a newly created blob to the destination container exactly
// effectively-once: the ledger's atomic claim turns at-least-once delivery
// into a single copy per logical event.
type Pipeline struct {
	store         objectstore.Client
	ledger        *ledger.Ledger
	logger        *zap.Logger
	tracer        trace.Tracer
	destContainer string
	destPrefix    string
}

// NewPipeline constructs a Pipeline.
func NewPipeline(p PipelineParams) *Pipeline {
	return &Pipeline{
		store:         p.Store,
		ledger:        p.Ledger,
		logger:        p.Logger,
		tracer:        otel.Tracer("blobrelay/ingest"),
		destContainer: p.DestContainer,
		destPrefix:    p.DestPrefix,
	}
}

// Process runs one event through the pipeline. Per invocation there is at
// most one destination write and exactly one ledger transition: Acquired
// keys settle to completed on success or failed otherwise, including on
// cancellation, so an interrupted run stays retry-eligible.
func (p *Pipeline) Process(ctx context.Context, ev BlobEvent) Result {
	ctx, span := p.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("event.id", ev.EventID),
		attribute.String("blob.container", ev.Container),
		attribute.String("blob.key", ev.ObjectKey),
	))
	defer span.End()

	key := ledger.Key{Container: ev.Container, ObjectKey: ev.ObjectKey, EventID: ev.EventID}

	switch outcome := p.ledger.TryBegin(key); outcome {
	case ledger.AlreadyCompleted:
		p.logger.Info("duplicate event skipped",
			zap.String("event_id", ev.EventID),
			zap.String("object_key", ev.ObjectKey),
		)
		return Result{Status: StatusSkipped, DestKey: p.DeriveDestKey(ev.ObjectKey)}
	case ledger.AlreadyPending:
		return Result{Status: StatusRetryable, Err: fmt.Errorf("%w: %s", ErrLedgerConflict, key)}
	}

	res := p.copyBlob(ctx, ev)
	if res.Status == StatusSuccess {
		if err := p.ledger.Complete(key); err != nil {
			// Losing a claimed key mid-run is a programming error.
			return Result{Status: StatusFatal, Err: err}
		}
		p.logger.Info("blob copied",
			zap.String("event_id", ev.EventID),
			zap.String("source", ev.Container+"/"+ev.ObjectKey),
			zap.String("destination", p.destContainer+"/"+res.DestKey),
		)
		return res
	}

	if err := p.ledger.Fail(key); err != nil {
		p.logger.Error("ledger fail transition rejected", zap.Error(err))
	}
	return res
}

func (p *Pipeline) copyBlob(ctx context.Context, ev BlobEvent) Result {
	reader, info, err := p.store.Get(ctx, ev.Container, ev.ObjectKey)
	if err != nil {
		return p.classify(ev, fmt.Errorf("fetch source: %w", err))
	}
	defer reader.Close() //nolint:errcheck

	destKey := p.DeriveDestKey(ev.ObjectKey)
	stagingKey := fmt.Sprintf(".staging/%s.%s", destKey, uuid.NewString())

	contentType := info.ContentType
	if contentType == "" {
		contentType = ev.ContentType
	}
	metadata := map[string]string{
		"source-container": ev.Container,
		"source-key":       ev.ObjectKey,
		"event-id":         ev.EventID,
		"source-size":      strconv.FormatInt(info.Size, 10),
	}

	// The staging write keeps partial copies invisible under the final key;
	// the server-side copy publishes the object in one step.
	if err := p.store.Put(ctx, p.destContainer, stagingKey, reader, info.Size, contentType, metadata); err != nil {
		p.removeStaging(ev, stagingKey)
		return p.classify(ev, fmt.Errorf("stage destination: %w", err))
	}

	if err := p.store.Copy(ctx, p.destContainer, stagingKey, p.destContainer, destKey); err != nil {
		p.removeStaging(ev, stagingKey)
		return p.classify(ev, fmt.Errorf("finalize destination: %w", err))
	}

	p.removeStaging(ev, stagingKey)
	return Result{Status: StatusSuccess, DestKey: destKey}
}

// DeriveDestKey applies the configured prefix to the final path segment, so
// "inbox/invoice.pdf" becomes "inbox/processed-invoice.pdf".
func (p *Pipeline) DeriveDestKey(key string) string {
	dir, base := path.Split(key)
	return dir + p.destPrefix + base
}

func (p *Pipeline) removeStaging(ev BlobEvent, stagingKey string) {
	// Best effort; runs on a fresh context so cleanup survives run
	// cancellation. An orphaned staging object is invisible to consumers.
	if err := p.store.Remove(context.Background(), p.destContainer, stagingKey); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		p.logger.Warn("staging cleanup failed",
			zap.String("event_id", ev.EventID),
			zap.String("staging_key", stagingKey),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) classify(ev BlobEvent, err error) Result {
	switch {
	case errors.Is(err, objectstore.ErrNotFound):
		p.logger.Error("source object missing", zap.String("event_id", ev.EventID), zap.Error(err))
		return Result{Status: StatusFatal, Err: err}
	case errors.Is(err, objectstore.ErrAccessDenied):
		p.logger.Error("store access denied", zap.String("event_id", ev.EventID), zap.Error(err))
		return Result{Status: StatusFatal, Err: err}
	default:
		// Transient store faults, timeouts, and cancellation all stay
		// retry-eligible.
		p.logger.Warn("copy attempt failed", zap.String("event_id", ev.EventID), zap.Error(err))
		return Result{Status: StatusRetryable, Err: err}
	}
}
