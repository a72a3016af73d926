package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Processor runs one event through the pipeline.
type Processor interface {
	Process(ctx context.Context, ev BlobEvent) Result
}

// DispatcherParams wires the dispatcher's collaborators and policy.
type DispatcherParams struct {
	Processor  Processor
	DeadLetter DeadLetterSink
	Logger     *zap.Logger

	Workers     int
	QueueSize   int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Jitter      float64
	RunTimeout  time.Duration
}

// Dispatcher schedules pipeline runs over a bounded worker pool. A full
// queue rejects intake with ErrCapacityExceeded so the event source's own
// retry mechanism redelivers later; events that exhaust the attempt budget
// or fail fatally go to the dead-letter sink.
type Dispatcher struct {
	processor  Processor
	deadLetter DeadLetterSink
	logger     *zap.Logger

	workers     int
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	jitter      float64
	runTimeout  time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan BlobEvent
	wg     sync.WaitGroup

	runCtx     context.Context
	cancelRuns context.CancelFunc
}

// NewDispatcher constructs a Dispatcher. Call Start before Enqueue.
func NewDispatcher(p DispatcherParams) *Dispatcher {
	if p.Workers < 1 {
		p.Workers = 1
	}
	if p.QueueSize < 1 {
		p.QueueSize = p.Workers
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		processor:   p.Processor,
		deadLetter:  p.DeadLetter,
		logger:      p.Logger,
		workers:     p.Workers,
		maxAttempts: p.MaxAttempts,
		backoffBase: p.BackoffBase,
		backoffMax:  p.BackoffMax,
		jitter:      p.Jitter,
		runTimeout:  p.RunTimeout,
		queue:       make(chan BlobEvent, p.QueueSize),
		runCtx:      runCtx,
		cancelRuns:  cancel,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				d.handle(ev)
			}
		}()
	}
}

// Enqueue hands an event to the pool without blocking. A full queue returns
// ErrCapacityExceeded; a closed dispatcher returns ErrDispatcherClosed.
func (d *Dispatcher) Enqueue(ev BlobEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- ev:
		return nil
	default:
		return ErrCapacityExceeded
	}
}

func (d *Dispatcher) handle(ev BlobEvent) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.backoffBase
	policy.MaxInterval = d.backoffMax
	policy.RandomizationFactor = d.jitter

	attempts := 0
	res, err := backoff.Retry(d.runCtx, func() (Result, error) {
		attempts++
		runCtx := d.runCtx
		if d.runTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, d.runTimeout)
			defer cancel()
		}

		res := d.processor.Process(runCtx, ev)
		switch res.Status {
		case StatusSuccess, StatusSkipped:
			return res, nil
		case StatusFatal:
			return res, backoff.Permanent(res.Err)
		default:
			return res, res.Err
		}
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(d.maxAttempts)))

	if err == nil {
		d.logger.Debug("event settled",
			zap.String("event_id", ev.EventID),
			zap.String("status", res.Status.String()),
			zap.String("dest_key", res.DestKey),
			zap.Int("attempts", attempts),
		)
		return
	}

	if errors.Is(err, context.Canceled) {
		// Shutdown interrupted the run. The ledger already marked the key
		// failed, so the source's redelivery picks it back up.
		d.logger.Info("event aborted by shutdown", zap.String("event_id", ev.EventID))
		return
	}

	d.logger.Error("event dead-lettered",
		zap.String("event_id", ev.EventID),
		zap.String("object_key", ev.ObjectKey),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	if dlErr := d.deadLetter.Publish(context.Background(), ev, err.Error(), attempts); dlErr != nil {
		d.logger.Error("dead-letter publish failed",
			zap.String("event_id", ev.EventID),
			zap.Error(dlErr),
		)
	}
}

// Close stops intake, drains in-flight work until ctx expires, then cancels
// any remaining runs.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancelRuns()
		return nil
	case <-ctx.Done():
		d.cancelRuns()
		<-done
		return ctx.Err()
	}
}
