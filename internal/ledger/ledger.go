// Package ledger tracks which blob events have already been processed so
// duplicate deliveries from an at-least-once transport are absorbed before
// they reach the object store.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// ErrNoPendingRecord is returned when Complete or Fail is called for a key
// that has no pending record. That only happens on a caller bug: the run
// that owns the key is the only one allowed to settle it.
var ErrNoPendingRecord = errors.New("no pending ledger record")

// Key identifies one logical processing attempt.
type Key struct {
	Container string
	ObjectKey string
	EventID   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Container, k.ObjectKey, k.EventID)
}

// Outcome of TryBegin.
type Outcome int

const (
	Acquired Outcome = iota
	AlreadyCompleted
	AlreadyPending
)

func (o Outcome) String() string {
	switch o {
	case Acquired:
		return "acquired"
	case AlreadyCompleted:
		return "already_completed"
	case AlreadyPending:
		return "already_pending"
	default:
		return "unknown"
	}
}

type status int

const (
	statusPending status = iota
	statusCompleted
	statusFailed
)

type record struct {
	status      status
	startedAt   time.Time
	completedAt time.Time
}

// Ledger is an in-memory idempotency ledger with TTL-bounded retention of
// terminal records. Pending records never expire while a run owns them.
// Safe for concurrent use.
type Ledger struct {
	// mu serializes read-then-transition sequences; the cache is only safe
	// per single operation.
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *record]
	ttl   time.Duration
}

// New constructs a Ledger whose completed and failed records are evicted
// after ttl.
func New(ttl time.Duration) *Ledger {
	c := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *record](),
	)
	go c.Start()

	return &Ledger{
		cache: c,
		ttl:   ttl,
	}
}

// TryBegin atomically claims the key for a pipeline run. Exactly one of any
// set of concurrent callers for the same key observes Acquired; the rest see
// AlreadyPending or AlreadyCompleted. A failed record is re-claimable.
func (l *Ledger) TryBegin(key Key) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	item := l.cache.Get(key.String())
	if item == nil {
		l.cache.Set(key.String(), &record{status: statusPending, startedAt: time.Now().UTC()}, ttlcache.NoTTL)
		return Acquired
	}

	switch item.Value().status {
	case statusCompleted:
		return AlreadyCompleted
	case statusPending:
		return AlreadyPending
	default:
		l.cache.Set(key.String(), &record{status: statusPending, startedAt: time.Now().UTC()}, ttlcache.NoTTL)
		return Acquired
	}
}

// Complete marks the pending record for key as completed. Completed records
// are terminal: every future TryBegin for the key short-circuits until the
// record is evicted by TTL.
func (l *Ledger) Complete(key Key) error {
	return l.settle(key, statusCompleted)
}

// Fail marks the pending record for key as failed, making the key eligible
// for a future TryBegin.
func (l *Ledger) Fail(key Key) error {
	return l.settle(key, statusFailed)
}

func (l *Ledger) settle(key Key, terminal status) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item := l.cache.Get(key.String())
	if item == nil || item.Value().status != statusPending {
		return fmt.Errorf("%w: %s", ErrNoPendingRecord, key)
	}

	rec := &record{
		status:    terminal,
		startedAt: item.Value().startedAt,
	}
	if terminal == statusCompleted {
		rec.completedAt = time.Now().UTC()
	}
	l.cache.Set(key.String(), rec, l.ttl)
	return nil
}

// Len reports the number of live records, expired ones excluded.
func (l *Ledger) Len() int {
	l.cache.DeleteExpired()
	return l.cache.Len()
}

// Stop halts the background eviction loop.
func (l *Ledger) Stop() {
	l.cache.Stop()
}
