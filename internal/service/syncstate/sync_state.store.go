package syncstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/krobus00/rebate-sync/internal/constant"
	"github.com/krobus00/rebate-sync/internal/entity"
)

// Persister reads and fully rewrites the watermark document.
type Persister interface {
	Load(ctx context.Context) (entity.SyncStateDocument, error)
	Save(ctx context.Context, doc entity.SyncStateDocument) error
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithDefaultLookback(lookback time.Duration) Option {
	return func(s *Store) {
		if lookback > 0 {
			s.defaultLookback = lookback
		}
	}
}

// Store keeps the last synced upper bound per exchange. The document is
// loaded once and rewritten on every successful advance.
type Store struct {
	mu              sync.Mutex
	watermarks      map[string]int64
	persister       Persister
	now             func() time.Time
	defaultLookback time.Duration
}

func NewStore(ctx context.Context, persister Persister, opts ...Option) (*Store, error) {
	s := &Store{
		watermarks:      make(map[string]int64),
		persister:       persister,
		now:             time.Now,
		defaultLookback: constant.DefaultWatermarkLookback,
	}
	for _, opt := range opts {
		opt(s)
	}

	if persister == nil {
		return s, nil
	}

	doc, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	for exchange, watermark := range doc {
		s.watermarks[exchange] = watermark.LastSyncTimestamp
	}

	return s, nil
}

// Watermark returns the stored value, or now minus the default lookback when
// the exchange has never been synced. The default is not persisted.
func (s *Store) Watermark(exchange entity.ExchangeName) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts, ok := s.watermarks[string(exchange)]; ok {
		return time.UnixMilli(ts)
	}

	return s.now().Add(-s.defaultLookback)
}

// Advance moves the watermark forward only. The in-memory value is updated
// even when persisting fails; the persistence error is returned for logging.
func (s *Store) Advance(ctx context.Context, exchange entity.ExchangeName, to time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := to.UnixMilli()
	if current, ok := s.watermarks[string(exchange)]; ok && next <= current {
		return false, nil
	}
	s.watermarks[string(exchange)] = next

	if s.persister == nil {
		return true, nil
	}

	if err := s.persister.Save(ctx, s.documentLocked()); err != nil {
		return true, fmt.Errorf("persist sync state for %s: %w", exchange, err)
	}

	return true, nil
}

func (s *Store) Snapshot() entity.SyncStateDocument {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.documentLocked()
}

func (s *Store) documentLocked() entity.SyncStateDocument {
	doc := make(entity.SyncStateDocument, len(s.watermarks))
	for exchange, ts := range s.watermarks {
		doc[exchange] = entity.SyncWatermark{LastSyncTimestamp: ts}
	}

	return doc
}
