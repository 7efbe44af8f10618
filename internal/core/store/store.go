package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Nzyazin/ratecache/internal/core/logger"
	"github.com/Nzyazin/ratecache/internal/core/models"
	"github.com/Nzyazin/ratecache/internal/core/repository"
)

var ErrBaseMismatch = errors.New("rate table base does not match store base")

// RateStore holds the last known good snapshot in memory and mirrors it to
// a durable repository. Readers never block.
type RateStore struct {
	base    models.CurrencyCode
	repo    repository.RateRepository
	log     logger.Logger
	current atomic.Pointer[models.CachedRates]

	// serializes Replace so persisted and in-memory order agree
	mu sync.Mutex
}

// New loads the persisted snapshot for base, if any. A missing or unreadable
// snapshot leaves the store empty.
func New(ctx context.Context, repo repository.RateRepository, base models.CurrencyCode, log logger.Logger) (*RateStore, error) {
	if !base.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidBase, base)
	}

	s := &RateStore{
		base: base,
		repo: repo,
		log:  log,
	}

	cached, err := repo.Load(ctx, base)
	switch {
	case err == nil:
		s.current.Store(&cached)
		log.Info("Loaded persisted rates",
			logger.StringField("base", base.String()),
			logger.IntField("count", cached.Table.Len()),
			logger.TimeField("fetched_at", cached.FetchedAt))
	case errors.Is(err, repository.ErrNotFound):
		log.Info("No persisted rates", logger.StringField("base", base.String()))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		log.Warn("Ignoring unreadable persisted rates",
			logger.StringField("base", base.String()),
			logger.ErrorField("error", err))
	}

	return s, nil
}

func (s *RateStore) Base() models.CurrencyCode {
	return s.base
}

// Get returns the current snapshot and false when there is none.
func (s *RateStore) Get() (models.CachedRates, bool) {
	cached := s.current.Load()
	if cached == nil {
		return models.CachedRates{}, false
	}
	return *cached, true
}

// Replace persists the table and then makes it current. If persisting fails
// the previous snapshot stays in place.
func (s *RateStore) Replace(ctx context.Context, table models.RateTable, fetchedAt time.Time) error {
	if table.Base != s.base {
		return fmt.Errorf("%w: got %s, want %s", ErrBaseMismatch, table.Base, s.base)
	}

	next := &models.CachedRates{
		Table:     table,
		FetchedAt: fetchedAt,
		Base:      s.base,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Save(ctx, *next); err != nil {
		s.log.Error("Failed to persist rates",
			logger.StringField("base", s.base.String()),
			logger.ErrorField("error", err))
		return fmt.Errorf("persist rates: %w", err)
	}

	s.current.Store(next)
	return nil
}

// AgeOf reports how old the current snapshot is at now.
func (s *RateStore) AgeOf(now time.Time) (time.Duration, bool) {
	cached, ok := s.Get()
	if !ok {
		return 0, false
	}
	return cached.Age(now), true
}
