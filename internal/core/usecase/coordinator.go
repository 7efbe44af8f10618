package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Nzyazin/ratecache/internal/core/fetcher"
	"github.com/Nzyazin/ratecache/internal/core/logger"
	"github.com/Nzyazin/ratecache/internal/core/models"
)

// Policy controls freshness and retry timing.
type Policy struct {
	FreshFor     time.Duration
	FetchTimeout time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// RateStore is the part of store.RateStore the coordinator needs.
type RateStore interface {
	Base() models.CurrencyCode
	Get() (models.CachedRates, bool)
	Replace(ctx context.Context, table models.RateTable, fetchedAt time.Time) error
}

type refreshCall struct {
	done chan struct{}
	err  error
}

type Option func(*RateCoordinator)

// WithClock replaces time.Now for age calculations.
func WithClock(now func() time.Time) Option {
	return func(c *RateCoordinator) { c.now = now }
}

func WithRecorder(rec Recorder) Option {
	return func(c *RateCoordinator) { c.rec = rec }
}

// RateCoordinator decides when cached rates are served and when the fetcher
// runs. At most one fetch is in flight at any time; everybody who needs a
// result waits on that one.
type RateCoordinator struct {
	store   RateStore
	fetcher fetcher.Fetcher
	policy  Policy
	log     logger.Logger
	rec     Recorder
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	inflight   *refreshCall
	backoff    *backoff.ExponentialBackOff
	lastErr    error
	retryAt    time.Time
	retryTimer *time.Timer
	generation uint64
	closed     bool
}

func NewRateCoordinator(store RateStore, f fetcher.Fetcher, policy Policy, log logger.Logger, opts ...Option) *RateCoordinator {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.RetryInitial
	b.MaxInterval = policy.RetryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0
	b.Reset()

	ctx, cancel := context.WithCancel(context.Background())

	c := &RateCoordinator{
		store:   store,
		fetcher: f,
		policy:  policy,
		log:     log,
		rec:     nopRecorder{},
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		backoff: b,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start kicks off a warm-up refresh unless the store already holds fresh
// rates. It does not block.
func (c *RateCoordinator) Start() {
	if cached, ok := c.store.Get(); ok && c.isFresh(cached, c.now()) {
		return
	}

	c.mu.Lock()
	c.startLocked("warmup")
	c.mu.Unlock()
}

// Close cancels any in-flight fetch and pending retry and waits for them.
// A fetch interrupted by Close commits nothing.
func (c *RateCoordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// Rates returns the table to convert with and the state it was served in.
// With no cached data it blocks on a fetch; otherwise it never waits and
// starts a background refresh when the data is stale.
func (c *RateCoordinator) Rates(ctx context.Context) (models.CachedRates, models.CacheState, error) {
	now := c.now()

	cached, ok := c.store.Get()
	if !ok {
		if err := c.wait(ctx, "no_data"); err != nil {
			if cached, ok = c.store.Get(); !ok {
				return models.CachedRates{}, models.StateNoData, fmt.Errorf("%w: %w", ErrUnavailable, err)
			}
		} else if cached, ok = c.store.Get(); !ok {
			return models.CachedRates{}, models.StateNoData, ErrUnavailable
		}
		now = c.now()
	}

	c.rec.SetRateAge(cached.Age(now))

	if c.isFresh(cached, now) {
		c.rec.ServeFromCache(models.StateFresh)
		return cached, models.StateFresh, nil
	}

	c.mu.Lock()
	c.maybeRefreshLocked(now)
	state := models.StateStale
	if c.inflight != nil {
		state = models.StateRefreshing
	}
	c.mu.Unlock()

	c.rec.ServeFromCache(state)
	return cached, state, nil
}

// Refresh fetches now, ignoring freshness and any pending retry delay. It
// joins a fetch that is already running instead of starting another one.
func (c *RateCoordinator) Refresh(ctx context.Context) error {
	return c.wait(ctx, "manual")
}

// Status reports the state the UI should display.
func (c *RateCoordinator) Status() models.RatesStatus {
	now := c.now()
	cached, ok := c.store.Get()

	c.mu.Lock()
	defer c.mu.Unlock()

	status := models.RatesStatus{
		State: models.StateNoData,
		Base:  c.store.Base(),
	}

	if ok {
		status.FetchedAt = cached.FetchedAt
		status.Age = cached.Age(now)
		c.rec.SetRateAge(status.Age)

		switch {
		case c.inflight != nil:
			status.State = models.StateRefreshing
		case c.isFresh(cached, now):
			status.State = models.StateFresh
		default:
			status.State = models.StateStale
		}
	}

	if c.lastErr != nil {
		status.Offline = true
		status.LastError = c.lastErr.Error()
		status.NextRetry = c.retryAt
	}

	return status
}

func (c *RateCoordinator) isFresh(cached models.CachedRates, now time.Time) bool {
	return cached.Age(now) < c.policy.FreshFor
}

func (c *RateCoordinator) wait(ctx context.Context, reason string) error {
	c.mu.Lock()
	call := c.startLocked(reason)
	c.mu.Unlock()

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// maybeRefreshLocked starts a background refresh for stale data unless one
// is running or a failed attempt is still backing off.
func (c *RateCoordinator) maybeRefreshLocked(now time.Time) {
	if c.inflight != nil || c.closed {
		return
	}
	if !c.retryAt.IsZero() && now.Before(c.retryAt) {
		return
	}
	c.startLocked("stale")
}

// startLocked returns the in-flight call, starting one if needed.
// c.mu must be held.
func (c *RateCoordinator) startLocked(reason string) *refreshCall {
	if c.inflight != nil {
		return c.inflight
	}

	call := &refreshCall{done: make(chan struct{})}
	if c.closed {
		call.err = ErrClosed
		close(call.done)
		return call
	}

	c.inflight = call
	c.rec.SetRefreshing(true)
	c.wg.Add(1)
	go c.run(call, reason)
	return call
}

func (c *RateCoordinator) run(call *refreshCall, reason string) {
	defer c.wg.Done()

	attempt := uuid.NewString()
	c.log.Debug("Refreshing rates",
		logger.StringField("attempt", attempt),
		logger.StringField("reason", reason))

	err := c.fetchAndCommit()

	c.mu.Lock()
	c.inflight = nil
	c.rec.SetRefreshing(false)
	c.finishLocked(attempt, err)
	c.mu.Unlock()

	call.err = err
	close(call.done)
}

func (c *RateCoordinator) fetchAndCommit() error {
	ctx := c.ctx
	if c.policy.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(c.ctx, c.policy.FetchTimeout)
		defer cancel()
	}

	table, err := c.fetcher.FetchLatest(ctx)
	if err != nil {
		return err
	}

	// Close may have been called while the fetch was finishing.
	if err := c.ctx.Err(); err != nil {
		return err
	}

	return c.store.Replace(c.ctx, table, c.now())
}

// finishLocked records the outcome of a refresh. c.mu must be held.
func (c *RateCoordinator) finishLocked(attempt string, err error) {
	c.generation++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}

	if err == nil {
		c.lastErr = nil
		c.retryAt = time.Time{}
		c.backoff.Reset()
		c.log.Info("Rates refreshed", logger.StringField("attempt", attempt))
		return
	}

	if c.closed && errors.Is(err, context.Canceled) {
		return
	}

	c.lastErr = err
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = c.policy.RetryMax
	}
	c.retryAt = c.now().Add(delay)

	c.log.Warn("Rate refresh failed, serving cached rates",
		logger.StringField("attempt", attempt),
		logger.StringField("outcome", fetcher.Outcome(err)),
		logger.DurationField("retry_in", delay),
		logger.ErrorField("error", err))

	if c.closed {
		return
	}
	generation := c.generation
	c.retryTimer = time.AfterFunc(delay, func() { c.retry(generation) })
}

func (c *RateCoordinator) retry(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || generation != c.generation || c.inflight != nil {
		return
	}
	if cached, ok := c.store.Get(); ok && c.isFresh(cached, c.now()) {
		return
	}
	c.startLocked("retry")
}
