package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Nzyazin/ratecache/internal/core/logger"
	"github.com/Nzyazin/ratecache/internal/core/models"
	"github.com/Nzyazin/ratecache/internal/core/repository"
)

const DefaultKeyPrefix = "ratecache"

type snapshotDoc struct {
	Base      string             `json:"base"`
	FetchedAt time.Time          `json:"fetched_at"`
	Rates     map[string]float64 `json:"rates"`
}

// RateRepo keeps each snapshot as a single JSON value, so a SET replaces it
// whole.
type RateRepo struct {
	client redis.UniversalClient
	prefix string
	log    logger.Logger
}

func NewRedisRateRepo(client redis.UniversalClient, prefix string, log logger.Logger) *RateRepo {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RateRepo{
		client: client,
		prefix: prefix,
		log:    log,
	}
}

var _ repository.RateRepository = (*RateRepo)(nil)

func (r *RateRepo) key(base models.CurrencyCode) string {
	return r.prefix + ":rates:" + base.String()
}

func (r *RateRepo) Load(ctx context.Context, base models.CurrencyCode) (models.CachedRates, error) {
	raw, err := r.client.Get(ctx, r.key(base)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CachedRates{}, fmt.Errorf("%w: base %s", repository.ErrNotFound, base)
		}
		return models.CachedRates{}, fmt.Errorf("error getting snapshot: %w", err)
	}

	var doc snapshotDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		r.log.Warn("Stored snapshot is not valid json",
			logger.StringField("key", r.key(base)),
			logger.ErrorField("error", err))
		return models.CachedRates{}, fmt.Errorf("decode snapshot: %w", err)
	}

	if models.CurrencyCode(doc.Base) != base {
		return models.CachedRates{}, fmt.Errorf("stored snapshot has base %q, want %q", doc.Base, base)
	}

	rates := make(map[models.CurrencyCode]float64, len(doc.Rates))
	for code, rate := range doc.Rates {
		rates[models.CurrencyCode(code)] = rate
	}

	table, err := models.NewRateTable(base, rates)
	if err != nil {
		return models.CachedRates{}, fmt.Errorf("stored snapshot is invalid: %w", err)
	}

	return models.CachedRates{
		Table:     table,
		FetchedAt: doc.FetchedAt,
		Base:      base,
	}, nil
}

func (r *RateRepo) Save(ctx context.Context, rates models.CachedRates) error {
	doc := snapshotDoc{
		Base:      rates.Base.String(),
		FetchedAt: rates.FetchedAt.UTC(),
		Rates:     make(map[string]float64, rates.Table.Len()),
	}
	for code, rate := range rates.Table.Rates() {
		doc.Rates[code.String()] = rate
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := r.client.Set(ctx, r.key(rates.Base), raw, 0).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}
