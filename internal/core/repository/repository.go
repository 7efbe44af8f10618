package repository

import (
	"context"
	"errors"

	"github.com/Nzyazin/ratecache/internal/core/models"
)

var ErrNotFound = errors.New("rate snapshot not found")

// RateRepository persists the last known good rate snapshot per base
// currency. Save replaces the whole snapshot or leaves the previous one.
type RateRepository interface {
	Load(ctx context.Context, base models.CurrencyCode) (models.CachedRates, error)
	Save(ctx context.Context, rates models.CachedRates) error
}
