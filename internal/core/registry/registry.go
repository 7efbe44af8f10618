package registry

import (
	"errors"
	"fmt"

	"github.com/Nzyazin/ratecache/internal/core/models"
)

var (
	ErrUnknownCurrency   = errors.New("unknown currency")
	ErrDuplicateCurrency = errors.New("duplicate currency")
	ErrInvalidCurrency   = errors.New("invalid currency code")
)

// Registry is the read-only set of currencies offered to users.
type Registry struct {
	order []models.CurrencyInfo
	index map[models.CurrencyCode]int
}

func New(entries []models.CurrencyInfo) (*Registry, error) {
	r := &Registry{
		order: make([]models.CurrencyInfo, 0, len(entries)),
		index: make(map[models.CurrencyCode]int, len(entries)),
	}

	for _, e := range entries {
		if !e.Code.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCurrency, e.Code)
		}
		if _, ok := r.index[e.Code]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCurrency, e.Code)
		}
		r.index[e.Code] = len(r.order)
		r.order = append(r.order, e)
	}

	return r, nil
}

// Default returns the registry built from the static currency table.
func Default() *Registry {
	r, err := New(defaultCurrencies)
	if err != nil {
		panic(fmt.Sprintf("registry: bad static table: %v", err))
	}
	return r
}

func (r *Registry) Lookup(code models.CurrencyCode) (models.CurrencyInfo, error) {
	i, ok := r.index[code]
	if !ok {
		return models.CurrencyInfo{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return r.order[i], nil
}

// ListAll returns every currency in insertion order.
func (r *Registry) ListAll() []models.CurrencyInfo {
	out := make([]models.CurrencyInfo, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	return len(r.order)
}
