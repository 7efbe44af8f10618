package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// DefaultBase is the base currency of the ECB reference feed.
const DefaultBase CurrencyCode = "EUR"

var (
	ErrInvalidBase = errors.New("invalid base currency")
	ErrInvalidRate = errors.New("rate must be positive and finite")
)

// RateTable maps currency codes to the amount of that currency equal to one
// unit of Base. The base is never stored in the map; its rate is 1.
type RateTable struct {
	Base  CurrencyCode
	rates map[CurrencyCode]float64
}

// NewRateTable validates and copies rates. A base entry is accepted only
// when it equals 1.
func NewRateTable(base CurrencyCode, rates map[CurrencyCode]float64) (RateTable, error) {
	if !base.Valid() {
		return RateTable{}, fmt.Errorf("%w: %q", ErrInvalidBase, base)
	}

	table := RateTable{
		Base:  base,
		rates: make(map[CurrencyCode]float64, len(rates)),
	}

	for code, rate := range rates {
		if !code.Valid() {
			return RateTable{}, fmt.Errorf("invalid currency code %q", code)
		}
		if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
			return RateTable{}, fmt.Errorf("%w: %s=%v", ErrInvalidRate, code, rate)
		}
		if code == base {
			if rate != 1 {
				return RateTable{}, fmt.Errorf("%w: base %s stored as %v", ErrInvalidRate, code, rate)
			}
			continue
		}
		table.rates[code] = rate
	}

	return table, nil
}

// Rate returns the base-relative rate for code. The base always has rate 1.
func (t RateTable) Rate(code CurrencyCode) (float64, bool) {
	if code == t.Base {
		return 1, true
	}
	rate, ok := t.rates[code]
	return rate, ok
}

// Len is the number of stored non-base rates.
func (t RateTable) Len() int {
	return len(t.rates)
}

// Codes returns the stored non-base codes, sorted.
func (t RateTable) Codes() []CurrencyCode {
	codes := make([]CurrencyCode, 0, len(t.rates))
	for code := range t.rates {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Rates returns a copy of the stored non-base rates.
func (t RateTable) Rates() map[CurrencyCode]float64 {
	out := make(map[CurrencyCode]float64, len(t.rates))
	for code, rate := range t.rates {
		out[code] = rate
	}
	return out
}

// CachedRates is the unit the rate store replaces atomically.
type CachedRates struct {
	Table     RateTable
	FetchedAt time.Time
	Base      CurrencyCode
}

// Age is the time elapsed since FetchedAt, never negative.
func (c CachedRates) Age(now time.Time) time.Duration {
	age := now.Sub(c.FetchedAt)
	if age < 0 {
		return 0
	}
	return age
}
