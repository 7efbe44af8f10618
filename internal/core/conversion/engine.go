package conversion

import (
	"errors"
	"fmt"
	"math"

	"github.com/Nzyazin/ratecache/internal/core/models"
)

var (
	ErrMissingRate   = errors.New("missing rate")
	ErrInvalidAmount = errors.New("amount must be a non-negative finite number")
)

func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}

// Convert converts amount from one currency to another through the table's
// base. The result is not rounded.
func Convert(table models.RateTable, from, to models.CurrencyCode, amount float64) (float64, error) {
	if err := ValidateAmount(amount); err != nil {
		return 0, err
	}

	var result float64
	base := table.Base
	switch {
	case from == base && to == base:
		result = amount
	case to == base:
		fromRate, err := rate(table, from)
		if err != nil {
			return 0, err
		}
		result = amount / fromRate
	case from == base:
		toRate, err := rate(table, to)
		if err != nil {
			return 0, err
		}
		result = amount * toRate
	default:
		fromRate, err := rate(table, from)
		if err != nil {
			return 0, err
		}
		toRate, err := rate(table, to)
		if err != nil {
			return 0, err
		}
		result = amount * (toRate / fromRate)
	}

	return finite(result)
}

// CrossRate is the number of units of to per unit of from.
func CrossRate(table models.RateTable, from, to models.CurrencyCode) (float64, error) {
	var factor float64
	base := table.Base
	switch {
	case from == base && to == base:
		return 1, nil
	case to == base:
		fromRate, err := rate(table, from)
		if err != nil {
			return 0, err
		}
		factor = 1 / fromRate
	case from == base:
		toRate, err := rate(table, to)
		if err != nil {
			return 0, err
		}
		factor = toRate
	default:
		fromRate, err := rate(table, from)
		if err != nil {
			return 0, err
		}
		toRate, err := rate(table, to)
		if err != nil {
			return 0, err
		}
		factor = toRate / fromRate
	}

	return finite(factor)
}

// finite rejects results that overflowed float64.
func finite(v float64) (float64, error) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: result overflows", ErrInvalidAmount)
	}
	return v, nil
}

func rate(table models.RateTable, code models.CurrencyCode) (float64, error) {
	r, ok := table.Rate(code)
	if !ok {
		return 0, fmt.Errorf("%w: %s per %s", ErrMissingRate, code, table.Base)
	}
	return r, nil
}
