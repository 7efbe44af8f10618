package models

import "fmt"

// CurrencyCode is an ISO 4217 style code, e.g. "EUR".
type CurrencyCode string

// Valid reports whether the code is exactly three uppercase ASCII letters.
func (c CurrencyCode) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for i := 0; i < len(c); i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}

func (c CurrencyCode) String() string {
	return string(c)
}

type CurrencyInfo struct {
	Code   CurrencyCode `json:"code"`
	Name   string       `json:"name"`   // "Euro"
	Symbol string       `json:"symbol"` // "€"
}

// Label is the text used for a currency in a selection list.
func (c CurrencyInfo) Label() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Code)
}
