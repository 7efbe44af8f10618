package models

import "time"

type ConversionRequest struct {
	Amount float64
	From   CurrencyCode
	To     CurrencyCode
}

type ConversionResult struct {
	Request   ConversionRequest
	Converted float64
	Rate      float64 // units of To per unit of From
	Base      CurrencyCode
	FetchedAt time.Time
	Stale     bool
}
