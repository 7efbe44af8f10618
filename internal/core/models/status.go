package models

import "time"

// CacheState is the coordinator's view of the cached rate table.
type CacheState string

const (
	StateNoData     CacheState = "NO_DATA"
	StateFresh      CacheState = "FRESH"
	StateStale      CacheState = "STALE"
	StateRefreshing CacheState = "REFRESHING"
)

// RatesStatus backs the UI's online/offline indicator.
type RatesStatus struct {
	State     CacheState
	Base      CurrencyCode
	FetchedAt time.Time
	Age       time.Duration
	Offline   bool
	LastError string
	NextRetry time.Time
}
