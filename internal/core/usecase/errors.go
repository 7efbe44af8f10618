package usecase

import "errors"

var (
	// ErrUnavailable means there is no cached table and fetching one failed.
	ErrUnavailable = errors.New("exchange rates unavailable")
	ErrClosed      = errors.New("rate coordinator closed")
)
