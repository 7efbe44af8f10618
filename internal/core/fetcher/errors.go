package fetcher

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork       = errors.New("network error")
	ErrBadResponse   = errors.New("bad response")
	ErrMalformedData = errors.New("malformed rate data")
)

// StatusError is returned for a non-2xx answer from the rate source.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", ErrBadResponse, e.Code)
}

func (e *StatusError) Unwrap() error {
	return ErrBadResponse
}
