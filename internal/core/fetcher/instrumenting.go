package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/Nzyazin/ratecache/internal/core/models"
)

const (
	OutcomeOK          = "ok"
	OutcomeNetwork     = "network"
	OutcomeBadResponse = "bad_response"
	OutcomeMalformed   = "malformed"
	OutcomeCanceled    = "canceled"
	OutcomeOther       = "other"
)

// Observer receives one observation per fetch.
type Observer interface {
	ObserveFetch(outcome string, took time.Duration)
}

type instrumentingFetcher struct {
	next     Fetcher
	observer Observer
}

func NewInstrumentingFetcher(next Fetcher, observer Observer) Fetcher {
	return &instrumentingFetcher{next: next, observer: observer}
}

func (f *instrumentingFetcher) FetchLatest(ctx context.Context) (models.RateTable, error) {
	begin := time.Now()
	table, err := f.next.FetchLatest(ctx)
	f.observer.ObserveFetch(Outcome(err), time.Since(begin))
	return table, err
}

// Outcome classifies a fetch error into a short label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.Is(err, ErrNetwork):
		return OutcomeNetwork
	case errors.Is(err, ErrBadResponse):
		return OutcomeBadResponse
	case errors.Is(err, ErrMalformedData):
		return OutcomeMalformed
	default:
		return OutcomeOther
	}
}
