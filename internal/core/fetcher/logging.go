package fetcher

import (
	"context"
	"time"

	"github.com/Nzyazin/ratecache/internal/core/logger"
	"github.com/Nzyazin/ratecache/internal/core/models"
)

type loggingFetcher struct {
	next Fetcher
	log  logger.Logger
}

// NewLoggingFetcher logs every fetch attempt with its outcome and duration.
func NewLoggingFetcher(next Fetcher, log logger.Logger) Fetcher {
	return &loggingFetcher{next: next, log: log}
}

func (f *loggingFetcher) FetchLatest(ctx context.Context) (table models.RateTable, err error) {
	defer func(begin time.Time) {
		fields := []logger.Field{
			logger.StringField("outcome", Outcome(err)),
			logger.DurationField("took", time.Since(begin)),
		}
		if err != nil {
			f.log.Warn("Rate fetch failed", append(fields, logger.ErrorField("error", err))...)
			return
		}
		f.log.Info("Rates fetched", append(fields,
			logger.StringField("base", table.Base.String()),
			logger.IntField("count", table.Len()),
		)...)
	}(time.Now())

	return f.next.FetchLatest(ctx)
}
