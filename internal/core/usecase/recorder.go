package usecase

import (
	"time"

	"github.com/Nzyazin/ratecache/internal/core/models"
)

// Recorder receives cache observations. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	ServeFromCache(state models.CacheState)
	SetRefreshing(refreshing bool)
	SetRateAge(age time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ServeFromCache(models.CacheState) {}
func (nopRecorder) SetRefreshing(bool) {}
func (nopRecorder) SetRateAge(time.Duration) {}
