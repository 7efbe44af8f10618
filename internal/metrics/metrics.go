package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Nzyazin/ratecache/internal/core/models"
)

const namespace = "ratecache"

// Recorder exports fetch and cache observations to Prometheus.
type Recorder struct {
	fetches     *prometheus.CounterVec
	fetchTime   *prometheus.HistogramVec
	served      *prometheus.CounterVec
	refreshing  prometheus.Gauge
	rateAgeSecs prometheus.Gauge
}

// NewRecorder registers the collectors on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Rate source fetches by outcome.",
		}, []string{"outcome"}),
		fetchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of rate source fetches.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "served_total",
			Help:      "Rate tables served to callers by cache state.",
		}, []string{"state"}),
		refreshing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_in_flight",
			Help:      "1 while a refresh is running.",
		}),
		rateAgeSecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_age_seconds",
			Help:      "Age of the cached rate table when last observed.",
		}),
	}

	for _, c := range []prometheus.Collector{r.fetches, r.fetchTime, r.served, r.refreshing, r.rateAgeSecs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ObserveFetch(outcome string, took time.Duration) {
	r.fetches.WithLabelValues(outcome).Inc()
	r.fetchTime.WithLabelValues(outcome).Observe(took.Seconds())
}

func (r *Recorder) ServeFromCache(state models.CacheState) {
	r.served.WithLabelValues(string(state)).Inc()
}

func (r *Recorder) SetRefreshing(refreshing bool) {
	if refreshing {
		r.refreshing.Set(1)
		return
	}
	r.refreshing.Set(0)
}

func (r *Recorder) SetRateAge(age time.Duration) {
	r.rateAgeSecs.Set(age.Seconds())
}
