package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nzyazin/ratecache/internal/core/logger"
	"github.com/Nzyazin/ratecache/internal/core/models"
	"github.com/Nzyazin/ratecache/internal/core/repository"
	"github.com/Nzyazin/ratecache/pkg/config"
)

type memoryRepo struct {
	mu    sync.Mutex
	saved map[models.CurrencyCode]models.CachedRates
}

func (m *memoryRepo) Load(_ context.Context, base models.CurrencyCode) (models.CachedRates, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cached, ok := m.saved[base]
	if !ok {
		return models.CachedRates{}, repository.ErrNotFound
	}
	return cached, nil
}

func (m *memoryRepo) Save(_ context.Context, rates models.CachedRates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[models.CurrencyCode]models.CachedRates)
	}
	m.saved[rates.Base] = rates
	return nil
}

func testConfig(url string) *config.Config {
	return &config.Config{
		HTTPAddr: "127.0.0.1:0",
		Rates: config.RatesConfig{
			URL:          url,
			Base:         "EUR",
			FreshFor:     time.Hour,
			FetchTimeout: 2 * time.Second,
			RetryInitial: time.Minute,
			RetryMax:     time.Hour,
		},
	}
}

func newTestServer(t *testing.T, source http.HandlerFunc, repo repository.RateRepository) *Server {
	t.Helper()
	upstream := httptest.NewServer(source)
	t.Cleanup(upstream.Close)

	srv, err := New(context.Background(), testConfig(upstream.URL), repo, prometheus.NewRegistry(), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(srv.coordinator.Close)
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func TestServer_ConvertEndToEnd(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"base":"EUR","date":"2024-05-01","rates":{"USD":1.1,"JPY":160}}`))
	}, &memoryRepo{})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/convert", `{"from":"USD","to":"JPY","amount":10}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "FRESH", rec.Header().Get("X-Rates-State"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1454.55", resp["display"])

	rec = do(t, srv.Handler(), http.MethodPost, "/api/v1/convert", `{"from":"JPY","to":"USD","amount":1454.55}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), hits.Load(), "second conversion is served from cache")

	rec = do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ratecache_fetches_total{outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}

func TestServer_OfflineWithPersistedRates(t *testing.T) {
	table, err := models.NewRateTable("EUR", map[models.CurrencyCode]float64{"USD": 1.1})
	require.NoError(t, err)
	repo := &memoryRepo{}
	require.NoError(t, repo.Save(context.Background(), models.CachedRates{
		Table:     table,
		FetchedAt: time.Now().Add(-3 * time.Hour),
		Base:      "EUR",
	}))

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, repo)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/convert", `{"from":"EUR","to":"USD","amount":"2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["stale"])
	assert.Equal(t, "2.20", resp["display"])

	require.Eventually(t, func() bool {
		rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/status", "")
		var status map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			return false
		}
		return status["offline"] == true && status["state"] == "STALE"
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, srv.Handler(), http.MethodPost, "/api/v1/rates/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_NoDataUnavailable(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}, &memoryRepo{})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/convert", `{"from":"USD","to":"JPY","amount":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NO_DATA", rec.Header().Get("X-Rates-State"))

	rec = do(t, srv.Handler(), http.MethodGet, "/api/v1/currencies", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ConvertOverflowIsRejected(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"USD":1.1,"JPY":160}`))
	}, &memoryRepo{})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/convert", `{"from":"USD","to":"JPY","amount":1e307}`)

	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_amount", resp["error"])
}

func TestServer_ShutdownBeforeRun(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"base":"EUR","rates":{"USD":1.1}}`))
	}, &memoryRepo{})

	require.NoError(t, srv.Shutdown(context.Background()))

	err := srv.Run()
	assert.True(t, errors.Is(err, http.ErrServerClosed), "got %v", err)
}

func TestServer_RunUntilShutdown(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"base":"EUR","rates":{"USD":1.1}}`))
	}, &memoryRepo{})

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-runErr:
		assert.True(t, errors.Is(err, http.ErrServerClosed), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}
