package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Nzyazin/ratecache/internal/core/conversion"
	"github.com/Nzyazin/ratecache/internal/core/fetcher"
	"github.com/Nzyazin/ratecache/internal/core/logger"
	"github.com/Nzyazin/ratecache/internal/core/middleware"
	"github.com/Nzyazin/ratecache/internal/core/models"
	"github.com/Nzyazin/ratecache/internal/core/registry"
	"github.com/Nzyazin/ratecache/internal/core/usecase"
)

type MockConversionUsecase struct {
	mock.Mock
}

func (m *MockConversionUsecase) Convert(ctx context.Context, req models.ConversionRequest) (models.ConversionResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.ConversionResult), args.Error(1)
}

func (m *MockConversionUsecase) Currencies() []models.CurrencyInfo {
	args := m.Called()
	return args.Get(0).([]models.CurrencyInfo)
}

func (m *MockConversionUsecase) Snapshot(ctx context.Context) (models.CachedRates, models.CacheState, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.CachedRates), args.Get(1).(models.CacheState), args.Error(2)
}

func (m *MockConversionUsecase) Status() models.RatesStatus {
	args := m.Called()
	return args.Get(0).(models.RatesStatus)
}

func (m *MockConversionUsecase) Refresh(ctx context.Context) (models.RatesStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.RatesStatus), args.Error(1)
}

var fetchedAt = time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC)

func newRouter(uc usecase.ConversionUsecase) *mux.Router {
	router := mux.NewRouter()
	NewRatesHandler(uc, logger.NewNop()).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestConvert_Success(t *testing.T) {
	uc := new(MockConversionUsecase)
	uc.On("Status").Return(models.RatesStatus{State: models.StateFresh})
	uc.On("Convert", mock.Anything, models.ConversionRequest{Amount: 10, From: "USD", To: "JPY"}).
		Return(models.ConversionResult{
			Request:   models.ConversionRequest{Amount: 10, From: "USD", To: "JPY"},
			Converted: 10 * (160 / 1.1),
			Rate:      160 / 1.1,
			Base:      "EUR",
			FetchedAt: fetchedAt,
		}, nil)

	rec := serve(newRouter(uc), http.MethodPost, "/api/v1/convert", `{"from":" usd","to":"jpy","amount":10}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "FRESH", rec.Header().Get(middleware.RatesStateHeader))

	var resp ConvertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "USD", resp.From)
	assert.Equal(t, "JPY", resp.To)
	assert.Equal(t, "10", resp.Amount)
	assert.Equal(t, "1454.55", resp.Display)
	assert.InDelta(t, 1454.5454, resp.Result, 1e-3)
	assert.False(t, resp.Stale)
	uc.AssertExpectations(t)
}

func TestConvert_StringAmountWithComma(t *testing.T) {
	uc := new(MockConversionUsecase)
	uc.On("Status").Return(models.RatesStatus{State: models.StateStale})
	uc.On("Convert", mock.Anything, models.ConversionRequest{Amount: 1234.5, From: "EUR", To: "USD"}).
		Return(models.ConversionResult{
			Request:   models.ConversionRequest{Amount: 1234.5, From: "EUR", To: "USD"},
			Converted: 1357.95,
			Rate:      1.1,
			Base:      "EUR",
			FetchedAt: fetchedAt,
			Stale:     true,
		}, nil)

	rec := serve(newRouter(uc), http.MethodPost, "/api/v1/convert", `{"from":"EUR","to":"USD","amount":"1 234,50"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "STALE", rec.Header().Get(middleware.RatesStateHeader))

	var resp ConvertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Stale)
	assert.Equal(t, "1357.95", resp.Display)
}

func TestConvert_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"invalid amount", conversion.ErrInvalidAmount, http.StatusBadRequest, codeInvalidAmount},
		{"overflowing result", fmt.Errorf("%w: result overflows", conversion.ErrInvalidAmount), http.StatusBadRequest, codeInvalidAmount},
		{"unknown currency", fmt.Errorf("%w: %q", registry.ErrUnknownCurrency, "XXX"), http.StatusBadRequest, codeUnknownCurrency},
		{"missing rate", fmt.Errorf("%w: CHF", conversion.ErrMissingRate), http.StatusUnprocessableEntity, codeMissingRate},
		{"unavailable", fmt.Errorf("%w: %w", usecase.ErrUnavailable, fetcher.ErrNetwork), http.StatusServiceUnavailable, codeUnavailable},
		{"unexpected", assert.AnError, http.StatusInternalServerError, codeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := new(MockConversionUsecase)
			uc.On("Status").Return(models.RatesStatus{State: models.StateNoData})
			uc.On("Convert", mock.Anything, mock.Anything).Return(models.ConversionResult{}, tt.err)

			rec := serve(newRouter(uc), http.MethodPost, "/api/v1/convert", `{"from":"USD","to":"XXX","amount":-1}`)

			assert.Equal(t, tt.wantCode, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantErr, resp.Error)
		})
	}
}

func TestConvert_BadPayload(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       `{`,
		"missing amount": `{"from":"USD","to":"JPY"}`,
		"word amount":    `{"from":"USD","to":"JPY","amount":"ten"}`,
		"bool amount":    `{"from":"USD","to":"JPY","amount":true}`,
	} {
		t.Run(name, func(t *testing.T) {
			uc := new(MockConversionUsecase)

			rec := serve(newRouter(uc), http.MethodPost, "/api/v1/convert", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			uc.AssertNotCalled(t, "Convert", mock.Anything, mock.Anything)
		})
	}
}

func TestListCurrencies(t *testing.T) {
	uc := new(MockConversionUsecase)
	uc.On("Currencies").Return([]models.CurrencyInfo{
		{Code: "EUR", Name: "Euro", Symbol: "€"},
		{Code: "USD", Name: "United States dollar", Symbol: "$"},
	})

	rec := serve(newRouter(uc), http.MethodGet, "/api/v1/currencies", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"currencies":[
		{"code":"EUR","name":"Euro","symbol":"€","label":"Euro (EUR)"},
		{"code":"USD","name":"United States dollar","symbol":"$","label":"United States dollar (USD)"}
	]}`, rec.Body.String())
}

func TestGetRates(t *testing.T) {
	table, err := models.NewRateTable("EUR", map[models.CurrencyCode]float64{"USD": 1.1})
	require.NoError(t, err)

	uc := new(MockConversionUsecase)
	uc.On("Snapshot", mock.Anything).
		Return(models.CachedRates{Table: table, FetchedAt: fetchedAt, Base: "EUR"}, models.StateRefreshing, nil)

	rec := serve(newRouter(uc), http.MethodGet, "/api/v1/rates", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "REFRESHING", rec.Header().Get(middleware.RatesStateHeader))
	assert.JSONEq(t, `{"base":"EUR","fetched_at":"2024-05-01T16:00:00Z","state":"REFRESHING","rates":{"USD":1.1}}`, rec.Body.String())
}

func TestGetRates_Unavailable(t *testing.T) {
	uc := new(MockConversionUsecase)
	uc.On("Status").Return(models.RatesStatus{State: models.StateNoData})
	uc.On("Snapshot", mock.Anything).Return(models.CachedRates{}, models.StateNoData, usecase.ErrUnavailable)

	rec := serve(newRouter(uc), http.MethodGet, "/api/v1/rates", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NO_DATA", rec.Header().Get(middleware.RatesStateHeader))
}

func TestGetStatus(t *testing.T) {
	uc := new(MockConversionUsecase)
	uc.On("Status").Return(models.RatesStatus{
		State:     models.StateStale,
		Base:      "EUR",
		FetchedAt: fetchedAt,
		Age:       90 * time.Minute,
		Offline:   true,
		LastError: "bad response: status 503",
		NextRetry: fetchedAt.Add(2 * time.Hour),
	})

	rec := serve(newRouter(uc), http.MethodGet, "/api/v1/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"state":"STALE",
		"base":"EUR",
		"fetched_at":"2024-05-01T16:00:00Z",
		"age_seconds":5400,
		"offline":true,
		"last_error":"bad response: status 503",
		"next_retry":"2024-05-01T18:00:00Z"
	}`, rec.Body.String())
}

func TestGetStatus_NoData(t *testing.T) {
	uc := new(MockConversionUsecase)
	uc.On("Status").Return(models.RatesStatus{State: models.StateNoData, Base: "EUR"})

	rec := serve(newRouter(uc), http.MethodGet, "/api/v1/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"NO_DATA","base":"EUR","age_seconds":0,"offline":false}`, rec.Body.String())
}

func TestRefreshRates(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		uc := new(MockConversionUsecase)
		uc.On("Refresh", mock.Anything).Return(models.RatesStatus{State: models.StateFresh, Base: "EUR", FetchedAt: fetchedAt}, nil)

		rec := serve(newRouter(uc), http.MethodPost, "/api/v1/rates/refresh", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "FRESH", rec.Header().Get(middleware.RatesStateHeader))

		var resp StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "FRESH", resp.State)
	})

	t.Run("source down", func(t *testing.T) {
		uc := new(MockConversionUsecase)
		uc.On("Refresh", mock.Anything).Return(
			models.RatesStatus{State: models.StateStale, Base: "EUR", Offline: true, LastError: "network error"},
			fmt.Errorf("refresh rates: %w", fetcher.ErrNetwork))

		rec := serve(newRouter(uc), http.MethodPost, "/api/v1/rates/refresh", "")

		require.Equal(t, http.StatusBadGateway, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, codeRefreshFailed, resp.Error)
		require.NotNil(t, resp.Status)
		assert.True(t, resp.Status.Offline)
	})
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	rec := serve(newRouter(new(MockConversionUsecase)), http.MethodGet, "/api/v1/convert", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
