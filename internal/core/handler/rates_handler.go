package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/Nzyazin/ratecache/internal/core/conversion"
	"github.com/Nzyazin/ratecache/internal/core/logger"
	"github.com/Nzyazin/ratecache/internal/core/middleware"
	"github.com/Nzyazin/ratecache/internal/core/models"
	"github.com/Nzyazin/ratecache/internal/core/registry"
	"github.com/Nzyazin/ratecache/internal/core/usecase"
)

const (
	codeInvalidRequest  = "invalid_request"
	codeInvalidAmount   = "invalid_amount"
	codeUnknownCurrency = "unknown_currency"
	codeMissingRate     = "missing_rate"
	codeUnavailable     = "unavailable"
	codeRefreshFailed   = "refresh_failed"
	codeInternal        = "internal"
)

type RatesHandler struct {
	usecase usecase.ConversionUsecase
	log     logger.Logger
}

type ErrorResponse struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Status  *StatusResponse `json:"status,omitempty"`
}

type ConvertRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount json.RawMessage `json:"amount"`
}

type ConvertResponse struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    string    `json:"amount"`
	Result    float64   `json:"result"`
	Display   string    `json:"display"`
	Rate      float64   `json:"rate"`
	Base      string    `json:"base"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
}

type CurrencyResponse struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Label  string `json:"label"`
}

type CurrenciesResponse struct {
	Currencies []CurrencyResponse `json:"currencies"`
}

type RatesResponse struct {
	Base      string             `json:"base"`
	FetchedAt time.Time          `json:"fetched_at"`
	State     string             `json:"state"`
	Rates     map[string]float64 `json:"rates"`
}

type StatusResponse struct {
	State      string     `json:"state"`
	Base       string     `json:"base"`
	FetchedAt  *time.Time `json:"fetched_at,omitempty"`
	AgeSeconds float64    `json:"age_seconds"`
	Offline    bool       `json:"offline"`
	LastError  string     `json:"last_error,omitempty"`
	NextRetry  *time.Time `json:"next_retry,omitempty"`
}

func NewRatesHandler(usecase usecase.ConversionUsecase, log logger.Logger) *RatesHandler {
	return &RatesHandler{usecase: usecase, log: log}
}

func (h *RatesHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/currencies", h.ListCurrencies).Methods(http.MethodGet)
	api.HandleFunc("/convert", h.Convert).Methods(http.MethodPost)
	api.HandleFunc("/rates", h.GetRates).Methods(http.MethodGet)
	api.HandleFunc("/rates/refresh", h.RefreshRates).Methods(http.MethodPost)
	api.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)
}

func (h *RatesHandler) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies := h.usecase.Currencies()
	out := CurrenciesResponse{Currencies: make([]CurrencyResponse, 0, len(currencies))}
	for _, c := range currencies {
		out.Currencies = append(out.Currencies, CurrencyResponse{
			Code:   c.Code.String(),
			Name:   c.Name,
			Symbol: c.Symbol,
			Label:  c.Label(),
		})
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *RatesHandler) Convert(w http.ResponseWriter, r *http.Request) {
	req, amount, err := h.decodeConvertRequest(w, r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	res, err := h.usecase.Convert(r.Context(), models.ConversionRequest{
		Amount: amount.InexactFloat64(),
		From:   models.CurrencyCode(normalizeCode(req.From)),
		To:     models.CurrencyCode(normalizeCode(req.To)),
	})
	h.stampState(w)
	if err != nil {
		h.handleConvertError(w, req, err)
		return
	}

	h.log.Info("Conversion served",
		logger.StringField("from", res.Request.From.String()),
		logger.StringField("to", res.Request.To.String()),
		logger.StringField("amount", amount.String()),
		logger.Float64Field("result", res.Converted),
		logger.BoolField("stale", res.Stale),
	)

	respondWithJSON(w, http.StatusOK, ConvertResponse{
		From:      res.Request.From.String(),
		To:        res.Request.To.String(),
		Amount:    amount.String(),
		Result:    res.Converted,
		Display:   decimal.NewFromFloat(res.Converted).StringFixedBank(2),
		Rate:      res.Rate,
		Base:      res.Base.String(),
		FetchedAt: res.FetchedAt,
		Stale:     res.Stale,
	})
}

func (h *RatesHandler) GetRates(w http.ResponseWriter, r *http.Request) {
	cached, state, err := h.usecase.Snapshot(r.Context())
	if err != nil {
		h.stampState(w)
		h.handleRatesError(w, err)
		return
	}

	w.Header().Set(middleware.RatesStateHeader, string(state))

	rates := make(map[string]float64, cached.Table.Len())
	for code, rate := range cached.Table.Rates() {
		rates[code.String()] = rate
	}

	respondWithJSON(w, http.StatusOK, RatesResponse{
		Base:      cached.Base.String(),
		FetchedAt: cached.FetchedAt,
		State:     string(state),
		Rates:     rates,
	})
}

func (h *RatesHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.usecase.Status()
	w.Header().Set(middleware.RatesStateHeader, string(status.State))
	respondWithJSON(w, http.StatusOK, toStatusResponse(status))
}

func (h *RatesHandler) RefreshRates(w http.ResponseWriter, r *http.Request) {
	status, err := h.usecase.Refresh(r.Context())
	w.Header().Set(middleware.RatesStateHeader, string(status.State))

	resp := toStatusResponse(status)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.log.Warn("Client went away during refresh", logger.ErrorField("error", err))
		} else {
			h.log.Error("Manual refresh failed", logger.ErrorField("error", err))
		}
		respondWithJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   codeRefreshFailed,
			Message: err.Error(),
			Status:  &resp,
		})
		return
	}

	h.log.Info("Manual refresh succeeded", logger.StringField("state", resp.State))
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *RatesHandler) decodeConvertRequest(w http.ResponseWriter, r *http.Request) (*ConvertRequest, decimal.Decimal, error) {
	var req ConvertRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warn("Failed to decode request body", logger.ErrorField("error", err))
		return nil, decimal.Zero, fmt.Errorf("invalid request payload")
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.log.Warn("Invalid amount", logger.StringField("amount", string(req.Amount)), logger.ErrorField("error", err))
		return nil, decimal.Zero, err
	}

	return &req, amount, nil
}

// parseAmount accepts a JSON number or a string such as "1 234,50".
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}

	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Zero, fmt.Errorf("invalid amount format")
		}
		s = strings.ReplaceAll(strings.ReplaceAll(str, " ", ""), ",", ".")
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %s", s)
	}
	return amount, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (h *RatesHandler) stampState(w http.ResponseWriter) {
	w.Header().Set(middleware.RatesStateHeader, string(h.usecase.Status().State))
}

func (h *RatesHandler) handleConvertError(w http.ResponseWriter, req *ConvertRequest, err error) {
	switch {
	case errors.Is(err, conversion.ErrInvalidAmount):
		h.log.Warn("Invalid amount", logger.StringField("amount", string(req.Amount)))
		respondWithError(w, http.StatusBadRequest, codeInvalidAmount, "amount must be a finite non-negative number")
	case errors.Is(err, registry.ErrUnknownCurrency):
		respondWithError(w, http.StatusBadRequest, codeUnknownCurrency, err.Error())
	case errors.Is(err, conversion.ErrMissingRate):
		respondWithError(w, http.StatusUnprocessableEntity, codeMissingRate, err.Error())
	default:
		h.handleRatesError(w, err)
	}
}

func (h *RatesHandler) handleRatesError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, codeUnavailable, "Exchange rates are unavailable, try again later")
	default:
		h.log.Error("Failed to process request", logger.ErrorField("error", err))
		respondWithError(w, http.StatusInternalServerError, codeInternal, "Failed to process request")
	}
}

func toStatusResponse(status models.RatesStatus) StatusResponse {
	resp := StatusResponse{
		State:      string(status.State),
		Base:       status.Base.String(),
		AgeSeconds: status.Age.Seconds(),
		Offline:    status.Offline,
		LastError:  status.LastError,
	}
	if !status.FetchedAt.IsZero() {
		fetchedAt := status.FetchedAt
		resp.FetchedAt = &fetchedAt
	}
	if !status.NextRetry.IsZero() {
		nextRetry := status.NextRetry
		resp.NextRetry = &nextRetry
	}
	return resp
}

func respondWithError(w http.ResponseWriter, code int, errCode, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: errCode, Message: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal","message":"Internal Server Error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
