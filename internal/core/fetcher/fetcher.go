package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Nzyazin/ratecache/internal/core/logger"
	"github.com/Nzyazin/ratecache/internal/core/models"
)

// ECBRatesURL serves EUR based reference rates.
const ECBRatesURL = "https://api.frankfurter.app/latest"

const maxBodySize = 1 << 20

// Fetcher retrieves a complete rate table from a remote source.
type Fetcher interface {
	FetchLatest(ctx context.Context) (models.RateTable, error)
}

type HTTPFetcher struct {
	url    string
	base   models.CurrencyCode
	client *http.Client
	log    logger.Logger
}

// NewHTTPFetcher builds a fetcher for url. A nil client gets a 10 second timeout.
func NewHTTPFetcher(url string, base models.CurrencyCode, client *http.Client, log logger.Logger) *HTTPFetcher {
	if url == "" {
		url = ECBRatesURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{
		url:    url,
		base:   base,
		client: client,
		log:    log,
	}
}

func (f *HTTPFetcher) FetchLatest(ctx context.Context) (models.RateTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return models.RateTable{}, fmt.Errorf("building http request: %w", err)
	}
	req.Header.Add("Accept", "application/json")

	res, err := f.client.Do(req)
	if err != nil {
		return models.RateTable{}, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxBodySize))
		f.log.Warn("Rate source answered with error status",
			logger.StringField("url", f.url),
			logger.IntField("status", res.StatusCode),
		)
		return models.RateTable{}, &StatusError{Code: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return models.RateTable{}, fmt.Errorf("%w: reading body: %w", ErrNetwork, err)
	}

	return parseRates(body, f.base)
}

// parseRates accepts either a flat {"USD": 1.1} object or the
// {"base": "EUR", "date": "...", "rates": {...}} envelope. Values may be
// JSON numbers or numeric strings.
func parseRates(body []byte, base models.CurrencyCode) (models.RateTable, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return models.RateTable{}, fmt.Errorf("%w: decoding json: %v", ErrMalformedData, err)
	}
	if top == nil {
		return models.RateTable{}, fmt.Errorf("%w: empty payload", ErrMalformedData)
	}

	raw := top
	if nested, ok := top["rates"]; ok {
		if b, ok := top["base"]; ok {
			var declared string
			if err := json.Unmarshal(b, &declared); err != nil {
				return models.RateTable{}, fmt.Errorf("%w: base: %v", ErrMalformedData, err)
			}
			if models.CurrencyCode(strings.ToUpper(declared)) != base {
				return models.RateTable{}, fmt.Errorf("%w: base %q, want %q", ErrMalformedData, declared, base)
			}
		}
		raw = nil
		if err := json.Unmarshal(nested, &raw); err != nil {
			return models.RateTable{}, fmt.Errorf("%w: rates: %v", ErrMalformedData, err)
		}
	}

	if len(raw) == 0 {
		return models.RateTable{}, fmt.Errorf("%w: no rates", ErrMalformedData)
	}

	rates := make(map[models.CurrencyCode]float64, len(raw))
	for code, value := range raw {
		rate, err := parseRate(value)
		if err != nil {
			return models.RateTable{}, fmt.Errorf("%w: %s: %v", ErrMalformedData, code, err)
		}
		rates[models.CurrencyCode(code)] = rate
	}

	table, err := models.NewRateTable(base, rates)
	if err != nil {
		return models.RateTable{}, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if table.Len() == 0 {
		return models.RateTable{}, fmt.Errorf("%w: no rates besides base", ErrMalformedData)
	}
	return table, nil
}

func parseRate(value json.RawMessage) (float64, error) {
	value = bytes.TrimSpace(value)
	if len(value) > 0 && value[0] == '"' {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return 0, err
		}
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}

	var n json.Number
	if err := json.Unmarshal(value, &n); err != nil {
		return 0, fmt.Errorf("not a number: %s", value)
	}
	return n.Float64()
}
