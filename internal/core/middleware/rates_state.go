package middleware

import (
	"net/http"

	"github.com/Nzyazin/ratecache/internal/core/models"
)

const RatesStateHeader = "X-Rates-State"

type StatusProvider interface {
	Status() models.RatesStatus
}

// RatesState stamps every response with the cache state at request time.
// Handlers that serve rates may overwrite it with the state they served.
func RatesState(p StatusProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(RatesStateHeader, string(p.Status().State))
			next.ServeHTTP(w, r)
		})
	}
}
