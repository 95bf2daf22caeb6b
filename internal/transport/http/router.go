package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the query API routes.
func NewRouter(orders OrderQuerier, health HealthStore) *mux.Router {
	r := mux.NewRouter()
	r.Use(Instrument)

	r.Handle("/health", HandleHealth(health)).Methods(http.MethodGet)
	r.Handle("/orders", HandleQueryOrders(orders)).Methods(http.MethodGet)
	r.Handle("/orders/{order_id}", HandleOrderHistory(orders)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/", rootHandler()).Methods(http.MethodGet)

	r.NotFoundHandler = NotFoundHandler()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})
	return r
}

// rootHandler describes the available endpoints.
func rootHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"service":          "twap-snapshot-api",
			"GET /health":      "store connectivity and last ingested object",
			"GET /orders":      "orders for a holder within a time range",
			"GET /orders/{id}": "full observed history of one order",
			"GET /metrics":     "prometheus metrics",
		})
	})
}
