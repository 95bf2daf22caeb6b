package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/domain"
)

// HealthStore reports connectivity and the most recent error-free
// ingestion, which together answer "is the API serving fresh data".
type HealthStore interface {
	Ping(ctx context.Context) error
	LatestSuccess(ctx context.Context) (*domain.IngestLogEntry, error)
}

type healthResponse struct {
	Status             string     `json:"status"`
	Store              string     `json:"store"`
	LastIngestedObject *string    `json:"last_ingested_object"`
	LastIngestedAt     *time.Time `json:"last_ingested_at"`
}

// HandleHealth serves GET /health. The endpoint degrades rather than
// errors: a reachable store with no successful ingestion yet still
// reports ok, with null ingestion fields.
func HandleHealth(store HealthStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		if err := store.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(healthResponse{
				Status: "degraded",
				Store:  "unreachable",
			})
			return
		}

		resp := healthResponse{Status: "ok", Store: "connected"}
		if latest, err := store.LatestSuccess(r.Context()); err == nil && latest != nil {
			resp.LastIngestedObject = &latest.SourceObjectID
			at := latest.ProcessedAt
			resp.LastIngestedAt = &at
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
