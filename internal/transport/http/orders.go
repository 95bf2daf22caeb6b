package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/app"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/domain"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// OrderQuerier is the minimal interface the order endpoints need.
type OrderQuerier interface {
	QueryOrders(ctx context.Context, in app.QueryInput) ([]app.OrderView, error)
	OrderHistory(ctx context.Context, orderID string) (app.OrderView, error)
}

// HandleQueryOrders serves GET /orders: the per-holder order listing.
// Each order appears once with its latest observed state;
// latest_only=false additionally embeds every observed row under
// raw.all_rows.
func HandleQueryOrders(svc OrderQuerier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		q := r.URL.Query()

		holder := q.Get("holder")
		if holder == "" {
			writeError(w, http.StatusBadRequest, codeHolderRequired, "holder query parameter is required")
			return
		}

		start, ok := parseTimestamp(w, q.Get("start"), "start")
		if !ok {
			return
		}
		end, ok := parseTimestamp(w, q.Get("end"), "end")
		if !ok {
			return
		}

		limit, ok := parseIntParam(w, q.Get("limit"), "limit", codeInvalidLimit, 1)
		if !ok {
			return
		}
		offset, ok := parseIntParam(w, q.Get("offset"), "offset", codeInvalidOffset, 0)
		if !ok {
			return
		}

		var instrument *string
		if v := q.Get("instrument"); v != "" {
			instrument = &v
		}

		latestOnly := true
		if v := q.Get("latest_only"); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidLatestOnly, "latest_only must be a boolean")
				return
			}
			latestOnly = parsed
		}

		orders, err := svc.QueryOrders(r.Context(), app.QueryInput{
			HolderID:   holder,
			Start:      start,
			End:        end,
			Instrument: instrument,
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrHolderRequired):
				writeError(w, http.StatusBadRequest, codeHolderRequired, err.Error())
			case errors.Is(err, domain.ErrInvalidTimeRange):
				writeError(w, http.StatusBadRequest, codeInvalidTimeRange, err.Error())
			case errors.Is(err, domain.ErrInvalidLimit):
				writeError(w, http.StatusBadRequest, codeInvalidLimit, err.Error())
			case errors.Is(err, domain.ErrInvalidOffset):
				writeError(w, http.StatusBadRequest, codeInvalidOffset, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		resp := queryOrdersResponse{
			Holder: holder,
			Start:  start.UTC(),
			End:    end.UTC(),
			Orders: make([]orderJSON, 0, len(orders)),
		}
		for _, order := range orders {
			resp.Orders = append(resp.Orders, orderToJSON(order, !latestOnly))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// HandleOrderHistory serves GET /orders/{order_id}: every observed row of
// one order, across holders and time, newest first.
func HandleOrderHistory(svc OrderQuerier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		orderID := mux.Vars(r)["order_id"]
		order, err := svc.OrderHistory(r.Context(), orderID)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				writeError(w, http.StatusNotFound, codeOrderNotFound, "order not found")
				return
			}
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		resp := orderHistoryResponse{
			OrderID: order.OrderID,
			Rows:    make([]rowJSON, 0, len(order.Rows)),
		}
		for _, row := range order.Rows {
			resp.Rows = append(resp.Rows, rowToJSON(row))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func parseTimestamp(w http.ResponseWriter, raw, name string) (time.Time, bool) {
	if raw == "" {
		writeError(w, http.StatusBadRequest, codeMissingRequiredField, name+" query parameter is required")
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidTimestamp, name+" must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}

// parseIntParam parses an optional integer query parameter. An absent
// parameter yields 0, letting the service apply its default; a present
// value below min is a client error.
func parseIntParam(w http.ResponseWriter, raw, name, code string, min int) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		writeError(w, http.StatusBadRequest, code, name+" must be an integer >= "+strconv.Itoa(min))
		return 0, false
	}
	return n, true
}

type queryOrdersResponse struct {
	Holder string      `json:"holder"`
	Start  time.Time   `json:"start"`
	End    time.Time   `json:"end"`
	Orders []orderJSON `json:"orders"`
}

type orderJSON struct {
	OrderID          string       `json:"order_id"`
	HolderID         string       `json:"holder_id"`
	Instrument       *string      `json:"instrument"`
	Direction        *string      `json:"direction"`
	LifecycleStatus  *string      `json:"lifecycle_status"`
	DurationMinutes  *int         `json:"duration_minutes"`
	SizeRequested    *string      `json:"size_requested"`
	LatestObservedAt time.Time    `json:"latest_observed_at"`
	Observations     int          `json:"observations"`
	Executed         executedJSON `json:"executed"`
	Raw              any          `json:"raw"`
}

type executedJSON struct {
	Size  *string `json:"size"`
	Value *string `json:"value"`
}

type orderHistoryResponse struct {
	OrderID string    `json:"order_id"`
	Rows    []rowJSON `json:"rows"`
}

type rowJSON struct {
	HolderID        string         `json:"holder_id"`
	ObservedAt      time.Time      `json:"observed_at"`
	Instrument      *string        `json:"instrument"`
	Direction       *string        `json:"direction"`
	LifecycleStatus *string        `json:"lifecycle_status"`
	DurationMinutes *int           `json:"duration_minutes"`
	SizeRequested   *string        `json:"size_requested"`
	Executed        executedJSON   `json:"executed"`
	SourceObjectID  string         `json:"source_object_id"`
	InsertedAt      time.Time      `json:"inserted_at"`
	Raw             map[string]any `json:"raw"`
}

func rowToJSON(row domain.Snapshot) rowJSON {
	return rowJSON{
		HolderID:        row.HolderID,
		ObservedAt:      row.ObservedAt,
		Instrument:      row.Instrument,
		Direction:       row.Direction,
		LifecycleStatus: row.LifecycleStatus,
		DurationMinutes: row.DurationMinutes,
		SizeRequested:   decimalString(row.SizeRequested),
		Executed: executedJSON{
			Size:  decimalString(row.SizeFilled),
			Value: decimalString(row.ValueFilled),
		},
		SourceObjectID: row.SourceObjectID,
		InsertedAt:     row.InsertedAt,
		Raw:            row.Raw,
	}
}

// orderToJSON presents an order from its latest snapshot. With history,
// raw becomes {"latest": ..., "all_rows": [...]} so callers see every
// observation without a second request.
func orderToJSON(order app.OrderView, includeHistory bool) orderJSON {
	latest := order.Rows[0]

	out := orderJSON{
		OrderID:          order.OrderID,
		HolderID:         latest.HolderID,
		Instrument:       latest.Instrument,
		Direction:        latest.Direction,
		LifecycleStatus:  latest.LifecycleStatus,
		DurationMinutes:  latest.DurationMinutes,
		SizeRequested:    decimalString(latest.SizeRequested),
		LatestObservedAt: latest.ObservedAt,
		Observations:     len(order.Rows),
		Executed: executedJSON{
			Size:  decimalString(latest.SizeFilled),
			Value: decimalString(latest.ValueFilled),
		},
		Raw: latest.Raw,
	}

	if includeHistory {
		allRows := make([]map[string]any, 0, len(order.Rows))
		for _, row := range order.Rows {
			allRows = append(allRows, row.Raw)
		}
		out.Raw = map[string]any{
			"latest":   latest.Raw,
			"all_rows": allRows,
		}
	}
	return out
}

func decimalString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
