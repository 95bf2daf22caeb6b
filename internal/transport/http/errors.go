package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeMissingRequiredField = "missing_required_field"
	codeHolderRequired       = "holder_required"
	codeInvalidTimestamp     = "invalid_timestamp"
	codeInvalidTimeRange     = "invalid_time_range"
	codeInvalidLimit         = "invalid_limit"
	codeInvalidOffset        = "invalid_offset"
	codeInvalidLatestOnly    = "invalid_latest_only"
	codeOrderNotFound        = "order_not_found"
	codeForbidden            = "forbidden"
	codeStoreUnavailable     = "store_unavailable"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}
