package monitor

import (
	"encoding/json"
	"net/http"
)

// Error is the JSON envelope carried by every non-2xx API response.
// Status mirrors the HTTP status line so a client reading the body
// alone still knows what happened.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Machine-readable failure codes. The operator UI switches on these,
// so renaming one is a wire change.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnavailable = "service_unavailable"
)

// errStatus binds each code to its HTTP status, so handlers name the
// failure and never pick a status by hand.
var errStatus = map[string]int{
	ErrCodeBadRequest:  http.StatusBadRequest,
	ErrCodeNotFound:    http.StatusNotFound,
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeValidation:  http.StatusBadRequest,
	ErrCodeUnavailable: http.StatusServiceUnavailable,
}

// writeJSON encodes v as the response body. Encode errors are dropped:
// by the time one surfaces the status line is already on the wire.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeFailure renders the error envelope for code. Unknown codes are a
// programming error and render as 500.
func writeFailure(w http.ResponseWriter, code, message string) {
	status, ok := errStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}
