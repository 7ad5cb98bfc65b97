package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the error body every non-200 response carries. The frontend
// relies on ok=false plus a stable error code; retryAfterMs accompanies the
// retryable quota/overload conditions.
type APIError struct {
	OK           bool   `json:"ok"`
	Error        string `json:"error"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func WriteError(w http.ResponseWriter, statusCode int, code string) {
	WriteJSON(w, statusCode, APIError{OK: false, Error: code})
}

func WriteBadRequestError(w http.ResponseWriter, code string) {
	WriteError(w, http.StatusBadRequest, code)
}

func WriteInternalError(w http.ResponseWriter, code string) {
	if code == "" {
		code = "internal_error"
	}
	WriteError(w, http.StatusInternalServerError, code)
}

// WriteQuotaExhausted reports an upstream 429 with the remaining cool-down.
func WriteQuotaExhausted(w http.ResponseWriter, retryAfterMs int64) {
	WriteJSON(w, http.StatusTooManyRequests, APIError{
		OK:           false,
		Error:        "quota_exhausted",
		RetryAfterMs: retryAfterMs,
	})
}

// WriteModelUnavailable reports an upstream 503 with the computed backoff.
func WriteModelUnavailable(w http.ResponseWriter, retryAfterMs int64) {
	WriteJSON(w, http.StatusServiceUnavailable, APIError{
		OK:           false,
		Error:        "model_unavailable",
		RetryAfterMs: retryAfterMs,
	})
}
