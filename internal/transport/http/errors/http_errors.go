package errors

import (
	"encoding/json"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Codes returned by every gateway endpoint. Service-specific unavailability
// codes (GATEWAY_UNAVAILABLE, LEDGER_UNAVAILABLE, ...) are passed as literals.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
)

// APIError is the error envelope. Policy rejections are not errors and never
// use it; the sender sees them as a message status.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type RetryError struct {
	APIError
	RetryAfterSec int64 `json:"retry_after_sec"`
}

func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError tags the envelope with the id set by chi's RequestID middleware.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	Write(w, status, newAPIError(r, code, message))
}

func WriteRateLimited(w http.ResponseWriter, r *http.Request, retryAfter int64, message string) {
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	Write(w, http.StatusTooManyRequests, RetryError{
		APIError:      newAPIError(r, CodeRateLimited, message),
		RetryAfterSec: retryAfter,
	})
}

func newAPIError(r *http.Request, code, message string) APIError {
	e := APIError{Code: code, Message: message}
	if r != nil {
		e.RequestID = chimiddleware.GetReqID(r.Context())
	}
	return e
}
