package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"lmserv/internal/pool"
	"lmserv/internal/worker"
	"lmserv/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps pool and worker errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case pool.IsTooBusy(err):
		return http.StatusTooManyRequests
	case errors.Is(err, pool.ErrClosed),
		errors.Is(err, pool.ErrNotStarted),
		errors.Is(err, pool.ErrExhausted),
		worker.IsNotOperational(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
