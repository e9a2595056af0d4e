package service

import (
	"fmt"
	"net/http"
	"time"
)

// Error is a caller-facing failure carrying its HTTP status.
type Error struct {
	Code        string
	Description string
	Status      int
	// ResetIn is set for rate limited failures.
	ResetIn time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newError(code, desc string, status int) *Error {
	return &Error{Code: code, Description: desc, Status: status}
}

func invalidRequest(desc string) *Error {
	return newError("invalid_request", desc, http.StatusBadRequest)
}

func rateLimited(desc string, resetIn time.Duration) *Error {
	err := newError("rate_limited", desc, http.StatusTooManyRequests)
	err.ResetIn = resetIn
	return err
}

func serverError(desc string) *Error {
	return newError("server_error", desc, http.StatusInternalServerError)
}

func unavailable(desc string) *Error {
	return newError("temporarily_unavailable", desc, http.StatusServiceUnavailable)
}
