package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Backend names used in ProviderError.Provider.
const (
	BackendWebPush  = "webpush"
	BackendSMTP     = "smtp"
	BackendPostmark = "postmark"
	BackendRelay    = "relay"
)

// Failure reasons reported by FailureReason.
const (
	ReasonStaleSubscription = "stale_subscription"
	ReasonTimeout           = "timeout"
	ReasonTransient         = "transient"
	ReasonRejected          = "rejected"
	ReasonCanceled          = "canceled"
)

// ProviderError is a failed push or email send. StatusCode is set when the
// backend answered over HTTP.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
	} else {
		b.WriteString("provider")
	}
	b.WriteString(" error")

	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": status=%d", e.StatusCode)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": " + msg)
	}
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a later re-trigger could plausibly succeed.
// Nothing retries on it; it only feeds logs and metrics.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, context.Canceled):
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// IsStaleSubscription reports whether the push service no longer knows the
// subscription (404 Not Found or 410 Gone).
func IsStaleSubscription(err error) bool {
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		return false
	}
	return providerErr.StatusCode == http.StatusGone || providerErr.StatusCode == http.StatusNotFound
}

// FailureReason condenses a send error into a low-cardinality label.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case IsStaleSubscription(err):
		return ReasonStaleSubscription
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case IsTransient(err):
		return ReasonTransient
	default:
		return ReasonRejected
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func httpStatusError(backend string, statusCode int, body string) *ProviderError {
	msg := fmt.Sprintf("unexpected status %d", statusCode)
	if body != "" {
		msg += ": " + body
	}
	return &ProviderError{
		Provider:   backend,
		StatusCode: statusCode,
		Message:    msg,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}
