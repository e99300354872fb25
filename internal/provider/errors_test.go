package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsStaleSubscription(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "gone", err: &ProviderError{StatusCode: 410}, want: true},
		{name: "not found", err: &ProviderError{StatusCode: 404}, want: true},
		{name: "wrapped gone", err: fmt.Errorf("push: %w", &ProviderError{StatusCode: 410}), want: true},
		{name: "server error", err: &ProviderError{StatusCode: 500}, want: false},
		{name: "bad request", err: &ProviderError{StatusCode: 400}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsStaleSubscription(tt.err); got != tt.want {
				t.Fatalf("IsStaleSubscription() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "transient provider", err: &ProviderError{StatusCode: 503, Transient: true}, want: true},
		{name: "permanent provider", err: &ProviderError{StatusCode: 410}, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ProviderError
		want string
	}{
		{
			name: "full",
			err:  &ProviderError{Provider: BackendWebPush, StatusCode: 410, Message: "subscription expired", Cause: errors.New("gone")},
			want: "webpush error: status=410: subscription expired: gone",
		},
		{
			name: "no backend",
			err:  &ProviderError{Message: "boom"},
			want: "provider error: boom",
		},
		{
			name: "status helper",
			err:  httpStatusError(BackendRelay, 503, "busy"),
			want: "relay error: status=503: unexpected status 503: busy",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFailureReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "gone", err: httpStatusError(BackendWebPush, 410, ""), want: ReasonStaleSubscription},
		{name: "deadline", err: fmt.Errorf("send: %w", context.DeadlineExceeded), want: ReasonTimeout},
		{name: "canceled", err: context.Canceled, want: ReasonCanceled},
		{name: "throttled", err: httpStatusError(BackendWebPush, 429, ""), want: ReasonTransient},
		{name: "bad request", err: httpStatusError(BackendRelay, 400, ""), want: ReasonRejected},
		{name: "plain", err: errors.New("boom"), want: ReasonRejected},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := FailureReason(tt.err); got != tt.want {
				t.Fatalf("FailureReason() = %q, want %q", got, tt.want)
			}
		})
	}
}
