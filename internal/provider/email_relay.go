package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultRelayTimeout = 10 * time.Second

type relayRequest struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Body     string            `json:"body"`
	HTML     string            `json:"html,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// EmailRelaySender posts emails to an HTTP send-email function.
type EmailRelaySender struct {
	client   *resty.Client
	endpoint string
}

var _ EmailSender = (*EmailRelaySender)(nil)

func NewEmailRelaySender(endpoint string, apiKey string) (*EmailRelaySender, error) {
	client := resty.New()
	client.SetTimeout(defaultRelayTimeout)
	if key := strings.TrimSpace(apiKey); key != "" {
		client.SetAuthToken(key)
	}

	return NewEmailRelaySenderWithClient(endpoint, client)
}

func NewEmailRelaySenderWithClient(endpoint string, client *resty.Client) (*EmailRelaySender, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("email relay endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid email relay endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultRelayTimeout)
	}
	// No retries: a failed send is recorded and left to the next trigger.
	client.SetRetryCount(0)

	return &EmailRelaySender{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (p *EmailRelaySender) Send(ctx context.Context, msg EmailMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("email relay is not initialized")
	}

	html, _ := renderEmailHTML(msg)
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(relayRequest{
			To:       msg.To,
			Subject:  msg.Subject,
			Body:     plainTextBody(msg),
			HTML:     html,
			Metadata: msg.Metadata,
		}).
		Post(p.endpoint)
	if err != nil {
		return &ProviderError{
			Provider:  BackendRelay,
			Message:   "email relay request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return httpStatusError(BackendRelay, statusCode, strings.TrimSpace(response.String()))
}
