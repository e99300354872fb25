package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/kursadbilgin/site-notifier/internal/domain"
)

const (
	defaultPushTimeout = 10 * time.Second
	defaultPushTTL     = 24 * time.Hour
	maxErrorBodyBytes  = 1024
)

// WebPushConfig is the VAPID identity used for every push send.
type WebPushConfig struct {
	Subject    string
	PublicKey  string
	PrivateKey string
	TTL        time.Duration
	HTTPClient *http.Client
}

// WebPushSender delivers payloads to browser push services using VAPID.
type WebPushSender struct {
	subject    string
	publicKey  string
	privateKey string
	ttl        time.Duration
	client     *http.Client
}

var _ PushSender = (*WebPushSender)(nil)

// NewWebPushSender validates the VAPID configuration. A configuration without
// keys yields domain.ErrPushDisabled so callers can run with push turned off.
func NewWebPushSender(cfg WebPushConfig) (*WebPushSender, error) {
	subject := strings.TrimSpace(cfg.Subject)
	publicKey := strings.TrimSpace(cfg.PublicKey)
	privateKey := strings.TrimSpace(cfg.PrivateKey)

	if subject == "" || publicKey == "" || privateKey == "" {
		return nil, fmt.Errorf("%w: VAPID subject and keypair are required", domain.ErrPushDisabled)
	}
	if !strings.HasPrefix(subject, "mailto:") && !strings.HasPrefix(subject, "https:") {
		return nil, fmt.Errorf("invalid VAPID subject %q: must be a mailto: or https: URI", subject)
	}
	if err := checkKeyLength(publicKey, 65); err != nil {
		return nil, fmt.Errorf("invalid VAPID public key: %w", err)
	}
	if err := checkKeyLength(privateKey, 32); err != nil {
		return nil, fmt.Errorf("invalid VAPID private key: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultPushTimeout}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultPushTTL
	}

	return &WebPushSender{
		// webpush-go adds the mailto: scheme itself for non-https subscribers.
		subject:    strings.TrimPrefix(subject, "mailto:"),
		publicKey:  publicKey,
		privateKey: privateKey,
		ttl:        ttl,
		client:     client,
	}, nil
}

func (s *WebPushSender) Send(
	ctx context.Context,
	subscription domain.PushSubscription,
	body []byte,
	urgency domain.Urgency,
) error {
	if s == nil {
		return domain.ErrPushDisabled
	}
	if !subscription.Valid() {
		return &ProviderError{Provider: BackendWebPush, Message: "invalid push subscription"}
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: subscription.Endpoint,
		Keys: webpush.Keys{
			Auth:   subscription.Keys.Auth,
			P256dh: subscription.Keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.subject,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             int(s.ttl.Seconds()),
		Urgency:         webPushUrgency(urgency),
	})
	if err != nil {
		return &ProviderError{
			Provider:  BackendWebPush,
			Message:   "push request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return httpStatusError(BackendWebPush, resp.StatusCode, strings.TrimSpace(string(raw)))
}

func webPushUrgency(u domain.Urgency) webpush.Urgency {
	switch u {
	case domain.UrgencyCritical, domain.UrgencyHigh:
		return webpush.UrgencyHigh
	case domain.UrgencyLow:
		return webpush.UrgencyLow
	default:
		return webpush.UrgencyNormal
	}
}

func checkKeyLength(key string, want int) error {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(key, "="))
	if err != nil {
		return fmt.Errorf("not base64url: %w", err)
	}
	if len(decoded) != want {
		return fmt.Errorf("decoded length %d, want %d", len(decoded), want)
	}
	return nil
}
