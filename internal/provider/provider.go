package provider

import (
	"context"

	"github.com/kursadbilgin/site-notifier/internal/domain"
)

// PushSender performs one push-protocol send. Non-2xx answers are returned as *ProviderError.
type PushSender interface {
	Send(ctx context.Context, subscription domain.PushSubscription, body []byte, urgency domain.Urgency) error
}

// EmailMessage is one outbound email.
type EmailMessage struct {
	To       string
	Subject  string
	Body     string
	Link     string
	Metadata map[string]string
}

// EmailSender performs one email send.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}
