package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/mrz1836/postmark"
)

// PostmarkConfig holds the Postmark API credentials and sender identity.
type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	From         string
}

// PostmarkSender delivers email through Postmark's transactional API.
type PostmarkSender struct {
	client *postmark.Client
	from   string
}

var _ EmailSender = (*PostmarkSender)(nil)

func NewPostmarkSender(cfg PostmarkConfig) (*PostmarkSender, error) {
	if strings.TrimSpace(cfg.ServerToken) == "" {
		return nil, fmt.Errorf("postmark server token is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("postmark from address is required")
	}

	return &PostmarkSender{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		from:   strings.TrimSpace(cfg.From),
	}, nil
}

func (p *PostmarkSender) Send(ctx context.Context, msg EmailMessage) error {
	html, err := renderEmailHTML(msg)
	if err != nil {
		return &ProviderError{Provider: BackendPostmark, Message: "failed to render email", Cause: err}
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:       p.from,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Metadata["notificationType"],
		TextBody:   plainTextBody(msg),
		HTMLBody:   html,
		TrackOpens: false,
	})
	if err != nil {
		return &ProviderError{Provider: BackendPostmark, Message: "postmark request failed", Transient: true, Cause: err}
	}
	if resp.ErrorCode > 0 {
		return &ProviderError{Provider: BackendPostmark, Message: fmt.Sprintf("postmark error %d: %s", resp.ErrorCode, resp.Message)}
	}
	return nil
}
