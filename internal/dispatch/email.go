package dispatch

import (
	"net/url"
	"strings"

	"github.com/kursadbilgin/site-notifier/internal/domain"
	"github.com/kursadbilgin/site-notifier/internal/provider"
)

const (
	emailSubjectPrefix = "[알림] "
	defaultLinkPath    = "/dashboard"
)

func buildEmailMessage(r domain.Recipient, payload domain.NotificationPayload, notificationType domain.NotificationType, baseURL string) provider.EmailMessage {
	return provider.EmailMessage{
		To:      strings.TrimSpace(r.Email),
		Subject: emailSubjectPrefix + strings.TrimSpace(payload.Title),
		Body:    payload.Body,
		Link:    resolveLink(payload, baseURL),
		Metadata: map[string]string{
			"notificationType": notificationType.String(),
			"recipientId":      r.ID,
		},
	}
}

// resolveLink returns an absolute link when baseURL is set. Absolute links in
// the payload are passed through.
func resolveLink(payload domain.NotificationPayload, baseURL string) string {
	link := payload.DeepLink()
	if link == "" {
		link = defaultLinkPath
	}

	parsed, err := url.Parse(link)
	if err == nil && parsed.IsAbs() {
		return link
	}

	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return link
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return baseURL + link
}
