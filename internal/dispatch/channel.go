package dispatch

import (
	"strings"

	"github.com/kursadbilgin/site-notifier/internal/domain"
)

// selectChannel picks push, then email, then nothing. It never looks at the
// result of a previous attempt.
func selectChannel(r domain.Recipient, pushAvailable bool, emailAvailable bool) (domain.Channel, bool) {
	if pushAvailable && r.PushEnabled() && r.PushSubscription.Valid() {
		return domain.ChannelPush, true
	}
	if emailAvailable && r.EmailEnabled() && strings.TrimSpace(r.Email) != "" {
		return domain.ChannelEmail, true
	}
	return "", false
}
