package domain

import (
	"net/url"
	"strings"
)

// Preference flags that gate channels rather than notification categories.
const (
	PrefPushEnabled  = "push_enabled"
	PrefEmailEnabled = "email_enabled"
)

// PushKeys holds the client public key and auth secret of a push subscription.
type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is the endpoint+keys bundle issued by a browser push service.
type PushSubscription struct {
	Endpoint       string   `json:"endpoint"`
	ExpirationTime *int64   `json:"expirationTime,omitempty"`
	Keys           PushKeys `json:"keys"`
}

// Valid reports whether the subscription carries an absolute endpoint and both keys.
func (s *PushSubscription) Valid() bool {
	if s == nil {
		return false
	}
	endpoint := strings.TrimSpace(s.Endpoint)
	if endpoint == "" {
		return false
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	return s.Keys.P256dh != "" && s.Keys.Auth != ""
}

// Preferences maps a preference key to an explicit choice. Missing keys mean "not set".
type Preferences map[string]bool

// Enabled returns the stored flag or def when the key is unset.
func (p Preferences) Enabled(key string, def bool) bool {
	if p == nil {
		return def
	}
	v, ok := p[key]
	if !ok {
		return def
	}
	return v
}

// Recipient is the profile data the dispatcher reads.
type Recipient struct {
	ID               string
	Email            string
	DisplayName      string
	Role             string
	SiteID           string
	PushSubscription *PushSubscription
	Preferences      Preferences
}

// PushEnabled defaults to true.
func (r Recipient) PushEnabled() bool {
	return r.Preferences.Enabled(PrefPushEnabled, true)
}

// EmailEnabled defaults to false.
func (r Recipient) EmailEnabled() bool {
	return r.Preferences.Enabled(PrefEmailEnabled, false)
}
