package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// NotificationType identifies the business event a notification belongs to.
type NotificationType string

const (
	TypeMaterialApproval     NotificationType = "material_approval"
	TypeMaterialRequest      NotificationType = "material_request"
	TypeDailyReportReminder  NotificationType = "daily_report_reminder"
	TypeDailyReportSubmitted NotificationType = "daily_report_submitted"
	TypeDailyReportApproved  NotificationType = "daily_report_approved"
	TypeDailyReportRejected  NotificationType = "daily_report_rejected"
	TypeSafetyAlert          NotificationType = "safety_alert"
	TypeEquipmentMaintenance NotificationType = "equipment_maintenance"
	TypeSiteAnnouncement     NotificationType = "site_announcement"
	TypeSystemNotice         NotificationType = "system_notice"
)

var notificationTypes = []NotificationType{
	TypeMaterialApproval,
	TypeMaterialRequest,
	TypeDailyReportReminder,
	TypeDailyReportSubmitted,
	TypeDailyReportApproved,
	TypeDailyReportRejected,
	TypeSafetyAlert,
	TypeEquipmentMaintenance,
	TypeSiteAnnouncement,
	TypeSystemNotice,
}

// NotificationTypes returns every known notification type.
func NotificationTypes() []NotificationType {
	return slices.Clone(notificationTypes)
}

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	return slices.Contains(notificationTypes, t)
}

func ParseNotificationType(s string) (NotificationType, error) {
	nt := NotificationType(strings.ToLower(strings.TrimSpace(s)))
	if !nt.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return nt, nil
}

// Channel is the delivery medium recorded for one attempt.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	// ChannelInApp is accepted when reading older log rows; the dispatcher never writes it.
	ChannelInApp Channel = "in_app"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelPush, ChannelEmail, ChannelInApp:
		return true
	}
	return false
}

// LogStatus is the outcome stored on an audit row.
type LogStatus string

const (
	LogStatusDelivered LogStatus = "delivered"
	LogStatusFailed    LogStatus = "failed"
)

func (s LogStatus) String() string { return string(s) }

// Urgency is a delivery priority hint for the push service.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

func (u Urgency) String() string { return string(u) }

func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyCritical, UrgencyHigh, UrgencyMedium, UrgencyLow:
		return true
	}
	return false
}

// NotificationAction is a button rendered by the service worker.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// NotificationPayload is the channel-agnostic message supplied by the caller.
type NotificationPayload struct {
	Title              string               `json:"title"`
	Body               string               `json:"body"`
	Icon               string               `json:"icon,omitempty"`
	Badge              string               `json:"badge,omitempty"`
	URL                string               `json:"url,omitempty"`
	Type               string               `json:"type,omitempty"`
	Data               map[string]any       `json:"data,omitempty"`
	Actions            []NotificationAction `json:"actions,omitempty"`
	Tag                string               `json:"tag,omitempty"`
	RequireInteraction bool                 `json:"requireInteraction,omitempty"`
	Silent             bool                 `json:"silent,omitempty"`
	Vibrate            []int                `json:"vibrate,omitempty"`
	Urgency            Urgency              `json:"urgency,omitempty"`
	Timestamp          int64                `json:"timestamp,omitempty"`
}

// ForRecipient returns a copy whose data map carries the notification type and user id.
// The receiver, including its data map, is left untouched.
func (p NotificationPayload) ForRecipient(notificationType NotificationType, recipientID string) NotificationPayload {
	out := p
	out.Data = make(map[string]any, len(p.Data)+2)
	maps.Copy(out.Data, p.Data)
	out.Data["notificationType"] = notificationType.String()
	out.Data["userId"] = recipientID
	out.Actions = slices.Clone(p.Actions)
	out.Vibrate = slices.Clone(p.Vibrate)
	return out
}

// DeepLink returns data.url when set, otherwise the payload url.
func (p NotificationPayload) DeepLink() string {
	if raw, ok := p.Data["url"]; ok {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return strings.TrimSpace(p.URL)
}

func (p NotificationPayload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: payload title is required", ErrValidation)
	}
	if strings.TrimSpace(p.Body) == "" {
		return fmt.Errorf("%w: payload body is required", ErrValidation)
	}
	if p.Urgency != "" && !p.Urgency.IsValid() {
		return fmt.Errorf("%w: invalid urgency %q", ErrValidation, p.Urgency)
	}
	return nil
}

// NotificationLogEntry is one immutable audit row per recipient outcome.
type NotificationLogEntry struct {
	ID               string
	RecipientID      string
	NotificationType NotificationType
	Title            string
	Body             string
	Status           LogStatus
	Channel          Channel
	SentAt           time.Time
	SentBy           string
	TargetRole       string
	TargetSiteID     string
	ErrorMessage     *string
	Metadata         map[string]any
}
