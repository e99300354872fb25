package repository

import (
	"encoding/json"
	"time"

	"github.com/kursadbilgin/site-notifier/internal/domain"
	"gorm.io/datatypes"
)

// RecipientModel maps the fields of the profiles table the dispatcher uses.
// The table is owned by the profile service.
type RecipientModel struct {
	ID                      string         `gorm:"type:uuid;primaryKey"`
	Email                   *string        `gorm:"type:varchar(255)"`
	DisplayName             string         `gorm:"type:varchar(255);not null;default:''"`
	Role                    string         `gorm:"type:varchar(50);not null;default:''"`
	SiteID                  *string        `gorm:"type:uuid"`
	PushSubscription        datatypes.JSON `gorm:"type:jsonb"`
	NotificationPreferences datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (RecipientModel) TableName() string {
	return "profiles"
}

// NotificationLogModel is the persistence model for notification_logs.
type NotificationLogModel struct {
	ID               string            `gorm:"type:uuid;primaryKey"`
	RecipientID      string            `gorm:"type:uuid;not null"`
	NotificationType string            `gorm:"type:varchar(64);not null"`
	Title            string            `gorm:"type:text;not null"`
	Body             string            `gorm:"type:text;not null"`
	Status           domain.LogStatus  `gorm:"type:varchar(16);not null"`
	Channel          domain.Channel    `gorm:"type:varchar(16);not null"`
	SentAt           time.Time         `gorm:"type:timestamptz;not null"`
	SentBy           string            `gorm:"type:varchar(64);not null"`
	TargetRole       *string           `gorm:"type:varchar(50)"`
	TargetSiteID     *string           `gorm:"type:uuid"`
	ErrorMessage     *string           `gorm:"type:text"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt        time.Time
}

func (NotificationLogModel) TableName() string {
	return "notification_logs"
}

func recipientModelToDomain(m *RecipientModel) domain.Recipient {
	r := domain.Recipient{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		Role:        m.Role,
		Email:       derefString(m.Email),
		SiteID:      derefString(m.SiteID),
		Preferences: decodePreferences(m.NotificationPreferences),
	}

	if len(m.PushSubscription) > 0 {
		var sub domain.PushSubscription
		// Unparseable subscriptions are treated as absent.
		if err := json.Unmarshal(m.PushSubscription, &sub); err == nil && sub.Endpoint != "" {
			r.PushSubscription = &sub
		}
	}

	return r
}

// decodePreferences keeps only boolean flags; anything else counts as unset.
func decodePreferences(raw datatypes.JSON) domain.Preferences {
	if len(raw) == 0 {
		return nil
	}

	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}

	prefs := make(domain.Preferences, len(values))
	for key, value := range values {
		if b, ok := value.(bool); ok {
			prefs[key] = b
		}
	}
	return prefs
}

func logModelFromDomain(e *domain.NotificationLogEntry) *NotificationLogModel {
	if e == nil {
		return nil
	}

	metadata := datatypes.JSONMap{}
	for k, v := range e.Metadata {
		metadata[k] = v
	}

	return &NotificationLogModel{
		ID:               e.ID,
		RecipientID:      e.RecipientID,
		NotificationType: e.NotificationType.String(),
		Title:            e.Title,
		Body:             e.Body,
		Status:           e.Status,
		Channel:          e.Channel,
		SentAt:           e.SentAt,
		SentBy:           e.SentBy,
		TargetRole:       optionalString(e.TargetRole),
		TargetSiteID:     optionalString(e.TargetSiteID),
		ErrorMessage:     e.ErrorMessage,
		Metadata:         metadata,
	}
}

func logModelToDomain(m *NotificationLogModel) domain.NotificationLogEntry {
	return domain.NotificationLogEntry{
		ID:               m.ID,
		RecipientID:      m.RecipientID,
		NotificationType: domain.NotificationType(m.NotificationType),
		Title:            m.Title,
		Body:             m.Body,
		Status:           m.Status,
		Channel:          m.Channel,
		SentAt:           m.SentAt,
		SentBy:           m.SentBy,
		TargetRole:       derefString(m.TargetRole),
		TargetSiteID:     derefString(m.TargetSiteID),
		ErrorMessage:     m.ErrorMessage,
		Metadata:         map[string]any(m.Metadata),
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
