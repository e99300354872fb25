package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/kursadbilgin/site-notifier/internal/domain"
	"gorm.io/gorm"
)

// idChunkSize keeps IN lists well under the postgres bind parameter limit.
const idChunkSize = 500

type RecipientRepository interface {
	FetchByIDs(ctx context.Context, ids []string) ([]domain.Recipient, error)
	ClearPushSubscription(ctx context.Context, id string) error
	ListIDsByRoles(ctx context.Context, roles []string) ([]string, error)
}

type GormRecipientRepo struct {
	db *gorm.DB
}

func NewGormRecipientRepo(db *gorm.DB) *GormRecipientRepo {
	return &GormRecipientRepo{db: db}
}

// FetchByIDs returns the profiles that exist. Ids that are not UUIDs cannot
// match a profile and are left out of the query, so they surface as missing.
func (r *GormRecipientRepo) FetchByIDs(ctx context.Context, ids []string) ([]domain.Recipient, error) {
	ids = queryableIDs(ids)
	recipients := make([]domain.Recipient, 0, len(ids))

	for start := 0; start < len(ids); start += idChunkSize {
		end := min(start+idChunkSize, len(ids))

		var models []RecipientModel
		err := r.db.WithContext(ctx).
			Select("id", "email", "display_name", "role", "site_id", "push_subscription", "notification_preferences").
			Where("id IN ?", ids[start:end]).
			Find(&models).Error
		if err != nil {
			return nil, err
		}

		for i := range models {
			recipients = append(recipients, recipientModelToDomain(&models[i]))
		}
	}

	return recipients, nil
}

// ClearPushSubscription nulls the stored subscription. Clearing an already
// cleared or unknown profile is not an error.
func (r *GormRecipientRepo) ClearPushSubscription(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&RecipientModel{}).
		Where("id = ?", id).
		Update("push_subscription", gorm.Expr("NULL")).Error
}

func (r *GormRecipientRepo) ListIDsByRoles(ctx context.Context, roles []string) ([]string, error) {
	var ids []string
	if len(roles) == 0 {
		return ids, nil
	}

	err := r.db.WithContext(ctx).
		Model(&RecipientModel{}).
		Where("role IN ?", roles).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func queryableIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}
