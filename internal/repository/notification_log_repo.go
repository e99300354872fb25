package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/site-notifier/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotifiedQuery selects prior audit rows for the dedup filter.
type NotifiedQuery struct {
	NotificationType domain.NotificationType
	Key              string
	Value            string
	RecipientIDs     []string
}

type LogListParams struct {
	RecipientID      string
	NotificationType *domain.NotificationType
	Page             int
	PageSize         int
}

type NotificationLogRepository interface {
	Append(ctx context.Context, entry *domain.NotificationLogEntry) error
	FindNotifiedRecipients(ctx context.Context, q NotifiedQuery) ([]string, error)
	List(ctx context.Context, params LogListParams) ([]domain.NotificationLogEntry, int64, error)
}

type GormNotificationLogRepo struct {
	db *gorm.DB
}

func NewGormNotificationLogRepo(db *gorm.DB) *GormNotificationLogRepo {
	return &GormNotificationLogRepo{db: db}
}

// Append inserts one audit row. Rows are never updated afterwards.
func (r *GormNotificationLogRepo) Append(ctx context.Context, entry *domain.NotificationLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	model := logModelFromDomain(entry)
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormNotificationLogRepo) FindNotifiedRecipients(ctx context.Context, q NotifiedQuery) ([]string, error) {
	key := strings.TrimSpace(q.Key)
	found := make([]string, 0)

	for start := 0; start < len(q.RecipientIDs); start += idChunkSize {
		end := min(start+idChunkSize, len(q.RecipientIDs))

		var ids []string
		err := r.db.WithContext(ctx).
			Model(&NotificationLogModel{}).
			Distinct("recipient_id").
			Where("notification_type = ?", q.NotificationType.String()).
			Where("recipient_id IN ?", q.RecipientIDs[start:end]).
			Where("metadata @> ?", datatypes.JSONMap{key: q.Value}).
			Pluck("recipient_id", &ids).Error
		if err != nil {
			return nil, err
		}
		found = append(found, ids...)
	}

	return found, nil
}

func (r *GormNotificationLogRepo) List(ctx context.Context, params LogListParams) ([]domain.NotificationLogEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&NotificationLogModel{})

	if id := strings.TrimSpace(params.RecipientID); id != "" {
		query = query.Where("recipient_id = ?", id)
	}
	if params.NotificationType != nil {
		query = query.Where("notification_type = ?", params.NotificationType.String())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []NotificationLogModel
	err := query.
		Order("sent_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	entries := make([]domain.NotificationLogEntry, 0, len(models))
	for i := range models {
		entries = append(entries, logModelToDomain(&models[i]))
	}

	return entries, total, nil
}
