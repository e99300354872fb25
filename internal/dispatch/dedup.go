package dispatch

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/site-notifier/internal/domain"
	"github.com/kursadbilgin/site-notifier/internal/observability"
	"github.com/kursadbilgin/site-notifier/internal/repository"
	"go.uber.org/zap"
)

// Claimer reserves a key for the lifetime of one delivery attempt.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// FilterAlreadyNotified drops recipients that already have a log row for the
// same type and dedupe metadata. A failed lookup is logged and the input is
// returned unchanged.
func FilterAlreadyNotified(
	ctx context.Context,
	logs repository.NotificationLogRepository,
	ids []string,
	notificationType domain.NotificationType,
	dedupe *domain.Dedupe,
	logger *zap.Logger,
) []string {
	if dedupe == nil || len(ids) == 0 {
		return ids
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	notified, err := logs.FindNotifiedRecipients(ctx, repository.NotifiedQuery{
		NotificationType: notificationType,
		Key:              dedupe.Key,
		Value:            dedupe.Value,
		RecipientIDs:     ids,
	})
	if err != nil {
		observability.WithContextLogger(logger, ctx).Warn("dedup lookup failed, dispatching without filter",
			zap.String("notificationType", notificationType.String()),
			zap.String("dedupeKey", dedupe.Key),
			zap.Error(err),
		)
		return ids
	}
	if len(notified) == 0 {
		return ids
	}

	seen := make(map[string]struct{}, len(notified))
	for _, id := range notified {
		seen[id] = struct{}{}
	}

	remaining := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		remaining = append(remaining, id)
	}
	return remaining
}

// claimRecipients keeps the recipients this call managed to claim. Claim errors
// count as claimed.
func claimRecipients(
	ctx context.Context,
	claimer Claimer,
	ids []string,
	notificationType domain.NotificationType,
	dedupe *domain.Dedupe,
	logger *zap.Logger,
) []string {
	if claimer == nil || dedupe == nil || len(ids) == 0 {
		return ids
	}

	remaining := make([]string, 0, len(ids))
	for _, id := range ids {
		ok, err := claimer.Claim(ctx, claimKey(notificationType, dedupe, id))
		if err != nil {
			observability.WithContextLogger(logger, ctx).Warn("dedup claim failed, dispatching anyway",
				zap.String("recipientId", id),
				zap.Error(err),
			)
			remaining = append(remaining, id)
			continue
		}
		if ok {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

func claimKey(notificationType domain.NotificationType, dedupe *domain.Dedupe, recipientID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", notificationType, dedupe.Key, dedupe.Value, recipientID)
}
