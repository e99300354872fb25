package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/site-notifier/internal/domain"
	"github.com/kursadbilgin/site-notifier/internal/queue"
	"github.com/kursadbilgin/site-notifier/internal/repository"
	"go.uber.org/zap"
)

// Dispatcher runs one dispatch request to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error)
}

// NotificationService is the entry point used by the HTTP layer: inline
// dispatch, queued dispatch and audit log reads.
type NotificationService struct {
	dispatcher Dispatcher
	logs       repository.NotificationLogRepository
	publisher  queue.Publisher
	logger     *zap.Logger
}

func NewNotificationService(
	dispatcher Dispatcher,
	logs repository.NotificationLogRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*NotificationService, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("notification log repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		dispatcher: dispatcher,
		logs:       logs,
		publisher:  publisher,
		logger:     logger,
	}, nil
}

func (s *NotificationService) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.dispatcher.Dispatch(ctx, req)
}

// Enqueue validates req and publishes it unchanged for a worker, which
// normalizes its own copy so the result total counts the ids as sent. The
// returned id is the message request id; requestID is used when non-empty.
func (s *NotificationService) Enqueue(ctx context.Context, requestID string, req domain.DispatchRequest) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.publisher == nil {
		return "", fmt.Errorf("queued dispatch is not configured")
	}

	check := req
	check.Normalize()
	if err := check.Validate(); err != nil {
		return "", err
	}

	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	msg := queue.DispatchMessage{RequestID: requestID, Request: req}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Error("failed to publish dispatch request",
			zap.String("requestId", requestID),
			zap.String("notificationType", req.NotificationType.String()),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to publish dispatch request: %w", err)
	}

	return requestID, nil
}

func (s *NotificationService) ListLogs(
	ctx context.Context,
	params repository.LogListParams,
) ([]domain.NotificationLogEntry, int64, error) {
	return s.logs.List(ctx, params)
}
