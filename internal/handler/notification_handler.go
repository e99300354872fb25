package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/site-notifier/internal/domain"
	"github.com/kursadbilgin/site-notifier/internal/observability"
	"github.com/kursadbilgin/site-notifier/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100

	modeAsync = "async"
)

type NotificationService interface {
	Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error)
	Enqueue(ctx context.Context, requestID string, req domain.DispatchRequest) (string, error)
	ListLogs(ctx context.Context, params repository.LogListParams) ([]domain.NotificationLogEntry, int64, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/dispatch", h.Dispatch)
	v1.Get("/notification-logs", h.ListNotificationLogs)

	return nil
}

type enqueueResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

type notificationLogResponse struct {
	ID               string         `json:"id"`
	RecipientID      string         `json:"recipientId"`
	NotificationType string         `json:"notificationType"`
	Title            string         `json:"title"`
	Body             string         `json:"body"`
	Status           string         `json:"status"`
	Channel          string         `json:"channel"`
	SentAt           time.Time      `json:"sentAt"`
	SentBy           string         `json:"sentBy"`
	TargetRole       string         `json:"targetRole,omitempty"`
	TargetSiteID     string         `json:"targetSiteId,omitempty"`
	ErrorMessage     *string        `json:"errorMessage,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type listNotificationLogsResponse struct {
	Data []notificationLogResponse `json:"data"`
	Meta listMeta                  `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

// Dispatch runs the request inline and returns the summary. With ?mode=async
// the request is queued and 202 is returned with its request id.
func (h *NotificationHandler) Dispatch(c *fiber.Ctx) error {
	var req domain.DispatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	requestID := requestCorrelationID(c)
	ctx := observability.WithTrigger(observability.WithRequestID(c.UserContext(), requestID), observability.TriggerHTTP)

	if strings.EqualFold(strings.TrimSpace(c.Query("mode")), modeAsync) {
		id, err := h.service.Enqueue(ctx, requestID, req)
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(enqueueResponse{
			RequestID: id,
			Status:    "queued",
		})
	}

	result, err := h.service.Dispatch(ctx, req)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *NotificationHandler) ListNotificationLogs(c *fiber.Ctx) error {
	params, err := parseLogListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	entries, total, err := h.service.ListLogs(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationLogsResponse{
		Data: toNotificationLogResponses(entries),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseLogListParams(c *fiber.Ctx) (repository.LogListParams, error) {
	params := repository.LogListParams{
		RecipientID: strings.TrimSpace(c.Query("recipientId")),
		Page:        c.QueryInt("page", defaultPage),
		PageSize:    c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.LogListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.LogListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawType := strings.TrimSpace(c.Query("type")); rawType != "" {
		notificationType, err := domain.ParseNotificationType(rawType)
		if err != nil {
			return repository.LogListParams{}, err
		}
		params.NotificationType = &notificationType
	}

	return params, nil
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toNotificationLogResponses(entries []domain.NotificationLogEntry) []notificationLogResponse {
	responses := make([]notificationLogResponse, 0, len(entries))
	for _, e := range entries {
		responses = append(responses, notificationLogResponse{
			ID:               e.ID,
			RecipientID:      e.RecipientID,
			NotificationType: e.NotificationType.String(),
			Title:            e.Title,
			Body:             e.Body,
			Status:           e.Status.String(),
			Channel:          e.Channel.String(),
			SentAt:           e.SentAt,
			SentBy:           e.SentBy,
			TargetRole:       e.TargetRole,
			TargetSiteID:     e.TargetSiteID,
			ErrorMessage:     e.ErrorMessage,
			Metadata:         e.Metadata,
		})
	}
	return responses
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}
