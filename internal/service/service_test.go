package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/site-notifier/internal/domain"
	"github.com/kursadbilgin/site-notifier/internal/observability"
	"github.com/kursadbilgin/site-notifier/internal/queue"
	"github.com/kursadbilgin/site-notifier/internal/repository"
	"go.uber.org/zap"
)

func TestNotificationServiceEnqueuePublishesRequestAsSent(t *testing.T) {
	t.Parallel()

	var published queue.DispatchMessage
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, msg queue.DispatchMessage) error {
			published = msg
			return nil
		},
	}

	svc, err := NewNotificationService(&fakeDispatcher{}, &fakeLogRepo{}, publisher, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	req := testRequest(" u-1 ", "u-1", "u-2")
	id, err := svc.Enqueue(context.Background(), "", req)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if strings.TrimSpace(id) == "" {
		t.Fatal("request id should be generated")
	}
	if published.RequestID != id {
		t.Fatalf("published request id = %q, want %q", published.RequestID, id)
	}
	// The worker reports total against the ids as submitted, duplicates included.
	if got := published.Request.RecipientIDs; len(got) != 3 || got[0] != " u-1 " || got[1] != "u-1" || got[2] != "u-2" {
		t.Fatalf("published recipient ids = %q, want [\" u-1 \" u-1 u-2]", got)
	}
	if err := published.Validate(); err != nil {
		t.Fatalf("published message Validate() error = %v", err)
	}

	worker := published.Request
	worker.Normalize()
	if worker.SenderID != domain.SystemSender {
		t.Fatalf("sender = %q, want %q", worker.SenderID, domain.SystemSender)
	}
	if len(req.RecipientIDs) != 3 || req.RecipientIDs[0] != " u-1 " {
		t.Fatal("caller request should not be modified")
	}
}

func TestNotificationServiceEnqueueKeepsRequestID(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	svc, err := NewNotificationService(&fakeDispatcher{}, &fakeLogRepo{}, publisher, nil)
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	id, err := svc.Enqueue(context.Background(), "req-42", testRequest("u-1"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if id != "req-42" {
		t.Fatalf("Enqueue() id = %q, want req-42", id)
	}
}

func TestNotificationServiceEnqueueErrors(t *testing.T) {
	t.Parallel()

	t.Run("validation", func(t *testing.T) {
		t.Parallel()

		publisher := &fakePublisher{}
		svc, _ := NewNotificationService(&fakeDispatcher{}, &fakeLogRepo{}, publisher, nil)

		_, err := svc.Enqueue(context.Background(), "", testRequest())
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("Enqueue() error = %v, want ErrValidation", err)
		}
		if publisher.calls != 0 {
			t.Fatal("invalid request must not be published")
		}
	})

	t.Run("publish failure", func(t *testing.T) {
		t.Parallel()

		brokerErr := errors.New("channel closed")
		publisher := &fakePublisher{
			publishFn: func(ctx context.Context, msg queue.DispatchMessage) error { return brokerErr },
		}
		svc, _ := NewNotificationService(&fakeDispatcher{}, &fakeLogRepo{}, publisher, nil)

		_, err := svc.Enqueue(context.Background(), "", testRequest("u-1"))
		if !errors.Is(err, brokerErr) {
			t.Fatalf("Enqueue() error = %v, want %v", err, brokerErr)
		}
	})

	t.Run("no publisher", func(t *testing.T) {
		t.Parallel()

		svc, _ := NewNotificationService(&fakeDispatcher{}, &fakeLogRepo{}, nil, nil)
		if _, err := svc.Enqueue(context.Background(), "", testRequest("u-1")); err == nil {
			t.Fatal("expected error without publisher")
		}
	})
}

func TestNotificationServiceDispatchDelegates(t *testing.T) {
	t.Parallel()

	want := &domain.DispatchResult{PushCount: 1, Processed: 1, Total: 1}
	dispatcher := &fakeDispatcher{
		dispatchFn: func(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
			return want, nil
		},
	}
	svc, err := NewNotificationService(dispatcher, &fakeLogRepo{}, nil, nil)
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	got, err := svc.Dispatch(context.Background(), testRequest("u-1"))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got != want {
		t.Fatalf("Dispatch() = %+v, want %+v", got, want)
	}
}

func TestNewNotificationServiceValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewNotificationService(nil, &fakeLogRepo{}, nil, nil); err == nil {
		t.Fatal("expected error when dispatcher is nil")
	}
	if _, err := NewNotificationService(&fakeDispatcher{}, nil, nil, nil); err == nil {
		t.Fatal("expected error when log repository is nil")
	}
}

func TestDispatchWorkerProcessesMessages(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := make([]string, 0, 2)
	dispatcher := &fakeDispatcher{
		dispatchFn: func(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
			id, _ := observability.RequestIDFromContext(ctx)
			mu.Lock()
			seen = append(seen, id)
			mu.Unlock()
			if req.RecipientIDs[0] == "broken" {
				return nil, errors.New("recipient fetch failed")
			}
			return &domain.DispatchResult{Processed: 1}, nil
		},
	}

	var handlerErrs []error
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, handler queue.MessageHandler) error {
			for _, msg := range []queue.DispatchMessage{
				{RequestID: "req-1", Request: testRequest("u-1")},
				{RequestID: "req-2", Request: testRequest("broken")},
			} {
				handlerErrs = append(handlerErrs, handler(observability.WithRequestID(ctx, msg.RequestID), msg))
			}
			return nil
		},
	}

	worker, err := NewDispatchWorker(consumer, dispatcher, 1, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatchWorker() error = %v", err)
	}

	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if len(seen) != 2 || seen[0] != "req-1" || seen[1] != "req-2" {
		t.Fatalf("dispatched request ids = %v", seen)
	}
	if handlerErrs[0] != nil {
		t.Fatalf("first handler error = %v, want nil", handlerErrs[0])
	}
	if handlerErrs[1] == nil || !strings.Contains(handlerErrs[1].Error(), "req-2") {
		t.Fatalf("second handler error = %v, want wrapped dispatch error", handlerErrs[1])
	}
}

func TestDispatchWorkerStartReturnsConsumerError(t *testing.T) {
	t.Parallel()

	consumerErr := errors.New("consumer is not initialized")
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, handler queue.MessageHandler) error { return consumerErr },
	}

	worker, err := NewDispatchWorker(consumer, &fakeDispatcher{}, 3, nil)
	if err != nil {
		t.Fatalf("NewDispatchWorker() error = %v", err)
	}

	if err := worker.Start(context.Background()); !errors.Is(err, consumerErr) {
		t.Fatalf("Start() error = %v, want %v", err, consumerErr)
	}
}

func TestReportReminderRunOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		now          time.Time
		wantWorkDate string
	}{
		{name: "same day in seoul", now: time.Date(2024, 3, 21, 9, 0, 0, 0, time.UTC), wantWorkDate: "2024-03-21"},
		{name: "next day in seoul", now: time.Date(2024, 3, 21, 16, 30, 0, 0, time.UTC), wantWorkDate: "2024-03-22"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lister := &fakeRoleLister{ids: []string{"u-1", "u-2"}}
			var got domain.DispatchRequest
			dispatcher := &fakeDispatcher{
				dispatchFn: func(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
					got = req
					if id, ok := observability.RequestIDFromContext(ctx); !ok || !strings.HasPrefix(id, "cron-") {
						t.Fatalf("cron run request id = %q, want cron- prefix", id)
					}
					if trigger, _ := observability.TriggerFromContext(ctx); trigger != observability.TriggerCron {
						t.Fatalf("trigger = %q, want %q", trigger, observability.TriggerCron)
					}
					return &domain.DispatchResult{Processed: 2, Total: 2}, nil
				},
			}

			reminder, err := NewReportReminder(lister, dispatcher, ReportReminderConfig{
				Roles: []string{"site_manager", "foreman"},
			}, zap.NewNop())
			if err != nil {
				t.Fatalf("NewReportReminder() error = %v", err)
			}
			reminder.now = func() time.Time { return tt.now }

			result, err := reminder.runOnce(context.Background())
			if err != nil {
				t.Fatalf("runOnce() error = %v", err)
			}
			if result.Processed != 2 {
				t.Fatalf("processed = %d, want 2", result.Processed)
			}

			if got.NotificationType != domain.TypeDailyReportReminder {
				t.Fatalf("notification type = %s", got.NotificationType)
			}
			if got.Dedupe == nil || got.Dedupe.Key != "work_date" || got.Dedupe.Value != tt.wantWorkDate {
				t.Fatalf("dedupe = %+v, want work_date=%s", got.Dedupe, tt.wantWorkDate)
			}
			if len(got.RecipientIDs) != 2 {
				t.Fatalf("recipients = %v", got.RecipientIDs)
			}
			if len(lister.roles) != 2 || lister.roles[0] != "site_manager" {
				t.Fatalf("roles queried = %v", lister.roles)
			}
			if err := got.Validate(); err != nil {
				t.Fatalf("reminder request invalid: %v", err)
			}
		})
	}
}

func TestReportReminderRunOnceWithoutRecipients(t *testing.T) {
	t.Parallel()

	dispatcher := &fakeDispatcher{}
	reminder, err := NewReportReminder(&fakeRoleLister{}, dispatcher, ReportReminderConfig{Roles: []string{"foreman"}}, nil)
	if err != nil {
		t.Fatalf("NewReportReminder() error = %v", err)
	}

	if _, err := reminder.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce() error = %v", err)
	}
	if dispatcher.calls != 0 {
		t.Fatal("dispatcher should not be called without recipients")
	}
}

func TestReportReminderRunOnceListError(t *testing.T) {
	t.Parallel()

	reminder, err := NewReportReminder(&fakeRoleLister{err: errors.New("db down")}, &fakeDispatcher{}, ReportReminderConfig{Roles: []string{"foreman"}}, nil)
	if err != nil {
		t.Fatalf("NewReportReminder() error = %v", err)
	}

	if _, err := reminder.runOnce(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestNewReportReminderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  ReportReminderConfig
	}{
		{name: "bad timezone", cfg: ReportReminderConfig{Timezone: "Mars/Olympus", Roles: []string{"foreman"}}},
		{name: "no roles", cfg: ReportReminderConfig{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewReportReminder(&fakeRoleLister{}, &fakeDispatcher{}, tt.cfg, nil); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestReportReminderStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	reminder, err := NewReportReminder(&fakeRoleLister{}, &fakeDispatcher{}, ReportReminderConfig{Roles: []string{"foreman"}}, nil)
	if err != nil {
		t.Fatalf("NewReportReminder() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reminder.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func testRequest(ids ...string) domain.DispatchRequest {
	return domain.DispatchRequest{
		RecipientIDs:     ids,
		NotificationType: domain.TypeMaterialApproval,
		Payload: domain.NotificationPayload{
			Title: "자재 승인 요청",
			Body:  "철근 20톤 반입 승인이 필요합니다.",
		},
	}
}

type fakeDispatcher struct {
	mu         sync.Mutex
	calls      int
	dispatchFn func(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, req)
	}
	return &domain.DispatchResult{}, nil
}

type fakePublisher struct {
	calls     int
	publishFn func(ctx context.Context, msg queue.DispatchMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, msg queue.DispatchMessage) error {
	f.calls++
	if f.publishFn != nil {
		return f.publishFn(ctx, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	consumeFn func(ctx context.Context, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeRoleLister struct {
	ids   []string
	err   error
	roles []string
}

func (f *fakeRoleLister) ListIDsByRoles(ctx context.Context, roles []string) ([]string, error) {
	f.roles = roles
	return f.ids, f.err
}

type fakeLogRepo struct {
	listFn func(ctx context.Context, params repository.LogListParams) ([]domain.NotificationLogEntry, int64, error)
}

func (f *fakeLogRepo) Append(ctx context.Context, entry *domain.NotificationLogEntry) error {
	return nil
}

func (f *fakeLogRepo) FindNotifiedRecipients(ctx context.Context, q repository.NotifiedQuery) ([]string, error) {
	return nil, nil
}

func (f *fakeLogRepo) List(ctx context.Context, params repository.LogListParams) ([]domain.NotificationLogEntry, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}
