package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/site-notifier/internal/domain"
	"github.com/kursadbilgin/site-notifier/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultReminderCron     = "0 18 * * 1-6"
	defaultReminderTimezone = "Asia/Seoul"
	reminderJobName         = "daily_report_reminder"
	workDateKey             = "work_date"
	workDateLayout          = "2006-01-02"
	reportListPath          = "/daily-reports"
)

// RoleLister resolves the profile ids holding any of the given roles.
type RoleLister interface {
	ListIDsByRoles(ctx context.Context, roles []string) ([]string, error)
}

type ReportReminderConfig struct {
	Cron     string
	Timezone string
	Roles    []string
}

// ReportReminder sends the end-of-day daily report reminder to site roles.
// Each run is keyed by the local work date, so a repeated trigger on the same
// day reaches nobody twice.
type ReportReminder struct {
	recipients RoleLister
	dispatcher Dispatcher
	cronExpr   string
	location   *time.Location
	roles      []string
	logger     *zap.Logger
	now        func() time.Time
}

func NewReportReminder(
	recipients RoleLister,
	dispatcher Dispatcher,
	cfg ReportReminderConfig,
	logger *zap.Logger,
) (*ReportReminder, error) {
	if recipients == nil {
		return nil, fmt.Errorf("recipient lister is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cronExpr := strings.TrimSpace(cfg.Cron)
	if cronExpr == "" {
		cronExpr = defaultReminderCron
	}
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = defaultReminderTimezone
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder timezone %q: %w", tz, err)
	}
	if len(cfg.Roles) == 0 {
		return nil, fmt.Errorf("at least one reminder role is required")
	}

	return &ReportReminder{
		recipients: recipients,
		dispatcher: dispatcher,
		cronExpr:   cronExpr,
		location:   location,
		roles:      cfg.Roles,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Start schedules the reminder and blocks until ctx is cancelled.
func (s *ReportReminder) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(s.location))
	if err != nil {
		return fmt.Errorf("creating gocron scheduler: %w", err)
	}

	_, err = cron.NewJob(
		gocron.CronJob(s.cronExpr, false),
		gocron.NewTask(func() {
			if _, err := s.runOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("report reminder run failed", zap.Error(err))
			}
		}),
		gocron.WithName(reminderJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = cron.Shutdown()
		return fmt.Errorf("scheduling report reminder %q: %w", s.cronExpr, err)
	}

	cron.Start()
	s.logger.Info("report reminder scheduled",
		zap.String("cron", s.cronExpr),
		zap.String("timezone", s.location.String()),
		zap.Strings("roles", s.roles),
	)

	<-ctx.Done()
	if err := cron.Shutdown(); err != nil {
		return fmt.Errorf("stopping gocron scheduler: %w", err)
	}
	return nil
}

func (s *ReportReminder) runOnce(ctx context.Context) (*domain.DispatchResult, error) {
	ctx = observability.WithTrigger(observability.WithRequestID(ctx, "cron-"+uuid.NewString()), observability.TriggerCron)
	logger := observability.WithContextLogger(s.logger, ctx)

	ids, err := s.recipients.ListIDsByRoles(ctx, s.roles)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder recipients: %w", err)
	}
	if len(ids) == 0 {
		logger.Info("no report reminder recipients", zap.Strings("roles", s.roles))
		return &domain.DispatchResult{}, nil
	}

	workDate := s.now().In(s.location).Format(workDateLayout)
	req := domain.DispatchRequest{
		RecipientIDs:     ids,
		NotificationType: domain.TypeDailyReportReminder,
		SenderID:         domain.SystemSender,
		Payload: domain.NotificationPayload{
			Title:   "작업일보 제출 알림",
			Body:    fmt.Sprintf("%s 작업일보를 아직 제출하지 않았다면 오늘 중으로 제출해 주세요.", workDate),
			URL:     reportListPath,
			Tag:     "daily-report-" + workDate,
			Urgency: domain.UrgencyMedium,
			Data:    map[string]any{"url": reportListPath + "?date=" + workDate},
		},
		Dedupe: &domain.Dedupe{Key: workDateKey, Value: workDate},
	}

	result, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	logger.Info("report reminder dispatched",
		zap.String("workDate", workDate),
		zap.Int("recipients", len(ids)),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}
