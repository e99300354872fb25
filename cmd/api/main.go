package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/site-notifier/internal/config"
	"github.com/kursadbilgin/site-notifier/internal/dispatch"
	"github.com/kursadbilgin/site-notifier/internal/domain"
	"github.com/kursadbilgin/site-notifier/internal/handler"
	"github.com/kursadbilgin/site-notifier/internal/infra/postgresql"
	"github.com/kursadbilgin/site-notifier/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/site-notifier/internal/infra/redis"
	"github.com/kursadbilgin/site-notifier/internal/observability"
	"github.com/kursadbilgin/site-notifier/internal/provider"
	"github.com/kursadbilgin/site-notifier/internal/queue"
	"github.com/kursadbilgin/site-notifier/internal/repository"
	"github.com/kursadbilgin/site-notifier/internal/service"
	"github.com/kursadbilgin/site-notifier/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("site-notifier stopped with error", zap.Error(err))
	}
	logger.Info("site-notifier stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, cfg.DispatchConcurrency, logger.Named("gorm"))
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL, logger.Named("rabbitmq"))
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rabbit.Close()

	metrics := observability.NewMetrics()
	recipients := repository.NewGormRecipientRepo(db)
	logs := repository.NewGormNotificationLogRepo(db)

	pushSender, err := newPushSender(cfg, logger)
	if err != nil {
		return err
	}
	emailSender, err := newEmailSender(cfg)
	if err != nil {
		return err
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec, map[domain.Channel]int{
		domain.ChannelEmail: cfg.EmailRateLimitPerSec,
	})
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}
	claimer, err := infraredis.NewDispatchClaimer(rdb, cfg.DedupClaimTTL)
	if err != nil {
		return fmt.Errorf("dedup claimer initialization failed: %w", err)
	}

	dispatcher, err := dispatch.NewDispatcher(recipients, logs, pushSender, emailSender, limiter, dispatch.Config{
		Concurrency:  cfg.DispatchConcurrency,
		PushTimeout:  cfg.PushTimeout,
		EmailTimeout: cfg.EmailTimeout,
		AppBaseURL:   cfg.AppBaseURL,
	}, logger.Named("dispatch"))
	if err != nil {
		return fmt.Errorf("dispatcher initialization failed: %w", err)
	}
	dispatcher.SetMetrics(metrics)
	dispatcher.SetClaimer(claimer)

	svc, err := service.NewNotificationService(dispatcher, logs, queue.NewRabbitMQPublisher(rabbit), logger)
	if err != nil {
		return fmt.Errorf("notification service initialization failed: %w", err)
	}

	worker, err := service.NewDispatchWorker(
		queue.NewRabbitMQConsumer(rabbit, 1, logger.Named("consumer")),
		dispatcher,
		cfg.WorkerConcurrency,
		logger.Named("worker"),
	)
	if err != nil {
		return fmt.Errorf("dispatch worker initialization failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb, rabbit)
	if err := handler.RegisterNotificationRoutes(app, svc); err != nil {
		return fmt.Errorf("route registration failed: %w", err)
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("site-notifier api started", zap.String("addr", addr))
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	g.Go(func() error {
		return worker.Start(groupCtx)
	})

	if cfg.ReportReminderEnabled {
		reminder, err := service.NewReportReminder(recipients, dispatcher, service.ReportReminderConfig{
			Cron:     cfg.ReportReminderCron,
			Timezone: cfg.ReportReminderTimezone,
			Roles:    cfg.ReminderRoles(),
		}, logger.Named("reminder"))
		if err != nil {
			return fmt.Errorf("report reminder initialization failed: %w", err)
		}
		g.Go(func() error {
			return reminder.Start(groupCtx)
		})
	}

	return g.Wait()
}

// newPushSender returns nil when VAPID keys are absent so the dispatcher runs
// with push disabled.
func newPushSender(cfg *config.Config, logger *zap.Logger) (provider.PushSender, error) {
	if !cfg.PushConfigured() {
		logger.Warn("VAPID configuration missing, web push disabled")
		return nil, nil
	}
	sender, err := provider.NewWebPushSender(provider.WebPushConfig{
		Subject:    cfg.VAPIDSubject,
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		TTL:        cfg.PushTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("web push initialization failed: %w", err)
	}
	return sender, nil
}

func newEmailSender(cfg *config.Config) (provider.EmailSender, error) {
	var (
		sender provider.EmailSender
		err    error
	)

	switch cfg.EmailProvider {
	case "none":
		return nil, nil
	case "smtp":
		sender, err = provider.NewSMTPSender(provider.SMTPConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			From:       cfg.EmailFrom,
			Encryption: cfg.SMTPEncryption,
			Timeout:    cfg.EmailTimeout,
		})
	case "postmark":
		sender, err = provider.NewPostmarkSender(provider.PostmarkConfig{
			ServerToken:  cfg.PostmarkServerToken,
			AccountToken: cfg.PostmarkAccountToken,
			From:         cfg.EmailFrom,
		})
	case "relay":
		sender, err = provider.NewEmailRelaySender(cfg.EmailRelayURL, cfg.EmailRelayAPIKey)
	default:
		return nil, fmt.Errorf("unsupported email provider %q", cfg.EmailProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("%s email sender initialization failed: %w", cfg.EmailProvider, err)
	}
	return sender, nil
}
