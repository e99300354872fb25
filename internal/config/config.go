package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	AppBaseURL  string `env:"APP_BASE_URL,default=http://localhost:3000"`

	VAPIDSubject    string        `env:"VAPID_SUBJECT"`
	VAPIDPublicKey  string        `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `env:"VAPID_PRIVATE_KEY"`
	PushTTL         time.Duration `env:"PUSH_TTL,default=24h"`
	PushTimeout     time.Duration `env:"PUSH_TIMEOUT,default=10s"`

	EmailProvider        string        `env:"EMAIL_PROVIDER,default=smtp"`
	EmailTimeout         time.Duration `env:"EMAIL_TIMEOUT,default=15s"`
	EmailFrom            string        `env:"EMAIL_FROM"`
	SMTPHost             string        `env:"SMTP_HOST"`
	SMTPPort             int           `env:"SMTP_PORT,default=587"`
	SMTPUsername         string        `env:"SMTP_USERNAME"`
	SMTPPassword         string        `env:"SMTP_PASSWORD"`
	SMTPEncryption       string        `env:"SMTP_ENCRYPTION,default=starttls"`
	PostmarkServerToken  string        `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string        `env:"POSTMARK_ACCOUNT_TOKEN"`
	EmailRelayURL        string        `env:"EMAIL_RELAY_URL"`
	EmailRelayAPIKey     string        `env:"EMAIL_RELAY_API_KEY"`

	DispatchConcurrency  int           `env:"DISPATCH_CONCURRENCY,default=16"`
	RateLimitPerSec      int           `env:"RATE_LIMIT_PER_SEC,default=100"`
	EmailRateLimitPerSec int           `env:"EMAIL_RATE_LIMIT_PER_SEC"`
	WorkerConcurrency    int           `env:"WORKER_CONCURRENCY,default=2"`
	DedupClaimTTL        time.Duration `env:"DEDUP_CLAIM_TTL,default=10m"`

	ReportReminderCron     string `env:"REPORT_REMINDER_CRON,default=0 18 * * 1-6"`
	ReportReminderTimezone string `env:"REPORT_REMINDER_TIMEZONE,default=Asia/Seoul"`
	ReportReminderEnabled  bool   `env:"REPORT_REMINDER_ENABLED,default=true"`
	ReportReminderRoles    string `env:"REPORT_REMINDER_ROLES"`

	APIPort   int    `env:"API_PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.EmailProvider = strings.ToLower(strings.TrimSpace(cfg.EmailProvider))
	switch cfg.EmailProvider {
	case "smtp", "postmark", "relay", "none":
	default:
		return nil, fmt.Errorf("failed to load config: unsupported EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
	if cfg.vapidPartiallySet() {
		return nil, fmt.Errorf("failed to load config: VAPID_SUBJECT, VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return &cfg, nil
}

// PushConfigured reports whether all VAPID settings are present.
func (c *Config) PushConfigured() bool {
	return strings.TrimSpace(c.VAPIDSubject) != "" &&
		strings.TrimSpace(c.VAPIDPublicKey) != "" &&
		strings.TrimSpace(c.VAPIDPrivateKey) != ""
}

func (c *Config) vapidPartiallySet() bool {
	set := 0
	for _, v := range []string{c.VAPIDSubject, c.VAPIDPublicKey, c.VAPIDPrivateKey} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	return set > 0 && set < 3
}

// defaultReminderRoles applies when REPORT_REMINDER_ROLES is unset. go-env
// splits tag options on commas, so the list cannot live in the struct tag.
var defaultReminderRoles = []string{"site_manager", "foreman"}

// ReminderRoles splits REPORT_REMINDER_ROLES on commas.
func (c *Config) ReminderRoles() []string {
	if strings.TrimSpace(c.ReportReminderRoles) == "" {
		return append([]string(nil), defaultReminderRoles...)
	}
	parts := strings.Split(c.ReportReminderRoles, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}
