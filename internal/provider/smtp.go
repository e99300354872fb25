package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/wneessen/go-mail"
)

const defaultSMTPTimeout = 15 * time.Second

// SMTPConfig holds connection parameters for the SMTP sender.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Encryption string // "none", "starttls", "ssl_tls"
	Timeout    time.Duration
}

// SMTPSender delivers email through an SMTP relay using go-mail.
type SMTPSender struct {
	config SMTPConfig
}

var _ EmailSender = (*SMTPSender)(nil)

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.From = strings.TrimSpace(cfg.From)
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	return &SMTPSender{config: cfg}, nil
}

func (p *SMTPSender) Send(ctx context.Context, msg EmailMessage) error {
	m := mail.NewMsg()
	if err := m.From(p.config.From); err != nil {
		return &ProviderError{Provider: BackendSMTP, Message: "invalid from address", Cause: err}
	}
	if err := m.To(msg.To); err != nil {
		return &ProviderError{Provider: BackendSMTP, Message: fmt.Sprintf("invalid recipient %q", msg.To), Cause: err}
	}

	m.Subject(msg.Subject)
	for key, value := range msg.Metadata {
		if token := headerToken(key); token != "" {
			m.SetGenHeader(mail.Header("X-Notify-"+token), value)
		}
	}

	m.SetBodyString(mail.TypeTextPlain, plainTextBody(msg))
	if html, err := renderEmailHTML(msg); err == nil {
		m.AddAlternativeString(mail.TypeTextHTML, html)
	}

	opts := []mail.Option{
		mail.WithPort(p.config.Port),
		mail.WithTLSPolicy(tlsPolicyFromEncryption(p.config.Encryption)),
		mail.WithTimeout(p.config.Timeout),
	}
	if p.config.Encryption == "ssl_tls" {
		opts = append(opts, mail.WithSSL())
	}
	if p.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(p.config.Username),
			mail.WithPassword(p.config.Password),
		)
	}

	c, err := mail.NewClient(p.config.Host, opts...)
	if err != nil {
		return &ProviderError{Provider: BackendSMTP, Message: "failed to create mail client", Cause: err}
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return &ProviderError{Provider: BackendSMTP, Message: "smtp send failed", Transient: true, Cause: err}
	}
	return nil
}

func tlsPolicyFromEncryption(enc string) mail.TLSPolicy {
	switch enc {
	case "ssl_tls":
		return mail.TLSMandatory
	case "starttls":
		return mail.TLSOpportunistic
	default:
		return mail.NoTLS
	}
}

// headerToken turns a metadata key like work_date into Work-Date. Header
// names are ASCII, so other characters are dropped; an empty result means the
// key has no usable header form.
func headerToken(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Map(func(r rune) rune {
			if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				return r
			}
			return -1
		}, part)
		if part == "" {
			continue
		}
		first, size := utf8.DecodeRuneInString(part)
		tokens = append(tokens, string(unicode.ToUpper(first))+strings.ToLower(part[size:]))
	}
	return strings.Join(tokens, "-")
}
