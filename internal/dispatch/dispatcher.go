package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/kursadbilgin/site-notifier/internal/domain"
	"github.com/kursadbilgin/site-notifier/internal/observability"
	"github.com/kursadbilgin/site-notifier/internal/provider"
	"github.com/kursadbilgin/site-notifier/internal/ratelimit"
	"github.com/kursadbilgin/site-notifier/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency  = 16
	defaultPushTimeout  = 10 * time.Second
	defaultEmailTimeout = 15 * time.Second
)

type Config struct {
	Concurrency  int
	PushTimeout  time.Duration
	EmailTimeout time.Duration
	AppBaseURL   string
}

type outcomeKind int

const (
	outcomeOptedOut outcomeKind = iota
	outcomeNoChannel
	outcomeDelivered
	outcomeFailed
	outcomeCanceled
)

// errBatchCanceled marks a recipient whose send never started because the
// batch context ended first.
var errBatchCanceled = errors.New("dispatch canceled before send")

// pipelineState is what a recipient pipeline had reached when it stopped.
type pipelineState struct {
	channel domain.Channel
	logged  bool
}

type recipientOutcome struct {
	kind        outcomeKind
	channel     domain.Channel
	auditFailed bool
}

// Dispatcher resolves recipients, picks one channel per recipient and records
// the outcome in the audit log.
type Dispatcher struct {
	recipients repository.RecipientRepository
	logs       repository.NotificationLogRepository
	push       provider.PushSender
	email      provider.EmailSender
	limiter    ratelimit.RateLimiter
	claimer    Claimer
	cfg        Config
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewDispatcher builds a dispatcher. A nil push or email sender disables that channel.
func NewDispatcher(
	recipients repository.RecipientRepository,
	logs repository.NotificationLogRepository,
	push provider.PushSender,
	email provider.EmailSender,
	limiter ratelimit.RateLimiter,
	cfg Config,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if recipients == nil {
		return nil, fmt.Errorf("recipient repository is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("notification log repository is required")
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = defaultPushTimeout
	}
	if cfg.EmailTimeout <= 0 {
		cfg.EmailTimeout = defaultEmailTimeout
	}

	if push == nil {
		logger.Warn("push provider not configured, push channel disabled")
	}
	if email == nil {
		logger.Warn("email provider not configured, email channel disabled")
	}

	return &Dispatcher{
		recipients: recipients,
		logs:       logs,
		push:       push,
		email:      email,
		limiter:    limiter,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// SetClaimer enables the in-flight claim for requests that carry a dedupe key.
func (d *Dispatcher) SetClaimer(claimer Claimer) {
	if d == nil {
		return
	}
	d.claimer = claimer
}

// Dispatch delivers req to every eligible recipient. Only validation and the
// recipient fetch produce an error; every per-recipient failure is counted in
// the result.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.WithContextLogger(d.logger, ctx)

	total := len(req.RecipientIDs)
	req.Normalize()
	if err := req.Validate(); err != nil {
		d.metrics.IncDispatch(req.NotificationType.String(), "invalid")
		return nil, err
	}

	fetched, err := d.recipients.FetchByIDs(ctx, req.RecipientIDs)
	if err != nil {
		d.metrics.IncDispatch(req.NotificationType.String(), "failed")
		return nil, fmt.Errorf("failed to fetch recipients: %w", err)
	}

	byID := make(map[string]domain.Recipient, len(fetched))
	for _, r := range fetched {
		byID[r.ID] = r
	}

	found := make([]string, 0, len(byID))
	for _, id := range req.RecipientIDs {
		if _, ok := byID[id]; ok {
			found = append(found, id)
		}
	}

	result := &domain.DispatchResult{
		Total:   total,
		Missing: len(req.RecipientIDs) - len(found),
	}
	if result.Missing > 0 {
		logger.Warn("recipients not found",
			zap.String("notificationType", req.NotificationType.String()),
			zap.Int("missing", result.Missing),
		)
	}

	eligible := FilterAlreadyNotified(ctx, d.logs, found, req.NotificationType, req.Dedupe, logger)
	eligible = claimRecipients(ctx, d.claimer, eligible, req.NotificationType, req.Dedupe, logger)
	deduped := len(found) - len(eligible)
	result.Skipped += deduped
	d.metrics.AddSkipped("deduped", deduped)

	outcomes := make([]recipientOutcome, len(eligible))
	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Concurrency)
	for i, id := range eligible {
		if ctx.Err() != nil {
			for j := i; j < len(eligible); j++ {
				outcomes[j] = recipientOutcome{kind: outcomeCanceled}
			}
			break
		}
		recipient := byID[id]
		g.Go(func() error {
			outcomes[i] = d.processRecipientSafe(ctx, req, recipient)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.auditFailed {
			result.AuditFailures++
		}
		switch o.kind {
		case outcomeOptedOut:
			result.Skipped++
		case outcomeNoChannel:
			result.Processed++
			result.NoChannel++
		case outcomeDelivered:
			result.Processed++
			switch o.channel {
			case domain.ChannelPush:
				result.PushCount++
			case domain.ChannelEmail:
				result.EmailCount++
			}
		case outcomeFailed:
			result.Processed++
			result.Failed++
		case outcomeCanceled:
			result.Canceled++
		}
	}
	d.metrics.AddSkipped("canceled", result.Canceled)
	if result.Canceled > 0 {
		logger.Warn("dispatch canceled before every recipient was sent",
			zap.String("notificationType", req.NotificationType.String()),
			zap.Int("canceled", result.Canceled),
			zap.Error(ctx.Err()),
		)
	}

	d.metrics.IncDispatch(req.NotificationType.String(), "completed")
	logger.Info("dispatch completed",
		zap.String("notificationType", req.NotificationType.String()),
		zap.String("sentBy", req.SenderID),
		zap.Int("total", result.Total),
		zap.Int("processed", result.Processed),
		zap.Int("pushCount", result.PushCount),
		zap.Int("emailCount", result.EmailCount),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Int("noChannel", result.NoChannel),
		zap.Int("canceled", result.Canceled),
	)

	return result, nil
}

func (d *Dispatcher) processRecipientSafe(ctx context.Context, req domain.DispatchRequest, r domain.Recipient) (out recipientOutcome) {
	d.metrics.IncInflight()
	defer d.metrics.DecInflight()

	var state pipelineState
	defer func() {
		if rec := recover(); rec != nil {
			observability.WithContextLogger(d.logger, ctx).Error("recipient pipeline panicked",
				zap.String("recipientId", r.ID),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			out = d.recordPanic(ctx, req, r, state, rec)
		}
	}()

	return d.processRecipient(ctx, req, r, &state)
}

// recordPanic writes a failed row for a pipeline that panicked after picking a
// channel and before its own row was written.
func (d *Dispatcher) recordPanic(
	ctx context.Context,
	req domain.DispatchRequest,
	r domain.Recipient,
	state pipelineState,
	rec any,
) recipientOutcome {
	out := recipientOutcome{kind: outcomeFailed, channel: state.channel}
	if state.channel == "" || state.logged {
		return out
	}

	d.metrics.IncDelivery(state.channel.String(), domain.LogStatusFailed.String(), "panic")
	entry := d.logEntry(req, r, req.Payload, state.channel, domain.LogStatusFailed, fmt.Errorf("recipient pipeline panicked: %v", rec))
	if err := d.logs.Append(ctx, entry); err != nil {
		out.auditFailed = true
		d.metrics.IncAuditFailure()
		observability.WithContextLogger(d.logger, ctx).Warn("failed to write notification log",
			zap.String("recipientId", r.ID),
			zap.String("channel", state.channel.String()),
			zap.Error(err),
		)
	}
	return out
}

func (d *Dispatcher) processRecipient(
	ctx context.Context,
	req domain.DispatchRequest,
	r domain.Recipient,
	state *pipelineState,
) recipientOutcome {
	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.String("recipientId", r.ID),
		zap.String("notificationType", req.NotificationType.String()),
	)

	if domain.IsOptedOut(r, req.NotificationType) {
		d.metrics.AddSkipped("opted_out", 1)
		return recipientOutcome{kind: outcomeOptedOut}
	}

	channel, ok := selectChannel(r, d.push != nil, d.email != nil)
	if !ok {
		d.metrics.AddSkipped("no_channel", 1)
		logger.Debug("no eligible channel")
		return recipientOutcome{kind: outcomeNoChannel}
	}
	if ctx.Err() != nil {
		return recipientOutcome{kind: outcomeCanceled}
	}
	state.channel = channel

	payload := req.Payload.ForRecipient(req.NotificationType, r.ID)

	var sendErr error
	switch channel {
	case domain.ChannelPush:
		sendErr = d.sendPush(ctx, r, payload)
		if provider.IsStaleSubscription(sendErr) {
			if err := d.recipients.ClearPushSubscription(ctx, r.ID); err != nil {
				logger.Error("failed to clear stale push subscription", zap.Error(err))
			} else {
				d.metrics.IncSubscriptionCleared()
				logger.Info("stale push subscription cleared")
			}
		}
	case domain.ChannelEmail:
		sendErr = d.sendEmail(ctx, r, payload, req.NotificationType)
	}
	if errors.Is(sendErr, errBatchCanceled) {
		return recipientOutcome{kind: outcomeCanceled}
	}

	out := recipientOutcome{kind: outcomeDelivered, channel: channel}
	status := domain.LogStatusDelivered
	if sendErr != nil {
		out.kind = outcomeFailed
		status = domain.LogStatusFailed
		logger.Warn("delivery failed",
			zap.String("channel", channel.String()),
			zap.String("reason", provider.FailureReason(sendErr)),
			zap.Error(sendErr),
		)
	}
	d.metrics.IncDelivery(channel.String(), status.String(), provider.FailureReason(sendErr))

	entry := d.logEntry(req, r, payload, channel, status, sendErr)
	state.logged = true
	if err := d.logs.Append(ctx, entry); err != nil {
		out.auditFailed = true
		d.metrics.IncAuditFailure()
		logger.Warn("failed to write notification log",
			zap.String("channel", channel.String()),
			zap.String("status", status.String()),
			zap.Error(err),
		)
	}

	return out
}

func (d *Dispatcher) sendPush(ctx context.Context, r domain.Recipient, payload domain.NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode push payload: %w", err)
	}

	if err := d.waitForSlot(ctx, domain.ChannelPush); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.PushTimeout)
	defer cancel()

	start := d.now()
	err = d.push.Send(sendCtx, *r.PushSubscription, body, payload.Urgency)
	d.metrics.ObserveSendDuration(domain.ChannelPush.String(), d.now().Sub(start))
	return err
}

func (d *Dispatcher) sendEmail(ctx context.Context, r domain.Recipient, payload domain.NotificationPayload, notificationType domain.NotificationType) error {
	if err := d.waitForSlot(ctx, domain.ChannelEmail); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.EmailTimeout)
	defer cancel()

	msg := buildEmailMessage(r, payload, notificationType, d.cfg.AppBaseURL)

	start := d.now()
	err := d.email.Send(sendCtx, msg)
	d.metrics.ObserveSendDuration(domain.ChannelEmail.String(), d.now().Sub(start))
	return err
}

func (d *Dispatcher) waitForSlot(ctx context.Context, channel domain.Channel) error {
	if err := d.limiter.Wait(ctx, channel); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", errBatchCanceled, err)
		}
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}

func (d *Dispatcher) logEntry(
	req domain.DispatchRequest,
	r domain.Recipient,
	payload domain.NotificationPayload,
	channel domain.Channel,
	status domain.LogStatus,
	sendErr error,
) *domain.NotificationLogEntry {
	metadata := make(map[string]any, len(payload.Data)+1)
	for k, v := range payload.Data {
		metadata[k] = v
	}
	if req.Dedupe != nil {
		metadata[req.Dedupe.Key] = req.Dedupe.Value
	}

	var errMsg *string
	if sendErr != nil {
		msg := sendErr.Error()
		errMsg = &msg
	}

	return &domain.NotificationLogEntry{
		RecipientID:      r.ID,
		NotificationType: req.NotificationType,
		Title:            payload.Title,
		Body:             payload.Body,
		Status:           status,
		Channel:          channel,
		SentAt:           d.now().UTC(),
		SentBy:           req.SenderID,
		TargetRole:       r.Role,
		TargetSiteID:     r.SiteID,
		ErrorMessage:     errMsg,
		Metadata:         metadata,
	}
}
