package domain

import (
	"fmt"
	"strings"
)

// SystemSender is recorded as sentBy when no user triggered the dispatch.
const SystemSender = "system"

// Dedupe selects the audit metadata field used to detect prior delivery.
type Dedupe struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DispatchRequest is one batch of recipients for a single notification.
type DispatchRequest struct {
	RecipientIDs     []string            `json:"recipientIds"`
	Payload          NotificationPayload `json:"payload"`
	NotificationType NotificationType    `json:"notificationType"`
	SenderID         string              `json:"senderId,omitempty"`
	Dedupe           *Dedupe             `json:"dedupe,omitempty"`
}

// Normalize trims identifiers and fills the sender default. Duplicate recipient
// ids are dropped, keeping first occurrence order. Slices and the dedupe are
// replaced, never written through, so a request shared by concurrent callers
// stays untouched.
func (r *DispatchRequest) Normalize() {
	r.SenderID = strings.TrimSpace(r.SenderID)
	if r.SenderID == "" {
		r.SenderID = SystemSender
	}

	seen := make(map[string]struct{}, len(r.RecipientIDs))
	ids := make([]string, 0, len(r.RecipientIDs))
	for _, id := range r.RecipientIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	r.RecipientIDs = ids

	if r.Dedupe != nil {
		r.Dedupe = &Dedupe{
			Key:   strings.TrimSpace(r.Dedupe.Key),
			Value: strings.TrimSpace(r.Dedupe.Value),
		}
	}
}

func (r DispatchRequest) Validate() error {
	if len(r.RecipientIDs) == 0 {
		return fmt.Errorf("%w: at least one recipient id is required", ErrValidation)
	}
	if !r.NotificationType.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, r.NotificationType)
	}
	if err := r.Payload.Validate(); err != nil {
		return err
	}
	if r.Dedupe != nil && (r.Dedupe.Key == "" || r.Dedupe.Value == "") {
		return fmt.Errorf("%w: dedupe key and value are required", ErrValidation)
	}
	return nil
}

// DispatchResult aggregates the settled per-recipient outcomes of one call.
type DispatchResult struct {
	PushCount     int `json:"pushCount"`
	EmailCount    int `json:"emailCount"`
	Failed        int `json:"failed"`
	NoChannel     int `json:"noChannel"`
	Skipped       int `json:"skipped"`
	Missing       int `json:"missing"`
	AuditFailures int `json:"auditFailures"`
	Canceled      int `json:"canceled"`
	Processed     int `json:"processed"`
	Total         int `json:"total"`
}
