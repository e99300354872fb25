package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/site-notifier/internal/domain"
)

// DispatchMessage is the broker payload for one dispatch request.
type DispatchMessage struct {
	RequestID string                 `json:"requestId"`
	Request   domain.DispatchRequest `json:"request"`
}

func (m DispatchMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return fmt.Errorf("%w: requestId is required", domain.ErrValidation)
	}

	req := m.Request
	req.Normalize()
	return req.Validate()
}
