package queue

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/site-notifier/internal/domain"
)

// Publisher publishes dispatch requests for asynchronous processing.
type Publisher interface {
	Publish(ctx context.Context, msg DispatchMessage) error
	Close() error
}

// MessageHandler handles a consumed dispatch message.
type MessageHandler func(ctx context.Context, msg DispatchMessage) error

// Consumer consumes dispatch messages.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}

const (
	// DispatchQueue carries DispatchMessage bodies.
	DispatchQueue = "notifications.dispatch"

	dispatchRoutingKey = "notifications.dispatch"

	// queueMaxPriority is the RabbitMQ x-max-priority value for the dispatch queue.
	queueMaxPriority int32 = 3
)

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.notifications.dispatch.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// PriorityValue maps payload urgency to RabbitMQ message priority.
func PriorityValue(urgency domain.Urgency) uint8 {
	switch urgency {
	case domain.UrgencyCritical:
		return 3
	case domain.UrgencyHigh:
		return 2
	case domain.UrgencyMedium:
		return 1
	default:
		return 0
	}
}
