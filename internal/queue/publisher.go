package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

// Publish queues msg on the dispatch queue as a persistent message whose
// priority follows the payload urgency.
func (p *RabbitMQPublisher) Publish(ctx context.Context, msg DispatchMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid dispatch message: %w", err)
	}

	publishing, err := newPublishing(msg, p.now())
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.PublishWithContext(ctx, "", DispatchQueue, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish to queue %q: %w", DispatchQueue, err)
	}
	return nil
}

func newPublishing(msg DispatchMessage, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal dispatch message: %w", err)
	}

	headers := amqp.Table{
		"x-recipient-count": int32(len(msg.Request.RecipientIDs)),
	}
	if msg.Request.SenderID != "" {
		headers["x-sender-id"] = msg.Request.SenderID
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     now.UTC(),
		MessageId:     msg.RequestID,
		CorrelationId: msg.RequestID,
		Type:          msg.Request.NotificationType.String(),
		Priority:      PriorityValue(msg.Request.Payload.Urgency),
		Headers:       headers,
		Body:          body,
	}, nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
