// Package notify hands outbound SMS, email and domain events to a message
// queue. Delivery workers live outside this service.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Queue names
const (
	QueueSMS    = "notifications.sms"
	QueueEmail  = "notifications.email"
	QueueEvents = "notifications.events"
)

var Queues = []string{QueueSMS, QueueEmail, QueueEvents}

// Publisher delivers a JSON body to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
	Close() error
}

type SMSMessage struct {
	To      string `json:"to"`
	Body    string `json:"body"`
	Purpose string `json:"purpose"`
}

type EmailMessage struct {
	To      string `json:"to"`
	ReplyTo string `json:"replyTo,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Event struct {
	Type           string            `json:"type"`
	OrganizationID string            `json:"organizationId"`
	EntityID       string            `json:"entityId"`
	OccurredAt     time.Time         `json:"occurredAt"`
	Data           map[string]string `json:"data,omitempty"`
}

// Notifier builds typed messages on top of a Publisher.
type Notifier struct {
	publisher    Publisher
	contactInbox string
}

func NewNotifier(publisher Publisher, contactInbox string) *Notifier {
	return &Notifier{publisher: publisher, contactInbox: contactInbox}
}

func (n *Notifier) SendSMS(ctx context.Context, msg SMSMessage) error {
	return n.publish(ctx, QueueSMS, msg)
}

func (n *Notifier) SendEmail(ctx context.Context, msg EmailMessage) error {
	if msg.To == "" {
		msg.To = n.contactInbox
	}
	return n.publish(ctx, QueueEmail, msg)
}

// PublishEvent is best effort: failures are logged and swallowed so a
// committed state change is never reported as failed.
func (n *Notifier) PublishEvent(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := n.publish(ctx, QueueEvents, event); err != nil {
		slog.Warn("[NOTIFY] event publish failed", "type", event.Type, "entity_id", event.EntityID, "err", err)
	}
}

func (n *Notifier) publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", queue, err)
	}
	if err := n.publisher.Publish(ctx, queue, body); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// LogPublisher logs messages instead of sending them. Used when no broker is
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, queue string, body []byte) error {
	p.logger.InfoContext(ctx, "[NOTIFY] message", "queue", queue, "body", string(body))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
