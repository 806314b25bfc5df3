package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"society-ticketing/internal/logging"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Notification topics consumed by the email worker.
const (
	TopicOrderConfirmed = "notifications.order_confirmed"
	TopicEventCancelled = "notifications.event_cancelled"
	TopicEventModified  = "notifications.event_modified"
)

// Recipient is a student who should hear about an event change.
type Recipient struct {
	StudentID int64  `json:"student_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// Notifier triggers outbound notifications. Content is produced downstream.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, orderID int64, email string) error
	SendEventCancelledNotice(ctx context.Context, eventID int64, recipients []Recipient) error
	SendEventModifiedNotice(ctx context.Context, eventID int64, recipients []Recipient) error
}

// NotificationHeader is common to every notification message.
type NotificationHeader struct {
	ID          string `json:"id"`
	PublishedAt string `json:"published_at"`
}

// OrderConfirmed asks for an order confirmation email.
type OrderConfirmed struct {
	Header  NotificationHeader `json:"header"`
	OrderID int64              `json:"order_id"`
	Email   string             `json:"email"`
}

// EventNotice asks for an event cancelled or modified email.
type EventNotice struct {
	Header     NotificationHeader `json:"header"`
	EventID    int64              `json:"event_id"`
	Recipients []Recipient        `json:"recipients"`
}

// WatermillNotifier publishes notification requests as JSON messages.
type WatermillNotifier struct {
	pub message.Publisher
	now func() time.Time
}

// NewWatermillNotifier creates a notifier publishing to pub
func NewWatermillNotifier(pub message.Publisher) *WatermillNotifier {
	return &WatermillNotifier{pub: pub, now: time.Now}
}

func (n *WatermillNotifier) header() NotificationHeader {
	return NotificationHeader{
		ID:          watermill.NewUUID(),
		PublishedAt: n.now().Format(time.RFC3339Nano),
	}
}

func (n *WatermillNotifier) publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("type", topic)
	if requestID, ok := logging.FromContext(ctx).Data["request_id"].(string); ok {
		msg.Metadata.Set("correlation_id", requestID)
	}
	msg.SetContext(ctx)

	if err := n.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

// SendOrderConfirmation requests a confirmation email for a settled order
func (n *WatermillNotifier) SendOrderConfirmation(ctx context.Context, orderID int64, email string) error {
	return n.publish(ctx, TopicOrderConfirmed, OrderConfirmed{
		Header:  n.header(),
		OrderID: orderID,
		Email:   email,
	})
}

// SendEventCancelledNotice requests cancellation emails
func (n *WatermillNotifier) SendEventCancelledNotice(ctx context.Context, eventID int64, recipients []Recipient) error {
	return n.publish(ctx, TopicEventCancelled, EventNotice{
		Header:     n.header(),
		EventID:    eventID,
		Recipients: recipients,
	})
}

// SendEventModifiedNotice requests change-of-details emails
func (n *WatermillNotifier) SendEventModifiedNotice(ctx context.Context, eventID int64, recipients []Recipient) error {
	return n.publish(ctx, TopicEventModified, EventNotice{
		Header:     n.header(),
		EventID:    eventID,
		Recipients: recipients,
	})
}
