package domain

import "time"

// AMQP topology shared by the publisher (API server) and the consumer
// (notifier binary).
const (
	ChatExchange           = "chat"
	ChatNotificationsQueue = "chat.notifications"
)

type NotificationType string

const (
	NotifyDealCreated     NotificationType = "deal.created"
	NotifyDealUpdated     NotificationType = "deal.updated"
	NotifyMessageCreated  NotificationType = "message.created"
	NotifyMessageEdited   NotificationType = "message.edited"
	NotifyMessagesDeleted NotificationType = "message.deleted"
	NotifyConnection      NotificationType = "connection.status"
)

// RoutingKey returns the AMQP routing key for the notification type.
func (t NotificationType) RoutingKey() string { return string(t) }

// Notification is a confirmed state transition fanned out to the owning
// user's realtime channels. Delivery is best effort; disconnected clients
// re-fetch current state through the read API instead of replaying.
type Notification struct {
	Type           NotificationType `json:"type" validate:"required"`
	UserID         int64            `json:"user_id" validate:"required"`
	DealExternalID string           `json:"deal_id,omitempty"`
	ConnectionID   string           `json:"connection_id,omitempty"`
	MessageID      int64            `json:"message_id,omitempty"`
	MessageIDs     []int64          `json:"message_ids,omitempty"`
	Text           string           `json:"text,omitempty"`
	Active         bool             `json:"active,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at" validate:"required"`
}
