package client

import (
	"context"
	"time"

	"craftedge.io/chatsync/internal/core/domain"
	"craftedge.io/chatsync/internal/infrastructure/amqp"
)

// AMQPNotifier publishes notifications on the chat topic exchange, one
// routing key per notification type.
type AMQPNotifier struct {
	publisher *amqp.Publisher
}

func NewAMQPNotifier(publisher *amqp.Publisher) *AMQPNotifier {
	return &AMQPNotifier{publisher: publisher}
}

func (a *AMQPNotifier) publish(ctx context.Context, t domain.NotificationType, n *domain.Notification) error {
	n.Type = t
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now().UTC()
	}
	return a.publisher.Publish(ctx, domain.ChatExchange, t.RoutingKey(), n)
}

func (a *AMQPNotifier) NotifyDealCreated(ctx context.Context, n *domain.Notification) error {
	return a.publish(ctx, domain.NotifyDealCreated, n)
}

func (a *AMQPNotifier) NotifyDealUpdated(ctx context.Context, n *domain.Notification) error {
	return a.publish(ctx, domain.NotifyDealUpdated, n)
}

func (a *AMQPNotifier) NotifyMessageCreated(ctx context.Context, n *domain.Notification) error {
	return a.publish(ctx, domain.NotifyMessageCreated, n)
}

func (a *AMQPNotifier) NotifyMessageEdited(ctx context.Context, n *domain.Notification) error {
	return a.publish(ctx, domain.NotifyMessageEdited, n)
}

func (a *AMQPNotifier) NotifyMessagesDeleted(ctx context.Context, n *domain.Notification) error {
	return a.publish(ctx, domain.NotifyMessagesDeleted, n)
}

func (a *AMQPNotifier) NotifyConnectionStatus(ctx context.Context, n *domain.Notification) error {
	return a.publish(ctx, domain.NotifyConnection, n)
}
