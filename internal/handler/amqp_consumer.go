package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/core/domain"
	"craftedge.io/chatsync/internal/realtime"
)

// AMQPConsumer bridges the chat notifications queue to the websocket hub.
// Malformed or invalid payloads are acked and dropped; requeueing them
// would loop forever.
type AMQPConsumer struct {
	hub      *realtime.Hub
	validate *validator.Validate
}

func NewAMQPConsumer(hub *realtime.Hub, validate *validator.Validate) *AMQPConsumer {
	return &AMQPConsumer{
		hub:      hub,
		validate: validate,
	}
}

func (c *AMQPConsumer) Handle(_ context.Context, delivery *amqp.Delivery) {
	if !supportedRoutingKey(delivery.RoutingKey) {
		log.Errorf("unsupported routing key %s", delivery.RoutingKey)
		delivery.Ack(false)
		return
	}

	var n domain.Notification
	if err := json.Unmarshal(delivery.Body, &n); err != nil {
		log.Errorf("failed to unmarshal notification: %v", err)
		delivery.Ack(false)
		return
	}

	if err := c.validate.Struct(n); err != nil {
		log.Errorf("notification validation failed: %v", err)
		delivery.Ack(false)
		return
	}

	c.hub.Publish(&n)
	delivery.Ack(false)
}

func supportedRoutingKey(key string) bool {
	return strings.HasPrefix(key, "deal.") ||
		strings.HasPrefix(key, "message.") ||
		strings.HasPrefix(key, "connection.")
}
