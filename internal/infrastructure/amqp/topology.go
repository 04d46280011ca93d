package amqp

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/core/domain"
)

// TopologyManager declares the chat exchange, the notifications queue and
// the routing key bindings both binaries rely on.
type TopologyManager struct {
	client *Client
}

func NewTopologyManager(client *Client) *TopologyManager {
	return &TopologyManager{client: client}
}

// Setup declares all exchanges, queues, and bindings
func (t *TopologyManager) Setup() error {
	ch := t.client.Channel()

	if err := t.declareExchange(ch, domain.ChatExchange); err != nil {
		return err
	}

	if err := t.declareQueue(ch, domain.ChatNotificationsQueue); err != nil {
		return err
	}

	// The notifier fans everything out to websocket clients, so the queue
	// binds to every notification family.
	for _, pattern := range []string{"deal.*", "message.*", "connection.#"} {
		if err := t.bindQueue(ch, domain.ChatNotificationsQueue, domain.ChatExchange, pattern); err != nil {
			return err
		}
	}

	log.Info("AMQP topology setup completed successfully")
	return nil
}

func (t *TopologyManager) declareExchange(ch *amqp.Channel, name string) error {
	err := ch.ExchangeDeclare(
		name,
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange '%s': %w", name, err)
	}

	log.WithField("exchange", name).Debug("Exchange declared")
	return nil
}

func (t *TopologyManager) declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", name, err)
	}

	log.WithField("queue", name).Debug("Queue declared")
	return nil
}

func (t *TopologyManager) bindQueue(ch *amqp.Channel, queueName, exchangeName, routingKey string) error {
	err := ch.QueueBind(
		queueName,
		routingKey,
		exchangeName,
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue '%s' to exchange '%s' with routing key '%s': %w",
			queueName, exchangeName, routingKey, err)
	}

	log.WithFields(log.Fields{
		"queue":      queueName,
		"exchange":   exchangeName,
		"routingKey": routingKey,
	}).Debug("Queue bound to exchange")
	return nil
}
