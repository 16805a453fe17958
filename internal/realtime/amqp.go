package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/rabbitmq/amqp091-go"
)

const busExchange = "realtime_topic"

// amqpEnvelope wraps an event with its group for transit through the broker.
type amqpEnvelope struct {
	Group string          `json:"group"`
	Event json.RawMessage `json:"event"`
}

// AmqpBus relays group events through a RabbitMQ topic exchange so sessions
// connected to other processes receive them too. Local subscriptions live in
// an embedded MemoryBus; published events reach local subscribers via the
// broker round-trip, which keeps single- and multi-process delivery on one
// code path.
type AmqpBus struct {
	local *MemoryBus
	conn  *amqp091.Connection
	ch    *amqp091.Channel
}

// NewAmqpBus dials the broker, declares the exchange and starts the consumer
// that feeds broker events into the local registry.
func NewAmqpBus(url string) (*AmqpBus, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("realtime.NewAmqpBus dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("realtime.NewAmqpBus channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		busExchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("realtime.NewAmqpBus exchange: %w", err)
	}

	// An exclusive, auto-deleted queue per process; every group's events are
	// routed here and fanned out to the process's own subscribers.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("realtime.NewAmqpBus queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "#", busExchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("realtime.NewAmqpBus bind: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("realtime.NewAmqpBus consume: %w", err)
	}

	bus := &AmqpBus{local: NewMemoryBus(), conn: conn, ch: ch}
	go bus.consume(deliveries)
	return bus, nil
}

func (b *AmqpBus) consume(deliveries <-chan amqp091.Delivery) {
	for msg := range deliveries {
		var env amqpEnvelope
		if err := json.Unmarshal(msg.Body, &env); err != nil {
			log.Printf("realtime: dropping malformed bus envelope: %v", err)
			continue
		}
		b.local.deliver(env.Group, env.Event)
	}
}

// Subscribe adds the handle to the process-local registry.
func (b *AmqpBus) Subscribe(group string, sub *Subscriber) {
	b.local.Subscribe(group, sub)
}

// Unsubscribe removes the handle from the process-local registry.
func (b *AmqpBus) Unsubscribe(group string, sub *Subscriber) {
	b.local.Unsubscribe(group, sub)
}

// Publish sends the event to the broker with the group as routing key. Local
// delivery happens when the broker echoes it back through the bound queue.
func (b *AmqpBus) Publish(group string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("realtime.Publish: %w", err)
	}
	body, err := json.Marshal(amqpEnvelope{Group: group, Event: data})
	if err != nil {
		return fmt.Errorf("realtime.Publish envelope: %w", err)
	}

	return b.ch.PublishWithContext(
		context.Background(),
		busExchange,
		group, // routing key
		false, // mandatory
		false, // immediate
		amqp091.Publishing{ContentType: "application/json", Body: body},
	)
}

// Close shuts down the broker connection.
func (b *AmqpBus) Close() error {
	return b.conn.Close()
}
