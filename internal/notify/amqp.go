package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/roach88/lotledger/internal/ledger"
)

// DefaultQueue is the queue events are published to.
const DefaultQueue = "lotledger.events"

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes each event as a persistent JSON message on a
// durable queue through the default exchange.
//
// Thread-safety: Publish is safe for concurrent use; AMQP channels are not,
// so publishes are serialized.
type AMQPPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    channel
	queue string
}

// DialAMQP connects to the broker at url and declares queue.
func DialAMQP(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	p, err := newAMQPPublisher(ch, queue)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch channel, queue string) (*AMQPPublisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	// durable, not auto-deleted, not exclusive
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &AMQPPublisher{ch: ch, queue: queue}, nil
}

// Publish sends events in order. It stops at the first failure.
func (p *AMQPPublisher) Publish(ctx context.Context, events []ledger.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ev := range events {
		msg, err := Message(ev)
		if err != nil {
			return err
		}
		if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
			return fmt.Errorf("publish event %s: %w", ev.ID, err)
		}
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Message encodes ev as an AMQP message. The message id is the event id so
// that consumers can drop redeliveries.
func Message(ev ledger.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.Timestamp,
		Type:         string(ev.Action),
		AppId:        "lotledger",
		Body:         body,
	}, nil
}
