package notify

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitPublisher publishes persistent JSON messages on the default exchange.
type RabbitPublisher struct {
	conn *amqp.Connection
	mu   sync.Mutex // amqp channels are not safe for concurrent publishing
	chn  *amqp.Channel
}

// NewRabbitPublisher dials the broker and declares durable queues.
func NewRabbitPublisher(url string, queues ...string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	chn, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	for _, q := range queues {
		_, err := chn.QueueDeclare(
			q,     // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			chn.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	return &RabbitPublisher{conn: conn, chn: chn}, nil
}

func (r *RabbitPublisher) Publish(ctx context.Context, queue string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.chn.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (r *RabbitPublisher) Close() error {
	if err := r.chn.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}
