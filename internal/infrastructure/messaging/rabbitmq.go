package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hilthontt/buzzer/internal/infrastructure/contracts"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultRoomExchange = "room.events"
	DeadLetterExchange  = "dlx"
)

type RabbitMQ struct {
	conn     *amqp.Connection
	Channel  *amqp.Channel
	exchange string
	logger   logging.Logger

	// amqp channels are not safe for concurrent publishes.
	mu sync.Mutex
}

var _ Bus = (*RabbitMQ)(nil)

func NewRabbitMQ(uri, exchange string, logger logging.Logger) (*RabbitMQ, error) {
	if exchange == "" {
		exchange = DefaultRoomExchange
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:     conn,
		Channel:  ch,
		exchange: exchange,
		logger:   logger,
	}

	if err := rmq.setupExchangesAndQueues(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		r.Channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}

func (r *RabbitMQ) setupExchangesAndQueues() error {
	if err := r.Channel.ExchangeDeclare(
		DeadLetterExchange, // name
		"fanout",           // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare dead letter exchange: %w", err)
	}

	if _, err := r.Channel.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter queue: %w", err)
	}
	if err := r.Channel.QueueBind(DeadLetterQueue, "", DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead letter queue: %w", err)
	}

	if err := r.Channel.ExchangeDeclare(
		r.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", r.exchange, err)
	}

	return nil
}

// DeclareRoomQueue declares queueName and binds it to every room routing key.
func (r *RabbitMQ) DeclareRoomQueue(queueName string) error {
	return r.declareAndBindQueue(queueName, contracts.RoomRoutingKeys, r.exchange)
}

func (r *RabbitMQ) declareAndBindQueue(queueName string, messageTypes []string, exchange string) error {
	args := amqp.Table{
		"x-dead-letter-exchange": DeadLetterExchange,
	}

	q, err := r.Channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		args,      // arguments with DLX config
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	for _, msg := range messageTypes {
		if err := r.Channel.QueueBind(
			q.Name,   // queue name
			msg,      // routing key
			exchange, // exchange
			false,
			nil,
		); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", queueName, err)
		}
	}

	return nil
}

func (r *RabbitMQ) PublishMessage(ctx context.Context, routingKey string, msg contracts.AmqpMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.Channel.PublishWithContext(ctx,
		r.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
}

// ConsumeMessages starts delivering queue messages to handler on a separate
// goroutine until ctx is done or the channel closes. Failed deliveries go to
// the dead letter exchange.
func (r *RabbitMQ) ConsumeMessages(ctx context.Context, queue string, handler Handler) error {
	if err := r.DeclareRoomQueue(queue); err != nil {
		return err
	}

	if err := r.Channel.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := r.Channel.ConsumeWithContext(ctx,
		queue, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			if err := handler(ctx, msg.Body); err != nil {
				r.logger.Error(logging.RabbitMQ, logging.Consume, "failed to handle message", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
					logging.EventType:    msg.RoutingKey,
				})
				if nackErr := msg.Nack(false, false); nackErr != nil {
					r.logger.Error(logging.RabbitMQ, logging.Consume, "failed to nack message", map[logging.ExtraKey]any{
						logging.ErrorMessage: nackErr.Error(),
					})
				}
				continue
			}

			if ackErr := msg.Ack(false); ackErr != nil {
				r.logger.Error(logging.RabbitMQ, logging.Consume, "failed to ack message", map[logging.ExtraKey]any{
					logging.ErrorMessage: ackErr.Error(),
				})
			}
		}
	}()

	return nil
}
