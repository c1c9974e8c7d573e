package messaging

import (
	"context"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/infrastructure/contracts"
)

const (
	RoomsQueue      = "room.audit"
	DeadLetterQueue = "dead_letter_queue"
)

type RoomEventData struct {
	Event domain.RoomEvent `json:"event"`
}

// Handler processes one delivery body. A non-nil error rejects the delivery.
type Handler func(ctx context.Context, body []byte) error

// Bus is implemented by the RabbitMQ and NATS drivers.
type Bus interface {
	PublishMessage(ctx context.Context, routingKey string, msg contracts.AmqpMessage) error
	ConsumeMessages(ctx context.Context, queue string, handler Handler) error
	Close()
}
