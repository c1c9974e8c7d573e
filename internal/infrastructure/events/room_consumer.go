package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/infrastructure/contracts"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
	"github.com/hilthontt/buzzer/internal/infrastructure/messaging"
)

// MessageConsumer is the consuming half of a messaging.Bus.
type MessageConsumer interface {
	ConsumeMessages(ctx context.Context, queue string, handler messaging.Handler) error
}

// RoomConsumer writes every room event it receives to the audit log.
type RoomConsumer struct {
	bus    MessageConsumer
	audit  domain.RoomAuditRepository
	queue  string
	logger logging.Logger
}

func NewRoomConsumer(bus MessageConsumer, audit domain.RoomAuditRepository, queue string, logger logging.Logger) *RoomConsumer {
	if queue == "" {
		queue = messaging.RoomsQueue
	}
	return &RoomConsumer{
		bus:    bus,
		audit:  audit,
		queue:  queue,
		logger: logger,
	}
}

func (c *RoomConsumer) Listen(ctx context.Context) error {
	return c.bus.ConsumeMessages(ctx, c.queue, c.handle)
}

func (c *RoomConsumer) handle(ctx context.Context, body []byte) error {
	var message contracts.AmqpMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	var payload messaging.RoomEventData
	if err := json.Unmarshal(message.Data, &payload); err != nil {
		return fmt.Errorf("unmarshal room event: %w", err)
	}

	if payload.Event.ID == "" || payload.Event.RoomID == "" {
		return fmt.Errorf("room event missing id or room id")
	}

	if err := c.audit.Log(ctx, &payload.Event); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}

	c.logger.Debug(logging.IO, logging.Consume, "room event recorded", map[logging.ExtraKey]any{
		logging.RoomID:    payload.Event.RoomID,
		logging.EventType: string(payload.Event.EventType),
	})

	return nil
}
