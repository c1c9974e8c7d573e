package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/infrastructure/contracts"
	"github.com/hilthontt/buzzer/internal/infrastructure/messaging"
)

// MessagePublisher is the publishing half of a messaging.Bus.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, routingKey string, msg contracts.AmqpMessage) error
}

type RoomPublisher struct {
	bus MessagePublisher
}

func NewRoomPublisher(bus MessagePublisher) *RoomPublisher {
	return &RoomPublisher{
		bus: bus,
	}
}

func (p *RoomPublisher) Publish(ctx context.Context, event *domain.RoomEvent) error {
	routingKey, err := RoutingKey(event.EventType)
	if err != nil {
		return err
	}

	payload := messaging.RoomEventData{
		Event: *event,
	}

	roomEventJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.bus.PublishMessage(ctx, routingKey, contracts.AmqpMessage{
		RoomID: event.RoomID,
		Data:   roomEventJSON,
	})
}

func RoutingKey(eventType domain.RoomEventType) (string, error) {
	switch eventType {
	case domain.EventRoomCreated:
		return contracts.EventRoomCreated, nil
	case domain.EventRoomDissolved:
		return contracts.EventRoomDissolved, nil
	case domain.EventAdminClaimed:
		return contracts.EventAdminClaimed, nil
	case domain.EventMemberJoined:
		return contracts.EventMemberJoined, nil
	case domain.EventMemberLeft:
		return contracts.EventMemberLeft, nil
	case domain.EventRoundResolved:
		return contracts.EventRoundResolved, nil
	case domain.EventBuzzerUnlocked:
		return contracts.EventBuzzerUnlocked, nil
	case domain.EventBuzzerReset:
		return contracts.EventBuzzerReset, nil
	default:
		return "", fmt.Errorf("no routing key for event type %q", eventType)
	}
}
