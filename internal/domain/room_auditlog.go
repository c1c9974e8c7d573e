package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RoomEventType string

const (
	EventRoomCreated    RoomEventType = "room_created"
	EventRoomDissolved  RoomEventType = "room_dissolved"
	EventAdminClaimed   RoomEventType = "admin_claimed"
	EventMemberJoined   RoomEventType = "member_joined"
	EventMemberLeft     RoomEventType = "member_left"
	EventRoundResolved  RoomEventType = "round_resolved"
	EventBuzzerUnlocked RoomEventType = "buzzer_unlocked"
	EventBuzzerReset    RoomEventType = "buzzer_reset"
)

// RoomEvent describes a lifecycle change of a room. It travels over the
// event bus and is stored as-is in the audit log.
type RoomEvent struct {
	ID        string         `bson:"_id" json:"id"`
	RoomID    string         `bson:"room_id" json:"roomId"`
	EventType RoomEventType  `bson:"event_type" json:"eventType"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Metadata  map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

type RoomAuditRepository interface {
	Log(ctx context.Context, event *RoomEvent) error
	GetByRoomID(ctx context.Context, roomID string, limit int) ([]RoomEvent, error)
	GetByEventType(ctx context.Context, eventType RoomEventType, from, to time.Time) ([]RoomEvent, error)
	DeleteOlderThan(ctx context.Context, before time.Time) error
	EnsureIndexes(ctx context.Context) error
}

func newRoomEvent(roomID string, eventType RoomEventType, metadata map[string]any) *RoomEvent {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &RoomEvent{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

func NewRoomCreatedEvent(roomID string) *RoomEvent {
	return newRoomEvent(roomID, EventRoomCreated, nil)
}

func NewRoomDissolvedEvent(roomID, admin string, memberCount int) *RoomEvent {
	return newRoomEvent(roomID, EventRoomDissolved, map[string]any{
		"admin":        admin,
		"member_count": memberCount,
	})
}

func NewAdminClaimedEvent(roomID, admin string) *RoomEvent {
	return newRoomEvent(roomID, EventAdminClaimed, map[string]any{
		"admin": admin,
	})
}

func NewMemberJoinedEvent(roomID, username string, memberCount int) *RoomEvent {
	return newRoomEvent(roomID, EventMemberJoined, map[string]any{
		"username":     username,
		"member_count": memberCount,
	})
}

func NewMemberLeftEvent(roomID, username string, memberCount int) *RoomEvent {
	return newRoomEvent(roomID, EventMemberLeft, map[string]any{
		"username":     username,
		"member_count": memberCount,
	})
}

func NewRoundResolvedEvent(roomID string, winner Buzz, contenders int) *RoomEvent {
	return newRoomEvent(roomID, EventRoundResolved, map[string]any{
		"winner":      winner.Username,
		"winner_time": winner.Time,
		"contenders":  contenders,
	})
}

func NewBuzzerUnlockedEvent(roomID string) *RoomEvent {
	return newRoomEvent(roomID, EventBuzzerUnlocked, nil)
}

func NewBuzzerResetEvent(roomID string, rounds int) *RoomEvent {
	return newRoomEvent(roomID, EventBuzzerReset, map[string]any{
		"rounds_cleared": rounds,
	})
}
