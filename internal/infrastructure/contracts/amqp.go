package contracts

// AmqpMessage is the envelope shared by every event bus driver.
type AmqpMessage struct {
	RoomID string `json:"roomId"`
	Data   []byte `json:"data"`
}

// Routing keys - using consistent event/command patterns
const (
	EventRoomCreated    = "room.created"
	EventRoomDissolved  = "room.dissolved"
	EventAdminClaimed   = "room.admin_claimed"
	EventMemberJoined   = "member.joined"
	EventMemberLeft     = "member.left"
	EventRoundResolved  = "buzzer.round_resolved"
	EventBuzzerUnlocked = "buzzer.unlocked"
	EventBuzzerReset    = "buzzer.reset"
)

// RoomRoutingKeys lists every key the audit queue binds to.
var RoomRoutingKeys = []string{
	EventRoomCreated,
	EventRoomDissolved,
	EventAdminClaimed,
	EventMemberJoined,
	EventMemberLeft,
	EventRoundResolved,
	EventBuzzerUnlocked,
	EventBuzzerReset,
}
