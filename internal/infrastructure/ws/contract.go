package ws

import (
	"encoding/json"

	"github.com/hilthontt/buzzer/internal/domain"
)

type WSMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// inboundMessage keeps the payload raw until the event type is known.
type inboundMessage struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId"`
	Data   json.RawMessage `json:"data"`
}

// Inbound payloads
type JoinPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type BuzzPayload struct {
	// Client clock in unix milliseconds. Missing means "now" on the server.
	Time *int64 `json:"time"`
}

// Outbound payloads
type RoomPayload struct {
	Room *domain.Room `json:"room"`
}

type UsersPayload struct {
	Users []string `json:"users"`
}

type BuzzerPayload struct {
	Buzzer domain.Buzzer `json:"buzzer"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Retry   bool   `json:"retry,omitempty"`
}

func NewJoinSuccess(room *domain.Room) *WSMessage {
	return &WSMessage{
		Type:   JoinSuccess,
		RoomID: room.ID,
		Data:   RoomPayload{Room: room},
	}
}

func NewJoinFailure(roomID, code, message string) *WSMessage {
	return &WSMessage{
		Type:   JoinFailure,
		RoomID: roomID,
		Data: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}

func NewDissolveRoom(roomID string) *WSMessage {
	return &WSMessage{
		Type:   DissolveRoom,
		RoomID: roomID,
	}
}

func NewUpdateUsers(roomID string, users []string) *WSMessage {
	if users == nil {
		users = []string{}
	}
	return &WSMessage{
		Type:   UpdateUsers,
		RoomID: roomID,
		Data:   UsersPayload{Users: users},
	}
}

func NewUpdateBuzzer(roomID string, buzzer domain.Buzzer) *WSMessage {
	return &WSMessage{
		Type:   UpdateBuzzer,
		RoomID: roomID,
		Data:   BuzzerPayload{Buzzer: buzzer},
	}
}

func NewError(roomID, code, message string, retry bool) *WSMessage {
	return &WSMessage{
		Type:   ErrorEvent,
		RoomID: roomID,
		Data: ErrorPayload{
			Code:    code,
			Message: message,
			Retry:   retry,
		},
	}
}
