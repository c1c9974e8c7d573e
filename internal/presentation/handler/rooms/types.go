package rooms

import (
	"time"

	"github.com/hilthontt/buzzer/internal/domain"
)

type createRoomRequest struct {
	Username string `json:"username"`
}

type createRoomResponse struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

type joinRoomRequest struct {
	Username string `json:"username"`
}

type joinRoomResponse struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Users    int    `json:"users"`
}

type roomResponse struct {
	ID        string        `json:"id"`
	Admin     string        `json:"admin"`
	Users     []string      `json:"users"`
	Buzzer    domain.Buzzer `json:"buzzer"`
	CreatedAt time.Time     `json:"createdAt"`
}

func newRoomResponse(room *domain.Room) roomResponse {
	return roomResponse{
		ID:        room.ID,
		Admin:     room.Admin,
		Users:     room.Users,
		Buzzer:    room.Buzzer,
		CreatedAt: room.CreatedAt,
	}
}
