package session

import (
	"context"
	"time"

	"github.com/hilthontt/buzzer/internal/domain"
)

// Broadcaster fans room state out to connected clients. Implementations must
// not block: the engine calls them while holding the room's lock so clients
// observe updates in the order operations completed.
type Broadcaster interface {
	// Welcome attaches clientID to the room and sends it the joinSuccess
	// snapshot followed by the current buzzer.
	Welcome(clientID string, room *domain.Room)
	UsersUpdated(roomID string, users []string)
	BuzzerUpdated(roomID string, buzzer domain.Buzzer)
	// RoomDissolved notifies and detaches every client of the room.
	RoomDissolved(roomID string)
}

// Publisher ships lifecycle events to the event bus.
type Publisher interface {
	Publish(ctx context.Context, event *domain.RoomEvent) error
}

// Recorder receives engine metrics.
type Recorder interface {
	RoomCreated()
	RoomDissolved()
	Buzz(outcome string)
	RoundResolved(sinceOpen time.Duration)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Welcome(string, *domain.Room)        {}
func (nopBroadcaster) UsersUpdated(string, []string)       {}
func (nopBroadcaster) BuzzerUpdated(string, domain.Buzzer) {}
func (nopBroadcaster) RoomDissolved(string)                {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *domain.RoomEvent) error { return nil }

type nopRecorder struct{}

func (nopRecorder) RoomCreated()                {}
func (nopRecorder) RoomDissolved()              {}
func (nopRecorder) Buzz(string)                 {}
func (nopRecorder) RoundResolved(time.Duration) {}
