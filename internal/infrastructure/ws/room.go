package ws

import (
	"sync"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
)

// Metrics receives connection level counters.
type Metrics interface {
	ClientConnected()
	ClientDisconnected()
	BroadcastDropped()
}

type nopMetrics struct{}

func (nopMetrics) ClientConnected()    {}
func (nopMetrics) ClientDisconnected() {}
func (nopMetrics) BroadcastDropped()   {}

// RoomManager tracks connected clients and which room each is attached to.
// Sends never block: a full client buffer drops the message for that client.
type RoomManager struct {
	clients    map[string]*Client            // clientID -> Client
	rooms      map[string]map[string]*Client // roomID -> clientID -> Client
	clientRoom map[string]string             // clientID -> roomID
	mu         sync.RWMutex

	logger  logging.Logger
	metrics Metrics
}

func NewRoomManager(logger logging.Logger, metrics Metrics) *RoomManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &RoomManager{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		clientRoom: make(map[string]string),
		logger:     logger,
		metrics:    metrics,
	}
}

func (rm *RoomManager) Register(cl *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, exists := rm.clients[cl.ID]; exists {
		return
	}
	rm.clients[cl.ID] = cl
	rm.metrics.ClientConnected()
}

// Unregister detaches the client and closes its send channel.
func (rm *RoomManager) Unregister(cl *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, exists := rm.clients[cl.ID]; !exists {
		return
	}
	rm.detachLocked(cl.ID)
	delete(rm.clients, cl.ID)
	close(cl.Message)
	rm.metrics.ClientDisconnected()
}

// RoomOf reports the room the client is attached to, or "".
func (rm *RoomManager) RoomOf(clientID string) string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	return rm.clientRoom[clientID]
}

func (rm *RoomManager) ClientCount(roomID string) int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms[roomID])
}

func (rm *RoomManager) attach(roomID, clientID string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	cl, ok := rm.clients[clientID]
	if !ok {
		return false
	}
	rm.detachLocked(clientID)

	members, ok := rm.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		rm.rooms[roomID] = members
	}
	members[clientID] = cl
	rm.clientRoom[clientID] = roomID
	return true
}

func (rm *RoomManager) detachLocked(clientID string) {
	roomID, ok := rm.clientRoom[clientID]
	if !ok {
		return
	}
	delete(rm.clientRoom, clientID)

	members := rm.rooms[roomID]
	delete(members, clientID)
	if len(members) == 0 {
		delete(rm.rooms, roomID)
	}
}

func (rm *RoomManager) BroadcastToRoom(msg *WSMessage) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	for _, cl := range rm.rooms[msg.RoomID] {
		rm.enqueue(cl, msg)
	}
}

func (rm *RoomManager) SendTo(clientID string, msg *WSMessage) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if cl, ok := rm.clients[clientID]; ok {
		rm.enqueue(cl, msg)
	}
}

// enqueue requires rm.mu held, which keeps cl.Message open.
func (rm *RoomManager) enqueue(cl *Client, msg *WSMessage) {
	select {
	case cl.Message <- msg:
	default:
		rm.metrics.BroadcastDropped()
		rm.logger.Warn(logging.WebSocket, logging.Broadcast, "client buffer full, dropping message", map[logging.ExtraKey]any{
			logging.ClientID:  cl.ID,
			logging.RoomID:    msg.RoomID,
			logging.EventType: msg.Type,
		})
	}
}

// Welcome attaches the client and sends it the room snapshot and buzzer.
func (rm *RoomManager) Welcome(clientID string, room *domain.Room) {
	if !rm.attach(room.ID, clientID) {
		return
	}
	rm.SendTo(clientID, NewJoinSuccess(room))
	rm.SendTo(clientID, NewUpdateBuzzer(room.ID, room.Buzzer))
}

func (rm *RoomManager) UsersUpdated(roomID string, users []string) {
	rm.BroadcastToRoom(NewUpdateUsers(roomID, users))
}

func (rm *RoomManager) BuzzerUpdated(roomID string, buzzer domain.Buzzer) {
	rm.BroadcastToRoom(NewUpdateBuzzer(roomID, buzzer))
}

// RoomDissolved tells every attached client and detaches them all.
func (rm *RoomManager) RoomDissolved(roomID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	msg := NewDissolveRoom(roomID)
	for clientID, cl := range rm.rooms[roomID] {
		rm.enqueue(cl, msg)
		delete(rm.clientRoom, clientID)
	}
	delete(rm.rooms, roomID)
}
