package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/jonboulle/clockwork"
)

const (
	defaultCapacity       = 1000
	defaultIdleRoomExpiry = 6 * time.Hour
)

// roomRepository keeps rooms in process memory. Rooms are copied on every
// read and write so callers never share state with the store.
type roomRepository struct {
	rooms          map[string]*domain.Room // ID -> Room
	lastAccess     map[string]time.Time    // ID -> last access time
	capacity       uint
	idleRoomExpiry time.Duration
	clock          clockwork.Clock
	mu             *sync.RWMutex
}

func NewRoomRepository(capacity uint, idleRoomExpiry time.Duration) domain.RoomStore {
	return NewRoomRepositoryWithClock(capacity, idleRoomExpiry, clockwork.NewRealClock())
}

func NewRoomRepositoryWithClock(capacity uint, idleRoomExpiry time.Duration, clock clockwork.Clock) domain.RoomStore {
	if capacity == 0 {
		capacity = defaultCapacity
	}
	if idleRoomExpiry == 0 {
		idleRoomExpiry = defaultIdleRoomExpiry
	}

	return &roomRepository{
		rooms:          make(map[string]*domain.Room),
		lastAccess:     make(map[string]time.Time),
		capacity:       capacity,
		idleRoomExpiry: idleRoomExpiry,
		clock:          clock,
		mu:             &sync.RWMutex{},
	}
}

func (r *roomRepository) touch(roomID string) {
	r.lastAccess[roomID] = r.clock.Now()
}

func (r *roomRepository) evictIdle() {
	cutoff := r.clock.Now().Add(-r.idleRoomExpiry)
	for id, last := range r.lastAccess {
		if last.Before(cutoff) {
			delete(r.rooms, id)
			delete(r.lastAccess, id)
		}
	}
}

// Insert stores a copy of room. The room code must be free.
func (r *roomRepository) Insert(ctx context.Context, room *domain.Room) error {
	if room == nil || room.ID == "" {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictIdle()

	if _, exists := r.rooms[room.ID]; exists {
		return domain.ErrRoomAlreadyExists
	}
	if uint(len(r.rooms)) >= r.capacity {
		return fmt.Errorf("%w: capacity of %d rooms reached", domain.ErrStoreFailure, r.capacity)
	}

	r.rooms[room.ID] = room.Clone()
	r.touch(room.ID)

	return nil
}

func (r *roomRepository) FindOne(ctx context.Context, id string) (*domain.Room, error) {
	if id == "" {
		return nil, domain.ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[id]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}
	r.touch(id)

	return room.Clone(), nil
}

// Update runs mutate on a copy and stores it only if mutate succeeds.
func (r *roomRepository) Update(ctx context.Context, id string, mutate func(*domain.Room) error) (*domain.Room, error) {
	if id == "" || mutate == nil {
		return nil, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.rooms[id]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}

	working := existing.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	if working.ID != id {
		return nil, domain.ErrInvalidInput
	}

	r.rooms[id] = working
	r.touch(id)

	return working.Clone(), nil
}

func (r *roomRepository) Remove(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[id]; !exists {
		return domain.ErrRoomNotFound
	}

	delete(r.rooms, id)
	delete(r.lastAccess, id)

	return nil
}
