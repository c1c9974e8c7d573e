package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
)

// CreateRoom stores a fresh room under a random code. A code collision is
// retried with a new code up to the configured number of attempts.
func (e *Engine) CreateRoom(ctx context.Context) (room *domain.Room, err error) {
	ctx, span := e.startSpan(ctx, "CreateRoom", "")
	defer func() { endSpan(span, err) }()

	for attempt := 1; attempt <= e.codeAttempts; attempt++ {
		code, err := domain.GenerateRoomCode()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}

		room = domain.NewRoom(code, e.clock.Now().UTC())
		err = e.store.Insert(ctx, room)
		if errors.Is(err, domain.ErrRoomAlreadyExists) {
			e.logger.Debug(logging.Session, logging.RoomLifecycle, "room code collision", map[logging.ExtraKey]any{
				logging.RoomID: code,
				"Attempt":      attempt,
			})
			continue
		}
		if err != nil {
			return nil, err
		}

		e.metrics.RoomCreated()
		e.logger.Info(logging.Session, logging.RoomLifecycle, "room created", map[logging.ExtraKey]any{
			logging.RoomID: code,
		})
		e.publish(ctx, domain.NewRoomCreatedEvent(code))

		return room.Clone(), nil
	}

	return nil, fmt.Errorf("%w: no free room code after %d attempts", domain.ErrRoomAlreadyExists, e.codeAttempts)
}

// FindRoom returns a copy of the room. Malformed codes are reported as not found.
func (e *Engine) FindRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	if !domain.IsValidRoomCode(roomID) {
		return nil, domain.ErrRoomNotFound
	}
	return e.store.FindOne(ctx, roomID)
}

// Snapshot is a read-only view of a room for callers outside a session.
func (e *Engine) Snapshot(ctx context.Context, roomID string) (room *domain.Room, err error) {
	ctx, span := e.startSpan(ctx, "Snapshot", roomID)
	defer func() { endSpan(span, err) }()

	return e.FindRoom(ctx, roomID)
}

// DeleteRoom removes the room, invalidates its pending window and tells every
// client the room is gone.
func (e *Engine) DeleteRoom(ctx context.Context, roomID string) (err error) {
	ctx, span := e.startSpan(ctx, "DeleteRoom", roomID)
	defer func() { endSpan(span, err) }()

	unlock := e.locks.lock(roomID)
	room, err := e.deleteLocked(ctx, roomID)
	unlock()
	if err != nil {
		return err
	}

	e.publish(ctx, domain.NewRoomDissolvedEvent(roomID, room.Admin, len(room.Users)))
	return nil
}

// deleteLocked requires the room lock.
func (e *Engine) deleteLocked(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := e.store.FindOne(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := e.store.Remove(ctx, roomID); err != nil {
		return nil, err
	}

	e.cancelTimer(roomID)
	e.broadcaster.RoomDissolved(roomID)
	e.metrics.RoomDissolved()

	e.logger.Info(logging.Session, logging.RoomLifecycle, "room dissolved", map[logging.ExtraKey]any{
		logging.RoomID:   roomID,
		logging.Username: room.Admin,
		"MemberCount":    len(room.Users),
	})

	return room, nil
}
