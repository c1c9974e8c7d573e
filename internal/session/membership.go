package session

import (
	"context"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
)

// ClaimAdmin makes username the room's admin and first member. The name is
// not checked against existing members.
func (e *Engine) ClaimAdmin(ctx context.Context, clientID, roomID, rawUsername string) (room *domain.Room, err error) {
	ctx, span := e.startSpan(ctx, "ClaimAdmin", roomID)
	defer func() { endSpan(span, err) }()

	username, err := e.prepareJoin(roomID, rawUsername)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(roomID)
	room, err = e.store.Update(ctx, roomID, func(r *domain.Room) error {
		return r.ClaimAdmin(username)
	})
	if err == nil {
		e.broadcaster.Welcome(clientID, room)
		e.broadcaster.UsersUpdated(roomID, room.Users)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	e.logger.Info(logging.Session, logging.Membership, "admin claimed room", map[logging.ExtraKey]any{
		logging.RoomID:   roomID,
		logging.Username: username,
		logging.ClientID: clientID,
	})
	e.publish(ctx, domain.NewAdminClaimedEvent(roomID, username))

	return room, nil
}

// JoinAsGuest adds username to the room. A name already present rejects the
// whole join.
func (e *Engine) JoinAsGuest(ctx context.Context, clientID, roomID, rawUsername string) (room *domain.Room, err error) {
	ctx, span := e.startSpan(ctx, "JoinAsGuest", roomID)
	defer func() { endSpan(span, err) }()

	username, err := e.prepareJoin(roomID, rawUsername)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(roomID)
	room, err = e.store.Update(ctx, roomID, func(r *domain.Room) error {
		return r.AddGuest(username)
	})
	if err == nil {
		e.broadcaster.Welcome(clientID, room)
		e.broadcaster.UsersUpdated(roomID, room.Users)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	e.logger.Info(logging.Session, logging.Membership, "guest joined room", map[logging.ExtraKey]any{
		logging.RoomID:   roomID,
		logging.Username: username,
		logging.ClientID: clientID,
	})
	e.publish(ctx, domain.NewMemberJoinedEvent(roomID, username, len(room.Users)))

	return room, nil
}

// Leave handles a member's connection ending. The admin leaving dissolves the
// room; a guest leaving only drops that guest.
func (e *Engine) Leave(ctx context.Context, roomID, username string, wasAdmin bool) (err error) {
	ctx, span := e.startSpan(ctx, "Leave", roomID)
	defer func() { endSpan(span, err) }()

	if wasAdmin {
		unlock := e.locks.lock(roomID)
		room, err := e.deleteLocked(ctx, roomID)
		unlock()
		if err != nil {
			return err
		}

		e.publish(ctx, domain.NewRoomDissolvedEvent(roomID, room.Admin, len(room.Users)))
		return nil
	}

	unlock := e.locks.lock(roomID)
	room, err := e.store.Update(ctx, roomID, func(r *domain.Room) error {
		return r.RemoveUser(username)
	})
	if err == nil {
		e.broadcaster.UsersUpdated(roomID, room.Users)
	}
	unlock()
	if err != nil {
		return err
	}

	e.logger.Info(logging.Session, logging.Membership, "guest left room", map[logging.ExtraKey]any{
		logging.RoomID:   roomID,
		logging.Username: username,
	})
	e.publish(ctx, domain.NewMemberLeftEvent(roomID, username, len(room.Users)))

	return nil
}

func (e *Engine) prepareJoin(roomID, rawUsername string) (string, error) {
	if !domain.IsValidRoomCode(roomID) {
		return "", domain.ErrRoomNotFound
	}
	return domain.NormalizeUsername(rawUsername)
}
