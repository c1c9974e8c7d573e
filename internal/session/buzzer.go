package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
	"github.com/hilthontt/buzzer/internal/infrastructure/metrics"
)

// Buzz records username's buzz at the client timestamp ts. The first buzz of a
// round opens the resolution window.
func (e *Engine) Buzz(ctx context.Context, roomID, username string, ts int64) (err error) {
	ctx, span := e.startSpan(ctx, "Buzz", roomID)
	defer func() { endSpan(span, err) }()

	var opened bool

	unlock := e.locks.lock(roomID)
	room, err := e.store.Update(ctx, roomID, func(r *domain.Room) error {
		if !r.HasUser(username) {
			return fmt.Errorf("%w: %s is not a member", domain.ErrInvalidBuzz, username)
		}
		var err error
		opened, err = r.Buzzer.Accept(username, ts)
		return err
	})
	if err == nil {
		e.broadcaster.BuzzerUpdated(roomID, room.Buzzer)
		if opened {
			if _, armed := e.armTimer(roomID); !armed {
				e.logger.Warn(logging.Session, logging.BuzzerRound, "engine closed, window not armed", map[logging.ExtraKey]any{
					logging.RoomID: roomID,
				})
			}
		}
	} else if errors.Is(err, domain.ErrRoomNotFound) && domain.IsValidRoomCode(roomID) {
		e.expireLocked(roomID)
	}
	unlock()

	if errors.Is(err, domain.ErrInvalidBuzz) {
		e.metrics.Buzz(metrics.BuzzRejected)
		e.logger.Debug(logging.Session, logging.BuzzerRound, "buzz dropped", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.Username:     username,
			logging.ErrorMessage: err.Error(),
		})
		return err
	}
	if err != nil {
		return err
	}

	e.metrics.Buzz(metrics.BuzzAccepted)
	return nil
}

// resolve closes the window armed for round. Stale rounds are ignored.
func (e *Engine) resolve(roomID string, round uint64) {
	ctx, span := e.startSpan(context.Background(), "Resolve", roomID)
	var err error
	defer func() { endSpan(span, err) }()

	unlock := e.locks.lock(roomID)

	tk, ok := e.takeTicket(roomID, round)
	if !ok {
		unlock()
		e.logger.Debug(logging.Session, logging.BuzzerRound, "stale resolution ignored", map[logging.ExtraKey]any{
			logging.RoomID: roomID,
			logging.Round:  round,
		})
		return
	}

	var (
		winner     domain.Buzz
		contenders int
	)
	room, err := e.store.Update(ctx, roomID, func(r *domain.Room) error {
		contenders = len(r.Buzzer.CurrentBuzz)
		var err error
		winner, err = r.Buzzer.Resolve()
		return err
	})
	retried := false
	switch {
	case err == nil:
		e.broadcaster.BuzzerUpdated(roomID, room.Buzzer)
	case errors.Is(err, domain.ErrStoreFailure):
		// The window stays open until the round is persisted.
		_, retried = e.scheduleResolve(roomID, resolveRetryDelay, tk.openedAt)
	case errors.Is(err, domain.ErrRoomNotFound):
		e.expireLocked(roomID)
	}
	unlock()

	if err != nil {
		e.logger.Error(logging.Session, logging.BuzzerRound, "failed to resolve round", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.Round:        round,
			logging.ErrorMessage: err.Error(),
			"Retrying":           retried,
		})
		return
	}

	e.metrics.RoundResolved(e.clock.Since(tk.openedAt))
	e.logger.Info(logging.Session, logging.BuzzerRound, "round resolved", map[logging.ExtraKey]any{
		logging.RoomID: roomID,
		logging.Round:  round,
		logging.Winner: winner.Username,
		"Contenders":   contenders,
	})
	e.publish(ctx, domain.NewRoundResolvedEvent(roomID, winner, contenders))
}

// Unlock reopens the buzzer for the next round. Pending buzzes and the
// winners list are kept and no window is armed.
func (e *Engine) Unlock(ctx context.Context, roomID, actor string) (err error) {
	ctx, span := e.startSpan(ctx, "Unlock", roomID)
	defer func() { endSpan(span, err) }()

	unlock := e.locks.lock(roomID)
	room, err := e.store.Update(ctx, roomID, func(r *domain.Room) error {
		if !r.IsAdmin(actor) {
			return domain.ErrNotAdmin
		}
		r.Buzzer.Unlock()
		return nil
	})
	if err == nil {
		e.broadcaster.BuzzerUpdated(roomID, room.Buzzer)
	} else if errors.Is(err, domain.ErrRoomNotFound) && domain.IsValidRoomCode(roomID) {
		e.expireLocked(roomID)
	}
	unlock()
	if err != nil {
		return err
	}

	e.logger.Debug(logging.Session, logging.BuzzerRound, "buzzer unlocked", map[logging.ExtraKey]any{
		logging.RoomID: roomID,
	})
	e.publish(ctx, domain.NewBuzzerUnlockedEvent(roomID))

	return nil
}

// Reset returns the buzzer to its initial state and invalidates any open
// window.
func (e *Engine) Reset(ctx context.Context, roomID, actor string) (err error) {
	ctx, span := e.startSpan(ctx, "Reset", roomID)
	defer func() { endSpan(span, err) }()

	var rounds int

	unlock := e.locks.lock(roomID)
	room, err := e.store.Update(ctx, roomID, func(r *domain.Room) error {
		if !r.IsAdmin(actor) {
			return domain.ErrNotAdmin
		}
		rounds = len(r.Buzzer.Buzzed)
		r.Buzzer.Reset()
		return nil
	})
	if err == nil {
		e.cancelTimer(roomID)
		e.broadcaster.BuzzerUpdated(roomID, room.Buzzer)
	} else if errors.Is(err, domain.ErrRoomNotFound) && domain.IsValidRoomCode(roomID) {
		e.expireLocked(roomID)
	}
	unlock()
	if err != nil {
		return err
	}

	e.logger.Debug(logging.Session, logging.BuzzerRound, "buzzer reset", map[logging.ExtraKey]any{
		logging.RoomID: roomID,
		"Rounds":       rounds,
	})
	e.publish(ctx, domain.NewBuzzerResetEvent(roomID, rounds))

	return nil
}
