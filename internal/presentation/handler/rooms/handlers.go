package rooms

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/infrastructure/json"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
)

// RoomService is the part of the session engine the REST endpoints use.
type RoomService interface {
	CreateRoom(ctx context.Context) (*domain.Room, error)
	FindRoom(ctx context.Context, roomID string) (*domain.Room, error)
	Snapshot(ctx context.Context, roomID string) (*domain.Room, error)
}

type Handler struct {
	rooms  RoomService
	logger logging.Logger
}

func NewHandler(rooms RoomService, logger logging.Logger) *Handler {
	return &Handler{
		rooms:  rooms,
		logger: logger,
	}
}

// CreateRoomHandler stores an empty room. The caller claims admin over the
// websocket with the returned code and username.
func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	username, err := domain.NormalizeUsername(req.Username)
	if err != nil {
		json.WriteValidationError(w, err)
		return
	}

	room, err := h.rooms.CreateRoom(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	json.Write(w, http.StatusCreated, createRoomResponse{
		Room:     room.ID,
		Username: username,
	})
}

// JoinRoomHandler checks whether username could join the room right now.
// The websocket join repeats the check atomically.
func (h *Handler) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")

	var req joinRoomRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	username, err := domain.NormalizeUsername(req.Username)
	if err != nil {
		json.WriteValidationError(w, err)
		return
	}

	room, err := h.rooms.FindRoom(r.Context(), roomID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if room.HasUser(username) {
		json.WriteConflictError(w, "That username is already taken in this room")
		return
	}

	json.Write(w, http.StatusOK, joinRoomResponse{
		Room:     room.ID,
		Username: username,
		Users:    len(room.Users),
	})
}

func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")

	room, err := h.rooms.Snapshot(r.Context(), roomID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	json.Write(w, http.StatusOK, newRoomResponse(room))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		json.WriteNotFoundError(w, "Room not found")
	case errors.Is(err, domain.ErrStoreFailure):
		h.logger.Error(logging.IO, logging.Store, "room store failure", map[logging.ExtraKey]any{
			logging.Path:         r.URL.Path,
			logging.ErrorMessage: err.Error(),
		})
		json.WriteUnavailableError(w, err)
	default:
		h.logger.Error(logging.Internal, logging.RoomLifecycle, "room request failed", map[logging.ExtraKey]any{
			logging.Path:         r.URL.Path,
			logging.ErrorMessage: err.Error(),
		})
		json.WriteInternalError(w, err)
	}
}
