package domain

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/hilthontt/buzzer/internal/infrastructure/validate"
)

const (
	RoomCodeLength = 6

	roomCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var (
	charsetLen = big.NewInt(int64(len(roomCodeChars)))

	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomAlreadyExists   = errors.New("room already exists")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrInvalidBuzz         = errors.New("buzz rejected")
	ErrNotAdmin            = errors.New("only the room admin can do that")
	ErrAdminAlreadyClaimed = errors.New("room admin already claimed")
	ErrMemberNotFound      = errors.New("member not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrStoreFailure        = errors.New("room store failure")
)

type Room struct {
	ID        string    `json:"id" bson:"_id"`
	Users     []string  `json:"users" bson:"users"`
	Admin     string    `json:"admin" bson:"admin"`
	Buzzer    Buzzer    `json:"buzzer" bson:"buzzer"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// RoomStore is the persistence collaborator of the session engine. Calls do
// not compose atomically; callers serialize access per room.
type RoomStore interface {
	Insert(ctx context.Context, room *Room) error
	FindOne(ctx context.Context, id string) (*Room, error)
	// Update applies mutate to the stored room and persists the result. If
	// mutate returns an error nothing is written.
	Update(ctx context.Context, id string, mutate func(*Room) error) (*Room, error)
	Remove(ctx context.Context, id string) error
}

func NewRoom(id string, now time.Time) *Room {
	return &Room{
		ID:        id,
		Users:     []string{},
		Buzzer:    NewBuzzer(),
		CreatedAt: now,
	}
}

func (r *Room) HasUser(username string) bool {
	return slices.Contains(r.Users, username)
}

func (r *Room) IsAdmin(username string) bool {
	return r.Admin != "" && r.Admin == username
}

// ClaimAdmin appends username and makes it the admin. Existing users are not
// checked for the name.
func (r *Room) ClaimAdmin(username string) error {
	if r.Admin != "" {
		return ErrAdminAlreadyClaimed
	}
	r.Users = append(r.Users, username)
	r.Admin = username
	return nil
}

func (r *Room) AddGuest(username string) error {
	if r.HasUser(username) {
		return ErrUsernameTaken
	}
	r.Users = append(r.Users, username)
	return nil
}

// RemoveUser keeps the display order of the remaining users.
func (r *Room) RemoveUser(username string) error {
	idx := slices.Index(r.Users, username)
	if idx == -1 {
		return ErrMemberNotFound
	}
	r.Users = slices.Delete(r.Users, idx, idx+1)
	return nil
}

func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cpy := *r
	cpy.Users = slices.Clone(r.Users)
	if cpy.Users == nil {
		cpy.Users = []string{}
	}
	cpy.Buzzer = r.Buzzer.Clone()
	return &cpy
}

func GenerateRoomCode() (string, error) {
	var sb strings.Builder
	sb.Grow(RoomCodeLength)

	for i := 0; i < RoomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		sb.WriteByte(roomCodeChars[n.Int64()])
	}

	return sb.String(), nil
}

var validateRoomCode = validate.Field("room code",
	validate.Length(RoomCodeLength),
	validate.Letters(),
)

func IsValidRoomCode(code string) bool {
	return validateRoomCode(code) == nil
}
