package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
)

// Engine is the session behaviour the gateway drives.
type Engine interface {
	ClaimAdmin(ctx context.Context, clientID, roomID, username string) (*domain.Room, error)
	JoinAsGuest(ctx context.Context, clientID, roomID, username string) (*domain.Room, error)
	Leave(ctx context.Context, roomID, username string, wasAdmin bool) error
	Buzz(ctx context.Context, roomID, username string, ts int64) error
	Unlock(ctx context.Context, roomID, actor string) error
	Reset(ctx context.Context, roomID, actor string) error
}

// EventLimiter caps inbound events per connection.
type EventLimiter interface {
	Allow(key string) (bool, time.Duration)
	Forget(key string)
}

type Config struct {
	ReadTimeout      time.Duration `koanf:"read_timeout"`
	WriteTimeout     time.Duration `koanf:"write_timeout"`
	PingInterval     time.Duration `koanf:"ping_interval"`
	MaxMessageSize   int64         `koanf:"max_message_size"`
	SendBuffer       int           `koanf:"send_buffer"`
	OperationTimeout time.Duration `koanf:"operation_timeout"`
	// MaxEventsPerSecond caps inbound events per connection. Zero disables it.
	MaxEventsPerSecond int `koanf:"max_events_per_second"`
}

func DefaultConfig() Config {
	return Config{
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   4096,
		SendBuffer:       64,
		OperationTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.ReadTimeout {
		c.PingInterval = c.ReadTimeout * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = def.OperationTimeout
	}
	return c
}

// Gateway upgrades HTTP requests to websocket sessions and translates client
// events into engine calls.
type Gateway struct {
	engine   Engine
	limiter  EventLimiter
	manager  *RoomManager
	logger   logging.Logger
	cfg      Config
	upgrader websocket.Upgrader
}

func NewGateway(engine Engine, manager *RoomManager, limiter EventLimiter, logger logging.Logger, cfg Config) *Gateway {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gateway{
		engine:  engine,
		limiter: limiter,
		manager: manager,
		logger:  logger,
		cfg:     cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP blocks for the lifetime of the connection.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn(logging.WebSocket, logging.Connection, "websocket upgrade failed", map[logging.ExtraKey]any{
			logging.ClientIp:     r.RemoteAddr,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	cl := NewClient(conn, uuid.NewString(), g.cfg)
	g.manager.Register(cl)

	g.logger.Debug(logging.WebSocket, logging.Connection, "client connected", map[logging.ExtraKey]any{
		logging.ClientID: cl.ID,
		logging.ClientIp: r.RemoteAddr,
	})

	go cl.writePump(g.cfg, func(err error) {
		g.logger.Debug(logging.WebSocket, logging.Connection, "ws write failed", map[logging.ExtraKey]any{
			logging.ClientID:     cl.ID,
			logging.ErrorMessage: err.Error(),
		})
	})

	cl.readPump(g.cfg,
		func(raw []byte) { g.handle(cl, raw) },
		func(err error) {
			g.logger.Warn(logging.WebSocket, logging.Connection, "ws read error", map[logging.ExtraKey]any{
				logging.ClientID:     cl.ID,
				logging.ErrorMessage: err.Error(),
			})
		},
	)

	g.disconnect(cl)
}

func (g *Gateway) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.cfg.OperationTimeout)
}

func (g *Gateway) handle(cl *Client, raw []byte) {
	if g.limiter != nil {
		if ok, retryIn := g.limiter.Allow(cl.ID); !ok {
			g.logger.Debug(logging.WebSocket, logging.RateLimiting, "inbound event rate limited", map[logging.ExtraKey]any{
				logging.ClientID: cl.ID,
				"RetryIn":        retryIn.String(),
			})
			g.reply(cl, NewError("", CodeRateLimited, "Too many events, slow down", true))
			return
		}
	}

	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.reply(cl, NewError("", CodeBadMessage, "message is not a valid event envelope", false))
		return
	}

	switch msg.Type {
	case CreateRoomEvent:
		g.handleJoin(cl, msg, true)
	case JoinRoomEvent:
		g.handleJoin(cl, msg, false)
	case BuzzEvent:
		g.handleBuzz(cl, msg)
	case UnlockBuzzerEvent:
		g.handleAdmin(cl, g.engine.Unlock)
	case ResetBuzzerEvent:
		g.handleAdmin(cl, g.engine.Reset)
	default:
		g.reply(cl, NewError(msg.RoomID, CodeUnknownEvent, "unknown event type "+msg.Type, false))
	}
}

func (g *Gateway) handleJoin(cl *Client, msg inboundMessage, asAdmin bool) {
	var p JoinPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		g.reply(cl, NewJoinFailure(msg.RoomID, CodeBadMessage, "join payload must carry username and room"))
		return
	}
	if p.Room == "" {
		p.Room = msg.RoomID
	}
	if cl.joined() {
		g.reply(cl, NewJoinFailure(p.Room, CodeAlreadyJoined, "connection already belongs to a room"))
		return
	}

	ctx, cancel := g.opContext()
	defer cancel()

	var (
		room *domain.Room
		err  error
	)
	if asAdmin {
		room, err = g.engine.ClaimAdmin(ctx, cl.ID, p.Room, p.Username)
	} else {
		room, err = g.engine.JoinAsGuest(ctx, cl.ID, p.Room, p.Username)
	}
	if err != nil {
		code, message := joinFailureFor(err)
		g.logger.Debug(logging.WebSocket, logging.Inbound, "join rejected", map[logging.ExtraKey]any{
			logging.ClientID:     cl.ID,
			logging.RoomID:       p.Room,
			logging.ErrorMessage: err.Error(),
		})
		if code == CodeInternal {
			g.reply(cl, NewError(p.Room, CodeStoreFailure, message, true))
			return
		}
		g.reply(cl, NewJoinFailure(p.Room, code, message))
		return
	}

	username, _ := domain.NormalizeUsername(p.Username)
	cl.setMembership(room.ID, username, asAdmin)
}

func joinFailureFor(err error) (code, message string) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return CodeRoomNotFound, "Room not found"
	case errors.Is(err, domain.ErrUsernameTaken):
		return CodeUsernameTaken, "Username already taken"
	case errors.Is(err, domain.ErrInvalidUsername):
		return CodeInvalidUsername, err.Error()
	case errors.Is(err, domain.ErrAdminAlreadyClaimed):
		return CodeAdminClaimed, "Room already has an admin"
	default:
		return CodeInternal, "Could not join the room, please retry"
	}
}

func (g *Gateway) handleBuzz(cl *Client, msg inboundMessage) {
	roomID, username, _ := cl.Membership()
	if roomID == "" {
		g.reply(cl, NewError(msg.RoomID, CodeNotJoined, "join a room before buzzing", false))
		return
	}

	var p BuzzPayload
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			g.reply(cl, NewError(roomID, CodeBadMessage, "buzz payload must carry a numeric time", false))
			return
		}
	}
	ts := time.Now().UnixMilli()
	if p.Time != nil {
		ts = *p.Time
	}

	ctx, cancel := g.opContext()
	defer cancel()

	err := g.engine.Buzz(ctx, roomID, username, ts)
	switch {
	case err == nil, errors.Is(err, domain.ErrInvalidBuzz):
		// dropped buzzes are silent
	case errors.Is(err, domain.ErrRoomNotFound):
		g.reply(cl, NewError(roomID, CodeRoomNotFound, "Room not found", false))
	default:
		g.replyInternal(cl, roomID, err)
	}
}

func (g *Gateway) handleAdmin(cl *Client, op func(ctx context.Context, roomID, actor string) error) {
	roomID, username, _ := cl.Membership()
	if roomID == "" {
		g.reply(cl, NewError("", CodeNotJoined, "join a room first", false))
		return
	}

	ctx, cancel := g.opContext()
	defer cancel()

	err := op(ctx, roomID, username)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotAdmin):
		g.reply(cl, NewError(roomID, CodeNotAdmin, "only the room admin can do that", false))
	case errors.Is(err, domain.ErrRoomNotFound):
		g.reply(cl, NewError(roomID, CodeRoomNotFound, "Room not found", false))
	default:
		g.replyInternal(cl, roomID, err)
	}
}

// disconnect runs the leave for this connection exactly once.
func (g *Gateway) disconnect(cl *Client) {
	cl.leaveOnce.Do(func() {
		roomID, username, isAdmin := cl.Membership()
		attached := roomID != "" && g.manager.RoomOf(cl.ID) == roomID

		g.manager.Unregister(cl)
		if g.limiter != nil {
			g.limiter.Forget(cl.ID)
		}

		g.logger.Debug(logging.WebSocket, logging.Connection, "client disconnected", map[logging.ExtraKey]any{
			logging.ClientID: cl.ID,
			logging.RoomID:   roomID,
			logging.Username: username,
		})

		if !attached {
			return
		}

		ctx, cancel := g.opContext()
		defer cancel()

		if err := g.engine.Leave(ctx, roomID, username, isAdmin); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			g.logger.Error(logging.WebSocket, logging.Connection, "failed to leave room on disconnect", map[logging.ExtraKey]any{
				logging.ClientID:     cl.ID,
				logging.RoomID:       roomID,
				logging.Username:     username,
				logging.ErrorMessage: err.Error(),
			})
		}
	})
}

func (g *Gateway) reply(cl *Client, msg *WSMessage) {
	g.manager.SendTo(cl.ID, msg)
}

func (g *Gateway) replyInternal(cl *Client, roomID string, err error) {
	g.logger.Error(logging.WebSocket, logging.Inbound, "room operation failed", map[logging.ExtraKey]any{
		logging.ClientID:     cl.ID,
		logging.RoomID:       roomID,
		logging.ErrorMessage: err.Error(),
	})
	g.reply(cl, NewError(roomID, CodeStoreFailure, "Temporary failure, please retry", true))
}
