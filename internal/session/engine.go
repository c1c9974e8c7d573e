// Package session runs buzzer rooms: the registry of live rooms, membership
// and admin authority, and the timed buzz window that picks one winner per
// round. Every mutation of a room runs under that room's lock.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
	"github.com/hilthontt/buzzer/internal/infrastructure/tracing"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultWindow       = time.Second
	DefaultCodeAttempts = 5

	publishTimeout = 5 * time.Second

	// resolveRetryDelay spaces attempts to persist a round after a store failure.
	resolveRetryDelay = 250 * time.Millisecond
)

type Options struct {
	Clock        clockwork.Clock
	Window       time.Duration
	CodeAttempts int
	Logger       logging.Logger
	Publisher    Publisher
	Metrics      Recorder
}

type Engine struct {
	store        domain.RoomStore
	broadcaster  Broadcaster
	publisher    Publisher
	metrics      Recorder
	clock        clockwork.Clock
	window       time.Duration
	codeAttempts int
	logger       logging.Logger
	tracer       trace.Tracer

	locks  *lockTable
	timers *timerSet
	rounds atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewEngine(store domain.RoomStore, broadcaster Broadcaster, opts Options) *Engine {
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.CodeAttempts <= 0 {
		opts.CodeAttempts = DefaultCodeAttempts
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Publisher == nil {
		opts.Publisher = nopPublisher{}
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}

	return &Engine{
		store:        store,
		broadcaster:  broadcaster,
		publisher:    opts.Publisher,
		metrics:      opts.Metrics,
		clock:        opts.Clock,
		window:       opts.Window,
		codeAttempts: opts.CodeAttempts,
		logger:       opts.Logger,
		tracer:       tracing.GetTracer("session"),
		locks:        newLockTable(),
		timers:       newTimerSet(),
		done:         make(chan struct{}),
	}
}

// Close cancels every pending resolution window and waits for in-flight
// resolutions to finish.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancelAllTimers()
		close(e.done)
		e.wg.Wait()
	})
}

func (e *Engine) startSpan(ctx context.Context, name, roomID string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "session."+name, trace.WithAttributes(attribute.String("room.id", roomID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// publish runs after the room lock is released. Failures are logged and never
// undo the state change that produced the event.
func (e *Engine) publish(ctx context.Context, event *domain.RoomEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn(logging.IO, logging.Publish, "failed to publish room event", map[logging.ExtraKey]any{
			logging.RoomID:       event.RoomID,
			logging.EventType:    event.EventType,
			logging.ErrorMessage: err.Error(),
		})
	}
}

// expireLocked tears down what the engine still holds for a room the store
// dropped on its own, through idle eviction or a TTL index. Caller holds the
// room lock.
func (e *Engine) expireLocked(roomID string) {
	e.cancelTimer(roomID)
	e.broadcaster.RoomDissolved(roomID)

	e.logger.Info(logging.Session, logging.RoomLifecycle, "room expired in store", map[logging.ExtraKey]any{
		logging.RoomID: roomID,
	})
}
