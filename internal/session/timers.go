package session

import (
	"sync"
	"time"

	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
	"github.com/jonboulle/clockwork"
)

// ticket is one armed resolution window. A fired timer only resolves the
// room if its round still matches the room's current ticket.
type ticket struct {
	round    uint64
	openedAt time.Time
	timer    clockwork.Timer
	stop     chan struct{}
}

type timerSet struct {
	mu      sync.Mutex
	tickets map[string]*ticket
	closed  bool
}

func newTimerSet() *timerSet {
	return &timerSet{tickets: make(map[string]*ticket)}
}

// armTimer opens a resolution window for roomID. Caller holds the room lock.
// It reports false once the engine is closed.
func (e *Engine) armTimer(roomID string) (uint64, bool) {
	return e.scheduleResolve(roomID, e.window, e.clock.Now())
}

// scheduleResolve arms a ticket that fires after delay. openedAt is carried
// across retries so latency covers the whole window.
func (e *Engine) scheduleResolve(roomID string, delay time.Duration, openedAt time.Time) (uint64, bool) {
	e.timers.mu.Lock()
	if e.timers.closed {
		e.timers.mu.Unlock()
		return 0, false
	}

	round := e.rounds.Add(1)
	tk := &ticket{
		round:    round,
		openedAt: openedAt,
		timer:    e.clock.NewTimer(delay),
		stop:     make(chan struct{}),
	}
	if existing, ok := e.timers.tickets[roomID]; ok {
		existing.cancel()
	}
	e.timers.tickets[roomID] = tk
	e.wg.Add(1)
	e.timers.mu.Unlock()

	go func() {
		defer e.wg.Done()

		select {
		case <-tk.timer.Chan():
			e.resolve(roomID, round)
		case <-tk.stop:
		case <-e.done:
			stopAndDrainTimer(tk.timer)
		}
	}()

	e.logger.Debug(logging.Session, logging.BuzzerRound, "resolution window opened", map[logging.ExtraKey]any{
		logging.RoomID: roomID,
		logging.Round:  round,
		"Delay":        delay.String(),
	})

	return round, true
}

// takeTicket removes and returns the room's ticket if it belongs to round.
func (e *Engine) takeTicket(roomID string, round uint64) (*ticket, bool) {
	e.timers.mu.Lock()
	defer e.timers.mu.Unlock()

	tk, ok := e.timers.tickets[roomID]
	if !ok || tk.round != round {
		return nil, false
	}
	delete(e.timers.tickets, roomID)
	return tk, true
}

func (e *Engine) cancelTimer(roomID string) {
	e.timers.mu.Lock()
	defer e.timers.mu.Unlock()

	if tk, ok := e.timers.tickets[roomID]; ok {
		tk.cancel()
		delete(e.timers.tickets, roomID)

		e.logger.Debug(logging.Session, logging.BuzzerRound, "resolution window cancelled", map[logging.ExtraKey]any{
			logging.RoomID: roomID,
			logging.Round:  tk.round,
		})
	}
}

// cancelAllTimers also stops any further window from being armed.
func (e *Engine) cancelAllTimers() {
	e.timers.mu.Lock()
	defer e.timers.mu.Unlock()

	e.timers.closed = true

	for roomID, tk := range e.timers.tickets {
		tk.cancel()
		delete(e.timers.tickets, roomID)
	}
}

func (e *Engine) pendingTimers() int {
	e.timers.mu.Lock()
	defer e.timers.mu.Unlock()
	return len(e.timers.tickets)
}

func (tk *ticket) cancel() {
	stopAndDrainTimer(tk.timer)
	close(tk.stop)
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
