package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/infrastructure/repository"
	"github.com/jonboulle/clockwork"
)

const testRoom = "ABCDEF"

type recordedEvent struct {
	kind     string
	roomID   string
	clientID string
	users    []string
	buzzer   domain.Buzzer
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) record(ev recordedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBroadcaster) Welcome(clientID string, room *domain.Room) {
	b.record(recordedEvent{kind: "welcome", roomID: room.ID, clientID: clientID, users: slices.Clone(room.Users)})
}

func (b *recordingBroadcaster) UsersUpdated(roomID string, users []string) {
	b.record(recordedEvent{kind: "users", roomID: roomID, users: slices.Clone(users)})
}

func (b *recordingBroadcaster) BuzzerUpdated(roomID string, buzzer domain.Buzzer) {
	b.record(recordedEvent{kind: "buzzer", roomID: roomID, buzzer: buzzer.Clone()})
}

func (b *recordingBroadcaster) RoomDissolved(roomID string) {
	b.record(recordedEvent{kind: "dissolve", roomID: roomID})
}

func (b *recordingBroadcaster) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.kind)
	}
	return out
}

func (b *recordingBroadcaster) count(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.kind == kind {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RoomEventType
}

func (p *recordingPublisher) Publish(_ context.Context, ev *domain.RoomEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev.EventType)
	return nil
}

func (p *recordingPublisher) has(t domain.RoomEventType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Contains(p.events, t)
}

func (p *recordingPublisher) waitFor(t *testing.T, want domain.RoomEventType) {
	t.Helper()
	waitUntil(t, func() bool { return p.has(want) }, "event "+string(want)+" was not published")
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fixture struct {
	engine      *Engine
	store       domain.RoomStore
	clock       *clockwork.FakeClock
	broadcaster *recordingBroadcaster
	publisher   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, repository.NewRoomRepository(100, time.Hour))
}

func newFixtureWithStore(t *testing.T, store domain.RoomStore) *fixture {
	t.Helper()

	f := &fixture{
		store:       store,
		clock:       clockwork.NewFakeClock(),
		broadcaster: &recordingBroadcaster{},
		publisher:   &recordingPublisher{},
	}
	f.engine = NewEngine(store, f.broadcaster, Options{
		Clock:     f.clock,
		Window:    time.Second,
		Publisher: f.publisher,
	})
	t.Cleanup(f.engine.Close)

	return f
}

// seedRoom creates testRoom with host as admin and the given guests.
func (f *fixture) seedRoom(t *testing.T, guests ...string) {
	t.Helper()
	ctx := context.Background()

	if err := f.store.Insert(ctx, domain.NewRoom(testRoom, f.clock.Now())); err != nil {
		t.Fatalf("insert room: %v", err)
	}
	if _, err := f.engine.ClaimAdmin(ctx, "c-host", testRoom, "host"); err != nil {
		t.Fatalf("claim admin: %v", err)
	}
	for _, g := range guests {
		if _, err := f.engine.JoinAsGuest(ctx, "c-"+g, testRoom, g); err != nil {
			t.Fatalf("join %s: %v", g, err)
		}
	}
}

func (f *fixture) buzz(t *testing.T, username string, ts int64) {
	t.Helper()
	if err := f.engine.Buzz(context.Background(), testRoom, username, ts); err != nil {
		t.Fatalf("buzz %s: %v", username, err)
	}
}

// fireWindow advances the fake clock past the open window and waits for the
// round to resolve.
func (f *fixture) fireWindow(t *testing.T) *domain.Room {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("no resolution window armed: %v", err)
	}
	f.clock.Advance(f.engine.window)

	return f.waitForRoom(t, func(r *domain.Room) bool {
		return r.Buzzer.Locked && len(r.Buzzer.CurrentBuzz) == 0
	})
}

func (f *fixture) waitForRoom(t *testing.T, cond func(*domain.Room) bool) *domain.Room {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		room, err := f.engine.Snapshot(context.Background(), testRoom)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if cond(room) {
			return room
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met, room state: %+v", room.Buzzer)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScenarioFirstBuzzWins(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice", "bob")
	ctx := context.Background()

	f.buzz(t, "alice", 0)
	f.clock.Advance(500 * time.Millisecond)
	f.buzz(t, "bob", 500)

	room, _ := f.engine.Snapshot(ctx, testRoom)
	if room.Buzzer.Locked || len(room.Buzzer.CurrentBuzz) != 2 {
		t.Fatalf("expected open window with two buzzes, got %+v", room.Buzzer)
	}

	f.clock.Advance(500 * time.Millisecond)
	room = f.waitForRoom(t, func(r *domain.Room) bool { return r.Buzzer.Locked })

	want := domain.Buzz{Username: "alice", Time: 0}
	if room.Buzzer.BuzzWinner == nil || *room.Buzzer.BuzzWinner != want {
		t.Fatalf("expected winner %+v, got %+v", want, room.Buzzer.BuzzWinner)
	}
	if len(room.Buzzer.Buzzed) != 1 || room.Buzzer.Buzzed[0] != want {
		t.Fatalf("expected buzzed=[alice], got %+v", room.Buzzer.Buzzed)
	}
	if len(room.Buzzer.CurrentBuzz) != 0 {
		t.Fatalf("expected empty currentBuzz, got %+v", room.Buzzer.CurrentBuzz)
	}

	if err := f.engine.Buzz(ctx, testRoom, "alice", 2000); !errors.Is(err, domain.ErrInvalidBuzz) {
		t.Fatalf("expected alice's second buzz dropped, got %v", err)
	}

	if err := f.engine.Reset(ctx, testRoom, "host"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	room, _ = f.engine.Snapshot(ctx, testRoom)
	if room.Buzzer.Locked || room.Buzzer.BuzzWinner != nil || len(room.Buzzer.Buzzed) != 0 || len(room.Buzzer.CurrentBuzz) != 0 {
		t.Fatalf("expected initial buzzer after reset, got %+v", room.Buzzer)
	}

	f.buzz(t, "alice", 3000)

	f.publisher.waitFor(t, domain.EventRoundResolved)
	f.publisher.waitFor(t, domain.EventBuzzerReset)
}

func TestMinimumTimestampWinsRegardlessOfArrival(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice", "bob", "carol")

	f.buzz(t, "alice", 300)
	f.buzz(t, "bob", 100)
	f.buzz(t, "carol", 200)

	room := f.fireWindow(t)
	if room.Buzzer.BuzzWinner.Username != "bob" {
		t.Fatalf("expected bob to win, got %+v", room.Buzzer.BuzzWinner)
	}
}

func TestTieResolvesByArrivalOrder(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice", "bob")

	f.buzz(t, "bob", 100)
	f.buzz(t, "alice", 100)

	room := f.fireWindow(t)
	if room.Buzzer.BuzzWinner.Username != "bob" {
		t.Fatalf("expected bob (first to arrive) to win the tie, got %+v", room.Buzzer.BuzzWinner)
	}
}

func TestBuzzRejections(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice")
	ctx := context.Background()

	f.buzz(t, "alice", 10)

	tests := []struct {
		name string
		user string
		want error
	}{
		{name: "already pending", user: "alice", want: domain.ErrInvalidBuzz},
		{name: "not a member", user: "mallory", want: domain.ErrInvalidBuzz},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.engine.Buzz(ctx, testRoom, tt.user, 20); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if err := f.engine.Buzz(ctx, "ZZZZZZ", "alice", 20); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}

	room := f.fireWindow(t)
	if err := f.engine.Buzz(ctx, testRoom, "host", 30); !errors.Is(err, domain.ErrInvalidBuzz) {
		t.Fatalf("expected locked buzzer to drop buzz, got %v", err)
	}
	if len(room.Buzzer.Buzzed) != 1 {
		t.Fatalf("expected exactly one resolved round, got %+v", room.Buzzer.Buzzed)
	}
}

func TestResetInvalidatesPendingWindow(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice")
	ctx := context.Background()

	f.buzz(t, "alice", 10)
	if f.engine.pendingTimers() != 1 {
		t.Fatalf("expected one armed window, got %d", f.engine.pendingTimers())
	}

	if err := f.engine.Reset(ctx, testRoom, "host"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if f.engine.pendingTimers() != 0 {
		t.Fatalf("expected reset to cancel the window, got %d pending", f.engine.pendingTimers())
	}

	f.clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)

	room, _ := f.engine.Snapshot(ctx, testRoom)
	if room.Buzzer.Locked || len(room.Buzzer.Buzzed) != 0 {
		t.Fatalf("stale window resolved after reset: %+v", room.Buzzer)
	}

	f.buzz(t, "alice", 20)
	room = f.fireWindow(t)
	if len(room.Buzzer.Buzzed) != 1 || room.Buzzer.Buzzed[0].Time != 20 {
		t.Fatalf("expected new round resolved with alice@20, got %+v", room.Buzzer.Buzzed)
	}
}

func TestStaleTicketIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice")

	f.buzz(t, "alice", 10)
	f.engine.resolve(testRoom, 9999)

	room, _ := f.engine.Snapshot(context.Background(), testRoom)
	if room.Buzzer.Locked || len(room.Buzzer.CurrentBuzz) != 1 {
		t.Fatalf("stale round number resolved the room: %+v", room.Buzzer)
	}

	room = f.fireWindow(t)
	if room.Buzzer.BuzzWinner.Username != "alice" {
		t.Fatalf("expected alice to win, got %+v", room.Buzzer.BuzzWinner)
	}
}

func TestUnlockKeepsWinnersOut(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice", "bob")
	ctx := context.Background()

	f.buzz(t, "alice", 10)
	f.fireWindow(t)

	if err := f.engine.Unlock(ctx, testRoom, "host"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	room, _ := f.engine.Snapshot(ctx, testRoom)
	if room.Buzzer.Locked || room.Buzzer.BuzzWinner != nil || len(room.Buzzer.Buzzed) != 1 {
		t.Fatalf("unexpected buzzer after unlock: %+v", room.Buzzer)
	}
	if f.engine.pendingTimers() != 0 {
		t.Fatal("unlock must not arm a window")
	}

	if err := f.engine.Buzz(ctx, testRoom, "alice", 20); !errors.Is(err, domain.ErrInvalidBuzz) {
		t.Fatalf("expected previous winner to be dropped, got %v", err)
	}

	f.buzz(t, "bob", 30)
	room = f.fireWindow(t)
	if room.Buzzer.BuzzWinner.Username != "bob" || len(room.Buzzer.Buzzed) != 2 {
		t.Fatalf("expected bob to win round two, got %+v", room.Buzzer)
	}
}

func TestAdminOnlyOperations(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice")
	ctx := context.Background()

	if err := f.engine.Unlock(ctx, testRoom, "alice"); !errors.Is(err, domain.ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin on unlock, got %v", err)
	}
	if err := f.engine.Reset(ctx, testRoom, "alice"); !errors.Is(err, domain.ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin on reset, got %v", err)
	}
	if err := f.engine.Reset(ctx, "ZZZZZZ", "host"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestMembership(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice")
	ctx := context.Background()

	if _, err := f.engine.ClaimAdmin(ctx, "c-x", testRoom, "other"); !errors.Is(err, domain.ErrAdminAlreadyClaimed) {
		t.Fatalf("expected ErrAdminAlreadyClaimed, got %v", err)
	}

	welcomes := f.broadcaster.count("welcome")
	if _, err := f.engine.JoinAsGuest(ctx, "c-dup", testRoom, "alice"); !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if f.broadcaster.count("welcome") != welcomes {
		t.Fatal("rejected join must not be welcomed")
	}

	if _, err := f.engine.JoinAsGuest(ctx, "c-z", "ZZZZZZ", "zed"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if _, err := f.engine.JoinAsGuest(ctx, "c-z", "bad", "zed"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected malformed code to be not found, got %v", err)
	}
	if _, err := f.engine.JoinAsGuest(ctx, "c-z", testRoom, "   "); !errors.Is(err, domain.ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}

	room, err := f.engine.JoinAsGuest(ctx, "c-bob", testRoom, " bob ")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if !slices.Equal(room.Users, []string{"host", "alice", "bob"}) {
		t.Fatalf("unexpected users %v", room.Users)
	}

	kinds := f.broadcaster.kinds()
	if got := kinds[len(kinds)-2:]; !slices.Equal(got, []string{"welcome", "users"}) {
		t.Fatalf("expected welcome before users update, got %v", got)
	}
}

func TestGuestLeaveKeepsRoom(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice", "bob")
	ctx := context.Background()

	if err := f.engine.Leave(ctx, testRoom, "alice", false); err != nil {
		t.Fatalf("leave: %v", err)
	}
	room, err := f.engine.Snapshot(ctx, testRoom)
	if err != nil {
		t.Fatalf("room should survive a guest leaving: %v", err)
	}
	if !slices.Equal(room.Users, []string{"host", "bob"}) {
		t.Fatalf("unexpected users %v", room.Users)
	}
	if f.broadcaster.count("dissolve") != 0 {
		t.Fatal("guest leave must not dissolve the room")
	}
}

func TestAdminLeaveDissolvesRoom(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice")
	ctx := context.Background()

	f.buzz(t, "alice", 10)

	if err := f.engine.Leave(ctx, testRoom, "host", true); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := f.engine.FindRoom(ctx, testRoom); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room deleted, got %v", err)
	}
	if f.broadcaster.count("dissolve") != 1 {
		t.Fatalf("expected one dissolve broadcast, got %v", f.broadcaster.kinds())
	}
	if f.engine.pendingTimers() != 0 {
		t.Fatal("expected pending window cancelled with the room")
	}
	if !f.publisher.has(domain.EventRoomDissolved) {
		t.Fatal("expected a dissolved event")
	}

	if err := f.engine.Leave(ctx, testRoom, "alice", false); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound leaving a dissolved room, got %v", err)
	}
}

type collidingStore struct {
	domain.RoomStore
	mu        sync.Mutex
	failuresN int
	attempts  int
}

func (s *collidingStore) Insert(ctx context.Context, room *domain.Room) error {
	s.mu.Lock()
	s.attempts++
	fail := s.attempts <= s.failuresN
	s.mu.Unlock()
	if fail {
		return domain.ErrRoomAlreadyExists
	}
	return s.RoomStore.Insert(ctx, room)
}

func TestCreateRoomRetriesOnCollision(t *testing.T) {
	store := &collidingStore{RoomStore: repository.NewRoomRepository(10, time.Hour), failuresN: 2}
	f := newFixtureWithStore(t, store)

	room, err := f.engine.CreateRoom(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if store.attempts != 3 {
		t.Fatalf("expected 3 insert attempts, got %d", store.attempts)
	}
	if !domain.IsValidRoomCode(room.ID) || room.Admin != "" || len(room.Users) != 0 {
		t.Fatalf("unexpected new room %+v", room)
	}
	if !f.publisher.has(domain.EventRoomCreated) {
		t.Fatal("expected a created event")
	}

	exhausted := &collidingStore{RoomStore: repository.NewRoomRepository(10, time.Hour), failuresN: 100}
	f = newFixtureWithStore(t, exhausted)
	if _, err := f.engine.CreateRoom(context.Background()); !errors.Is(err, domain.ErrRoomAlreadyExists) {
		t.Fatalf("expected ErrRoomAlreadyExists after exhausting attempts, got %v", err)
	}
	if exhausted.attempts != DefaultCodeAttempts {
		t.Fatalf("expected %d attempts, got %d", DefaultCodeAttempts, exhausted.attempts)
	}
}

type failingStore struct {
	domain.RoomStore
	fail bool
}

func (s *failingStore) Update(ctx context.Context, id string, mutate func(*domain.Room) error) (*domain.Room, error) {
	if s.fail {
		return nil, fmt.Errorf("%w: connection reset", domain.ErrStoreFailure)
	}
	return s.RoomStore.Update(ctx, id, mutate)
}

func TestStoreFailureSurfacesWithoutBroadcast(t *testing.T) {
	store := &failingStore{RoomStore: repository.NewRoomRepository(10, time.Hour)}
	f := newFixtureWithStore(t, store)
	f.seedRoom(t, "alice")

	before := len(f.broadcaster.kinds())
	store.fail = true

	if err := f.engine.Buzz(context.Background(), testRoom, "alice", 10); !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
	if len(f.broadcaster.kinds()) != before {
		t.Fatal("failed write must not broadcast")
	}
	if f.engine.pendingTimers() != 0 {
		t.Fatal("failed write must not arm a window")
	}
}

// flakyStore fails the next Update once failNext is set.
type flakyStore struct {
	domain.RoomStore
	failNext atomic.Bool
	failures atomic.Int32
}

func (s *flakyStore) Update(ctx context.Context, id string, mutate func(*domain.Room) error) (*domain.Room, error) {
	if s.failNext.CompareAndSwap(true, false) {
		s.failures.Add(1)
		return nil, fmt.Errorf("%w: write timeout", domain.ErrStoreFailure)
	}
	return s.RoomStore.Update(ctx, id, mutate)
}

func TestResolutionRetriesAfterStoreFailure(t *testing.T) {
	store := &flakyStore{RoomStore: repository.NewRoomRepository(10, time.Hour)}
	f := newFixtureWithStore(t, store)
	f.seedRoom(t, "alice", "bob")

	f.buzz(t, "alice", 0)
	store.failNext.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("no resolution window armed: %v", err)
	}
	f.clock.Advance(f.engine.window)
	waitUntil(t, func() bool { return store.failures.Load() == 1 }, "expected the resolution write to fail once")

	// The window is still open, so bob joins the same round.
	f.buzz(t, "bob", 10)

	if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("no retry armed after failed resolution: %v", err)
	}
	f.clock.Advance(resolveRetryDelay)

	room := f.waitForRoom(t, func(r *domain.Room) bool {
		return r.Buzzer.Locked && len(r.Buzzer.CurrentBuzz) == 0
	})
	if len(room.Buzzer.Buzzed) != 1 || room.Buzzer.BuzzWinner.Username != "alice" {
		t.Fatalf("expected alice to win the retried round, got %+v", room.Buzzer)
	}
	f.publisher.waitFor(t, domain.EventRoundResolved)
	waitUntil(t, func() bool { return f.engine.pendingTimers() == 0 }, "expected no pending windows")
}

func TestConcurrentBuzzesProduceOneWinner(t *testing.T) {
	f := newFixture(t)

	guests := make([]string, 40)
	for i := range guests {
		guests[i] = fmt.Sprintf("player%02d", i)
	}
	f.seedRoom(t, guests...)

	var wg sync.WaitGroup
	for i, g := range guests {
		wg.Add(1)
		go func(name string, ts int64) {
			defer wg.Done()
			_ = f.engine.Buzz(context.Background(), testRoom, name, ts)
			_ = f.engine.Buzz(context.Background(), testRoom, name, ts)
		}(g, int64(1000-i))
	}
	wg.Wait()

	room, _ := f.engine.Snapshot(context.Background(), testRoom)
	if len(room.Buzzer.CurrentBuzz) != len(guests) {
		t.Fatalf("expected one pending buzz per player, got %d", len(room.Buzzer.CurrentBuzz))
	}

	room = f.fireWindow(t)
	if len(room.Buzzer.Buzzed) != 1 {
		t.Fatalf("expected exactly one winner, got %+v", room.Buzzer.Buzzed)
	}
	if want := guests[len(guests)-1]; room.Buzzer.BuzzWinner.Username != want {
		t.Fatalf("expected %s (lowest timestamp) to win, got %+v", want, room.Buzzer.BuzzWinner)
	}
	waitUntil(t, func() bool { return f.engine.locks.size() == 0 }, "expected lock table drained")
}

func TestCloseCancelsWindows(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice")

	f.buzz(t, "alice", 10)
	f.engine.Close()

	if f.engine.pendingTimers() != 0 {
		t.Fatalf("expected no pending windows after close, got %d", f.engine.pendingTimers())
	}
	f.clock.Advance(5 * time.Second)

	room, _ := f.engine.Snapshot(context.Background(), testRoom)
	if room.Buzzer.Locked {
		t.Fatal("closed engine resolved a round")
	}
}

func TestBuzzAfterCloseArmsNothing(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice")
	f.engine.Close()

	f.buzz(t, "alice", 10)

	if n := f.engine.pendingTimers(); n != 0 {
		t.Fatalf("closed engine armed %d windows", n)
	}
}

func TestStoreExpiryDissolvesLiveRoom(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice")
	ctx := context.Background()

	f.buzz(t, "alice", 10)
	if err := f.store.Remove(ctx, testRoom); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if err := f.engine.Unlock(ctx, testRoom, "host"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if n := f.engine.pendingTimers(); n != 0 {
		t.Fatalf("expected the window cancelled with the expired room, got %d", n)
	}
	if f.broadcaster.count("dissolve") != 1 {
		t.Fatalf("expected one dissolve broadcast, got %v", f.broadcaster.kinds())
	}
}

func TestExpiredRoomDissolvedWhenWindowFires(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "alice")
	ctx := context.Background()

	f.buzz(t, "alice", 10)
	if err := f.store.Remove(ctx, testRoom); err != nil {
		t.Fatalf("remove: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := f.clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("no resolution window armed: %v", err)
	}
	f.clock.Advance(f.engine.window)

	waitUntil(t, func() bool { return f.broadcaster.count("dissolve") == 1 }, "expected the expired room dissolved")
	if f.publisher.has(domain.EventRoundResolved) {
		t.Fatal("expired room resolved a round")
	}
}

func TestUnknownRoomIsNotDissolved(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.Buzz(context.Background(), "bad", "alice", 1); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if f.broadcaster.count("dissolve") != 0 {
		t.Fatalf("malformed code dissolved a room: %v", f.broadcaster.kinds())
	}
}
