package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/jonboulle/clockwork"
)

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewRoomRepository(10, time.Hour)

	room := domain.NewRoom("ABCDEF", time.Now())
	if err := store.Insert(ctx, room); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Insert(ctx, domain.NewRoom("ABCDEF", time.Now())); !errors.Is(err, domain.ErrRoomAlreadyExists) {
		t.Fatalf("expected ErrRoomAlreadyExists, got %v", err)
	}

	got, err := store.FindOne(ctx, "ABCDEF")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "ABCDEF" || got.Buzzer.Locked {
		t.Fatalf("unexpected room %+v", got)
	}

	if _, err := store.FindOne(ctx, "ZZZZZZ"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewRoomRepository(10, time.Hour)

	room := domain.NewRoom("ABCDEF", time.Now())
	_ = store.Insert(ctx, room)
	room.Users = append(room.Users, "sneaky")

	got, _ := store.FindOne(ctx, "ABCDEF")
	if len(got.Users) != 0 {
		t.Fatalf("store shares memory with inserted room: %v", got.Users)
	}

	got.Users = append(got.Users, "sneaky")
	again, _ := store.FindOne(ctx, "ABCDEF")
	if len(again.Users) != 0 {
		t.Fatalf("store shares memory with returned room: %v", again.Users)
	}
}

func TestUpdateFailedMutationLeavesRoomUnchanged(t *testing.T) {
	ctx := context.Background()
	store := NewRoomRepository(10, time.Hour)
	_ = store.Insert(ctx, domain.NewRoom("ABCDEF", time.Now()))

	boom := errors.New("boom")
	_, err := store.Update(ctx, "ABCDEF", func(r *domain.Room) error {
		r.Users = append(r.Users, "alice")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutate error, got %v", err)
	}

	got, _ := store.FindOne(ctx, "ABCDEF")
	if len(got.Users) != 0 {
		t.Fatalf("failed mutation was persisted: %v", got.Users)
	}

	updated, err := store.Update(ctx, "ABCDEF", func(r *domain.Room) error {
		return r.AddGuest("alice")
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Users) != 1 || updated.Users[0] != "alice" {
		t.Fatalf("unexpected users %v", updated.Users)
	}

	if _, err := store.Update(ctx, "ZZZZZZ", func(*domain.Room) error { return nil }); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	store := NewRoomRepository(10, time.Hour)
	_ = store.Insert(ctx, domain.NewRoom("ABCDEF", time.Now()))

	if err := store.Remove(ctx, "ABCDEF"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Remove(ctx, "ABCDEF"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestCapacityAndIdleExpiry(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := NewRoomRepositoryWithClock(2, time.Minute, clock)

	_ = store.Insert(ctx, domain.NewRoom("AAAAAA", clock.Now()))
	_ = store.Insert(ctx, domain.NewRoom("BBBBBB", clock.Now()))

	if err := store.Insert(ctx, domain.NewRoom("CCCCCC", clock.Now())); !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure at capacity, got %v", err)
	}

	clock.Advance(30 * time.Second)
	if _, err := store.FindOne(ctx, "AAAAAA"); err != nil {
		t.Fatalf("find: %v", err)
	}
	clock.Advance(45 * time.Second)

	if err := store.Insert(ctx, domain.NewRoom("CCCCCC", clock.Now())); err != nil {
		t.Fatalf("expected idle room to be evicted, got %v", err)
	}
	if _, err := store.FindOne(ctx, "BBBBBB"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected BBBBBB evicted, got %v", err)
	}
	if _, err := store.FindOne(ctx, "AAAAAA"); err != nil {
		t.Fatalf("recently touched room should survive: %v", err)
	}
}
