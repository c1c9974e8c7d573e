package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAcceptOpensRoundOnFirstBuzz(t *testing.T) {
	bz := NewBuzzer()

	opened, err := bz.Accept("alice", 100)
	if err != nil {
		t.Fatalf("accept alice: %v", err)
	}
	if !opened {
		t.Fatal("expected first buzz to open the round")
	}

	opened, err = bz.Accept("bob", 50)
	if err != nil {
		t.Fatalf("accept bob: %v", err)
	}
	if opened {
		t.Fatal("expected second buzz not to open a round")
	}
	if len(bz.CurrentBuzz) != 2 {
		t.Fatalf("expected 2 pending buzzes, got %d", len(bz.CurrentBuzz))
	}
}

func TestAcceptRejections(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*Buzzer)
		player string
	}{
		{
			name:   "locked",
			setup:  func(bz *Buzzer) { bz.Locked = true },
			player: "alice",
		},
		{
			name: "already pending",
			setup: func(bz *Buzzer) {
				bz.CurrentBuzz = append(bz.CurrentBuzz, Buzz{Username: "alice", Time: 1})
			},
			player: "alice",
		},
		{
			name: "already won",
			setup: func(bz *Buzzer) {
				bz.Buzzed = append(bz.Buzzed, Buzz{Username: "alice", Time: 1})
			},
			player: "alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bz := NewBuzzer()
			tt.setup(&bz)
			before := bz.Clone()

			_, err := bz.Accept(tt.player, 5)
			if !errors.Is(err, ErrInvalidBuzz) {
				t.Fatalf("expected ErrInvalidBuzz, got %v", err)
			}
			if len(bz.CurrentBuzz) != len(before.CurrentBuzz) || len(bz.Buzzed) != len(before.Buzzed) {
				t.Fatalf("rejected buzz mutated state: %+v", bz)
			}
		})
	}
}

func TestAcceptClearsWinner(t *testing.T) {
	bz := NewBuzzer()
	bz.BuzzWinner = &Buzz{Username: "carol", Time: 1}

	if _, err := bz.Accept("alice", 2); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if bz.BuzzWinner != nil {
		t.Fatalf("expected winner cleared, got %+v", bz.BuzzWinner)
	}
}

func TestResolvePicksEarliestTimestamp(t *testing.T) {
	bz := NewBuzzer()
	for _, b := range []Buzz{{"carol", 30}, {"alice", 10}, {"bob", 20}} {
		if _, err := bz.Accept(b.Username, b.Time); err != nil {
			t.Fatalf("accept %s: %v", b.Username, err)
		}
	}

	winner, err := bz.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if winner.Username != "alice" || winner.Time != 10 {
		t.Fatalf("expected alice@10, got %+v", winner)
	}
	if !bz.Locked {
		t.Fatal("expected buzzer locked after resolution")
	}
	if len(bz.CurrentBuzz) != 0 {
		t.Fatalf("expected currentBuzz cleared, got %+v", bz.CurrentBuzz)
	}
	if len(bz.Buzzed) != 1 || bz.Buzzed[0] != winner {
		t.Fatalf("expected buzzed=[winner], got %+v", bz.Buzzed)
	}
	if bz.BuzzWinner == nil || *bz.BuzzWinner != winner {
		t.Fatalf("expected buzzWinner=%+v, got %+v", winner, bz.BuzzWinner)
	}
}

func TestResolveTieKeepsArrivalOrder(t *testing.T) {
	for _, order := range [][]string{{"alice", "bob", "carol"}, {"carol", "bob", "alice"}} {
		bz := NewBuzzer()
		for _, name := range order {
			if _, err := bz.Accept(name, 42); err != nil {
				t.Fatalf("accept %s: %v", name, err)
			}
		}

		winner, err := bz.Resolve()
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if winner.Username != order[0] {
			t.Fatalf("arrival order %v: expected %s to win the tie, got %s", order, order[0], winner.Username)
		}
	}
}

func TestResolveWithoutPendingBuzz(t *testing.T) {
	bz := NewBuzzer()
	if _, err := bz.Resolve(); err == nil {
		t.Fatal("expected error resolving an empty round")
	}
	if bz.Locked {
		t.Fatal("empty resolution must not lock the buzzer")
	}
}

func TestUnlockKeepsHistoryAndPending(t *testing.T) {
	bz := Buzzer{
		Locked:      true,
		CurrentBuzz: []Buzz{{"bob", 5}},
		BuzzWinner:  &Buzz{"alice", 1},
		Buzzed:      []Buzz{{"alice", 1}},
	}

	bz.Unlock()

	if bz.Locked || bz.BuzzWinner != nil {
		t.Fatalf("expected unlocked without winner, got %+v", bz)
	}
	if len(bz.CurrentBuzz) != 1 || len(bz.Buzzed) != 1 {
		t.Fatalf("unlock must not touch currentBuzz or buzzed, got %+v", bz)
	}
}

func TestResetRestoresInitialState(t *testing.T) {
	bz := Buzzer{
		Locked:      true,
		CurrentBuzz: []Buzz{{"bob", 5}},
		BuzzWinner:  &Buzz{"alice", 1},
		Buzzed:      []Buzz{{"alice", 1}, {"carol", 3}},
	}

	bz.Reset()

	if bz.Locked || bz.BuzzWinner != nil || len(bz.CurrentBuzz) != 0 || len(bz.Buzzed) != 0 {
		t.Fatalf("expected initial state, got %+v", bz)
	}
	if _, err := bz.Accept("alice", 9); err != nil {
		t.Fatalf("alice should be able to buzz after reset: %v", err)
	}
}

func TestBuzzerJSONUsesPairs(t *testing.T) {
	bz := NewBuzzer()
	raw, err := json.Marshal(bz)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"locked":false,"currentBuzz":[],"buzzWinner":"","buzzed":[]}`
	if string(raw) != want {
		t.Fatalf("expected %s, got %s", want, raw)
	}

	bz.Locked = true
	bz.BuzzWinner = &Buzz{"alice", 0}
	bz.Buzzed = []Buzz{{"alice", 0}}
	raw, err = json.Marshal(bz)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want = `{"locked":true,"currentBuzz":[],"buzzWinner":["alice",0],"buzzed":[["alice",0]]}`
	if string(raw) != want {
		t.Fatalf("expected %s, got %s", want, raw)
	}

	var decoded Buzz
	if err := json.Unmarshal([]byte(`["bob",1500]`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Username != "bob" || decoded.Time != 1500 {
		t.Fatalf("unexpected decoded buzz %+v", decoded)
	}
}
