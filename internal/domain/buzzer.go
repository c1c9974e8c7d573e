package domain

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Buzz is a username paired with the client timestamp (unix millis) it sent.
type Buzz struct {
	Username string `json:"username" bson:"username"`
	Time     int64  `json:"time" bson:"time"`
}

type Buzzer struct {
	Locked      bool   `json:"locked" bson:"locked"`
	CurrentBuzz []Buzz `json:"currentBuzz" bson:"current_buzz"`
	BuzzWinner  *Buzz  `json:"buzzWinner" bson:"buzz_winner"`
	Buzzed      []Buzz `json:"buzzed" bson:"buzzed"`
}

func NewBuzzer() Buzzer {
	return Buzzer{
		CurrentBuzz: []Buzz{},
		Buzzed:      []Buzz{},
	}
}

// MarshalJSON writes the pair form used by browser clients: ["alice", 1700000000000].
func (b Buzz) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{b.Username, b.Time})
}

func (b *Buzz) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("buzz: expected [username, time], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &b.Username); err != nil {
		return fmt.Errorf("buzz username: %w", err)
	}
	if err := json.Unmarshal(pair[1], &b.Time); err != nil {
		return fmt.Errorf("buzz time: %w", err)
	}
	return nil
}

func (bz Buzzer) MarshalJSON() ([]byte, error) {
	var winner any = ""
	if bz.BuzzWinner != nil {
		winner = *bz.BuzzWinner
	}

	return json.Marshal(struct {
		Locked      bool   `json:"locked"`
		CurrentBuzz []Buzz `json:"currentBuzz"`
		BuzzWinner  any    `json:"buzzWinner"`
		Buzzed      []Buzz `json:"buzzed"`
	}{
		Locked:      bz.Locked,
		CurrentBuzz: nonNil(bz.CurrentBuzz),
		BuzzWinner:  winner,
		Buzzed:      nonNil(bz.Buzzed),
	})
}

func (bz *Buzzer) HasBuzzed(username string) bool {
	return containsUser(bz.Buzzed, username)
}

func (bz *Buzzer) IsPending(username string) bool {
	return containsUser(bz.CurrentBuzz, username)
}

// Accept records a buzz for the open round. opened reports whether this buzz
// opened the round, i.e. currentBuzz went from empty to one entry.
func (bz *Buzzer) Accept(username string, ts int64) (opened bool, err error) {
	switch {
	case bz.Locked:
		return false, fmt.Errorf("%w: buzzer locked", ErrInvalidBuzz)
	case bz.HasBuzzed(username):
		return false, fmt.Errorf("%w: %s already won a round", ErrInvalidBuzz, username)
	case bz.IsPending(username):
		return false, fmt.Errorf("%w: %s already buzzed this round", ErrInvalidBuzz, username)
	}

	opened = len(bz.CurrentBuzz) == 0
	bz.CurrentBuzz = append(bz.CurrentBuzz, Buzz{Username: username, Time: ts})
	bz.BuzzWinner = nil
	return opened, nil
}

var errNoPendingBuzz = errors.New("no pending buzz to resolve")

// Resolve closes the round: the earliest timestamp wins, equal timestamps keep
// arrival order.
func (bz *Buzzer) Resolve() (Buzz, error) {
	if len(bz.CurrentBuzz) == 0 {
		return Buzz{}, errNoPendingBuzz
	}

	bz.Locked = true

	ordered := slices.Clone(bz.CurrentBuzz)
	slices.SortStableFunc(ordered, func(a, b Buzz) int {
		return cmp.Compare(a.Time, b.Time)
	})
	winner := ordered[0]

	bz.Buzzed = append(bz.Buzzed, winner)
	bz.CurrentBuzz = []Buzz{}
	bz.BuzzWinner = &winner
	return winner, nil
}

func (bz *Buzzer) Unlock() {
	bz.Locked = false
	bz.BuzzWinner = nil
}

func (bz *Buzzer) Reset() {
	*bz = NewBuzzer()
}

func (bz Buzzer) Clone() Buzzer {
	cpy := Buzzer{
		Locked:      bz.Locked,
		CurrentBuzz: slices.Clone(nonNil(bz.CurrentBuzz)),
		Buzzed:      slices.Clone(nonNil(bz.Buzzed)),
	}
	if bz.BuzzWinner != nil {
		w := *bz.BuzzWinner
		cpy.BuzzWinner = &w
	}
	return cpy
}

func containsUser(buzzes []Buzz, username string) bool {
	return slices.ContainsFunc(buzzes, func(b Buzz) bool {
		return b.Username == username
	})
}

func nonNil(buzzes []Buzz) []Buzz {
	if buzzes == nil {
		return []Buzz{}
	}
	return buzzes
}
