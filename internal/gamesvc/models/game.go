package models

import "time"

type GameStatus string

const (
	StatusWaiting    GameStatus = "waiting"
	StatusInProgress GameStatus = "in_progress"
	StatusFinished   GameStatus = "finished"
)

type Game struct {
	ID              string     `json:"id"`                // Primary key
	GameCode        string     `json:"game_code"`         // Invite code, unique
	Status          GameStatus `json:"status"`            // 'waiting', 'in_progress', 'finished'
	DeckID          *string    `json:"deck_id"`           // Active deck, null until chosen
	CurrentPlayerID *string    `json:"current_player_id"` // Turn holder
	Guessing        bool       `json:"guessing"`          // Turn holder is about to guess
	Version         int64      `json:"version"`           // Bumped by every committed mutation
	GuessCardID     *string    `json:"guess_card_id"`     // Set when the round is finished
	GuessCorrect    *bool      `json:"guess_correct"`
	RevealedCardID  *string    `json:"revealed_card_id"` // Opponent's chosen card, revealed after the guess
	WinnerID        *string    `json:"winner_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so callers can keep the pre-mutation row.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	c.DeckID = cloneString(g.DeckID)
	c.CurrentPlayerID = cloneString(g.CurrentPlayerID)
	c.GuessCardID = cloneString(g.GuessCardID)
	c.RevealedCardID = cloneString(g.RevealedCardID)
	c.WinnerID = cloneString(g.WinnerID)
	if g.GuessCorrect != nil {
		v := *g.GuessCorrect
		c.GuessCorrect = &v
	}
	return &c
}

// IsTurnHolder reports whether playerID currently holds the turn.
func (g *Game) IsTurnHolder(playerID string) bool {
	return g.CurrentPlayerID != nil && *g.CurrentPlayerID == playerID
}

// ClearRound drops everything a finished or abandoned round left on the row.
func (g *Game) ClearRound() {
	g.CurrentPlayerID = nil
	g.Guessing = false
	g.GuessCardID = nil
	g.GuessCorrect = nil
	g.RevealedCardID = nil
	g.WinnerID = nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr is a small helper for nullable text columns.
func StringPtr(s string) *string {
	return &s
}

// StringValue returns the pointed value or "".
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
