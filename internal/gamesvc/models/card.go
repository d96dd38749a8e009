package models

import "time"

type Card struct {
	ID        string    `json:"id"`      // Primary key
	DeckID    string    `json:"deck_id"` // FK to decks(id)
	Name      *string   `json:"name"`    // Null until a custom card is labeled
	Image     string    `json:"image"`   // Storage reference, resolved by the client
	CreatedAt time.Time `json:"created_at"`
}

// PlayerCard is one cell of a player's elimination board.
type PlayerCard struct {
	PlayerID string `json:"player_id"`
	CardID   string `json:"card_id"`
	Flipped  bool   `json:"flipped"`
}
