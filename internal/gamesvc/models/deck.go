package models

import "time"

type DeckScope string

const (
	ScopeStandard DeckScope = "standard"
	ScopeCustom   DeckScope = "custom"
)

type Deck struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CoverImage string    `json:"cover_image"`
	Scope      DeckScope `json:"scope"` // 'standard' decks are read-only
	CreatedAt  time.Time `json:"created_at"`
}

func (d *Deck) IsCustom() bool {
	return d.Scope == ScopeCustom
}
