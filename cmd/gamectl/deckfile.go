package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
)

type deckFile struct {
	Name       string `json:"name"`
	CoverImage string `json:"cover_image"`
	Scope      string `json:"scope"`
	Cards      []struct {
		Name  string `json:"name"`
		Image string `json:"image"`
	} `json:"cards"`
}

// readDeckFile parses a deck export. scope, when set, wins over the file.
func readDeckFile(r io.Reader, scope string) (*models.Deck, []*models.Card, error) {
	var f deckFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, nil, fmt.Errorf("decode deck file: %w", err)
	}

	if scope != "" {
		f.Scope = scope
	}
	if f.Scope == "" {
		f.Scope = string(models.ScopeStandard)
	}
	if len(f.Cards) == 0 {
		return nil, nil, errors.New("deck has no cards")
	}

	deck := &models.Deck{
		Name:       strings.TrimSpace(f.Name),
		CoverImage: strings.TrimSpace(f.CoverImage),
		Scope:      models.DeckScope(strings.ToLower(f.Scope)),
	}

	cards := make([]*models.Card, 0, len(f.Cards))
	seen := make(map[string]bool, len(f.Cards))
	for i, c := range f.Cards {
		image := strings.TrimSpace(c.Image)
		if image == "" {
			return nil, nil, fmt.Errorf("card %d has no image", i+1)
		}
		card := &models.Card{Image: image}
		if name := strings.TrimSpace(c.Name); name != "" {
			if seen[strings.ToLower(name)] {
				return nil, nil, fmt.Errorf("card name %q appears twice", name)
			}
			seen[strings.ToLower(name)] = true
			card.Name = models.StringPtr(name)
		}
		cards = append(cards, card)
	}
	return deck, cards, nil
}
