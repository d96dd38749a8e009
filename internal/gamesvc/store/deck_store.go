package store

import (
	"context"

	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
)

type DeckStore struct {
	db DBTX
}

func NewDeckStore(db DBTX) *DeckStore {
	return &DeckStore{db: db}
}

// Decks lists standard decks first, then custom ones, each by name.
func (s *DeckStore) Decks(ctx context.Context) ([]*models.Deck, error) {
	query := `
		SELECT id, name, cover_image, scope, created_at
		FROM decks
		ORDER BY scope = 'custom', name`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, translate(err, "list decks")
	}
	defer rows.Close()

	var decks []*models.Deck
	for rows.Next() {
		var d models.Deck
		if err := rows.Scan(&d.ID, &d.Name, &d.CoverImage, &d.Scope, &d.CreatedAt); err != nil {
			return nil, translate(err, "list decks")
		}
		decks = append(decks, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list decks")
	}
	return decks, nil
}

func (s *DeckStore) Deck(ctx context.Context, deckID string) (*models.Deck, error) {
	query := `SELECT id, name, cover_image, scope, created_at FROM decks WHERE id = $1`

	var d models.Deck
	err := s.db.QueryRow(ctx, query, deckID).Scan(&d.ID, &d.Name, &d.CoverImage, &d.Scope, &d.CreatedAt)
	if err != nil {
		return nil, translate(err, "get deck")
	}
	return &d, nil
}

func (s *DeckStore) CreateDeck(ctx context.Context, d *models.Deck) error {
	query := `
		INSERT INTO decks (name, cover_image, scope)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query, d.Name, d.CoverImage, d.Scope).Scan(&d.ID, &d.CreatedAt)
	return translate(err, "create deck")
}
