package store

import (
	"context"

	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
)

type CardStore struct {
	db DBTX
}

func NewCardStore(db DBTX) *CardStore {
	return &CardStore{db: db}
}

func (s *CardStore) Card(ctx context.Context, cardID string) (*models.Card, error) {
	query := `
		SELECT id, deck_id, name, image, created_at
		FROM cards
		WHERE id = $1`

	var card models.Card
	err := s.db.QueryRow(ctx, query, cardID).Scan(
		&card.ID,
		&card.DeckID,
		&card.Name,
		&card.Image,
		&card.CreatedAt,
	)
	if err != nil {
		return nil, translate(err, "get card")
	}
	return &card, nil
}

// DeckCards returns a deck's cards ordered by name. Unlabeled cards sort last.
func (s *CardStore) DeckCards(ctx context.Context, deckID string) ([]*models.Card, error) {
	query := `
		SELECT id, deck_id, name, image, created_at
		FROM cards
		WHERE deck_id = $1
		ORDER BY name NULLS LAST, created_at`

	rows, err := s.db.Query(ctx, query, deckID)
	if err != nil {
		return nil, translate(err, "get deck cards")
	}
	defer rows.Close()

	var cards []*models.Card
	for rows.Next() {
		var card models.Card
		if err := rows.Scan(&card.ID, &card.DeckID, &card.Name, &card.Image, &card.CreatedAt); err != nil {
			return nil, translate(err, "get deck cards")
		}
		cards = append(cards, &card)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "get deck cards")
	}
	return cards, nil
}

func (s *CardStore) CreateCard(ctx context.Context, c *models.Card) error {
	query := `
		INSERT INTO cards (deck_id, name, image)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query, c.DeckID, c.Name, c.Image).Scan(&c.ID, &c.CreatedAt)
	return translate(err, "create card")
}

func (s *CardStore) RenameCard(ctx context.Context, cardID, name string) (*models.Card, error) {
	query := `
		UPDATE cards SET name = $2
		WHERE id = $1
		RETURNING id, deck_id, name, image, created_at`

	var card models.Card
	err := s.db.QueryRow(ctx, query, cardID, name).Scan(
		&card.ID,
		&card.DeckID,
		&card.Name,
		&card.Image,
		&card.CreatedAt,
	)
	if err != nil {
		return nil, translate(err, "rename card")
	}
	return &card, nil
}
