package store

import (
	"context"

	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
)

type PlayerCardStore struct {
	db DBTX
}

func NewPlayerCardStore(db DBTX) *PlayerCardStore {
	return &PlayerCardStore{db: db}
}

// Board returns a player's board in card name order.
func (s *PlayerCardStore) Board(ctx context.Context, playerID string) ([]*models.PlayerCard, error) {
	query := `
		SELECT pc.player_id, pc.card_id, pc.flipped
		FROM player_cards pc
		JOIN cards c ON c.id = pc.card_id
		WHERE pc.player_id = $1
		ORDER BY c.name NULLS LAST, c.created_at`

	rows, err := s.db.Query(ctx, query, playerID)
	if err != nil {
		return nil, translate(err, "get board")
	}
	defer rows.Close()

	var board []*models.PlayerCard
	for rows.Next() {
		var pc models.PlayerCard
		if err := rows.Scan(&pc.PlayerID, &pc.CardID, &pc.Flipped); err != nil {
			return nil, translate(err, "get board")
		}
		board = append(board, &pc)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "get board")
	}
	return board, nil
}

// seedBoards inserts an unflipped row for every player and card pair.
// Existing rows are left as they are.
func (s *PlayerCardStore) seedBoards(ctx context.Context, playerIDs, cardIDs []string) error {
	query := `
		INSERT INTO player_cards (player_id, card_id, flipped)
		SELECT p::uuid, c::uuid, false
		FROM unnest($1::text[]) AS p
		CROSS JOIN unnest($2::text[]) AS c
		ON CONFLICT (player_id, card_id) DO NOTHING`

	_, err := s.db.Exec(ctx, query, playerIDs, cardIDs)
	return translate(err, "seed boards")
}

func (s *PlayerCardStore) setFlipped(ctx context.Context, playerID, cardID string, flipped bool) (*models.PlayerCard, error) {
	query := `
		UPDATE player_cards SET flipped = $3
		WHERE player_id = $1 AND card_id = $2
		RETURNING player_id, card_id, flipped`

	var pc models.PlayerCard
	err := s.db.QueryRow(ctx, query, playerID, cardID, flipped).Scan(&pc.PlayerID, &pc.CardID, &pc.Flipped)
	if err != nil {
		return nil, translate(err, "set flipped")
	}
	return &pc, nil
}

// deleteBoards drops every board of a game's players.
func (s *PlayerCardStore) deleteBoards(ctx context.Context, gameID string) error {
	query := `
		DELETE FROM player_cards
		WHERE player_id IN (SELECT id FROM players WHERE game_id = $1)`

	_, err := s.db.Exec(ctx, query, gameID)
	return translate(err, "delete boards")
}
