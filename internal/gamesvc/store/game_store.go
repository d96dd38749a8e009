package store

import (
	"context"

	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
)

type GameStore struct {
	db DBTX
}

func NewGameStore(db DBTX) *GameStore {
	return &GameStore{db: db}
}

const gameColumns = `id, game_code, status, deck_id, current_player_id, guessing, version,
	guess_card_id, guess_correct, revealed_card_id, winner_id, created_at, updated_at`

func scanGame(row interface{ Scan(dest ...any) error }) (*models.Game, error) {
	game := &models.Game{}
	err := row.Scan(
		&game.ID,
		&game.GameCode,
		&game.Status,
		&game.DeckID,
		&game.CurrentPlayerID,
		&game.Guessing,
		&game.Version,
		&game.GuessCardID,
		&game.GuessCorrect,
		&game.RevealedCardID,
		&game.WinnerID,
		&game.CreatedAt,
		&game.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return game, nil
}

// CreateGame inserts a waiting game. A code collision surfaces as ErrDuplicate.
func (s *GameStore) CreateGame(ctx context.Context, code string) (*models.Game, error) {
	query := `
		INSERT INTO games (game_code, status)
		VALUES ($1, 'waiting')
		RETURNING ` + gameColumns

	game, err := scanGame(s.db.QueryRow(ctx, query, code))
	if err != nil {
		return nil, translate(err, "create game")
	}
	return game, nil
}

func (s *GameStore) GameByID(ctx context.Context, gameID string) (*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`

	game, err := scanGame(s.db.QueryRow(ctx, query, gameID))
	if err != nil {
		return nil, translate(err, "get game by id")
	}
	return game, nil
}

func (s *GameStore) GameByCode(ctx context.Context, code string) (*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE game_code = $1`

	game, err := scanGame(s.db.QueryRow(ctx, query, code))
	if err != nil {
		return nil, translate(err, "get game by code")
	}
	return game, nil
}

// lockGame reads the game row and holds it until the transaction ends, which
// serializes every mutation of the same game.
func (s *GameStore) lockGame(ctx context.Context, gameID string) (*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1 FOR UPDATE`

	game, err := scanGame(s.db.QueryRow(ctx, query, gameID))
	if err != nil {
		return nil, translate(err, "lock game")
	}
	return game, nil
}

func (s *GameStore) saveGame(ctx context.Context, g *models.Game) error {
	query := `
		UPDATE games
		SET status = $2,
		    deck_id = $3,
		    current_player_id = $4,
		    guessing = $5,
		    guess_card_id = $6,
		    guess_correct = $7,
		    revealed_card_id = $8,
		    winner_id = $9,
		    updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		g.ID,
		g.Status,
		g.DeckID,
		g.CurrentPlayerID,
		g.Guessing,
		g.GuessCardID,
		g.GuessCorrect,
		g.RevealedCardID,
		g.WinnerID,
	)
	if err != nil {
		return translate(err, "update game")
	}
	if tag.RowsAffected() == 0 {
		return translate(ErrNoRows, "update game")
	}
	return nil
}

func (s *GameStore) bumpVersion(ctx context.Context, gameID string) (*models.Game, error) {
	query := `
		UPDATE games
		SET version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING ` + gameColumns

	game, err := scanGame(s.db.QueryRow(ctx, query, gameID))
	if err != nil {
		return nil, translate(err, "bump game version")
	}
	return game, nil
}
