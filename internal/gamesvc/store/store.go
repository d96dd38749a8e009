package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNoRows       = errors.New("store: no rows")
	ErrDuplicate    = errors.New("store: duplicate key")
	ErrReference    = errors.New("store: invalid reference")
	ErrStaleVersion = errors.New("store: stale game version")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxDB is a DBTX that can open transactions, such as *pgxpool.Pool.
type TxDB interface {
	DBTX
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// GameTx is a unit of work on one game whose row is locked for the duration.
// Anything written through it commits together, and the game version is
// bumped once if anything was written.
type GameTx interface {
	Game() *models.Game
	SaveGame(ctx context.Context, g *models.Game) error

	Players(ctx context.Context) ([]*models.Player, error)
	InsertPlayer(ctx context.Context, p *models.Player) error
	SavePlayer(ctx context.Context, p *models.Player) error
	DeletePlayer(ctx context.Context, playerID string) error
	ClearChosenCards(ctx context.Context) error

	Deck(ctx context.Context, deckID string) (*models.Deck, error)
	Card(ctx context.Context, cardID string) (*models.Card, error)
	DeckCards(ctx context.Context, deckID string) ([]*models.Card, error)

	SeedBoards(ctx context.Context, playerIDs, cardIDs []string) error
	Board(ctx context.Context, playerID string) ([]*models.PlayerCard, error)
	SetFlipped(ctx context.Context, playerID, cardID string, flipped bool) (*models.PlayerCard, error)
	DeleteBoards(ctx context.Context) error
}

// Store is the Persistent Game Store.
type Store interface {
	CreateGame(ctx context.Context, code string) (*models.Game, error)
	GameByID(ctx context.Context, gameID string) (*models.Game, error)
	GameByCode(ctx context.Context, code string) (*models.Game, error)
	InGame(ctx context.Context, gameID string, expectedVersion int64, fn func(tx GameTx) error) (*models.Game, error)

	PlayerByID(ctx context.Context, playerID string) (*models.Player, error)
	PlayersByGame(ctx context.Context, gameID string) ([]*models.Player, error)
	TouchPlayer(ctx context.Context, playerID string) (*models.Player, error)
	StaleCutoff(ctx context.Context, timeout time.Duration) (time.Time, error)
	StalePlayers(ctx context.Context, cutoff time.Time, limit int) ([]*models.Player, error)
	Board(ctx context.Context, playerID string) ([]*models.PlayerCard, error)

	Decks(ctx context.Context) ([]*models.Deck, error)
	Deck(ctx context.Context, deckID string) (*models.Deck, error)
	CreateDeck(ctx context.Context, d *models.Deck) error
	Card(ctx context.Context, cardID string) (*models.Card, error)
	DeckCards(ctx context.Context, deckID string) ([]*models.Card, error)
	CreateCard(ctx context.Context, c *models.Card) error
	RenameCard(ctx context.Context, cardID, name string) (*models.Card, error)
}

type PgStore struct {
	db TxDB

	*GameStore
	*PlayerStore
	*DeckStore
	*CardStore
	*PlayerCardStore
}

func NewPgStore(db TxDB) *PgStore {
	return &PgStore{
		db:              db,
		GameStore:       NewGameStore(db),
		PlayerStore:     NewPlayerStore(db),
		DeckStore:       NewDeckStore(db),
		CardStore:       NewCardStore(db),
		PlayerCardStore: NewPlayerCardStore(db),
	}
}

func (s *PgStore) InGame(ctx context.Context, gameID string, expectedVersion int64, fn func(tx GameTx) error) (*models.Game, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	games := NewGameStore(tx)
	game, err := games.lockGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && game.Version != expectedVersion {
		return nil, fmt.Errorf("game %s at version %d, expected %d: %w", gameID, game.Version, expectedVersion, ErrStaleVersion)
	}

	gt := newGameTx(tx, game)
	if err := fn(gt); err != nil {
		return nil, err
	}

	if gt.dirty {
		game, err = games.bumpVersion(ctx, gameID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return game, nil
}

// translate maps driver errors onto the store sentinels.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNoRows)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, ErrDuplicate)
		case "23503", "22P02": // foreign_key_violation, invalid_text_representation
			return fmt.Errorf("%s: %s: %w", what, pgErr.Message, ErrReference)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
