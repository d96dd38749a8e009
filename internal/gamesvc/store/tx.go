package store

import (
	"context"

	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/jackc/pgx/v5"
)

// gameTx binds the per-table stores to one transaction.
type gameTx struct {
	game  *models.Game
	dirty bool

	games       *GameStore
	players     *PlayerStore
	decks       *DeckStore
	cards       *CardStore
	playerCards *PlayerCardStore
}

func newGameTx(tx pgx.Tx, game *models.Game) *gameTx {
	return &gameTx{
		game:        game,
		games:       NewGameStore(tx),
		players:     NewPlayerStore(tx),
		decks:       NewDeckStore(tx),
		cards:       NewCardStore(tx),
		playerCards: NewPlayerCardStore(tx),
	}
}

func (t *gameTx) Game() *models.Game {
	return t.game.Clone()
}

func (t *gameTx) SaveGame(ctx context.Context, g *models.Game) error {
	if err := t.games.saveGame(ctx, g); err != nil {
		return err
	}
	t.game = g.Clone()
	t.dirty = true
	return nil
}

func (t *gameTx) Players(ctx context.Context) ([]*models.Player, error) {
	return t.players.PlayersByGame(ctx, t.game.ID)
}

func (t *gameTx) InsertPlayer(ctx context.Context, p *models.Player) error {
	p.GameID = t.game.ID
	if err := t.players.insertPlayer(ctx, p); err != nil {
		return err
	}
	t.dirty = true
	return nil
}

func (t *gameTx) SavePlayer(ctx context.Context, p *models.Player) error {
	if err := t.players.savePlayer(ctx, p); err != nil {
		return err
	}
	t.dirty = true
	return nil
}

func (t *gameTx) DeletePlayer(ctx context.Context, playerID string) error {
	if err := t.players.deletePlayer(ctx, playerID); err != nil {
		return err
	}
	t.dirty = true
	return nil
}

func (t *gameTx) ClearChosenCards(ctx context.Context) error {
	if err := t.players.clearChosenCards(ctx, t.game.ID); err != nil {
		return err
	}
	t.dirty = true
	return nil
}

func (t *gameTx) Deck(ctx context.Context, deckID string) (*models.Deck, error) {
	return t.decks.Deck(ctx, deckID)
}

func (t *gameTx) Card(ctx context.Context, cardID string) (*models.Card, error) {
	return t.cards.Card(ctx, cardID)
}

func (t *gameTx) DeckCards(ctx context.Context, deckID string) ([]*models.Card, error) {
	return t.cards.DeckCards(ctx, deckID)
}

func (t *gameTx) SeedBoards(ctx context.Context, playerIDs, cardIDs []string) error {
	if err := t.playerCards.seedBoards(ctx, playerIDs, cardIDs); err != nil {
		return err
	}
	t.dirty = true
	return nil
}

func (t *gameTx) Board(ctx context.Context, playerID string) ([]*models.PlayerCard, error) {
	return t.playerCards.Board(ctx, playerID)
}

func (t *gameTx) SetFlipped(ctx context.Context, playerID, cardID string, flipped bool) (*models.PlayerCard, error) {
	pc, err := t.playerCards.setFlipped(ctx, playerID, cardID, flipped)
	if err != nil {
		return nil, err
	}
	t.dirty = true
	return pc, nil
}

func (t *gameTx) DeleteBoards(ctx context.Context) error {
	if err := t.playerCards.deleteBoards(ctx, t.game.ID); err != nil {
		return err
	}
	t.dirty = true
	return nil
}
