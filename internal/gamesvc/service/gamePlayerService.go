package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/avvvet/whodidichoose/internal/gamesvc/store"
	log "github.com/sirupsen/logrus"
)

const evictBatch = 100

var errStillAlive = errors.New("player sent a heartbeat")

// RenamePlayer changes the caller's screen name.
func (s *GameService) RenamePlayer(ctx context.Context, req comm.PlayerRequest) (*models.Player, error) {
	req = normalizeRequest(req)
	name := strings.TrimSpace(req.ScreenName)
	if name == "" {
		return nil, fmt.Errorf("%w: screen name is required", ErrInvalidInput)
	}
	name, err := cleanScreenName(name, 0)
	if err != nil {
		return nil, err
	}
	gameID, err := s.gameOf(ctx, req)
	if err != nil {
		return nil, err
	}

	var renamed *models.Player
	_, err = s.mutate(ctx, gameID, req.Version, func(ctx context.Context, tx store.GameTx, cs *changeSet) error {
		me, _, err := seated(ctx, tx, req.PlayerID)
		if err != nil {
			return err
		}
		renamed = me
		if me.ScreenName == name {
			return nil
		}
		before := me.Clone()
		me.ScreenName = name
		if err := tx.SavePlayer(ctx, me); err != nil {
			return err
		}
		cs.player(comm.OpUpdate, before, me)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// Heartbeat refreshes last_seen. It does not bump the game version.
func (s *GameService) Heartbeat(ctx context.Context, playerID string) (*models.Player, error) {
	playerID = normalizeID(playerID)
	if playerID == "" {
		return nil, fmt.Errorf("%w: player id is required", ErrInvalidInput)
	}
	p, err := s.store.TouchPlayer(ctx, playerID)
	if err != nil {
		return nil, fromStore(err)
	}
	return p, nil
}

// ChooseCard toggles the caller's secret pick. The card must be in the
// active deck.
func (s *GameService) ChooseCard(ctx context.Context, req comm.PlayerRequest) (*models.Player, error) {
	req = normalizeRequest(req)
	if req.CardID == "" {
		return nil, fmt.Errorf("%w: card id is required", ErrInvalidInput)
	}
	gameID, err := s.gameOf(ctx, req)
	if err != nil {
		return nil, err
	}

	var chosen *models.Player
	_, err = s.mutate(ctx, gameID, req.Version, func(ctx context.Context, tx store.GameTx, cs *changeSet) error {
		game := tx.Game()
		me, _, err := seated(ctx, tx, req.PlayerID)
		if err != nil {
			return err
		}
		if game.Status != models.StatusWaiting {
			return fmt.Errorf("%w: cards are chosen before the round starts", ErrInvalidPhase)
		}
		if game.DeckID == nil {
			return fmt.Errorf("%w: no deck selected", ErrInvalidPhase)
		}
		card, err := tx.Card(ctx, req.CardID)
		if err != nil {
			return err
		}
		if card.DeckID != *game.DeckID {
			return fmt.Errorf("%w: card %s is not in the active deck", ErrInvalidInput, card.ID)
		}

		before := me.Clone()
		if me.ChosenCardID != nil && *me.ChosenCardID == card.ID {
			me.ChosenCardID = nil
		} else {
			me.ChosenCardID = models.StringPtr(card.ID)
		}
		if err := tx.SavePlayer(ctx, me); err != nil {
			return err
		}
		cs.player(comm.OpUpdate, before, me)
		chosen = me
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chosen, nil
}

// ToggleFlip flips one card on the turn holder's own board.
func (s *GameService) ToggleFlip(ctx context.Context, req comm.PlayerRequest) (*models.PlayerCard, error) {
	req = normalizeRequest(req)
	if req.CardID == "" {
		return nil, fmt.Errorf("%w: card id is required", ErrInvalidInput)
	}
	gameID, err := s.gameOf(ctx, req)
	if err != nil {
		return nil, err
	}

	var flipped *models.PlayerCard
	_, err = s.mutate(ctx, gameID, req.Version, func(ctx context.Context, tx store.GameTx, cs *changeSet) error {
		game := tx.Game()
		me, _, err := seated(ctx, tx, req.PlayerID)
		if err != nil {
			return err
		}
		if game.Status != models.StatusInProgress {
			return fmt.Errorf("%w: no round in progress", ErrInvalidPhase)
		}
		if !game.IsTurnHolder(me.ID) {
			return fmt.Errorf("%w: only the turn holder can flip cards", ErrUnauthorized)
		}

		board, err := tx.Board(ctx, me.ID)
		if err != nil {
			return err
		}
		var current *models.PlayerCard
		for _, pc := range board {
			if pc.CardID == req.CardID {
				current = pc
				break
			}
		}
		if current == nil {
			return fmt.Errorf("%w: card %s is not on the board", ErrNotFound, req.CardID)
		}

		updated, err := tx.SetFlipped(ctx, me.ID, current.CardID, !current.Flipped)
		if err != nil {
			return err
		}
		cs.playerCard(comm.OpUpdate, current, updated)
		flipped = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flipped, nil
}

// Leave removes the caller from the game. Leaving a started game puts it back
// to waiting for the player who stays.
func (s *GameService) Leave(ctx context.Context, req comm.PlayerRequest) (*models.Game, error) {
	req = normalizeRequest(req)
	gameID, err := s.gameOf(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.leave(ctx, gameID, req.PlayerID, req.Version, time.Time{})
}

// leave deletes the player. A non-zero seenBefore aborts when the player has
// been seen since.
func (s *GameService) leave(ctx context.Context, gameID, playerID string, version int64, seenBefore time.Time) (*models.Game, error) {
	game, err := s.mutate(ctx, gameID, version, func(ctx context.Context, tx store.GameTx, cs *changeSet) error {
		game := tx.Game()
		me, players, err := seated(ctx, tx, playerID)
		if err != nil {
			return err
		}
		if !seenBefore.IsZero() && !me.LastSeen.Before(seenBefore) {
			return errStillAlive
		}

		if game.Status != models.StatusWaiting {
			if err := resetRound(ctx, tx, cs, game, players); err != nil {
				return err
			}
		}
		if err := tx.DeletePlayer(ctx, me.ID); err != nil {
			return err
		}
		cs.player(comm.OpDelete, me, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("player %s left game %s", playerID, gameID)
	return game, nil
}

// EvictStale removes players whose last heartbeat is older than timeout.
// A timeout of 0 disables eviction.
func (s *GameService) EvictStale(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return 0, nil
	}
	cutoff, err := s.store.StaleCutoff(ctx, timeout)
	if err != nil {
		return 0, fromStore(err)
	}

	stale, err := s.store.StalePlayers(ctx, cutoff, evictBatch)
	if err != nil {
		return 0, fromStore(err)
	}

	evicted := 0
	for _, p := range stale {
		_, err := s.leave(ctx, p.GameID, p.ID, 0, cutoff)
		switch {
		case err == nil:
			evicted++
			log.Infof("evicted player %s from game %s, last seen %s", p.ID, p.GameID, p.LastSeen.Format(time.RFC3339))
		case errors.Is(err, errStillAlive), errors.Is(err, ErrNotFound):
		default:
			log.Errorf("evict player %s: %v", p.ID, err)
		}
	}
	return evicted, nil
}
