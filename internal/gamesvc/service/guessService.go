package service

import (
	"context"
	"fmt"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
)

// GuessResolver compares a guess with the opponent's secret pick. It runs
// where the guesser cannot read that pick.
type GuessResolver interface {
	Resolve(ctx context.Context, req comm.GuessRequest) (*comm.GuessResult, error)
}

type playerReader interface {
	PlayerByID(ctx context.Context, playerID string) (*models.Player, error)
}

// LocalResolver reads the opponent's pick straight from the store.
type LocalResolver struct {
	players playerReader
}

func NewLocalResolver(players playerReader) *LocalResolver {
	return &LocalResolver{players: players}
}

func (r *LocalResolver) Resolve(ctx context.Context, req comm.GuessRequest) (*comm.GuessResult, error) {
	req.GuessCardID = normalizeID(req.GuessCardID)
	req.OpponentID = normalizeID(req.OpponentID)
	req.GameID = normalizeID(req.GameID)
	if req.GuessCardID == "" || req.OpponentID == "" || req.GameID == "" {
		return nil, fmt.Errorf("%w: guessCardId, opponentId and gameId are required", ErrInvalidInput)
	}

	opponent, err := r.players.PlayerByID(ctx, req.OpponentID)
	if err != nil {
		return nil, fromStore(err)
	}
	if opponent.GameID != req.GameID {
		return nil, fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, req.OpponentID, req.GameID)
	}
	if opponent.ChosenCardID == nil {
		return nil, fmt.Errorf("%w: opponent has no chosen card", ErrPlayersNotReady)
	}

	return &comm.GuessResult{
		Result:       req.GuessCardID == *opponent.ChosenCardID,
		ChosenCardID: *opponent.ChosenCardID,
	}, nil
}
