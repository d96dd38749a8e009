package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/avvvet/whodidichoose/internal/gamesvc/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSessions records the last request and answers from fixed values.
type fakeSessions struct {
	last    comm.PlayerRequest
	guess   bool
	err     error
	game    *models.Game
	player  *models.Player
	flipped *models.PlayerCard
}

func (f *fakeSessions) CreateGame(_ context.Context, name string) (*comm.JoinGameResponse, error) {
	return &comm.JoinGameResponse{Game: f.game, Player: &models.Player{ID: "p1", ScreenName: name, Seat: 1}}, f.err
}

func (f *fakeSessions) JoinGame(_ context.Context, code, name string) (*comm.JoinGameResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &comm.JoinGameResponse{Game: f.game, Player: &models.Player{ID: "p2", ScreenName: name, Seat: 2}}, nil
}

func (f *fakeSessions) RenamePlayer(_ context.Context, req comm.PlayerRequest) (*models.Player, error) {
	f.last = req
	return f.player, f.err
}

func (f *fakeSessions) Heartbeat(_ context.Context, playerID string) (*models.Player, error) {
	f.last = comm.PlayerRequest{PlayerID: playerID}
	return f.player, f.err
}

func (f *fakeSessions) PlayerState(_ context.Context, req comm.PlayerRequest) (*comm.GameState, error) {
	f.last = req
	return &comm.GameState{Game: f.game, Phase: "DECK_SELECTION"}, f.err
}

func (f *fakeSessions) SelectDeck(_ context.Context, req comm.PlayerRequest) (*models.Game, error) {
	f.last = req
	return f.game, f.err
}

func (f *fakeSessions) ChooseCard(_ context.Context, req comm.PlayerRequest) (*models.Player, error) {
	f.last = req
	return f.player, f.err
}

func (f *fakeSessions) StartGame(_ context.Context, req comm.PlayerRequest) (*models.Game, error) {
	f.last = req
	return f.game, f.err
}

func (f *fakeSessions) ToggleFlip(_ context.Context, req comm.PlayerRequest) (*models.PlayerCard, error) {
	f.last = req
	return f.flipped, f.err
}

func (f *fakeSessions) EndTurn(_ context.Context, req comm.PlayerRequest) (*models.Game, error) {
	f.last = req
	return f.game, f.err
}

func (f *fakeSessions) SetGuessMode(_ context.Context, req comm.PlayerRequest, on bool) (*models.Game, error) {
	f.last = req
	f.guess = on
	return f.game, f.err
}

func (f *fakeSessions) SubmitGuess(_ context.Context, req comm.PlayerRequest) (*comm.GuessOutcome, error) {
	f.last = req
	return &comm.GuessOutcome{Game: f.game, Correct: true}, f.err
}

func (f *fakeSessions) RequestRematch(_ context.Context, req comm.PlayerRequest) (*comm.RematchResponse, error) {
	f.last = req
	return &comm.RematchResponse{Game: f.game}, f.err
}

func (f *fakeSessions) Leave(_ context.Context, req comm.PlayerRequest) (*models.Game, error) {
	f.last = req
	return f.game, f.err
}

func command(t *testing.T, typ string, data any) *comm.WSMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &comm.WSMessage{Type: typ, Data: raw, SocketId: "sock-1", RequestId: "req-9"}
}

func TestDispatchCreateGame(t *testing.T) {
	sessions := &fakeSessions{game: &models.Game{ID: "g1", GameCode: "ABC123"}}
	b := NewBroker(nil, sessions)

	reply := b.dispatch(context.Background(), command(t, comm.TypeCreateGame, comm.CreateGameRequest{ScreenName: "Ann"}))

	assert.Equal(t, "create-game-response", reply.Type)
	assert.Equal(t, "sock-1", reply.SocketId)
	assert.Equal(t, "req-9", reply.RequestId)
	assert.Nil(t, reply.Error)

	var resp comm.JoinGameResponse
	require.NoError(t, json.Unmarshal(reply.Data, &resp))
	assert.Equal(t, "Ann", resp.Player.ScreenName)
	assert.Equal(t, "ABC123", resp.Game.GameCode)
}

func TestDispatchPlayerCommands(t *testing.T) {
	tests := []struct {
		typ   string
		guess bool
	}{
		{comm.TypeRename, false},
		{comm.TypeGetState, false},
		{comm.TypeSelectDeck, false},
		{comm.TypeChooseCard, false},
		{comm.TypeStartGame, false},
		{comm.TypeToggleFlip, false},
		{comm.TypeEndTurn, false},
		{comm.TypeEnterGuess, true},
		{comm.TypeExitGuess, false},
		{comm.TypeSubmitGuess, false},
		{comm.TypeRequestRematch, false},
		{comm.TypeLeave, false},
		{comm.TypeHeartbeat, false},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			sessions := &fakeSessions{
				game:    &models.Game{ID: "g1"},
				player:  &models.Player{ID: "p1"},
				flipped: &models.PlayerCard{PlayerID: "p1", CardID: "c1", Flipped: true},
			}
			b := NewBroker(nil, sessions)

			req := comm.PlayerRequest{PlayerID: "p1", CardID: "c1", Version: 4}
			reply := b.dispatch(context.Background(), command(t, tt.typ, req))

			require.Nil(t, reply.Error)
			assert.Equal(t, tt.typ+"-response", reply.Type)
			assert.Equal(t, "p1", sessions.last.PlayerID)
			assert.Equal(t, tt.guess, sessions.guess)
			assert.NotEmpty(t, reply.Data)
		})
	}
}

func TestDispatchErrors(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		b := NewBroker(nil, &fakeSessions{})
		reply := b.dispatch(context.Background(), command(t, "shuffle", comm.PlayerRequest{PlayerID: "p1"}))
		require.NotNil(t, reply.Error)
		assert.Equal(t, comm.CodeInvalidInput, reply.Error.Code)
		assert.Equal(t, "shuffle-response", reply.Type)
	})

	t.Run("missing data", func(t *testing.T) {
		b := NewBroker(nil, &fakeSessions{})
		reply := b.dispatch(context.Background(), &comm.WSMessage{Type: comm.TypeEndTurn})
		require.NotNil(t, reply.Error)
		assert.Equal(t, comm.CodeInvalidInput, reply.Error.Code)
	})

	t.Run("bad json", func(t *testing.T) {
		b := NewBroker(nil, &fakeSessions{})
		reply := b.dispatch(context.Background(), &comm.WSMessage{Type: comm.TypeEndTurn, Data: json.RawMessage(`"x"`)})
		require.NotNil(t, reply.Error)
		assert.Equal(t, comm.CodeInvalidInput, reply.Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		sessions := &fakeSessions{err: fmt.Errorf("%w: only the turn holder can flip cards", service.ErrUnauthorized)}
		b := NewBroker(nil, sessions)
		reply := b.dispatch(context.Background(), command(t, comm.TypeToggleFlip, comm.PlayerRequest{PlayerID: "p2"}))
		require.NotNil(t, reply.Error)
		assert.Equal(t, comm.CodeUnauthorized, reply.Error.Code)
		assert.Empty(t, reply.Data)
	})

	t.Run("join full", func(t *testing.T) {
		b := NewBroker(nil, &fakeSessions{err: service.ErrFull})
		reply := b.dispatch(context.Background(), command(t, comm.TypeJoinGame, comm.JoinGameRequest{GameCode: "ABC123"}))
		require.NotNil(t, reply.Error)
		assert.Equal(t, comm.CodeFull, reply.Error.Code)
	})
}
