package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/history"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/avvvet/whodidichoose/internal/gamesvc/store"
	"github.com/avvvet/whodidichoose/internal/session"
	log "github.com/sirupsen/logrus"
)

const (
	maxCodeAttempts   = 5
	maxScreenNameLen  = 32
	maxPlayersPerGame = 2
)

// RoundRecorder archives finished rounds.
type RoundRecorder interface {
	Record(ctx context.Context, r history.Round) error
}

// GameService runs every session command inside one locked transaction per
// game and publishes the resulting row changes after commit.
type GameService struct {
	store    store.Store
	pub      Publisher
	resolver GuessResolver
	rounds   RoundRecorder

	mu  sync.Mutex
	rng *rand.Rand

	now func() time.Time
}

func NewGameService(st store.Store, pub Publisher, resolver GuessResolver, rounds RoundRecorder, rng *rand.Rand) *GameService {
	if pub == nil {
		pub = NoopPublisher{}
	}
	if resolver == nil {
		resolver = NewLocalResolver(st)
	}
	if rounds == nil {
		rounds = history.NoopArchive{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &GameService{
		store:    st,
		pub:      pub,
		resolver: resolver,
		rounds:   rounds,
		rng:      rng,
		now:      time.Now,
	}
}

type mutation func(ctx context.Context, tx store.GameTx, cs *changeSet) error

// mutate runs fn with the game row locked. The game version is checked
// against version unless it is 0.
func (s *GameService) mutate(ctx context.Context, gameID string, version int64, fn mutation) (*models.Game, error) {
	cs := &changeSet{}
	var before *models.Game

	game, err := s.store.InGame(ctx, gameID, version, func(tx store.GameTx) error {
		before = tx.Game()
		if err := fn(ctx, tx, cs); err != nil {
			return err
		}
		return cs.err
	})
	if err != nil {
		return nil, fromStore(err)
	}

	if before != nil && game.Version != before.Version {
		publish(ctx, s.pub, cs.commit(before, game))
	}
	return game, nil
}

func (s *GameService) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// gameOf resolves the game a player is seated in.
func (s *GameService) gameOf(ctx context.Context, req comm.PlayerRequest) (string, error) {
	if req.PlayerID == "" {
		return "", fmt.Errorf("%w: player id is required", ErrInvalidInput)
	}
	p, err := s.store.PlayerByID(ctx, req.PlayerID)
	if err != nil {
		return "", fromStore(err)
	}
	if req.GameID != "" && req.GameID != p.GameID {
		return "", fmt.Errorf("%w: player %s is not in game %s", ErrUnauthorized, req.PlayerID, req.GameID)
	}
	return p.GameID, nil
}

// seated returns the caller and every player of the locked game.
func seated(ctx context.Context, tx store.GameTx, playerID string) (*models.Player, []*models.Player, error) {
	players, err := tx.Players(ctx)
	if err != nil {
		return nil, nil, err
	}
	me := findPlayer(players, playerID)
	if me == nil {
		return nil, nil, fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, playerID, tx.Game().ID)
	}
	return me, players, nil
}

func findPlayer(players []*models.Player, id string) *models.Player {
	for _, p := range players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func opponentOf(players []*models.Player, id string) *models.Player {
	for _, p := range players {
		if p.ID != id {
			return p
		}
	}
	return nil
}

func freeSeat(players []*models.Player) int {
	for seat := 1; seat <= maxPlayersPerGame; seat++ {
		taken := false
		for _, p := range players {
			if p.Seat == seat {
				taken = true
				break
			}
		}
		if !taken {
			return seat
		}
	}
	return 0
}

func cleanScreenName(name string, seat int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Sprintf("Player %d", seat), nil
	}
	if utf8.RuneCountInString(name) > maxScreenNameLen {
		return "", fmt.Errorf("%w: screen name longer than %d characters", ErrInvalidInput, maxScreenNameLen)
	}
	return name, nil
}

// CreateGame opens a new game and seats its creator.
func (s *GameService) CreateGame(ctx context.Context, screenName string) (*comm.JoinGameResponse, error) {
	if _, err := cleanScreenName(screenName, 1); err != nil {
		return nil, err
	}

	var game *models.Game
	for attempt := 0; attempt < maxCodeAttempts && game == nil; attempt++ {
		code, err := NewGameCode()
		if err != nil {
			return nil, fmt.Errorf("generate game code: %w", err)
		}
		game, err = s.store.CreateGame(ctx, code)
		if errors.Is(err, store.ErrDuplicate) {
			log.Warnf("game code %s already taken, retrying", code)
			continue
		}
		if err != nil {
			return nil, fromStore(err)
		}
	}
	if game == nil {
		return nil, fmt.Errorf("%w: no free game code after %d attempts", ErrWriteConflict, maxCodeAttempts)
	}

	log.Infof("game %s created with code %s", game.ID, game.GameCode)
	return s.join(ctx, game.ID, screenName, 0)
}

// JoinGame seats a new player in the game with the given invite code.
func (s *GameService) JoinGame(ctx context.Context, code, screenName string) (*comm.JoinGameResponse, error) {
	code = NormalizeCode(code)
	if !validCode(code) {
		return nil, fmt.Errorf("%w: no game with code %q", ErrNotFound, code)
	}
	game, err := s.store.GameByCode(ctx, code)
	if err != nil {
		return nil, fromStore(err)
	}
	return s.join(ctx, game.ID, screenName, 0)
}

func (s *GameService) join(ctx context.Context, gameID, screenName string, version int64) (*comm.JoinGameResponse, error) {
	var player *models.Player

	game, err := s.mutate(ctx, gameID, version, func(ctx context.Context, tx store.GameTx, cs *changeSet) error {
		players, err := tx.Players(ctx)
		if err != nil {
			return err
		}
		if len(players) >= maxPlayersPerGame {
			return fmt.Errorf("%w: game %s already has %d players", ErrFull, gameID, len(players))
		}
		if tx.Game().Status != models.StatusWaiting {
			return fmt.Errorf("%w: game %s is not accepting players", ErrInvalidPhase, gameID)
		}

		seat := freeSeat(players)
		name, err := cleanScreenName(screenName, seat)
		if err != nil {
			return err
		}

		p := &models.Player{ScreenName: name, Seat: seat}
		if err := tx.InsertPlayer(ctx, p); err != nil {
			return err
		}
		cs.player(comm.OpInsert, nil, p)
		player = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("player %s joined game %s in seat %d", player.ID, game.ID, player.Seat)
	return &comm.JoinGameResponse{Game: game, Player: player}, nil
}

// State returns the game as seen by viewerID. An empty viewer gets the
// public view only.
func (s *GameService) State(ctx context.Context, gameID, viewerID string) (*comm.GameState, error) {
	gameID, viewerID = normalizeID(gameID), normalizeID(viewerID)
	game, err := s.store.GameByID(ctx, gameID)
	if err != nil {
		return nil, fromStore(err)
	}
	return s.snapshot(ctx, game, viewerID)
}

// PlayerState returns the state of the game the caller is seated in.
func (s *GameService) PlayerState(ctx context.Context, req comm.PlayerRequest) (*comm.GameState, error) {
	req = normalizeRequest(req)
	gameID, err := s.gameOf(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.State(ctx, gameID, req.PlayerID)
}

func (s *GameService) StateByCode(ctx context.Context, code, viewerID string) (*comm.GameState, error) {
	viewerID = normalizeID(viewerID)
	game, err := s.GameByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, game, viewerID)
}

func (s *GameService) GameByCode(ctx context.Context, code string) (*models.Game, error) {
	code = NormalizeCode(code)
	if !validCode(code) {
		return nil, fmt.Errorf("%w: no game with code %q", ErrNotFound, code)
	}
	game, err := s.store.GameByCode(ctx, code)
	if err != nil {
		return nil, fromStore(err)
	}
	return game, nil
}

// snapshot reads the game row first so every row read afterwards is at
// least as new as the version it is stamped with.
func (s *GameService) snapshot(ctx context.Context, game *models.Game, viewerID string) (*comm.GameState, error) {
	players, err := s.store.PlayersByGame(ctx, game.ID)
	if err != nil {
		return nil, fromStore(err)
	}

	st := &comm.GameState{
		Game:          game,
		Players:       models.Views(players),
		Board:         []*models.PlayerCard{},
		OpponentBoard: []*models.PlayerCard{},
		Cards:         []*models.Card{},
		Phase:         string(session.Derive(game, len(players))),
	}

	if viewerID != "" {
		me := findPlayer(players, viewerID)
		if me == nil {
			return nil, fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, viewerID, game.ID)
		}
		st.Me = me
		if st.Board, err = s.board(ctx, me.ID); err != nil {
			return nil, err
		}
		if opp := opponentOf(players, me.ID); opp != nil {
			if st.OpponentBoard, err = s.board(ctx, opp.ID); err != nil {
				return nil, err
			}
		}
	}

	if game.DeckID != nil {
		cards, err := s.store.DeckCards(ctx, *game.DeckID)
		if err != nil {
			return nil, fromStore(err)
		}
		if cards != nil {
			st.Cards = cards
		}
	}
	return st, nil
}

func (s *GameService) board(ctx context.Context, playerID string) ([]*models.PlayerCard, error) {
	board, err := s.store.Board(ctx, playerID)
	if err != nil {
		return nil, fromStore(err)
	}
	if board == nil {
		board = []*models.PlayerCard{}
	}
	return board, nil
}

// SelectDeck activates a deck. Changing the deck clears every secret pick in
// the same transaction.
func (s *GameService) SelectDeck(ctx context.Context, req comm.PlayerRequest) (*models.Game, error) {
	req = normalizeRequest(req)
	deckID := req.DeckID
	if deckID == "" {
		return nil, fmt.Errorf("%w: deck id is required", ErrInvalidInput)
	}
	gameID, err := s.gameOf(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, gameID, req.Version, func(ctx context.Context, tx store.GameTx, cs *changeSet) error {
		game := tx.Game()
		_, players, err := seated(ctx, tx, req.PlayerID)
		if err != nil {
			return err
		}
		if game.Status != models.StatusWaiting {
			return fmt.Errorf("%w: the deck can only change before the round starts", ErrInvalidPhase)
		}
		if models.StringValue(game.DeckID) == deckID {
			return nil
		}
		if _, err := tx.Deck(ctx, deckID); err != nil {
			return err
		}

		game.DeckID = models.StringPtr(deckID)
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}
		if err := tx.ClearChosenCards(ctx); err != nil {
			return err
		}
		for _, p := range players {
			if p.ChosenCardID == nil {
				continue
			}
			after := p.Clone()
			after.ChosenCardID = nil
			cs.player(comm.OpUpdate, p, after)
		}
		return nil
	})
}

// StartGame seeds both boards and hands the first turn to a random player.
func (s *GameService) StartGame(ctx context.Context, req comm.PlayerRequest) (*models.Game, error) {
	req = normalizeRequest(req)
	gameID, err := s.gameOf(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, gameID, req.Version, func(ctx context.Context, tx store.GameTx, cs *changeSet) error {
		game := tx.Game()
		_, players, err := seated(ctx, tx, req.PlayerID)
		if err != nil {
			return err
		}
		if game.Status != models.StatusWaiting {
			return fmt.Errorf("%w: game %s has already started", ErrInvalidPhase, game.ID)
		}
		if len(players) < maxPlayersPerGame {
			return ErrNotEnoughPlayers
		}
		for _, p := range players {
			if !p.Ready() {
				return fmt.Errorf("%w: %s has not chosen a card", ErrPlayersNotReady, p.ScreenName)
			}
		}
		if game.DeckID == nil {
			return fmt.Errorf("%w: no deck selected", ErrInvalidPhase)
		}

		cards, err := tx.DeckCards(ctx, *game.DeckID)
		if err != nil {
			return err
		}
		if len(cards) == 0 {
			return fmt.Errorf("%w: deck %s has no cards", ErrInvalidPhase, *game.DeckID)
		}

		playerIDs := make([]string, 0, len(players))
		for _, p := range players {
			playerIDs = append(playerIDs, p.ID)
		}
		cardIDs := make([]string, 0, len(cards))
		for _, c := range cards {
			cardIDs = append(cardIDs, c.ID)
		}
		if err := tx.SeedBoards(ctx, playerIDs, cardIDs); err != nil {
			return err
		}
		for _, id := range playerIDs {
			board, err := tx.Board(ctx, id)
			if err != nil {
				return err
			}
			for _, pc := range board {
				cs.playerCard(comm.OpInsert, nil, pc)
			}
		}

		first := players[s.intn(len(players))]
		game.ClearRound()
		game.Status = models.StatusInProgress
		game.CurrentPlayerID = models.StringPtr(first.ID)
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}

		log.Infof("game %s started, %s goes first", game.ID, first.ID)
		return nil
	})
}

// EndTurn passes the turn to the opponent.
func (s *GameService) EndTurn(ctx context.Context, req comm.PlayerRequest) (*models.Game, error) {
	req = normalizeRequest(req)
	gameID, err := s.gameOf(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, gameID, req.Version, func(ctx context.Context, tx store.GameTx, cs *changeSet) error {
		game := tx.Game()
		me, players, err := seated(ctx, tx, req.PlayerID)
		if err != nil {
			return err
		}
		if game.Status != models.StatusInProgress {
			return fmt.Errorf("%w: no round in progress", ErrInvalidPhase)
		}
		if !game.IsTurnHolder(me.ID) {
			return fmt.Errorf("%w: only the turn holder can end the turn", ErrUnauthorized)
		}
		opp := opponentOf(players, me.ID)
		if opp == nil {
			return ErrNotEnoughPlayers
		}

		game.CurrentPlayerID = models.StringPtr(opp.ID)
		game.Guessing = false
		return tx.SaveGame(ctx, game)
	})
}

// SetGuessMode enters or leaves guess mode. Setting the current value is a no-op.
func (s *GameService) SetGuessMode(ctx context.Context, req comm.PlayerRequest, on bool) (*models.Game, error) {
	req = normalizeRequest(req)
	gameID, err := s.gameOf(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, gameID, req.Version, func(ctx context.Context, tx store.GameTx, cs *changeSet) error {
		game := tx.Game()
		me, _, err := seated(ctx, tx, req.PlayerID)
		if err != nil {
			return err
		}
		if game.Status != models.StatusInProgress {
			return fmt.Errorf("%w: no round in progress", ErrInvalidPhase)
		}
		if !game.IsTurnHolder(me.ID) {
			return fmt.Errorf("%w: only the turn holder can guess", ErrUnauthorized)
		}
		if game.Guessing == on {
			return nil
		}
		game.Guessing = on
		return tx.SaveGame(ctx, game)
	})
}

// checkGuess validates a guess against the current rows and returns the
// opponent being guessed.
func checkGuess(game *models.Game, players []*models.Player, guesserID, opponentID string) (*models.Player, error) {
	me := findPlayer(players, guesserID)
	if me == nil {
		return nil, fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, guesserID, game.ID)
	}
	if game.Status != models.StatusInProgress {
		return nil, fmt.Errorf("%w: no round in progress", ErrInvalidPhase)
	}
	if !game.IsTurnHolder(me.ID) {
		return nil, fmt.Errorf("%w: only the turn holder can guess", ErrUnauthorized)
	}
	opp := opponentOf(players, me.ID)
	if opp == nil {
		return nil, ErrNotEnoughPlayers
	}
	if opponentID != "" && opponentID != opp.ID {
		return nil, fmt.Errorf("%w: %s is not the opponent", ErrInvalidInput, opponentID)
	}
	return opp, nil
}

// SubmitGuess resolves the turn holder's final guess and finishes the round.
// The opponent's pick is only read by the resolver.
func (s *GameService) SubmitGuess(ctx context.Context, req comm.PlayerRequest) (*comm.GuessOutcome, error) {
	req = normalizeRequest(req)
	if req.CardID == "" {
		return nil, fmt.Errorf("%w: card id is required", ErrInvalidInput)
	}
	gameID, err := s.gameOf(ctx, req)
	if err != nil {
		return nil, err
	}

	game, err := s.store.GameByID(ctx, gameID)
	if err != nil {
		return nil, fromStore(err)
	}
	players, err := s.store.PlayersByGame(ctx, gameID)
	if err != nil {
		return nil, fromStore(err)
	}
	opp, err := checkGuess(game, players, req.PlayerID, req.OpponentID)
	if err != nil {
		return nil, err
	}
	card, err := s.store.Card(ctx, req.CardID)
	if err != nil {
		return nil, fromStore(err)
	}
	if card.DeckID != models.StringValue(game.DeckID) {
		return nil, fmt.Errorf("%w: card %s is not in the active deck", ErrInvalidInput, card.ID)
	}

	result, err := s.resolver.Resolve(ctx, comm.GuessRequest{
		GuessCardID: card.ID,
		OpponentID:  opp.ID,
		GameID:      gameID,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve guess: %w", err)
	}

	winner := opp.ID
	if result.Result {
		winner = req.PlayerID
	}

	finished, err := s.mutate(ctx, gameID, req.Version, func(ctx context.Context, tx store.GameTx, cs *changeSet) error {
		game := tx.Game()
		players, err := tx.Players(ctx)
		if err != nil {
			return err
		}
		current, err := checkGuess(game, players, req.PlayerID, opp.ID)
		if err != nil {
			return err
		}
		if current.ID != opp.ID {
			return fmt.Errorf("%w: opponent changed while guessing", ErrWriteConflict)
		}

		correct := result.Result
		game.Status = models.StatusFinished
		game.Guessing = false
		game.GuessCardID = models.StringPtr(card.ID)
		game.GuessCorrect = &correct
		game.RevealedCardID = models.StringPtr(result.ChosenCardID)
		game.WinnerID = models.StringPtr(winner)
		return tx.SaveGame(ctx, game)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("game %s finished: %s guessed %s, correct=%t", gameID, req.PlayerID, card.ID, result.Result)

	round := history.Round{
		GameID:         finished.ID,
		GameCode:       finished.GameCode,
		DeckID:         models.StringValue(finished.DeckID),
		GuesserID:      req.PlayerID,
		OpponentID:     opp.ID,
		GuessCardID:    card.ID,
		RevealedCardID: result.ChosenCardID,
		Correct:        result.Result,
		WinnerID:       winner,
		FinishedAt:     s.now().UTC(),
	}
	if err := s.rounds.Record(ctx, round); err != nil {
		log.Errorf("archive round of game %s: %v", gameID, err)
	}

	return &comm.GuessOutcome{
		Game:         finished,
		Correct:      result.Result,
		GuessCardID:  card.ID,
		ChosenCardID: result.ChosenCardID,
		WinnerID:     winner,
	}, nil
}

// RequestRematch records the caller's intent. Once every player asked, the
// game goes back to waiting with the same deck and seats.
func (s *GameService) RequestRematch(ctx context.Context, req comm.PlayerRequest) (*comm.RematchResponse, error) {
	req = normalizeRequest(req)
	gameID, err := s.gameOf(ctx, req)
	if err != nil {
		return nil, err
	}

	reset := false
	game, err := s.mutate(ctx, gameID, req.Version, func(ctx context.Context, tx store.GameTx, cs *changeSet) error {
		game := tx.Game()
		me, players, err := seated(ctx, tx, req.PlayerID)
		if err != nil {
			return err
		}
		if game.Status != models.StatusFinished {
			return fmt.Errorf("%w: rematch is only offered after a round", ErrInvalidPhase)
		}

		if !me.PlayAgain {
			before := me.Clone()
			me.PlayAgain = true
			if err := tx.SavePlayer(ctx, me); err != nil {
				return err
			}
			cs.player(comm.OpUpdate, before, me)
		}

		if len(players) < maxPlayersPerGame {
			return nil
		}
		for _, p := range players {
			if !p.PlayAgain {
				return nil
			}
		}
		reset = true
		return resetRound(ctx, tx, cs, game, players)
	})
	if err != nil {
		return nil, err
	}

	if reset {
		log.Infof("game %s reset for a rematch", game.ID)
	}
	return &comm.RematchResponse{Game: game, Reset: reset}, nil
}

// resetRound puts the game back to waiting: boards are dropped, picks and
// rematch flags cleared. The deck and the seats stay.
func resetRound(ctx context.Context, tx store.GameTx, cs *changeSet, game *models.Game, players []*models.Player) error {
	for _, p := range players {
		board, err := tx.Board(ctx, p.ID)
		if err != nil {
			return err
		}
		for _, pc := range board {
			cs.playerCard(comm.OpDelete, pc, nil)
		}
	}
	if err := tx.DeleteBoards(ctx); err != nil {
		return err
	}

	for _, p := range players {
		if p.ChosenCardID == nil && !p.PlayAgain {
			continue
		}
		before := p.Clone()
		p.ChosenCardID = nil
		p.PlayAgain = false
		if err := tx.SavePlayer(ctx, p); err != nil {
			return err
		}
		cs.player(comm.OpUpdate, before, p)
	}

	game.Status = models.StatusWaiting
	game.ClearRound()
	return tx.SaveGame(ctx, game)
}
