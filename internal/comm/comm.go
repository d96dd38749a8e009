package comm

import (
	"encoding/json"

	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
)

// NATS subjects shared by the services.
const (
	TopicSocketService = "socket.service" // commands from socketsvc to gamesvc
	TopicGameService   = "game.service"   // replies from gamesvc to socketsvc
	TopicGuessResolve  = "guess.resolve"  // request/reply to guesssvc
	QueueGuessService  = "guesssvc"
)

// Command and reply types carried in WSMessage.Type.
const (
	TypeCreateGame     = "create-game"
	TypeJoinGame       = "join-game"
	TypeRename         = "rename"
	TypeHeartbeat      = "heartbeat"
	TypeGetState       = "get-state"
	TypeSelectDeck     = "select-deck"
	TypeChooseCard     = "choose-card"
	TypeStartGame      = "start-game"
	TypeToggleFlip     = "toggle-flip"
	TypeEndTurn        = "end-turn"
	TypeEnterGuess     = "enter-guess"
	TypeExitGuess      = "exit-guess"
	TypeSubmitGuess    = "submit-guess"
	TypeRequestRematch = "request-rematch"
	TypeLeave          = "leave"

	// handled by socketsvc only
	TypeSubscribe = "subscribe"
	TypeChange    = "change"
	TypeState     = "state"
	TypeError     = "error"
)

// ResponseType is the reply type for a command type.
func ResponseType(t string) string {
	return t + "-response"
}

type WSMessage struct {
	Type      string          `json:"type"` // e.g. "join-game", "toggle-flip"
	Data      json.RawMessage `json:"data,omitempty"`
	SocketId  string          `json:"socketid,omitempty"`
	RequestId string          `json:"requestid,omitempty"` // echoed back on the reply
	Error     *Error          `json:"error,omitempty"`
}

// Wire error codes.
const (
	CodeNotFound         = "not_found"
	CodeFull             = "full"
	CodeNotEnoughPlayers = "not_enough_players"
	CodePlayersNotReady  = "players_not_ready"
	CodeUnauthorized     = "unauthorized"
	CodeWriteConflict    = "write_conflict"
	CodeInvalidPhase     = "invalid_phase"
	CodeInvalidInput     = "invalid_input"
	CodeInternal         = "internal"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Command payloads. Every command names the acting player explicitly.
type CreateGameRequest struct {
	ScreenName string `json:"screen_name"`
}

type JoinGameRequest struct {
	GameCode   string `json:"game_code"`
	ScreenName string `json:"screen_name"`
}

type JoinGameResponse struct {
	Game   *models.Game   `json:"game"`
	Player *models.Player `json:"player"`
}

type PlayerRequest struct {
	PlayerID   string `json:"player_id"`
	GameID     string `json:"game_id,omitempty"`
	ScreenName string `json:"screen_name,omitempty"`
	DeckID     string `json:"deck_id,omitempty"`
	CardID     string `json:"card_id,omitempty"`
	OpponentID string `json:"opponent_id,omitempty"`
	Version    int64  `json:"version,omitempty"` // expected game version, 0 skips the check
}

type GuessOutcome struct {
	Game         *models.Game `json:"game"`
	Correct      bool         `json:"correct"`
	GuessCardID  string       `json:"guess_card_id"`
	ChosenCardID string       `json:"chosen_card_id"`
	WinnerID     string       `json:"winner_id"`
}

type RematchResponse struct {
	Game  *models.Game `json:"game"`
	Reset bool         `json:"reset"`
}

// GameState is a viewer-specific snapshot of one game.
type GameState struct {
	Game          *models.Game         `json:"game"`
	Players       []models.PlayerView  `json:"players"`
	Me            *models.Player       `json:"me,omitempty"`
	Board         []*models.PlayerCard `json:"board"`
	OpponentBoard []*models.PlayerCard `json:"opponent_board"`
	Cards         []*models.Card       `json:"cards"`
	Phase         string               `json:"phase"`
}

// Guess resolution boundary.
type GuessRequest struct {
	GuessCardID string `json:"guessCardId"`
	OpponentID  string `json:"opponentId"`
	GameID      string `json:"gameId"`
}

type GuessResult struct {
	Result       bool   `json:"result"`
	ChosenCardID string `json:"chosenCardId"`
}

type GuessReply struct {
	GuessResult
	Error *Error `json:"error,omitempty"`
}
