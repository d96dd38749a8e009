package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/avvvet/whodidichoose/internal/gamesvc/service"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const commandTimeout = 10 * time.Second

// Sessions is the command surface of the game service.
type Sessions interface {
	CreateGame(ctx context.Context, screenName string) (*comm.JoinGameResponse, error)
	JoinGame(ctx context.Context, code, screenName string) (*comm.JoinGameResponse, error)
	RenamePlayer(ctx context.Context, req comm.PlayerRequest) (*models.Player, error)
	Heartbeat(ctx context.Context, playerID string) (*models.Player, error)
	PlayerState(ctx context.Context, req comm.PlayerRequest) (*comm.GameState, error)
	SelectDeck(ctx context.Context, req comm.PlayerRequest) (*models.Game, error)
	ChooseCard(ctx context.Context, req comm.PlayerRequest) (*models.Player, error)
	StartGame(ctx context.Context, req comm.PlayerRequest) (*models.Game, error)
	ToggleFlip(ctx context.Context, req comm.PlayerRequest) (*models.PlayerCard, error)
	EndTurn(ctx context.Context, req comm.PlayerRequest) (*models.Game, error)
	SetGuessMode(ctx context.Context, req comm.PlayerRequest, on bool) (*models.Game, error)
	SubmitGuess(ctx context.Context, req comm.PlayerRequest) (*comm.GuessOutcome, error)
	RequestRematch(ctx context.Context, req comm.PlayerRequest) (*comm.RematchResponse, error)
	Leave(ctx context.Context, req comm.PlayerRequest) (*models.Game, error)
}

type Broker struct {
	Conn        *nats.Conn
	GameService Sessions
}

func NewBroker(nc *nats.Conn, gameService Sessions) *Broker {
	return &Broker{
		Conn:        nc,
		GameService: gameService,
	}
}

// handles message coming from socket
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	msg := &comm.WSMessage{}
	if err := json.Unmarshal(msgNat.Data, msg); err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	reply := b.dispatch(ctx, msg)

	payload, err := json.Marshal(reply)
	if err != nil {
		log.Errorf("Error marshal %s reply for socket %s: %s", reply.Type, reply.SocketId, err)
		return
	}
	b.Publish(comm.TopicGameService, payload)
}

// dispatch runs one command and builds the reply envelope.
func (b *Broker) dispatch(ctx context.Context, msg *comm.WSMessage) *comm.WSMessage {
	var (
		data any
		err  error
	)

	switch msg.Type {
	case comm.TypeCreateGame:
		var req comm.CreateGameRequest
		if err = decode(msg, &req); err == nil {
			data, err = b.GameService.CreateGame(ctx, req.ScreenName)
		}
	case comm.TypeJoinGame:
		var req comm.JoinGameRequest
		if err = decode(msg, &req); err == nil {
			data, err = b.GameService.JoinGame(ctx, req.GameCode, req.ScreenName)
		}
	default:
		var req comm.PlayerRequest
		if err = decode(msg, &req); err == nil {
			data, err = b.playerCommand(ctx, msg.Type, req)
		}
	}

	reply := &comm.WSMessage{
		Type:      comm.ResponseType(msg.Type),
		SocketId:  msg.SocketId,
		RequestId: msg.RequestId,
	}
	if err != nil {
		if service.ErrorCode(err) == comm.CodeInternal {
			log.Errorf("Error [%s] socket %s: %s", msg.Type, msg.SocketId, err)
		} else {
			log.Debugf("rejected [%s] socket %s: %s", msg.Type, msg.SocketId, err)
		}
		reply.Error = service.WireError(err)
		return reply
	}

	raw, err := json.Marshal(data)
	if err != nil {
		log.Errorf("Error marshal %s response: %s", msg.Type, err)
		reply.Error = service.WireError(err)
		return reply
	}
	reply.Data = raw
	return reply
}

func (b *Broker) playerCommand(ctx context.Context, msgType string, req comm.PlayerRequest) (any, error) {
	switch msgType {
	case comm.TypeRename:
		return b.GameService.RenamePlayer(ctx, req)
	case comm.TypeHeartbeat:
		return b.GameService.Heartbeat(ctx, req.PlayerID)
	case comm.TypeGetState:
		return b.GameService.PlayerState(ctx, req)
	case comm.TypeSelectDeck:
		return b.GameService.SelectDeck(ctx, req)
	case comm.TypeChooseCard:
		return b.GameService.ChooseCard(ctx, req)
	case comm.TypeStartGame:
		return b.GameService.StartGame(ctx, req)
	case comm.TypeToggleFlip:
		return b.GameService.ToggleFlip(ctx, req)
	case comm.TypeEndTurn:
		return b.GameService.EndTurn(ctx, req)
	case comm.TypeEnterGuess:
		return b.GameService.SetGuessMode(ctx, req, true)
	case comm.TypeExitGuess:
		return b.GameService.SetGuessMode(ctx, req, false)
	case comm.TypeSubmitGuess:
		return b.GameService.SubmitGuess(ctx, req)
	case comm.TypeRequestRematch:
		return b.GameService.RequestRematch(ctx, req)
	case comm.TypeLeave:
		return b.GameService.Leave(ctx, req)
	}
	return nil, fmt.Errorf("%w: unknown message type %q", service.ErrInvalidInput, msgType)
}

func decode(msg *comm.WSMessage, dst any) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("%w: %s without data", service.ErrInvalidInput, msg.Type)
	}
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", service.ErrInvalidInput, msg.Type, err)
	}
	return nil
}

// consume message from socket service (Queue), so several gamesvc instances
// share the load
func (b *Broker) QueueSubscribSocketService(topic, queueGroup string) (*nats.Subscription, error) {
	sub, err := b.Conn.QueueSubscribe(topic, queueGroup, b.handleMessage)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// publish message for socket service to consume
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}
