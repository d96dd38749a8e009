package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/service"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const guessTimeout = 5 * time.Second

type natsRequester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// GuessClient resolves guesses through guesssvc over NATS request/reply.
type GuessClient struct {
	conn natsRequester
}

func NewGuessClient(conn natsRequester) *GuessClient {
	return &GuessClient{conn: conn}
}

func (c *GuessClient) Resolve(ctx context.Context, req comm.GuessRequest) (*comm.GuessResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal guess request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, guessTimeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(ctx, comm.TopicGuessResolve, payload)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", comm.TopicGuessResolve, err)
	}

	var reply comm.GuessReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode guess reply: %w", err)
	}
	if reply.Error != nil {
		return nil, service.FromWire(reply.Error)
	}
	return &reply.GuessResult, nil
}

// ServeGuesses answers guess.resolve requests. Instances share the queue group.
func ServeGuesses(nc *nats.Conn, resolver service.GuessResolver) (*nats.Subscription, error) {
	return nc.QueueSubscribe(comm.TopicGuessResolve, comm.QueueGuessService, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), guessTimeout)
		defer cancel()

		if err := msg.Respond(answerGuess(ctx, resolver, msg.Data)); err != nil {
			log.Errorf("Error responding to guess request: %s", err)
		}
	})
}

func answerGuess(ctx context.Context, resolver service.GuessResolver, data []byte) []byte {
	var (
		req   comm.GuessRequest
		reply comm.GuessReply
	)

	if err := json.Unmarshal(data, &req); err != nil {
		reply.Error = service.WireError(fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
	} else if res, err := resolver.Resolve(ctx, req); err != nil {
		log.Warnf("guess for game %s not resolved: %s", req.GameID, err)
		reply.Error = service.WireError(err)
	} else {
		reply.GuessResult = *res
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		log.Errorf("Error marshal guess reply: %s", err)
		return []byte(`{"error":{"code":"internal","message":"internal error"}}`)
	}
	return payload
}
