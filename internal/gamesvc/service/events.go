package service

import (
	"context"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	log "github.com/sirupsen/logrus"
)

// Publisher delivers committed row changes to the change feed.
type Publisher interface {
	Publish(ctx context.Context, events []comm.ChangeEvent) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, []comm.ChangeEvent) error { return nil }

// changeSet collects the row changes of one transaction. Nothing is published
// unless the transaction commits.
type changeSet struct {
	events []comm.ChangeEvent
	err    error
}

func (c *changeSet) add(table string, op comm.ChangeOp, key string, old, new any) {
	if c.err != nil {
		return
	}
	ev, err := comm.NewChangeEvent(table, op, key, old, new)
	if err != nil {
		c.err = err
		return
	}
	c.events = append(c.events, ev)
}

// player records a player change. Rows are redacted before they leave the
// transaction.
func (c *changeSet) player(op comm.ChangeOp, old, new *models.Player) {
	var o, n any
	key := ""
	if old != nil {
		o = old.View()
		key = old.GameID
	}
	if new != nil {
		n = new.View()
		key = new.GameID
	}
	c.add(comm.TablePlayers, op, key, o, n)
}

func (c *changeSet) playerCard(op comm.ChangeOp, old, new *models.PlayerCard) {
	var o, n any
	key := ""
	if old != nil {
		o = old
		key = old.PlayerID
	}
	if new != nil {
		n = new
		key = new.PlayerID
	}
	c.add(comm.TablePlayerCards, op, key, o, n)
}

// commit stamps every event with the committed version and its order in the
// batch. The game row change comes first.
func (c *changeSet) commit(before, after *models.Game) []comm.ChangeEvent {
	if c.err != nil {
		return nil
	}
	gameEv, err := comm.NewChangeEvent(comm.TableGames, comm.OpUpdate, after.ID, before, after)
	if err != nil {
		c.err = err
		return nil
	}
	events := append([]comm.ChangeEvent{gameEv}, c.events...)
	for i := range events {
		events[i].Version = after.Version
		events[i].Seq = i
	}
	return events
}

// publish logs failures. The write has already committed.
func publish(ctx context.Context, pub Publisher, events []comm.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	if err := pub.Publish(ctx, events); err != nil {
		log.Errorf("publish %d change events: %v", len(events), err)
	}
}
