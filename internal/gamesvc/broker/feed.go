package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avvvet/whodidichoose/internal/comm"
)

// natsPublisher is the part of *nats.Conn the feed needs.
type natsPublisher interface {
	Publish(subj string, data []byte) error
}

// FeedPublisher puts committed row changes on the changes.<table>.<key>
// subjects.
type FeedPublisher struct {
	conn natsPublisher
}

func NewFeedPublisher(conn natsPublisher) *FeedPublisher {
	return &FeedPublisher{conn: conn}
}

func (p *FeedPublisher) Publish(ctx context.Context, events []comm.ChangeEvent) error {
	var errs []error
	for i := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(&events[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal %s event: %w", events[i].Table, err))
			continue
		}
		if err := p.conn.Publish(events[i].Subject(), payload); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", events[i].Subject(), err))
		}
	}
	return errors.Join(errs...)
}
