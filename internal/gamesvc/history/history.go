// Package history archives finished rounds.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/whodidichoose/internal/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "rounds"

// Round is one finished round.
type Round struct {
	GameID         string    `bson:"game_id" json:"game_id"`
	GameCode       string    `bson:"game_code" json:"game_code"`
	DeckID         string    `bson:"deck_id" json:"deck_id"`
	GuesserID      string    `bson:"guesser_id" json:"guesser_id"`
	OpponentID     string    `bson:"opponent_id" json:"opponent_id"`
	GuessCardID    string    `bson:"guess_card_id" json:"guess_card_id"`
	RevealedCardID string    `bson:"revealed_card_id" json:"revealed_card_id"`
	Correct        bool      `bson:"correct" json:"correct"`
	WinnerID       string    `bson:"winner_id" json:"winner_id"`
	FinishedAt     time.Time `bson:"finished_at" json:"finished_at"`
	ExpiresAt      time.Time `bson:"expires_at" json:"-"`
}

type Archive interface {
	Record(ctx context.Context, r Round) error
	ByGame(ctx context.Context, gameID string, limit int64) ([]Round, error)
}

type MongoArchive struct {
	coll *mongo.Collection
	ttl  time.Duration
}

// NewMongoArchive makes sure the TTL index exists. Rounds are kept for ttl.
func NewMongoArchive(ctx context.Context, database *mongo.Database, ttl time.Duration) (*MongoArchive, error) {
	if err := db.CreateTTLIndexForCollection(ctx, database, collectionName); err != nil {
		return nil, err
	}
	return &MongoArchive{coll: database.Collection(collectionName), ttl: ttl}, nil
}

func (a *MongoArchive) Record(ctx context.Context, r Round) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now().UTC()
	}
	r.ExpiresAt = r.FinishedAt.Add(a.ttl)

	if _, err := a.coll.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("record round of game %s: %w", r.GameID, err)
	}
	return nil
}

// ByGame returns the most recent rounds first.
func (a *MongoArchive) ByGame(ctx context.Context, gameID string, limit int64) ([]Round, error) {
	opts := options.Find().SetSort(bson.D{{Key: "finished_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := a.coll.Find(ctx, bson.M{"game_id": gameID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find rounds of game %s: %w", gameID, err)
	}
	defer cur.Close(ctx)

	rounds := []Round{}
	if err := cur.All(ctx, &rounds); err != nil {
		return nil, fmt.Errorf("decode rounds: %w", err)
	}
	return rounds, nil
}

// NoopArchive is used when no MongoDB is configured.
type NoopArchive struct{}

func (NoopArchive) Record(context.Context, Round) error { return nil }

func (NoopArchive) ByGame(context.Context, string, int64) ([]Round, error) {
	return []Round{}, nil
}
