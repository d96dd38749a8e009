package comm

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tables published on the change feed.
const (
	TableGames       = "games"
	TablePlayers     = "players"
	TablePlayerCards = "player_cards"
	TableCards       = "cards"
)

type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent is a single row change. Key is the filter value the subject is
// built from: game id for games and players, player id for player_cards,
// deck id for cards. Version is the game version the change committed at and
// Seq its position within that commit.
type ChangeEvent struct {
	Table   string          `json:"table"`
	Op      ChangeOp        `json:"op"`
	Key     string          `json:"key"`
	Old     json.RawMessage `json:"old,omitempty"`
	New     json.RawMessage `json:"new,omitempty"`
	Version int64           `json:"version"`
	Seq     int             `json:"seq"`
	At      time.Time       `json:"at"`
}

// Subject returns the NATS subject the event is published on.
func (e *ChangeEvent) Subject() string {
	return Subject(e.Table, e.Key)
}

func Subject(table, key string) string {
	return fmt.Sprintf("changes.%s.%s", table, key)
}

// GameSubjects lists the subjects a client of one game listens to.
func GameSubjects(gameID, playerID, opponentID string) []string {
	subjects := []string{
		Subject(TableGames, gameID),
		Subject(TablePlayers, gameID),
	}
	if playerID != "" {
		subjects = append(subjects, Subject(TablePlayerCards, playerID))
	}
	if opponentID != "" {
		subjects = append(subjects, Subject(TablePlayerCards, opponentID))
	}
	return subjects
}

// NewChangeEvent marshals old and new rows; either may be nil.
func NewChangeEvent(table string, op ChangeOp, key string, old, new any) (ChangeEvent, error) {
	ev := ChangeEvent{Table: table, Op: op, Key: key, At: time.Now().UTC()}
	if old != nil {
		b, err := json.Marshal(old)
		if err != nil {
			return ev, fmt.Errorf("marshal old %s row: %w", table, err)
		}
		ev.Old = b
	}
	if new != nil {
		b, err := json.Marshal(new)
		if err != nil {
			return ev, fmt.Errorf("marshal new %s row: %w", table, err)
		}
		ev.New = b
	}
	return ev, nil
}
