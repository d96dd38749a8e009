package store

import (
	"context"
	"time"

	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
)

type PlayerStore struct {
	db DBTX
}

func NewPlayerStore(db DBTX) *PlayerStore {
	return &PlayerStore{db: db}
}

const playerColumns = `id, game_id, screen_name, seat, chosen_card_id, last_seen, play_again, created_at`

func scanPlayer(row interface{ Scan(dest ...any) error }) (*models.Player, error) {
	p := &models.Player{}
	err := row.Scan(
		&p.ID,
		&p.GameID,
		&p.ScreenName,
		&p.Seat,
		&p.ChosenCardID,
		&p.LastSeen,
		&p.PlayAgain,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PlayerStore) queryPlayers(ctx context.Context, what, query string, args ...any) ([]*models.Player, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err, what)
	}
	defer rows.Close()

	var players []*models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, translate(err, what)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, what)
	}
	return players, nil
}

func (s *PlayerStore) PlayerByID(ctx context.Context, playerID string) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	p, err := scanPlayer(s.db.QueryRow(ctx, query, playerID))
	if err != nil {
		return nil, translate(err, "get player")
	}
	return p, nil
}

// PlayersByGame returns the seated players ordered by seat.
func (s *PlayerStore) PlayersByGame(ctx context.Context, gameID string) ([]*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE game_id = $1 ORDER BY seat`
	return s.queryPlayers(ctx, "get players by game", query, gameID)
}

// TouchPlayer records a heartbeat.
func (s *PlayerStore) TouchPlayer(ctx context.Context, playerID string) (*models.Player, error) {
	query := `
		UPDATE players SET last_seen = now()
		WHERE id = $1
		RETURNING ` + playerColumns

	p, err := scanPlayer(s.db.QueryRow(ctx, query, playerID))
	if err != nil {
		return nil, translate(err, "touch player")
	}
	return p, nil
}

// StaleCutoff returns the instant timeout ago on the database clock, the
// clock last_seen is written with.
func (s *PlayerStore) StaleCutoff(ctx context.Context, timeout time.Duration) (time.Time, error) {
	var cutoff time.Time
	err := s.db.QueryRow(ctx, `SELECT now() - make_interval(secs => $1)`, timeout.Seconds()).Scan(&cutoff)
	if err != nil {
		return time.Time{}, translate(err, "get stale cutoff")
	}
	return cutoff, nil
}

// StalePlayers lists players whose last heartbeat is older than cutoff, oldest first.
func (s *PlayerStore) StalePlayers(ctx context.Context, cutoff time.Time, limit int) ([]*models.Player, error) {
	query := `
		SELECT ` + playerColumns + `
		FROM players
		WHERE last_seen < $1
		ORDER BY last_seen
		LIMIT $2`
	return s.queryPlayers(ctx, "get stale players", query, cutoff, limit)
}

// insertPlayer fills in the generated columns on p.
func (s *PlayerStore) insertPlayer(ctx context.Context, p *models.Player) error {
	query := `
		INSERT INTO players (game_id, screen_name, seat)
		VALUES ($1, $2, $3)
		RETURNING ` + playerColumns

	inserted, err := scanPlayer(s.db.QueryRow(ctx, query, p.GameID, p.ScreenName, p.Seat))
	if err != nil {
		return translate(err, "insert player")
	}
	*p = *inserted
	return nil
}

func (s *PlayerStore) savePlayer(ctx context.Context, p *models.Player) error {
	query := `
		UPDATE players
		SET screen_name = $2, chosen_card_id = $3, play_again = $4
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, p.ID, p.ScreenName, p.ChosenCardID, p.PlayAgain)
	if err != nil {
		return translate(err, "update player")
	}
	if tag.RowsAffected() == 0 {
		return translate(ErrNoRows, "update player")
	}
	return nil
}

func (s *PlayerStore) deletePlayer(ctx context.Context, playerID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM players WHERE id = $1`, playerID)
	if err != nil {
		return translate(err, "delete player")
	}
	if tag.RowsAffected() == 0 {
		return translate(ErrNoRows, "delete player")
	}
	return nil
}

func (s *PlayerStore) clearChosenCards(ctx context.Context, gameID string) error {
	_, err := s.db.Exec(ctx, `UPDATE players SET chosen_card_id = NULL WHERE game_id = $1`, gameID)
	return translate(err, "clear chosen cards")
}
