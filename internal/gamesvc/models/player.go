package models

import "time"

type Player struct {
	ID           string    `json:"id"`             // Primary key, also the client's identity token
	GameID       string    `json:"game_id"`        // FK to games(id)
	ScreenName   string    `json:"screen_name"`    // Editable display name
	Seat         int       `json:"seat"`           // 1 or 2, unique per game
	ChosenCardID *string   `json:"chosen_card_id"` // Secret pick, never sent to the opponent
	LastSeen     time.Time `json:"last_seen"`      // Heartbeat timestamp
	PlayAgain    bool      `json:"play_again"`     // Rematch intent
	CreatedAt    time.Time `json:"created_at"`
}

// PlayerView is the row as other participants may see it: the secret pick is
// reduced to a readiness flag.
type PlayerView struct {
	ID         string    `json:"id"`
	GameID     string    `json:"game_id"`
	ScreenName string    `json:"screen_name"`
	Seat       int       `json:"seat"`
	Ready      bool      `json:"ready"`
	LastSeen   time.Time `json:"last_seen"`
	PlayAgain  bool      `json:"play_again"`
}

func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	c.ChosenCardID = cloneString(p.ChosenCardID)
	return &c
}

func (p *Player) Ready() bool {
	return p.ChosenCardID != nil
}

func (p *Player) View() PlayerView {
	return PlayerView{
		ID:         p.ID,
		GameID:     p.GameID,
		ScreenName: p.ScreenName,
		Seat:       p.Seat,
		Ready:      p.Ready(),
		LastSeen:   p.LastSeen,
		PlayAgain:  p.PlayAgain,
	}
}

// Views redacts a list of players.
func Views(players []*Player) []PlayerView {
	out := make([]PlayerView, 0, len(players))
	for _, p := range players {
		out = append(out, p.View())
	}
	return out
}
