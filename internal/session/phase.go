// Package session derives what a player sees from persisted rows and keeps a
// client-side mirror of one game up to date from the change feed.
package session

import "github.com/avvvet/whodidichoose/internal/gamesvc/models"

type Phase string

const (
	PhaseWaitingForPlayers Phase = "WAITING_FOR_PLAYERS"
	PhaseDeckSelection     Phase = "DECK_SELECTION"
	PhaseCardSelection     Phase = "CARD_SELECTION"
	PhaseInProgress        Phase = "IN_PROGRESS"
	PhaseGuessMode         Phase = "GUESS_MODE"
	PhaseFinished          Phase = "FINISHED"
)

// Derive computes the phase of a game. It is never stored.
func Derive(g *models.Game, playerCount int) Phase {
	if g == nil {
		return PhaseWaitingForPlayers
	}
	switch g.Status {
	case models.StatusFinished:
		return PhaseFinished
	case models.StatusInProgress:
		if playerCount < 2 {
			return PhaseWaitingForPlayers
		}
		if g.Guessing {
			return PhaseGuessMode
		}
		return PhaseInProgress
	}

	if playerCount < 2 {
		return PhaseWaitingForPlayers
	}
	if g.DeckID == nil {
		return PhaseDeckSelection
	}
	return PhaseCardSelection
}

// CanStart reports whether a start request would be accepted.
func CanStart(g *models.Game, players []models.PlayerView) bool {
	if g == nil || g.Status != models.StatusWaiting || g.DeckID == nil || len(players) != 2 {
		return false
	}
	for _, p := range players {
		if !p.Ready {
			return false
		}
	}
	return true
}
