package service

import (
	"strings"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/google/uuid"
)

// normalizeID rewrites any accepted uuid spelling (upper case, braces, urn
// prefix) into the canonical form Postgres returns. Anything else is only
// trimmed and left for the store to reject.
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

func normalizeRequest(req comm.PlayerRequest) comm.PlayerRequest {
	req.PlayerID = normalizeID(req.PlayerID)
	req.GameID = normalizeID(req.GameID)
	req.DeckID = normalizeID(req.DeckID)
	req.CardID = normalizeID(req.CardID)
	req.OpponentID = normalizeID(req.OpponentID)
	return req
}
