package handlers

import (
	"net/http"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/avvvet/whodidichoose/internal/gamesvc/service"
	"github.com/go-chi/chi"
	"github.com/skip2/go-qrcode"
	log "github.com/sirupsen/logrus"
)

const (
	qrSize       = 320
	historyLimit = 50
)

type GameInfo struct {
	Game        *models.Game `json:"game"`
	DisplayCode string       `json:"display_code"`
	JoinURL     string       `json:"join_url"`
}

func (h *Handler) joinURL(code string) string {
	return h.publicURL + "/join/" + service.NormalizeCode(code)
}

func (h *Handler) GameHandler(w http.ResponseWriter, r *http.Request) {
	game, err := h.games.GameByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "game", GameInfo{
		Game:        game,
		DisplayCode: service.PrettyCode(game.GameCode),
		JoinURL:     h.joinURL(game.GameCode),
	})
}

// StateHandler returns the snapshot for ?player=<id>; without a player the
// public view is returned.
func (h *Handler) StateHandler(w http.ResponseWriter, r *http.Request) {
	st, err := h.games.StateByCode(r.Context(), chi.URLParam(r, "code"), r.URL.Query().Get("player"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "state", st)
}

func (h *Handler) QRHandler(w http.ResponseWriter, r *http.Request) {
	game, err := h.games.GameByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	png, err := qrcode.Encode(h.joinURL(game.GameCode), qrcode.Medium, qrSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := w.Write(png); err != nil {
		log.Warnf("qr write for game %s: %s", game.ID, err)
	}
}

func (h *Handler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	game, err := h.games.GameByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rounds, err := h.rounds.ByGame(r.Context(), game.ID, historyLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "history", rounds)
}

// GuessHandler exposes the guess resolver to trusted services.
func (h *Handler) GuessHandler(w http.ResponseWriter, r *http.Request) {
	var req comm.GuessRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.resolver.Resolve(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "guess resolved", res)
}
