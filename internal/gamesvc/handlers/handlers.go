package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/history"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/avvvet/whodidichoose/internal/gamesvc/service"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

const maxBody = 1 << 16

type Games interface {
	GameByCode(ctx context.Context, code string) (*models.Game, error)
	StateByCode(ctx context.Context, code, viewerID string) (*comm.GameState, error)
}

type Decks interface {
	Decks(ctx context.Context) ([]*models.Deck, error)
	DeckCards(ctx context.Context, deckID string) ([]*models.Card, error)
	CreateDeck(ctx context.Context, name, coverImage string) (*models.Deck, error)
	AddCard(ctx context.Context, deckID, image string) (*models.Card, error)
	RenameCard(ctx context.Context, cardID, name string) (*models.Card, error)
}

type Rounds interface {
	ByGame(ctx context.Context, gameID string, limit int64) ([]history.Round, error)
}

type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	games     Games
	decks     Decks
	rounds    Rounds
	resolver  service.GuessResolver
	publicURL string
	port      string
}

func NewHandler(games Games, decks Decks, rounds Rounds, resolver service.GuessResolver, publicURL, port string) *Handler {
	return &Handler{
		games:     games,
		decks:     decks,
		rounds:    rounds,
		resolver:  resolver,
		publicURL: publicURL,
		port:      port,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Error encoding response: %s", err)
	}
}

func (h *Handler) ok(w http.ResponseWriter, message string, data interface{}) {
	h.CreateResponse(w, Response{Message: message, Code: http.StatusOK, Data: data})
}

// fail writes err with the status its service error maps to.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := service.ErrorCode(err)
	status := StatusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Errorf("Error %s %s: %s", r.Method, r.URL.Path, err)
		msg = "internal error"
	}
	h.CreateResponse(w, Response{Message: code, Code: status, Error: msg})
}

// StatusFor maps a wire error code to an HTTP status.
func StatusFor(code string) int {
	switch code {
	case comm.CodeNotFound:
		return http.StatusNotFound
	case comm.CodeFull, comm.CodeNotEnoughPlayers, comm.CodePlayersNotReady,
		comm.CodeInvalidPhase, comm.CodeWriteConflict:
		return http.StatusConflict
	case comm.CodeUnauthorized:
		return http.StatusForbidden
	case comm.CodeInvalidInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: request body too large", service.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	return nil
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.ok(w, "game service is running at port "+h.port, nil)
}
