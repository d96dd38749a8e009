package handlers

import (
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {

		// public routes here
		r.Get("/decks", h.DecksHandler)
		r.Post("/decks", h.CreateDeckHandler)
		r.Get("/decks/{deckID}/cards", h.DeckCardsHandler)
		r.Post("/decks/{deckID}/cards", h.AddCardHandler)
		r.Patch("/cards/{cardID}", h.RenameCardHandler)

		r.Route("/games/{code}", func(r chi.Router) {
			r.Get("/", h.GameHandler)
			r.Get("/state", h.StateHandler)
			r.Get("/qr", h.QRHandler)
			r.Get("/history", h.HistoryHandler)
		})

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Get("/health", h.HealthHandler)
			r.Post("/internal/guess", h.GuessHandler)
		})
	})
}

// InitAuth sets the service JWT key. debugToken logs a week-long token for
// local testing.
func (h *Handler) InitAuth(secret string, debugToken bool) {
	h.tokenAuth = jwtauth.New("HS256", []byte(secret), nil)

	if !debugToken {
		return
	}
	tokenString, err := h.ServiceToken("gamesvc", 7*24*time.Hour)
	if err != nil {
		log.Warnf("unable to sign debug token: %s", err)
		return
	}
	log.Debugf("DEBUG: service JWT for testing: %s", tokenString)
}

// ServiceToken signs a token other services present on the secure routes.
func (h *Handler) ServiceToken(serviceID string, ttl time.Duration) (string, error) {
	_, tokenString, err := h.tokenAuth.Encode(map[string]interface{}{
		"service_id": serviceID,
		"exp":        time.Now().Add(ttl).Unix(),
	})
	return tokenString, err
}
