package handlers

import (
	"net/http"

	"github.com/go-chi/chi"
)

type CreateDeckRequest struct {
	Name       string `json:"name"`
	CoverImage string `json:"cover_image"`
}

type AddCardRequest struct {
	Image string `json:"image"`
}

type RenameCardRequest struct {
	Name string `json:"name"`
}

func (h *Handler) DecksHandler(w http.ResponseWriter, r *http.Request) {
	decks, err := h.decks.Decks(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "decks", decks)
}

func (h *Handler) CreateDeckHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateDeckRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	deck, err := h.decks.CreateDeck(r.Context(), req.Name, req.CoverImage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.CreateResponse(w, Response{Message: "deck created", Code: http.StatusCreated, Data: deck})
}

func (h *Handler) DeckCardsHandler(w http.ResponseWriter, r *http.Request) {
	cards, err := h.decks.DeckCards(r.Context(), chi.URLParam(r, "deckID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "cards", cards)
}

func (h *Handler) AddCardHandler(w http.ResponseWriter, r *http.Request) {
	var req AddCardRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	card, err := h.decks.AddCard(r.Context(), chi.URLParam(r, "deckID"), req.Image)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.CreateResponse(w, Response{Message: "card added", Code: http.StatusCreated, Data: card})
}

func (h *Handler) RenameCardHandler(w http.ResponseWriter, r *http.Request) {
	var req RenameCardRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	card, err := h.decks.RenameCard(r.Context(), chi.URLParam(r, "cardID"), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "card renamed", card)
}
