package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/avvvet/whodidichoose/internal/gamesvc/store"
	log "github.com/sirupsen/logrus"
)

const maxDeckNameLen = 64

// CardService manages decks and their cards. Standard decks are read-only.
type CardService struct {
	store store.Store
	pub   Publisher
}

func NewCardService(st store.Store, pub Publisher) *CardService {
	if pub == nil {
		pub = NoopPublisher{}
	}
	return &CardService{store: st, pub: pub}
}

func (s *CardService) Decks(ctx context.Context) ([]*models.Deck, error) {
	decks, err := s.store.Decks(ctx)
	if err != nil {
		return nil, fromStore(err)
	}
	if decks == nil {
		decks = []*models.Deck{}
	}
	return decks, nil
}

func (s *CardService) DeckCards(ctx context.Context, deckID string) ([]*models.Card, error) {
	deckID = normalizeID(deckID)
	if _, err := s.store.Deck(ctx, deckID); err != nil {
		return nil, fromStore(err)
	}
	cards, err := s.store.DeckCards(ctx, deckID)
	if err != nil {
		return nil, fromStore(err)
	}
	if cards == nil {
		cards = []*models.Card{}
	}
	return cards, nil
}

// CreateDeck creates an empty custom deck.
func (s *CardService) CreateDeck(ctx context.Context, name, coverImage string) (*models.Deck, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxDeckNameLen {
		return nil, fmt.Errorf("%w: deck name must be 1 to %d characters", ErrInvalidInput, maxDeckNameLen)
	}

	deck := &models.Deck{Name: name, CoverImage: strings.TrimSpace(coverImage), Scope: models.ScopeCustom}
	if err := s.store.CreateDeck(ctx, deck); err != nil {
		return nil, fromStore(err)
	}
	log.Infof("custom deck %s created", deck.ID)
	return deck, nil
}

// ImportDeck creates a deck of any scope with its cards. It is used by the
// operator CLI to load standard decks.
func (s *CardService) ImportDeck(ctx context.Context, deck *models.Deck, cards []*models.Card) error {
	if strings.TrimSpace(deck.Name) == "" {
		return fmt.Errorf("%w: deck name is required", ErrInvalidInput)
	}
	if deck.Scope != models.ScopeStandard && deck.Scope != models.ScopeCustom {
		return fmt.Errorf("%w: unknown deck scope %q", ErrInvalidInput, deck.Scope)
	}
	if err := s.store.CreateDeck(ctx, deck); err != nil {
		return fromStore(err)
	}
	for _, c := range cards {
		c.DeckID = deck.ID
		if err := s.store.CreateCard(ctx, c); err != nil {
			return fromStore(err)
		}
	}
	return nil
}

// AddCard adds a card to a custom deck. New cards have no name until labeled.
func (s *CardService) AddCard(ctx context.Context, deckID, image string) (*models.Card, error) {
	deckID = normalizeID(deckID)
	image = strings.TrimSpace(image)
	if image == "" {
		return nil, fmt.Errorf("%w: image reference is required", ErrInvalidInput)
	}
	deck, err := s.store.Deck(ctx, deckID)
	if err != nil {
		return nil, fromStore(err)
	}
	if !deck.IsCustom() {
		return nil, fmt.Errorf("%w: deck %s is read-only", ErrUnauthorized, deck.ID)
	}

	card := &models.Card{DeckID: deck.ID, Image: image}
	if err := s.store.CreateCard(ctx, card); err != nil {
		return nil, fromStore(err)
	}
	s.publishCard(ctx, comm.OpInsert, nil, card)
	return card, nil
}

// RenameCard labels a card of a custom deck.
func (s *CardService) RenameCard(ctx context.Context, cardID, name string) (*models.Card, error) {
	cardID = normalizeID(cardID)
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxDeckNameLen {
		return nil, fmt.Errorf("%w: card name must be 1 to %d characters", ErrInvalidInput, maxDeckNameLen)
	}
	card, err := s.store.Card(ctx, cardID)
	if err != nil {
		return nil, fromStore(err)
	}
	deck, err := s.store.Deck(ctx, card.DeckID)
	if err != nil {
		return nil, fromStore(err)
	}
	if !deck.IsCustom() {
		return nil, fmt.Errorf("%w: deck %s is read-only", ErrUnauthorized, deck.ID)
	}

	renamed, err := s.store.RenameCard(ctx, cardID, name)
	if err != nil {
		return nil, fromStore(err)
	}
	s.publishCard(ctx, comm.OpUpdate, card, renamed)
	return renamed, nil
}

// publishCard announces deck changes. Cards are not game scoped, so the
// events carry no version.
func (s *CardService) publishCard(ctx context.Context, op comm.ChangeOp, old, new *models.Card) {
	key := new.DeckID
	var o any
	if old != nil {
		o = old
	}
	ev, err := comm.NewChangeEvent(comm.TableCards, op, key, o, new)
	if err != nil {
		log.Errorf("card change event: %v", err)
		return
	}
	publish(ctx, s.pub, []comm.ChangeEvent{ev})
}
