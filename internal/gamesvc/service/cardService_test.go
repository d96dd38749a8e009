package service

import (
	"context"
	"testing"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomDeckLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	pub := &recordingPublisher{}
	svc := NewCardService(st, pub)

	deck, err := svc.CreateDeck(ctx, "  Family ", "cover.png")
	require.NoError(t, err)
	assert.Equal(t, "Family", deck.Name)
	assert.True(t, deck.IsCustom())

	card, err := svc.AddCard(ctx, deck.ID, "uploads/grandma.png")
	require.NoError(t, err)
	assert.Nil(t, card.Name)

	events := pub.last()
	require.Len(t, events, 1)
	assert.Equal(t, comm.OpInsert, events[0].Op)
	assert.Equal(t, comm.Subject(comm.TableCards, deck.ID), events[0].Subject())

	renamed, err := svc.RenameCard(ctx, card.ID, "Grandma")
	require.NoError(t, err)
	assert.Equal(t, "Grandma", models.StringValue(renamed.Name))
	assert.Equal(t, comm.OpUpdate, pub.last()[0].Op)

	cards, err := svc.DeckCards(ctx, deck.ID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
}

func TestStandardDeckIsReadOnly(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	deckID, cards := st.addDeck("Classic", models.ScopeStandard, "Red-5")
	svc := NewCardService(st, nil)

	_, err := svc.AddCard(ctx, deckID, "x.png")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.RenameCard(ctx, cards["Red-5"], "Crimson")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestDeckValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewCardService(newFakeStore(), nil)

	_, err := svc.CreateDeck(ctx, " ", "")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddCard(ctx, "deck-missing", "x.png")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.DeckCards(ctx, "deck-missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDecksListsStandardFirst(t *testing.T) {
	st := newFakeStore()
	st.addDeck("Zoo", models.ScopeStandard)
	st.addDeck("Aunts", models.ScopeCustom)
	st.addDeck("Classic", models.ScopeStandard)

	decks, err := NewCardService(st, nil).Decks(context.Background())
	require.NoError(t, err)
	require.Len(t, decks, 3)
	assert.Equal(t, []string{"Classic", "Zoo", "Aunts"}, []string{decks[0].Name, decks[1].Name, decks[2].Name})
}
