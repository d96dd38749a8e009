package main

import (
	"strings"
	"testing"

	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDeckFile(t *testing.T) {
	in := `{
		"name": " Classic ",
		"cover_image": "decks/classic/cover.png",
		"cards": [
			{"name": "Alice", "image": "decks/classic/alice.png"},
			{"image": "decks/classic/unnamed.png"}
		]
	}`

	deck, cards, err := readDeckFile(strings.NewReader(in), "")
	require.NoError(t, err)

	assert.Equal(t, "Classic", deck.Name)
	assert.Equal(t, models.ScopeStandard, deck.Scope)
	require.Len(t, cards, 2)
	assert.Equal(t, "Alice", models.StringValue(cards[0].Name))
	assert.Nil(t, cards[1].Name)
	assert.Equal(t, "decks/classic/unnamed.png", cards[1].Image)
}

func TestReadDeckFileScopeOverride(t *testing.T) {
	in := `{"name":"Family","scope":"standard","cards":[{"image":"a.png"}]}`

	deck, _, err := readDeckFile(strings.NewReader(in), "Custom")
	require.NoError(t, err)
	assert.Equal(t, models.ScopeCustom, deck.Scope)
}

func TestReadDeckFileRejects(t *testing.T) {
	tests := map[string]string{
		"bad json":       `{"name":`,
		"unknown field":  `{"name":"x","colour":"red","cards":[{"image":"a.png"}]}`,
		"no cards":       `{"name":"x","cards":[]}`,
		"missing image":  `{"name":"x","cards":[{"name":"Alice"}]}`,
		"duplicate name": `{"name":"x","cards":[{"name":"Alice","image":"a.png"},{"name":"alice","image":"b.png"}]}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := readDeckFile(strings.NewReader(in), "")
			require.Error(t, err)
		})
	}
}

func TestRootCommandWiring(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["migrate"])
	assert.True(t, names["import-deck"])
	assert.True(t, names["decks"])
	assert.NotNil(t, cmd.PersistentFlags().Lookup("postgres-url"))
}
