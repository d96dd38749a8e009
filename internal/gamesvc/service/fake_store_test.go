package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/avvvet/whodidichoose/internal/gamesvc/store"
	"github.com/google/uuid"
)

// fakeData is the whole database. Transactions work on a copy.
type fakeData struct {
	games   map[string]*models.Game
	players map[string]*models.Player
	decks   map[string]*models.Deck
	cards   map[string]*models.Card
	boards  map[string]map[string]bool
}

func (d *fakeData) clone() *fakeData {
	c := &fakeData{
		games:   make(map[string]*models.Game, len(d.games)),
		players: make(map[string]*models.Player, len(d.players)),
		decks:   make(map[string]*models.Deck, len(d.decks)),
		cards:   make(map[string]*models.Card, len(d.cards)),
		boards:  make(map[string]map[string]bool, len(d.boards)),
	}
	for k, v := range d.games {
		c.games[k] = v.Clone()
	}
	for k, v := range d.players {
		c.players[k] = v.Clone()
	}
	for k, v := range d.decks {
		deck := *v
		c.decks[k] = &deck
	}
	for k, v := range d.cards {
		card := *v
		c.cards[k] = &card
	}
	for k, v := range d.boards {
		b := make(map[string]bool, len(v))
		for card, flipped := range v {
			b[card] = flipped
		}
		c.boards[k] = b
	}
	return c
}

type fakeStore struct {
	mu   sync.Mutex
	data *fakeData
	seq  int
	now  time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data: &fakeData{
			games:   map[string]*models.Game{},
			players: map[string]*models.Player{},
			decks:   map[string]*models.Deck{},
			cards:   map[string]*models.Card{},
			boards:  map[string]map[string]bool{},
		},
		now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// nextID hands out ids in the canonical form Postgres returns.
func (s *fakeStore) nextID() string {
	s.seq++
	return uuid.NewString()
}

// addDeck seeds a deck with named cards and returns the card ids by name.
func (s *fakeStore) addDeck(name string, scope models.DeckScope, cardNames ...string) (string, map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deck := &models.Deck{ID: s.nextID(), Name: name, Scope: scope}
	s.data.decks[deck.ID] = deck
	ids := map[string]string{}
	for _, n := range cardNames {
		card := &models.Card{ID: s.nextID(), DeckID: deck.ID, Name: models.StringPtr(n), Image: n + ".png"}
		s.data.cards[card.ID] = card
		ids[n] = card.ID
	}
	return deck.ID, ids
}

func (s *fakeStore) game(id string) *models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.games[id].Clone()
}

func (s *fakeStore) player(id string) *models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.players[id].Clone()
}

func (s *fakeStore) flipped(playerID string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]bool{}
	for k, v := range s.data.boards[playerID] {
		out[k] = v
	}
	return out
}

func (s *fakeStore) setLastSeen(playerID string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.players[playerID].LastSeen = t
}

func (s *fakeStore) CreateGame(_ context.Context, code string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.data.games {
		if g.GameCode == code {
			return nil, store.ErrDuplicate
		}
	}
	g := &models.Game{ID: s.nextID(), GameCode: code, Status: models.StatusWaiting, Version: 1, CreatedAt: s.now, UpdatedAt: s.now}
	s.data.games[g.ID] = g
	return g.Clone(), nil
}

func (s *fakeStore) GameByID(_ context.Context, gameID string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.data.games[gameID]
	if !ok {
		return nil, store.ErrNoRows
	}
	return g.Clone(), nil
}

func (s *fakeStore) GameByCode(_ context.Context, code string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.data.games {
		if g.GameCode == code {
			return g.Clone(), nil
		}
	}
	return nil, store.ErrNoRows
}

func (s *fakeStore) InGame(ctx context.Context, gameID string, expectedVersion int64, fn func(tx store.GameTx) error) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.data.games[gameID]
	if !ok {
		return nil, store.ErrNoRows
	}
	if expectedVersion != 0 && g.Version != expectedVersion {
		return nil, store.ErrStaleVersion
	}

	tx := &fakeTx{s: s, data: s.data.clone(), gameID: gameID}
	if err := fn(tx); err != nil {
		return nil, err
	}
	if tx.dirty {
		ng := tx.data.games[gameID]
		ng.Version++
		ng.UpdatedAt = s.now
	}
	s.data = tx.data
	return s.data.games[gameID].Clone(), nil
}

func playersOf(d *fakeData, gameID string) []*models.Player {
	var out []*models.Player
	for _, p := range d.players {
		if p.GameID == gameID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

func cardsOf(d *fakeData, deckID string) []*models.Card {
	var out []*models.Card
	for _, c := range d.cards {
		if c.DeckID == deckID {
			card := *c
			out = append(out, &card)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return models.StringValue(out[i].Name) < models.StringValue(out[j].Name)
	})
	return out
}

func boardOf(d *fakeData, playerID string) []*models.PlayerCard {
	var out []*models.PlayerCard
	for cardID, flipped := range d.boards[playerID] {
		out = append(out, &models.PlayerCard{PlayerID: playerID, CardID: cardID, Flipped: flipped})
	}
	sort.Slice(out, func(i, j int) bool {
		return models.StringValue(d.cards[out[i].CardID].Name) < models.StringValue(d.cards[out[j].CardID].Name)
	})
	return out
}

func (s *fakeStore) PlayerByID(_ context.Context, playerID string) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.players[playerID]
	if !ok {
		return nil, store.ErrNoRows
	}
	return p.Clone(), nil
}

func (s *fakeStore) PlayersByGame(_ context.Context, gameID string) ([]*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return playersOf(s.data, gameID), nil
}

func (s *fakeStore) TouchPlayer(_ context.Context, playerID string) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.players[playerID]
	if !ok {
		return nil, store.ErrNoRows
	}
	p.LastSeen = s.now
	return p.Clone(), nil
}

func (s *fakeStore) StaleCutoff(_ context.Context, timeout time.Duration) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now.Add(-timeout), nil
}

func (s *fakeStore) StalePlayers(_ context.Context, cutoff time.Time, limit int) ([]*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Player
	for _, p := range s.data.players {
		if p.LastSeen.Before(cutoff) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.Before(out[j].LastSeen) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) Board(_ context.Context, playerID string) ([]*models.PlayerCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return boardOf(s.data, playerID), nil
}

func (s *fakeStore) Decks(_ context.Context) ([]*models.Deck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Deck
	for _, d := range s.data.decks {
		deck := *d
		out = append(out, &deck)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope == models.ScopeStandard
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *fakeStore) Deck(_ context.Context, deckID string) (*models.Deck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.decks[deckID]
	if !ok {
		return nil, store.ErrNoRows
	}
	deck := *d
	return &deck, nil
}

func (s *fakeStore) CreateDeck(_ context.Context, d *models.Deck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.nextID()
	d.CreatedAt = s.now
	deck := *d
	s.data.decks[d.ID] = &deck
	return nil
}

func (s *fakeStore) Card(_ context.Context, cardID string) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.cards[cardID]
	if !ok {
		return nil, store.ErrNoRows
	}
	card := *c
	return &card, nil
}

func (s *fakeStore) DeckCards(_ context.Context, deckID string) ([]*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cardsOf(s.data, deckID), nil
}

func (s *fakeStore) CreateCard(_ context.Context, c *models.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.decks[c.DeckID]; !ok {
		return store.ErrReference
	}
	c.ID = s.nextID()
	c.CreatedAt = s.now
	card := *c
	s.data.cards[c.ID] = &card
	return nil
}

func (s *fakeStore) RenameCard(_ context.Context, cardID, name string) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.cards[cardID]
	if !ok {
		return nil, store.ErrNoRows
	}
	c.Name = models.StringPtr(name)
	card := *c
	return &card, nil
}

type fakeTx struct {
	s      *fakeStore
	data   *fakeData
	gameID string
	dirty  bool
}

func (t *fakeTx) Game() *models.Game {
	return t.data.games[t.gameID].Clone()
}

func (t *fakeTx) SaveGame(_ context.Context, g *models.Game) error {
	t.data.games[g.ID] = g.Clone()
	t.dirty = true
	return nil
}

func (t *fakeTx) Players(_ context.Context) ([]*models.Player, error) {
	return playersOf(t.data, t.gameID), nil
}

func (t *fakeTx) InsertPlayer(_ context.Context, p *models.Player) error {
	for _, other := range t.data.players {
		if other.GameID == t.gameID && other.Seat == p.Seat {
			return store.ErrDuplicate
		}
	}
	p.ID = t.s.nextID()
	p.GameID = t.gameID
	p.LastSeen = t.s.now
	p.CreatedAt = t.s.now
	t.data.players[p.ID] = p.Clone()
	t.dirty = true
	return nil
}

func (t *fakeTx) SavePlayer(_ context.Context, p *models.Player) error {
	if _, ok := t.data.players[p.ID]; !ok {
		return store.ErrNoRows
	}
	t.data.players[p.ID] = p.Clone()
	t.dirty = true
	return nil
}

func (t *fakeTx) DeletePlayer(_ context.Context, playerID string) error {
	if _, ok := t.data.players[playerID]; !ok {
		return store.ErrNoRows
	}
	delete(t.data.players, playerID)
	delete(t.data.boards, playerID)
	t.dirty = true
	return nil
}

func (t *fakeTx) ClearChosenCards(_ context.Context) error {
	for _, p := range t.data.players {
		if p.GameID == t.gameID {
			p.ChosenCardID = nil
		}
	}
	t.dirty = true
	return nil
}

func (t *fakeTx) Deck(_ context.Context, deckID string) (*models.Deck, error) {
	d, ok := t.data.decks[deckID]
	if !ok {
		return nil, store.ErrNoRows
	}
	deck := *d
	return &deck, nil
}

func (t *fakeTx) Card(_ context.Context, cardID string) (*models.Card, error) {
	c, ok := t.data.cards[cardID]
	if !ok {
		return nil, store.ErrNoRows
	}
	card := *c
	return &card, nil
}

func (t *fakeTx) DeckCards(_ context.Context, deckID string) ([]*models.Card, error) {
	return cardsOf(t.data, deckID), nil
}

func (t *fakeTx) SeedBoards(_ context.Context, playerIDs, cardIDs []string) error {
	for _, p := range playerIDs {
		b, ok := t.data.boards[p]
		if !ok {
			b = map[string]bool{}
			t.data.boards[p] = b
		}
		for _, c := range cardIDs {
			if _, exists := b[c]; !exists {
				b[c] = false
			}
		}
	}
	t.dirty = true
	return nil
}

func (t *fakeTx) Board(_ context.Context, playerID string) ([]*models.PlayerCard, error) {
	return boardOf(t.data, playerID), nil
}

func (t *fakeTx) SetFlipped(_ context.Context, playerID, cardID string, flipped bool) (*models.PlayerCard, error) {
	b, ok := t.data.boards[playerID]
	if !ok {
		return nil, store.ErrNoRows
	}
	if _, ok := b[cardID]; !ok {
		return nil, store.ErrNoRows
	}
	b[cardID] = flipped
	t.dirty = true
	return &models.PlayerCard{PlayerID: playerID, CardID: cardID, Flipped: flipped}, nil
}

func (t *fakeTx) DeleteBoards(_ context.Context) error {
	for _, p := range playersOf(t.data, t.gameID) {
		delete(t.data.boards, p.ID)
	}
	t.dirty = true
	return nil
}

// recordingPublisher keeps every published batch.
type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]comm.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events []comm.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, events)
	return nil
}

func (p *recordingPublisher) last() []comm.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.batches) == 0 {
		return nil
	}
	return p.batches[len(p.batches)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

var (
	_ store.Store  = (*fakeStore)(nil)
	_ store.GameTx = (*fakeTx)(nil)
)
