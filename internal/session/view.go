package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
)

var (
	ErrNotTurnHolder = errors.New("session: not the turn holder")
	ErrUnknownCard   = errors.New("session: card is not on the board")
	ErrUnknownTable  = errors.New("session: unknown table")
	ErrUnknownOp     = errors.New("session: unknown op")
)

// View mirrors one game as seen by one player. Rows are ordered by the game
// version they were committed at and their position in that commit; older
// events are dropped and equal ones are re-applied, which makes redelivery
// harmless. A deleted row keeps its mark so a late copy of an earlier change
// cannot bring it back.
type View struct {
	mu sync.Mutex

	me       string
	myChosen *string
	game     *models.Game
	players  map[string]models.PlayerView
	boards   map[string]map[string]bool // player id -> card id -> flipped
	cards    map[string]*models.Card
	seen     map[string]mark // row key -> last applied change, kept after deletes
	floor    *mark           // loaded snapshot, covers rows it does not list
}

type mark struct {
	version int64
	seq     int
	deleted bool
}

// snapshotSeq orders a snapshot after every event of its own version.
const snapshotSeq = int(^uint(0) >> 1)

func (m mark) after(version int64, seq int) bool {
	if m.version != version {
		return m.version > version
	}
	return m.seq > seq
}

func NewView(me string) *View {
	return &View{
		me:      me,
		players: make(map[string]models.PlayerView),
		boards:  make(map[string]map[string]bool),
		cards:   make(map[string]*models.Card),
		seen:    make(map[string]mark),
	}
}

func (v *View) Me() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.me
}

// Load replaces the mirror with a snapshot. A snapshot of the same game that
// is older than what the feed already delivered is ignored and Load returns
// false.
func (v *View) Load(st *comm.GameState) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.game != nil && st.Game != nil && v.game.ID == st.Game.ID && st.Game.Version < v.game.Version {
		return false
	}

	v.game = st.Game.Clone()
	v.players = make(map[string]models.PlayerView, len(st.Players))
	v.boards = make(map[string]map[string]bool)
	v.cards = make(map[string]*models.Card, len(st.Cards))
	v.seen = make(map[string]mark)
	v.floor = nil

	version := int64(0)
	if st.Game != nil {
		version = st.Game.Version
		v.floor = &mark{version: version, seq: snapshotSeq}
		v.seen[rowKey(comm.TableGames, st.Game.ID)] = *v.floor
	}
	loaded := mark{version: version, seq: snapshotSeq}
	for _, p := range st.Players {
		v.players[p.ID] = p
		v.seen[rowKey(comm.TablePlayers, p.ID)] = loaded
	}
	v.myChosen = nil
	if st.Me != nil {
		v.me = st.Me.ID
		if st.Me.ChosenCardID != nil {
			v.myChosen = models.StringPtr(*st.Me.ChosenCardID)
		}
	}
	for _, pc := range append(append([]*models.PlayerCard{}, st.Board...), st.OpponentBoard...) {
		v.setBoard(pc)
		v.seen[rowKey(comm.TablePlayerCards, pc.PlayerID+"/"+pc.CardID)] = loaded
	}
	for _, c := range st.Cards {
		card := *c
		v.cards[c.ID] = &card
	}
	return true
}

// Apply folds one change event into the mirror. It returns false when the
// event was older than what the view already holds.
func (v *View) Apply(ev comm.ChangeEvent) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Table {
	case comm.TableGames:
		var row models.Game
		if err := decodeRow(ev, &row); err != nil {
			return false, err
		}
		if !v.accept(rowKey(ev.Table, row.ID), ev) {
			return false, nil
		}
		switch ev.Op {
		case comm.OpInsert, comm.OpUpdate:
			if v.game != nil && !sameDeck(v.game.DeckID, row.DeckID) {
				v.cards = make(map[string]*models.Card)
			}
			v.game = &row
		case comm.OpDelete:
			v.game = nil
		default:
			return false, fmt.Errorf("%w: %q", ErrUnknownOp, ev.Op)
		}

	case comm.TablePlayers:
		var row models.PlayerView
		if err := decodeRow(ev, &row); err != nil {
			return false, err
		}
		if !v.accept(rowKey(ev.Table, row.ID), ev) {
			return false, nil
		}
		switch ev.Op {
		case comm.OpInsert, comm.OpUpdate:
			v.players[row.ID] = row
			if row.ID == v.me && !row.Ready {
				v.myChosen = nil
			}
		case comm.OpDelete:
			delete(v.players, row.ID)
			delete(v.boards, row.ID)
		default:
			return false, fmt.Errorf("%w: %q", ErrUnknownOp, ev.Op)
		}

	case comm.TablePlayerCards:
		var row models.PlayerCard
		if err := decodeRow(ev, &row); err != nil {
			return false, err
		}
		if !v.accept(rowKey(ev.Table, row.PlayerID+"/"+row.CardID), ev) {
			return false, nil
		}
		switch ev.Op {
		case comm.OpInsert, comm.OpUpdate:
			v.setBoard(&row)
		case comm.OpDelete:
			if b, ok := v.boards[row.PlayerID]; ok {
				delete(b, row.CardID)
			}
		default:
			return false, fmt.Errorf("%w: %q", ErrUnknownOp, ev.Op)
		}

	case comm.TableCards:
		var row models.Card
		if err := decodeRow(ev, &row); err != nil {
			return false, err
		}
		if v.game == nil || models.StringValue(v.game.DeckID) != row.DeckID {
			return false, nil
		}
		switch ev.Op {
		case comm.OpInsert, comm.OpUpdate:
			v.cards[row.ID] = &row
		case comm.OpDelete:
			delete(v.cards, row.ID)
		default:
			return false, fmt.Errorf("%w: %q", ErrUnknownOp, ev.Op)
		}

	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownTable, ev.Table)
	}
	return true, nil
}

func (v *View) accept(key string, ev comm.ChangeEvent) bool {
	last, ok := v.seen[key]
	if !ok && v.floor != nil {
		// a row missing from the snapshot was gone by then
		last, ok = *v.floor, true
	}
	if ok {
		if last.after(ev.Version, ev.Seq) {
			return false
		}
		if last.deleted && ev.Op != comm.OpDelete && last.version == ev.Version && last.seq == ev.Seq {
			return false
		}
	}
	v.seen[key] = mark{version: ev.Version, seq: ev.Seq, deleted: ev.Op == comm.OpDelete}
	return true
}

func (v *View) setBoard(pc *models.PlayerCard) {
	b, ok := v.boards[pc.PlayerID]
	if !ok {
		b = make(map[string]bool)
		v.boards[pc.PlayerID] = b
	}
	b[pc.CardID] = pc.Flipped
}

// SetChosen records the viewer's own pick, which the feed never carries.
func (v *View) SetChosen(cardID *string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cardID == nil {
		v.myChosen = nil
		return
	}
	v.myChosen = models.StringPtr(*cardID)
}

// FlipOptimistic flips one of the viewer's cards locally before the write is
// confirmed. The returned func puts the previous value back.
func (v *View) FlipOptimistic(cardID string) (func(), error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.game == nil || v.game.Status != models.StatusInProgress || !v.game.IsTurnHolder(v.me) {
		return nil, ErrNotTurnHolder
	}
	board := v.boards[v.me]
	prev, ok := board[cardID]
	if !ok {
		return nil, ErrUnknownCard
	}
	board[cardID] = !prev

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if b, ok := v.boards[v.me]; ok {
			b[cardID] = prev
		}
	}, nil
}

// GameID returns the mirrored game, or "" before the first load.
func (v *View) GameID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.game == nil {
		return ""
	}
	return v.game.ID
}

// DeckID returns the active deck of the mirrored game.
func (v *View) DeckID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.game == nil {
		return ""
	}
	return models.StringValue(v.game.DeckID)
}

// OpponentID returns the other seated player, if any.
func (v *View) OpponentID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id := range v.players {
		if id != v.me {
			return id
		}
	}
	return ""
}

// Status is what the viewer's screen renders.
type Status struct {
	Phase            Phase               `json:"phase"`
	Game             *models.Game        `json:"game"`
	Players          []models.PlayerView `json:"players"`
	ChosenCardID     *string             `json:"chosen_card_id"`
	MyTurn           bool                `json:"my_turn"`
	OpponentGuessing bool                `json:"opponent_guessing"`
	CanStart         bool                `json:"can_start"`
	Board            map[string]bool     `json:"board"`
	OpponentBoard    map[string]bool     `json:"opponent_board"`
	Cards            []*models.Card      `json:"cards"`
}

func (v *View) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	players := make([]models.PlayerView, 0, len(v.players))
	for _, p := range v.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Seat < players[j].Seat })

	st := Status{
		Phase:         Derive(v.game, len(players)),
		Game:          v.game.Clone(),
		Players:       players,
		ChosenCardID:  v.myChosen,
		CanStart:      CanStart(v.game, players),
		Board:         copyBoard(v.boards[v.me]),
		OpponentBoard: map[string]bool{},
		Cards:         make([]*models.Card, 0, len(v.cards)),
	}
	for _, p := range players {
		if p.ID != v.me {
			st.OpponentBoard = copyBoard(v.boards[p.ID])
		}
	}
	if v.game != nil && v.game.Status == models.StatusInProgress && v.game.CurrentPlayerID != nil {
		st.MyTurn = *v.game.CurrentPlayerID == v.me
		st.OpponentGuessing = !st.MyTurn && v.game.Guessing
	}
	for _, c := range v.cards {
		st.Cards = append(st.Cards, c)
	}
	sort.Slice(st.Cards, func(i, j int) bool {
		return models.StringValue(st.Cards[i].Name) < models.StringValue(st.Cards[j].Name)
	})
	return st
}

func copyBoard(b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

func decodeRow(ev comm.ChangeEvent, dst any) error {
	raw := ev.New
	if ev.Op == comm.OpDelete || len(raw) == 0 {
		raw = ev.Old
	}
	if len(raw) == 0 {
		return fmt.Errorf("%s %s event without a row", ev.Table, ev.Op)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s row: %w", ev.Table, err)
	}
	return nil
}

func rowKey(table, id string) string {
	return table + ":" + id
}

func sameDeck(a, b *string) bool {
	return models.StringValue(a) == models.StringValue(b)
}
