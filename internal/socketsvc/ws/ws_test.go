package ws

import (
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/models"
	"github.com/avvvet/whodidichoose/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	mu           sync.Mutex
	published    []*comm.WSMessage
	subs         map[string]func([]byte)
	unsubscribed []string
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string]func([]byte))}
}

func (b *fakeBus) Publish(topic string, payload []byte) error {
	var m comm.WSMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, &m)
	return nil
}

func (b *fakeBus) SubscribeFeed(subject string, fn func([]byte)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[subject] = fn
	return &fakeSub{bus: b, subject: subject}, nil
}

func (b *fakeBus) subjects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.subs))
	for s := range b.subs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (b *fakeBus) deliver(t *testing.T, subject string, ev comm.ChangeEvent) {
	t.Helper()
	b.mu.Lock()
	fn, ok := b.subs[subject]
	b.mu.Unlock()
	require.True(t, ok, "not subscribed to %s", subject)
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	fn(data)
}

func (b *fakeBus) last() *comm.WSMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published[len(b.published)-1]
}

type fakeSub struct {
	bus     *fakeBus
	subject string
}

func (s *fakeSub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.subject)
	s.bus.unsubscribed = append(s.bus.unsubscribed, s.subject)
	return nil
}

func drain(c *Client) []*comm.WSMessage {
	var out []*comm.WSMessage
	for {
		select {
		case m, ok := <-c.Outbox():
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func lastState(t *testing.T, msgs []*comm.WSMessage) session.Status {
	t.Helper()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == comm.TypeState {
			var st session.Status
			require.NoError(t, json.Unmarshal(msgs[i].Data, &st))
			return st
		}
	}
	t.Fatal("no state message pushed")
	return session.Status{}
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func change(t *testing.T, table string, op comm.ChangeOp, key string, version int64, old, new any) comm.ChangeEvent {
	t.Helper()
	ev, err := comm.NewChangeEvent(table, op, key, old, new)
	require.NoError(t, err)
	ev.Version = version
	return ev
}

func snapshot(turn string) *comm.GameState {
	return &comm.GameState{
		Game: &models.Game{ID: "g", Status: models.StatusInProgress, DeckID: models.StringPtr("d"),
			CurrentPlayerID: models.StringPtr(turn), Version: 5},
		Players: []models.PlayerView{
			{ID: "a", GameID: "g", Seat: 1, Ready: true},
			{ID: "b", GameID: "g", Seat: 2, Ready: true},
		},
		Me:            &models.Player{ID: "a", GameID: "g", Seat: 1, ChosenCardID: models.StringPtr("c1")},
		Board:         []*models.PlayerCard{{PlayerID: "a", CardID: "c1"}, {PlayerID: "a", CardID: "c2"}},
		OpponentBoard: []*models.PlayerCard{{PlayerID: "b", CardID: "c1"}, {PlayerID: "b", CardID: "c2"}},
		Cards:         []*models.Card{{ID: "c1", DeckID: "d"}, {ID: "c2", DeckID: "d"}},
	}
}

// subscribed returns a socket bound to player a with the snapshot loaded.
func subscribed(t *testing.T, turn string) (*Ws, *fakeBus, *Client) {
	t.Helper()
	bus := newFakeBus()
	s := NewWs()
	s.Broker = bus
	c := s.Register("s1")

	s.SocketMessage("s1", &comm.WSMessage{Type: comm.TypeSubscribe, Data: raw(t, comm.PlayerRequest{PlayerID: "a"}), RequestId: "r1"})
	require.NoError(t, s.Relay(&comm.WSMessage{
		Type:     comm.ResponseType(comm.TypeGetState),
		SocketId: "s1",
		Data:     raw(t, snapshot(turn)),
	}))
	return s, bus, c
}

func TestSubscribeLoadsViewAndFeed(t *testing.T) {
	_, bus, c := subscribed(t, "a")

	first := bus.published[0]
	assert.Equal(t, comm.TypeGetState, first.Type)
	assert.Equal(t, "s1", first.SocketId)
	assert.Empty(t, first.RequestId)
	var req comm.PlayerRequest
	require.NoError(t, json.Unmarshal(first.Data, &req))
	assert.Equal(t, "a", req.PlayerID)

	assert.Equal(t, []string{
		"changes.cards.d",
		"changes.games.g",
		"changes.player_cards.a",
		"changes.player_cards.b",
		"changes.players.g",
	}, bus.subjects())

	// the first subscription is followed by a fresh snapshot request
	assert.Len(t, bus.published, 2)

	msgs := drain(c)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "subscribe-response", msgs[0].Type)
	assert.Equal(t, "r1", msgs[0].RequestId)
	for _, m := range msgs {
		assert.NotEqual(t, comm.ResponseType(comm.TypeGetState), m.Type)
	}
	st := lastState(t, msgs)
	assert.Equal(t, session.PhaseInProgress, st.Phase)
	assert.True(t, st.MyTurn)
}

func TestChangeEventsArePushed(t *testing.T) {
	_, bus, c := subscribed(t, "a")
	drain(c)

	bus.deliver(t, "changes.games.g", change(t, comm.TableGames, comm.OpUpdate, "g", 6, nil,
		&models.Game{ID: "g", Status: models.StatusInProgress, DeckID: models.StringPtr("d"), CurrentPlayerID: models.StringPtr("b"), Guessing: true, Version: 6}))

	msgs := drain(c)
	require.Len(t, msgs, 2)
	assert.Equal(t, comm.TypeChange, msgs[0].Type)
	st := lastState(t, msgs)
	assert.False(t, st.MyTurn)
	assert.True(t, st.OpponentGuessing)

	// redelivery of an older event is not pushed
	bus.deliver(t, "changes.games.g", change(t, comm.TableGames, comm.OpUpdate, "g", 5, nil,
		&models.Game{ID: "g", Status: models.StatusWaiting, Version: 5}))
	assert.Empty(t, drain(c))
}

func TestOpponentLeavingDropsItsBoardFeed(t *testing.T) {
	_, bus, c := subscribed(t, "a")
	drain(c)

	bus.deliver(t, "changes.players.g", change(t, comm.TablePlayers, comm.OpDelete, "g", 6,
		&models.PlayerView{ID: "b", GameID: "g", Seat: 2}, nil))

	assert.NotContains(t, bus.subjects(), "changes.player_cards.b")
	assert.Contains(t, bus.unsubscribed, "changes.player_cards.b")
	assert.Equal(t, session.PhaseWaitingForPlayers, lastState(t, drain(c)).Phase)
}

func TestOptimisticFlipRollsBack(t *testing.T) {
	s, bus, c := subscribed(t, "a")
	drain(c)

	s.SocketMessage("s1", &comm.WSMessage{Type: comm.TypeToggleFlip, Data: raw(t, comm.PlayerRequest{PlayerID: "a", CardID: "c2"})})

	sent := bus.last()
	assert.Equal(t, comm.TypeToggleFlip, sent.Type)
	require.NotEmpty(t, sent.RequestId)
	assert.True(t, lastState(t, drain(c)).Board["c2"])

	require.NoError(t, s.Relay(&comm.WSMessage{
		Type:      comm.ResponseType(comm.TypeToggleFlip),
		SocketId:  "s1",
		RequestId: sent.RequestId,
		Error:     &comm.Error{Code: comm.CodeUnauthorized, Message: "only the turn holder can flip cards"},
	}))

	msgs := drain(c)
	assert.False(t, lastState(t, msgs).Board["c2"])
	reply := msgs[len(msgs)-1]
	assert.Equal(t, "toggle-flip-response", reply.Type)
	assert.Empty(t, reply.SocketId)
	require.NotNil(t, reply.Error)
}

func TestFlipOutOfTurnIsOnlyForwarded(t *testing.T) {
	s, bus, c := subscribed(t, "b")
	drain(c)
	before := len(bus.published)

	s.SocketMessage("s1", &comm.WSMessage{Type: comm.TypeToggleFlip, RequestId: "r2", Data: raw(t, comm.PlayerRequest{PlayerID: "a", CardID: "c2"})})

	assert.Len(t, bus.published, before+1)
	assert.Equal(t, "r2", bus.last().RequestId)
	assert.Empty(t, drain(c))
}

func TestSubscribedSocketCannotActForOpponent(t *testing.T) {
	s, bus, c := subscribed(t, "b")
	drain(c)
	before := len(bus.published)

	for _, typ := range []string{comm.TypeGetState, comm.TypeToggleFlip, comm.TypeChooseCard} {
		s.SocketMessage("s1", &comm.WSMessage{Type: typ, RequestId: "x-" + typ, Data: raw(t, comm.PlayerRequest{PlayerID: "b", CardID: "c1"})})
	}

	assert.Len(t, bus.published, before)
	msgs := drain(c)
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		require.NotNil(t, m.Error)
		assert.Equal(t, comm.CodeUnauthorized, m.Error.Code)
	}

	// the subscribed player itself is still forwarded
	s.SocketMessage("s1", &comm.WSMessage{Type: comm.TypeGetState, RequestId: "own", Data: raw(t, comm.PlayerRequest{PlayerID: "a"})})
	assert.Len(t, bus.published, before+1)
}

func TestChooseCardResponseSetsOwnPick(t *testing.T) {
	s, _, c := subscribed(t, "a")
	drain(c)

	require.NoError(t, s.Relay(&comm.WSMessage{
		Type:      comm.ResponseType(comm.TypeChooseCard),
		SocketId:  "s1",
		RequestId: "r3",
		Data:      raw(t, &models.Player{ID: "a", GameID: "g", ChosenCardID: models.StringPtr("c2")}),
	}))

	assert.Equal(t, "c2", models.StringValue(lastState(t, drain(c)).ChosenCardID))
}

func TestJoinResponseBindsPlayer(t *testing.T) {
	bus := newFakeBus()
	s := NewWs()
	s.Broker = bus
	c := s.Register("s9")

	require.NoError(t, s.Relay(&comm.WSMessage{
		Type:      comm.ResponseType(comm.TypeJoinGame),
		SocketId:  "s9",
		RequestId: "j1",
		Data:      raw(t, comm.JoinGameResponse{Game: &models.Game{ID: "g"}, Player: &models.Player{ID: "b", GameID: "g", Seat: 2}}),
	}))

	var req comm.PlayerRequest
	require.NoError(t, json.Unmarshal(bus.last().Data, &req))
	assert.Equal(t, comm.TypeGetState, bus.last().Type)
	assert.Equal(t, "b", req.PlayerID)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, "j1", msgs[0].RequestId)
}

func TestForwardAndUnknown(t *testing.T) {
	bus := newFakeBus()
	s := NewWs()
	s.Broker = bus
	c := s.Register("s1")

	s.SocketMessage("s1", &comm.WSMessage{Type: comm.TypeEndTurn, RequestId: "r4", Data: raw(t, comm.PlayerRequest{PlayerID: "a"})})
	assert.Equal(t, "s1", bus.last().SocketId)
	assert.Equal(t, comm.TypeEndTurn, bus.last().Type)

	s.SocketMessage("s1", &comm.WSMessage{Type: "shuffle", RequestId: "r5"})
	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Error)
	assert.Equal(t, comm.CodeInvalidInput, msgs[0].Error.Code)

	s.SocketMessage("s1", &comm.WSMessage{Type: comm.TypeSubscribe, RequestId: "r6"})
	msgs = drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, comm.CodeInvalidInput, msgs[0].Error.Code)

	assert.ErrorIs(t, s.Relay(&comm.WSMessage{Type: "end-turn-response", SocketId: "gone"}), errNoClient)
}

func TestDisconnectUnsubscribes(t *testing.T) {
	s, bus, c := subscribed(t, "a")

	s.HandleDisconnect("s1")

	assert.Empty(t, bus.subjects())
	assert.Len(t, bus.unsubscribed, 5)
	drain(c)
	_, open := <-c.Outbox()
	assert.False(t, open)

	_, ok := s.GetClient("s1")
	assert.False(t, ok)
	s.HandleDisconnect("s1")
}

func TestSlowClientIsDropped(t *testing.T) {
	c := newClient("slow")
	for i := 0; i < outboxSize+1; i++ {
		c.push(&comm.WSMessage{Type: comm.TypeState})
	}
	assert.Len(t, drain(c), outboxSize)
	c.push(&comm.WSMessage{Type: comm.TypeState})
	_, open := <-c.Outbox()
	assert.False(t, open)
}
