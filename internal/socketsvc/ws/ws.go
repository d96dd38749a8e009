package ws

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/session"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Subscription is a live feed subscription.
type Subscription interface {
	Unsubscribe() error
}

// Bus carries commands to gamesvc and change events back.
type Bus interface {
	Publish(topic string, payload []byte) error
	SubscribeFeed(subject string, fn func(data []byte)) (Subscription, error)
}

type Ws struct {
	connMap sync.Map // socketId -> *Client
	Broker  Bus
}

func NewWs() *Ws {
	return &Ws{}
}

// commands forwarded to gamesvc as they are
var forwarded = map[string]bool{
	comm.TypeCreateGame:     true,
	comm.TypeJoinGame:       true,
	comm.TypeRename:         true,
	comm.TypeHeartbeat:      true,
	comm.TypeGetState:       true,
	comm.TypeSelectDeck:     true,
	comm.TypeChooseCard:     true,
	comm.TypeStartGame:      true,
	comm.TypeEndTurn:        true,
	comm.TypeEnterGuess:     true,
	comm.TypeExitGuess:      true,
	comm.TypeSubmitGuess:    true,
	comm.TypeRequestRematch: true,
	comm.TypeLeave:          true,
}

func (s *Ws) Register(socketId string) *Client {
	c := newClient(socketId)
	s.connMap.Store(socketId, c)
	return c
}

func (s *Ws) GetClient(socketId string) (*Client, bool) {
	c, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return c.(*Client), true
}

// HandleDisconnect drops the socket and its feed subscriptions. The player
// stays seated; the reaper or an explicit leave removes it.
func (s *Ws) HandleDisconnect(socketId string) {
	v, ok := s.connMap.LoadAndDelete(socketId)
	if !ok {
		return
	}
	c := v.(*Client)
	s.unbind(c)
	c.close()
}

// SocketMessage handles one message from a web client.
func (s *Ws) SocketMessage(socketId string, msg *comm.WSMessage) {
	c, ok := s.GetClient(socketId)
	if !ok {
		return
	}
	msg.SocketId = socketId
	msg.Error = nil

	switch {
	case msg.Type == comm.TypeSubscribe:
		s.handleSubscribe(c, msg)
	case (msg.Type == comm.TypeToggleFlip || forwarded[msg.Type]) && actsForOther(c, msg):
		s.replyError(c, msg, comm.CodeUnauthorized, "socket is subscribed as another player")
	case msg.Type == comm.TypeToggleFlip:
		s.handleToggleFlip(c, msg)
	case forwarded[msg.Type]:
		s.forward(c, msg)
	default:
		log.Warnf("unknown event received: %s", msg.Type)
		s.replyError(c, msg, comm.CodeInvalidInput, "unknown message type "+msg.Type)
	}
}

// actsForOther reports whether a subscribed socket sends a command on behalf
// of a different player. Replies to such a command would be folded into the
// view of the subscribed player.
func actsForOther(c *Client, msg *comm.WSMessage) bool {
	playerID, _ := c.bound()
	if playerID == "" {
		return false
	}
	var req comm.PlayerRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.PlayerID == "" {
		return false
	}
	return !strings.EqualFold(strings.TrimSpace(req.PlayerID), playerID)
}

func (s *Ws) handleSubscribe(c *Client, msg *comm.WSMessage) {
	var req comm.PlayerRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.PlayerID == "" {
		s.replyError(c, msg, comm.CodeInvalidInput, "subscribe needs a player_id")
		return
	}
	s.bind(c, req.PlayerID)
	c.push(&comm.WSMessage{Type: comm.ResponseType(msg.Type), RequestId: msg.RequestId})
}

// handleToggleFlip flips the card on the local view before forwarding, and
// keeps the rollback until gamesvc answers.
func (s *Ws) handleToggleFlip(c *Client, msg *comm.WSMessage) {
	_, view := c.bound()
	if view != nil {
		var req comm.PlayerRequest
		if err := json.Unmarshal(msg.Data, &req); err == nil {
			if rollback, err := view.FlipOptimistic(req.CardID); err == nil {
				if msg.RequestId == "" {
					msg.RequestId = uuid.NewString()
				}
				c.mu.Lock()
				c.pending[msg.RequestId] = rollback
				c.mu.Unlock()
				s.pushState(c, view)
			}
		}
	}
	s.forward(c, msg)
}

func (s *Ws) forward(c *Client, msg *comm.WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}
	if err := s.Broker.Publish(comm.TopicSocketService, payload); err != nil {
		if rollback := c.takePending(msg.RequestId); rollback != nil {
			rollback()
		}
		s.replyError(c, msg, comm.CodeInternal, "game service unavailable")
	}
}

func (s *Ws) replyError(c *Client, msg *comm.WSMessage, code, text string) {
	c.push(&comm.WSMessage{
		Type:      comm.ResponseType(msg.Type),
		RequestId: msg.RequestId,
		Error:     &comm.Error{Code: code, Message: text},
	})
}

// requestState asks gamesvc for a fresh snapshot. The reply carries no
// request id, so it is only used to reload the view.
func (s *Ws) requestState(c *Client, playerID string) {
	data, err := json.Marshal(comm.PlayerRequest{PlayerID: playerID})
	if err != nil {
		log.Errorf("marshal state request: %s", err)
		return
	}
	s.forward(c, &comm.WSMessage{Type: comm.TypeGetState, Data: data, SocketId: c.id})
}

// bind attaches the socket to a player and loads its game.
func (s *Ws) bind(c *Client, playerID string) {
	c.mu.Lock()
	if c.playerID != playerID {
		for subject, sub := range c.subs {
			unsubscribe(subject, sub)
		}
		c.subs = make(map[string]Subscription)
		c.pending = make(map[string]func())
		c.playerID = playerID
		c.view = session.NewView(playerID)
	}
	c.mu.Unlock()

	s.requestState(c, playerID)
}

func (s *Ws) unbind(c *Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for subject, sub := range c.subs {
		unsubscribe(subject, sub)
	}
	c.subs = make(map[string]Subscription)
	c.pending = make(map[string]func())
	c.playerID = ""
	c.view = nil
}

func unsubscribe(subject string, sub Subscription) {
	if err := sub.Unsubscribe(); err != nil {
		log.Warnf("unsubscribe %s: %s", subject, err)
	}
}

// resync makes the feed subscriptions match the game the view mirrors: the
// game and its players, both boards, and the cards of the active deck. It
// reports whether a subscription was added.
func (s *Ws) resync(c *Client) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == nil {
		return false
	}

	want := make(map[string]bool)
	if gameID := c.view.GameID(); gameID != "" {
		for _, subject := range comm.GameSubjects(gameID, c.playerID, c.view.OpponentID()) {
			want[subject] = true
		}
		if deckID := c.view.DeckID(); deckID != "" {
			want[comm.Subject(comm.TableCards, deckID)] = true
		}
	}

	for subject, sub := range c.subs {
		if !want[subject] {
			unsubscribe(subject, sub)
			delete(c.subs, subject)
		}
	}
	added := false
	for subject := range want {
		if _, ok := c.subs[subject]; ok {
			continue
		}
		sub, err := s.Broker.SubscribeFeed(subject, func(data []byte) { s.onChange(c, data) })
		if err != nil {
			log.Errorf("subscribe %s for socket %s: %s", subject, c.id, err)
			continue
		}
		c.subs[subject] = sub
		added = true
	}
	return added
}

// onChange applies one feed event to the socket's view and pushes the result.
func (s *Ws) onChange(c *Client, data []byte) {
	playerID, view := c.bound()
	if view == nil {
		return
	}

	var ev comm.ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Errorf("Error decoding change event: %s", err)
		return
	}

	opponent, deck := view.OpponentID(), view.DeckID()
	applied, err := view.Apply(ev)
	if err != nil {
		log.Warnf("change event for socket %s not applied: %s", c.id, err)
		return
	}
	if !applied {
		return
	}

	c.push(&comm.WSMessage{Type: comm.TypeChange, Data: data})

	if view.DeckID() != deck {
		// cards of the new deck only come with a snapshot
		s.requestState(c, playerID)
	}
	if view.OpponentID() != opponent || view.DeckID() != deck || view.GameID() == "" {
		if s.resync(c) && view.DeckID() == deck {
			s.requestState(c, playerID)
		}
	}
	s.pushState(c, view)
}

func (s *Ws) pushState(c *Client, view *session.View) {
	data, err := json.Marshal(view.Status())
	if err != nil {
		log.Errorf("marshal state for socket %s: %s", c.id, err)
		return
	}
	c.push(&comm.WSMessage{Type: comm.TypeState, Data: data})
}

var errNoClient = errors.New("socket is gone")

// Relay delivers a gamesvc reply to its socket, updating the socket's view
// on the way.
func (s *Ws) Relay(msg *comm.WSMessage) error {
	c, ok := s.GetClient(msg.SocketId)
	if !ok {
		return errNoClient
	}

	switch msg.Type {
	case comm.ResponseType(comm.TypeToggleFlip):
		rollback := c.takePending(msg.RequestId)
		if msg.Error != nil && rollback != nil {
			rollback()
			if _, view := c.bound(); view != nil {
				s.pushState(c, view)
			}
		}
	case comm.ResponseType(comm.TypeCreateGame), comm.ResponseType(comm.TypeJoinGame):
		var resp comm.JoinGameResponse
		if msg.Error == nil && json.Unmarshal(msg.Data, &resp) == nil && resp.Player != nil {
			s.bind(c, resp.Player.ID)
		}
	case comm.ResponseType(comm.TypeGetState):
		s.loadState(c, msg)
	case comm.ResponseType(comm.TypeChooseCard):
		var p struct {
			ID           string  `json:"id"`
			ChosenCardID *string `json:"chosen_card_id"`
		}
		if playerID, view := c.bound(); msg.Error == nil && view != nil &&
			json.Unmarshal(msg.Data, &p) == nil && p.ID == playerID {
			view.SetChosen(p.ChosenCardID)
			s.pushState(c, view)
		}
	case comm.ResponseType(comm.TypeLeave):
		if msg.Error == nil {
			s.unbind(c)
		}
	}

	if msg.RequestId != "" {
		msg.SocketId = ""
		c.push(msg)
	}
	return nil
}

func (s *Ws) loadState(c *Client, msg *comm.WSMessage) {
	playerID, view := c.bound()
	if msg.Error != nil || view == nil {
		return
	}
	var st comm.GameState
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		log.Errorf("Error decoding state for socket %s: %s", c.id, err)
		return
	}
	if st.Me == nil || st.Me.ID != playerID {
		return
	}
	if !view.Load(&st) {
		return
	}
	if s.resync(c) {
		// changes committed before the new subscriptions were live only
		// show up in a newer snapshot
		s.requestState(c, playerID)
	}
	s.pushState(c, view)
}

// Push queues a message for one socket.
func (s *Ws) Push(c *Client, m *comm.WSMessage) {
	c.push(m)
}
