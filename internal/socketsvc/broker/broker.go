package broker

import (
	"encoding/json"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/socketsvc/ws"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type Broker struct {
	Conn  *nats.Conn
	relay func(*comm.WSMessage) error
}

// NewBroker takes the function that hands gamesvc replies to their socket.
func NewBroker(conn *nats.Conn, relay func(*comm.WSMessage) error) *Broker {
	return &Broker{
		Conn:  conn,
		relay: relay,
	}
}

// consume replies from game service. Every socketsvc instance receives every
// reply and keeps the ones for its own sockets.
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// publish message to game service
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// SubscribeFeed delivers change events of one subject to fn.
func (b *Broker) SubscribeFeed(subject string, fn func(data []byte)) (ws.Subscription, error) {
	sub, err := b.Conn.Subscribe(subject, func(m *nats.Msg) {
		fn(m.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// handleMessages receive message from game service
func (b *Broker) handleMessages(msgNats *nats.Msg) {
	b.deliver(msgNats.Data)
}

func (b *Broker) deliver(data []byte) {
	message := &comm.WSMessage{}
	if err := json.Unmarshal(data, message); err != nil {
		log.Errorf("Error decoding game service reply: %s", err)
		return
	}
	if message.SocketId == "" {
		log.Warnf("game service reply %s without socket id", message.Type)
		return
	}
	if err := b.relay(message); err != nil {
		log.Debugf("reply %s for socket %s not relayed: %s", message.Type, message.SocketId, err)
	}
}
