package broker

import (
	"testing"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver(t *testing.T) {
	var got []*comm.WSMessage
	b := NewBroker(nil, func(m *comm.WSMessage) error {
		got = append(got, m)
		return nil
	})

	b.deliver([]byte(`{"type":"end-turn-response","socketid":"s1","requestid":"r1","error":{"code":"unauthorized","message":"not your turn"}}`))
	b.deliver([]byte(`{"type":"end-turn-response"}`))
	b.deliver([]byte(`not json`))

	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SocketId)
	assert.Equal(t, "r1", got[0].RequestId)
	require.NotNil(t, got[0].Error)
	assert.Equal(t, comm.CodeUnauthorized, got[0].Error.Code)
}
