package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage(t *testing.T) {
	msg := NewMessage(EventActionExecuted, map[string]string{"account_id": "acc_1"})

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, EventActionExecuted, msg.Type)
	assert.NotNil(t, msg.Data)
	assert.NotNil(t, msg.Metadata)
	assert.True(t, time.Since(msg.Timestamp) < time.Second)
}

func TestMessage_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		msg := NewMessage("test.event", nil)
		assert.False(t, seen[msg.ID], "message IDs must be unique")
		seen[msg.ID] = true
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	msg := NewMessage(EventProxyBanned, map[string]interface{}{
		"proxy_id": "proxy_7",
		"reason":   "platform block detected",
	})

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, EventProxyBanned, decoded.Type)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(EventsExchange, EventActionExecuted, NewMessage(EventActionExecuted, nil)))
}
