package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	out := envelope("sales", []byte(`[{"token":"0xaa"}]`))

	var got struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "sales", got.Type)
	assert.JSONEq(t, `[{"token":"0xaa"}]`, string(got.Payload))
}

func TestEnvelope_InvalidPayloadPassesThrough(t *testing.T) {
	raw := []byte("not json")
	assert.Equal(t, raw, envelope("sales", raw))
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{"sales": true, "deployments": true}}

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"deployments"}})
	assert.True(t, c.isSubscribed("sales"))
	assert.False(t, c.isSubscribed("deployments"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"activity"}})
	assert.True(t, c.isSubscribed("activity"))

	// Unknown actions are ignored.
	c.handleSubscription(subscribeMsg{Action: "ping", Channels: []string{"sales"}})
	assert.True(t, c.isSubscribed("sales"))
}
