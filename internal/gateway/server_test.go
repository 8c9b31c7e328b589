package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIPRateLimiter(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	rl := newIPRateLimiter(60, stop) // one connection per second

	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"), "second attempt inside the interval")
	assert.True(t, rl.allow("10.0.0.2"), "other IPs unaffected")

	rl.mu.Lock()
	rl.times["10.0.0.1"] = time.Now().Add(-2 * time.Second)
	rl.mu.Unlock()
	assert.True(t, rl.allow("10.0.0.1"), "allowed again after the interval")
}

func TestEnvelopeRoundTrip(t *testing.T) {
	raw := []byte(`{"event":"playerInput","payload":{"direction":"up"}}`)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "playerInput", env.Event)

	var p struct {
		Direction string `json:"direction"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "up", p.Direction)

	out, err := json.Marshal(outEnvelope{Event: "error", Payload: map[string]any{"message": "nope"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","payload":{"message":"nope"}}`, string(out))
}

func TestRegistryIgnoresUnknownEvents(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	called := false
	reg.Register("known", func(c *Conn, payload json.RawMessage, deps *Deps) {
		called = true
	})

	c := &Conn{id: "test"}
	reg.Dispatch(c, "unknown", nil, nil)
	assert.False(t, called)
	reg.Dispatch(c, "known", nil, nil)
	assert.True(t, called)
}
