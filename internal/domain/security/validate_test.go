package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeBridgeMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"not json", "{oops", ErrMalformedMessage},
		{"array", `[1,2]`, ErrInvalidFormat},
		{"null", `null`, ErrInvalidFormat},
		{"string", `"token"`, ErrInvalidFormat},
		{"missing topic", `{"data":{}}`, ErrMissingTopic},
		{"empty topic", `{"topic":""}`, ErrMissingTopic},
		{"numeric topic", `{"topic":7}`, ErrMissingTopic},
		{"polluted", `{"topic":"token","__proto__":{"isAdmin":true}}`, ErrPollutedPayload},
		{"proto scalar", `{"topic":"token","__proto__":1}`, ErrPollutedPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SanitizeBridgeMessage(tt.raw)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSanitizeAcceptsOrdinaryMessages(t *testing.T) {
	env, err := SanitizeBridgeMessage(`{"topic":"save_local_data","data":{"key":"k","value":"v"},"requestId":"r1"}`)
	require.NoError(t, err)
	assert.Equal(t, "save_local_data", env.Topic)
	assert.Equal(t, "r1", env.RequestID)
	assert.JSONEq(t, `{"key":"k","value":"v"}`, string(env.Data))

	env, err = SanitizeBridgeMessage(`{"topic":"token","__proto__":{},"requestId":42}`)
	require.NoError(t, err)
	assert.Equal(t, "42", env.RequestID)

	// Nested keys are not inspected.
	_, err = SanitizeBridgeMessage(`{"topic":"alert","data":{"__proto__":{"x":1}}}`)
	assert.NoError(t, err)
}

func TestValidateMessageOriginLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	v := NewValidator(zap.New(core))
	p := PolicyFor(ModeLocalFile, "", "/srv/docs")

	ok := v.ValidateMessageOrigin("file:///data/user/0/app/files/a/index.html", p, "a1")
	assert.True(t, ok.IsValid)

	bad := v.ValidateMessageOrigin("https://evil.example/x", p, "a1")
	assert.False(t, bad.IsValid)
	assert.Contains(t, bad.Reason, "not authorized")

	p.BridgeEnabled = false
	off := v.ValidateMessageOrigin("file:///data/user/0/x", p, "a1")
	assert.False(t, off.IsValid)
	assert.Equal(t, "Bridge disabled for this app", off.Reason)

	assert.Equal(t, 3, logs.Len())
	assert.Equal(t, 1, logs.FilterMessage("Bridge message from unauthorized origin").Len())
}
