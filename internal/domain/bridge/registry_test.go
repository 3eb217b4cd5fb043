package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, Empty, *Context) error { return nil }

func TestMethodsFor(t *testing.T) {
	m := MethodsFor("micro_app_token")

	assert.Equal(t, "micro_app_token", m.Topic)
	assert.Equal(t, "requestMicroAppToken", m.Request)
	assert.Equal(t, "resolveMicroAppToken", m.Resolve)
	assert.Equal(t, "rejectMicroAppToken", m.Reject)
	assert.Equal(t, "getMicroAppToken", m.Helper)
	assert.Equal(t, "nativeMicroAppToken", m.GlobalVar)
	assert.Equal(t, "nativeMicroAppTokenReceived", m.ReceivedEvent)
}

func TestRegistryRejectsBadNames(t *testing.T) {
	tests := []struct {
		name string
		want error
	}{
		{"", ErrEmptyTopic},
		{"UserId", ErrInvalidTopic},
		{"user-id", ErrInvalidTopic},
		{"_user", ErrInvalidTopic},
		{"user__id", ErrInvalidTopic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(NewTopic(tt.name, noop))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(NewTopic("token", noop), NewTopic("token", noop))
	assert.ErrorIs(t, err, ErrDuplicateTopic)
}

func TestRegistryKeepsOrder(t *testing.T) {
	reg, err := NewDefaultRegistry(Services{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		TopicToken, TopicUserID, TopicQRRequest, TopicAlert, TopicConfirmAlert,
		TopicSaveLocalData, TopicGetLocalData, TopicMicroAppToken, TopicSecurityAudit,
	}, reg.Topics())

	table := reg.Table()
	require.Len(t, table, 9)
	assert.Equal(t, "requestUserId", table[1].Request)

	_, methods, ok := reg.Lookup(TopicQRRequest)
	require.True(t, ok)
	assert.Equal(t, "resolveQrRequest", methods.Resolve)

	_, _, ok = reg.Lookup("camera")
	assert.False(t, ok)
}

func TestScriptIsDeterministic(t *testing.T) {
	reg, err := NewDefaultRegistry(Services{})
	require.NoError(t, err)

	a := reg.Script(ScriptOptions{})
	b := reg.Script(ScriptOptions{})
	assert.Equal(t, a, b)
	assert.Contains(t, a, `"request":"requestMicroAppToken"`)
	assert.Contains(t, a, `"requestTimeoutMs":0`)

	timed := reg.Script(ScriptOptions{RequestTimeoutMS: 500})
	assert.Contains(t, timed, `"requestTimeoutMs":500`)
}

func TestRenderCall(t *testing.T) {
	script, err := RenderCall("resolveUserId", "emp-1", "user_id-1")
	require.NoError(t, err)
	assert.Equal(t, `window.nativebridge.resolveUserId("emp-1", "user_id-1");`, script)

	script, err = RenderCall("resolveSaveLocalData", nil, "")
	require.NoError(t, err)
	assert.Equal(t, `window.nativebridge.resolveSaveLocalData(null, "");`, script)

	_, err = RenderCall("resolveBad", make(chan int), "x")
	assert.Error(t, err)
}

func TestTopicDecodesPayload(t *testing.T) {
	var got SaveLocalDataRequest
	def := NewTopic("save", func(_ context.Context, req SaveLocalDataRequest, _ *Context) error {
		got = req
		return nil
	})

	require.NoError(t, def.Invoke(context.Background(), []byte(`{"key":"k","value":"v"}`), nil))
	assert.Equal(t, SaveLocalDataRequest{Key: "k", Value: "v"}, got)

	got = SaveLocalDataRequest{Key: "stale"}
	require.NoError(t, def.Invoke(context.Background(), []byte(`null`), nil))
	assert.Equal(t, SaveLocalDataRequest{}, got)

	err := def.Invoke(context.Background(), []byte(`[1,2]`), nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
