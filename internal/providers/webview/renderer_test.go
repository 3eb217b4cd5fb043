package webview

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/bridge"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/security"
)

const origin = "https://apps.example.com/leave/index.html"

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Origin = origin
	r, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func loadBridge(t *testing.T, r *Renderer, reg *bridge.Registry, opts bridge.ScriptOptions) {
	t.Helper()
	require.NoError(t, r.Load(context.Background(), reg.Script(opts)))
}

func TestEvalAndConsole(t *testing.T) {
	r := newRenderer(t)

	v, err := r.Eval(context.Background(), `console.log("hello", 1 + 1); 21 * 2`)
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)

	logs := r.Console()
	require.Len(t, logs, 1)
	assert.Equal(t, "log", logs[0].Level)
	assert.Equal(t, "hello 2", logs[0].Message)

	v, err = r.Eval(context.Background(), `typeof require + ":" + (window === this)`)
	require.NoError(t, err)
	assert.Equal(t, "undefined:true", v)
}

func TestEvalTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	r, err := New(cfg, nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Eval(context.Background(), `for (;;) {}`)
	assert.ErrorIs(t, err, ErrTimeout)

	v, err := r.Eval(context.Background(), `"still usable"`)
	require.NoError(t, err)
	assert.Equal(t, "still usable", v)
}

func TestPostMessageIsQueued(t *testing.T) {
	r := newRenderer(t)

	_, err := r.Eval(context.Background(), `ReactNativeWebView.postMessage("a"); ReactNativeWebView.postMessage("b")`)
	require.NoError(t, err)

	msgs := r.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Data: "a", Origin: origin}, msgs[0])
	assert.Empty(t, r.Messages())
}

func TestTimersRunOnVirtualClock(t *testing.T) {
	r := newRenderer(t)

	_, err := r.Eval(context.Background(), `
		var fired = [];
		setTimeout(function () { fired.push("slow"); }, 200);
		setTimeout(function () { fired.push("fast"); }, 100);
		var cancelled = setTimeout(function () { fired.push("never"); }, 50);
		clearTimeout(cancelled);
	`)
	require.NoError(t, err)

	assert.Zero(t, r.Pump())
	assert.Equal(t, 1, r.Advance(150*time.Millisecond))
	assert.Equal(t, 1, r.Advance(50*time.Millisecond))

	v, err := r.Eval(context.Background(), `fired.join(",")`)
	require.NoError(t, err)
	assert.Equal(t, "fast,slow", v)
}

func TestReloadKeepsSessionStorage(t *testing.T) {
	r := newRenderer(t)
	require.NoError(t, r.Load(context.Background(), `var booted = (window.booted || 0) + 1;`))

	_, err := r.Eval(context.Background(), `sessionStorage.setItem("k", "v"); var scratch = 1;`)
	require.NoError(t, err)

	require.NoError(t, r.Reload(context.Background()))

	v, err := r.Eval(context.Background(), `sessionStorage.getItem("k") + ":" + typeof scratch + ":" + booted`)
	require.NoError(t, err)
	assert.Equal(t, "v:undefined:1", v)
}

func TestClosedRenderer(t *testing.T) {
	r := newRenderer(t)
	require.NoError(t, r.Close())

	assert.ErrorIs(t, r.InjectJavaScript(`1`), ErrClosed)
	_, err := r.Eval(context.Background(), `1`)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, r.Advance(time.Second))
}

// pump dispatches every queued message until the content goes quiet.
func pump(t *testing.T, r *Renderer, d *bridge.Dispatcher, env *bridge.Env, policy security.Policy) int {
	t.Helper()
	handled := 0
	for {
		msgs := r.Messages()
		if len(msgs) == 0 {
			return handled
		}
		for _, m := range msgs {
			d.Dispatch(context.Background(), env, policy, m.Data, m.Origin)
			handled++
		}
	}
}

func TestBridgeRoundTrip(t *testing.T) {
	r := newRenderer(t)

	// echo resolves in reverse arrival order to interleave replies.
	var held []*bridge.Context
	reg, err := bridge.NewRegistry(
		bridge.NewTopic("user_id", func(_ context.Context, _ bridge.Empty, bc *bridge.Context) error {
			bc.Resolve(bc.UserID)
			return nil
		}),
		bridge.NewTopic("echo", func(_ context.Context, p map[string]any, bc *bridge.Context) error {
			held = append(held, bc)
			return nil
		}),
	)
	require.NoError(t, err)
	loadBridge(t, r, reg, bridge.ScriptOptions{})

	env := &bridge.Env{UserID: "emp-3", AppID: "leave", Injector: r}
	policy := security.PolicyFor(security.ModeRemote, origin, "")
	d := bridge.NewDispatcher(reg, nil)

	_, err = r.Eval(context.Background(), `
		var results = [];
		var events = 0;
		window.addEventListener("nativeUserIdReceived", function () { events++; });
		nativebridge.requestUserId().then(function (v) { results.push("user:" + v); });
		nativebridge.requestEcho({n: 1}).then(function (v) { results.push("echo:" + v); });
		nativebridge.requestEcho({n: 2}).then(function (v) { results.push("echo:" + v); });
	`)
	require.NoError(t, err)

	assert.Equal(t, 3, pump(t, r, d, env, policy))
	require.Len(t, held, 2)
	held[1].Resolve("second")
	held[0].Resolve("first")

	v, err := r.Eval(context.Background(), `JSON.stringify({
		results: results,
		events: events,
		pending: nativebridge.pendingCount(),
		cached: nativebridge.getUserId(),
		stored: sessionStorage.getItem("nativebridge:nativeUserId")
	})`)
	require.NoError(t, err)

	var got struct {
		Results []string `json:"results"`
		Events  int      `json:"events"`
		Pending int      `json:"pending"`
		Cached  string   `json:"cached"`
		Stored  string   `json:"stored"`
	}
	require.NoError(t, json.Unmarshal([]byte(v.(string)), &got))
	assert.Equal(t, []string{"user:emp-3", "echo:second", "echo:first"}, got.Results)
	assert.Equal(t, 1, got.Events)
	assert.Zero(t, got.Pending)
	assert.Equal(t, "emp-3", got.Cached)
	assert.Equal(t, `"emp-3"`, got.Stored)
}

func TestBridgeStaleReplyIsIgnored(t *testing.T) {
	r := newRenderer(t)
	reg, err := bridge.NewRegistry(bridge.NewTopic("user_id", func(context.Context, bridge.Empty, *bridge.Context) error {
		return nil
	}))
	require.NoError(t, err)
	loadBridge(t, r, reg, bridge.ScriptOptions{})

	script, err := bridge.RenderCall("resolveUserId", "ghost", "user_id-unknown")
	require.NoError(t, err)
	require.NoError(t, r.InjectJavaScript(script))

	v, err := r.Eval(context.Background(), `String(nativebridge.getUserId())`)
	require.NoError(t, err)
	assert.Equal(t, "null", v)

	// A reply with no request id is a push: it updates the cache.
	script, err = bridge.RenderCall("resolveUserId", "pushed", "")
	require.NoError(t, err)
	require.NoError(t, r.InjectJavaScript(script))

	v, err = r.Eval(context.Background(), `nativebridge.getUserId()`)
	require.NoError(t, err)
	assert.Equal(t, "pushed", v)
}

func TestBridgeUnknownTopicTimesOut(t *testing.T) {
	r := newRenderer(t)
	served, err := bridge.NewRegistry(bridge.NewTopic("user_id", func(context.Context, bridge.Empty, *bridge.Context) error {
		return nil
	}))
	require.NoError(t, err)

	// Content was built against a newer host that also knows "camera".
	content, err := bridge.NewRegistry(
		bridge.NewTopic("user_id", func(context.Context, bridge.Empty, *bridge.Context) error { return nil }),
		bridge.NewTopic("camera", func(context.Context, bridge.Empty, *bridge.Context) error { return nil }),
	)
	require.NoError(t, err)
	loadBridge(t, r, content, bridge.ScriptOptions{RequestTimeoutMS: 1000})

	_, err = r.Eval(context.Background(), `
		var outcome = "pending";
		nativebridge.requestCamera().then(
			function () { outcome = "resolved"; },
			function (e) { outcome = "rejected:" + e; });
	`)
	require.NoError(t, err)

	env := &bridge.Env{AppID: "leave", Injector: r}
	policy := security.PolicyFor(security.ModeRemote, origin, "")
	d := bridge.NewDispatcher(served, nil)
	for _, m := range r.Messages() {
		assert.Equal(t, bridge.OutcomeUnknownTopic, d.Dispatch(context.Background(), env, policy, m.Data, m.Origin))
	}

	r.Advance(999 * time.Millisecond)
	v, err := r.Eval(context.Background(), `outcome`)
	require.NoError(t, err)
	assert.Equal(t, "pending", v)

	r.Advance(time.Millisecond)
	v, err = r.Eval(context.Background(), `outcome + "|" + nativebridge.pendingCount()`)
	require.NoError(t, err)
	assert.Equal(t, "rejected:Bridge request camera timed out|0", v)
}
