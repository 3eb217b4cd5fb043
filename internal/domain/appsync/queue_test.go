package appsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	active  int
	maxSeen int
	gate    chan struct{} // when set, each call waits for a token
	delay   time.Duration
}

func (f *fakeExecutor) do(call, appID string) error {
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	f.calls = append(f.calls, call)
	return f.fail[appID]
}

func (f *fakeExecutor) Install(_ context.Context, appID, url string) error {
	return f.do(fmt.Sprintf("install:%s", appID), appID)
}

func (f *fakeExecutor) Remove(_ context.Context, appID string) error {
	return f.do("remove:"+appID, appID)
}

func (f *fakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestQueueRunsJobsInOrderOneAtATime(t *testing.T) {
	exec := &fakeExecutor{delay: 5 * time.Millisecond}
	q := NewQueue(exec, nil)

	var chans []<-chan error
	for _, id := range []string{"a", "b", "c"} {
		chans = append(chans, q.EnqueueInstall(id, "https://cdn/"+id+".zip"))
	}
	chans = append(chans, q.EnqueueRemove("d"))

	for _, ch := range chans {
		require.NoError(t, <-ch)
	}
	require.NoError(t, q.Wait(context.Background()))

	assert.Equal(t, []string{"install:a", "install:b", "install:c", "remove:d"}, exec.Calls())
	assert.Equal(t, 1, exec.maxSeen)
	assert.Zero(t, q.Len())
	assert.False(t, q.Processing())
}

func TestQueueMergesDuplicatePendingJobs(t *testing.T) {
	exec := &fakeExecutor{gate: make(chan struct{})}
	q := NewQueue(exec, nil)

	first := q.EnqueueInstall("a", "u1")
	// Wait until "a" is running so the next two are pending.
	require.Eventually(t, func() bool { return len(q.Jobs()) == 1 && q.Jobs()[0].Running }, time.Second, time.Millisecond)

	b1 := q.EnqueueInstall("b", "u2")
	b2 := q.EnqueueInstall("b", "u3")
	assert.Equal(t, 2, q.Len())

	jobs := q.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "u3", jobs[1].DownloadURL)

	close(exec.gate)
	require.NoError(t, <-first)
	require.NoError(t, <-b1)
	require.NoError(t, <-b2)
	assert.Equal(t, []string{"install:a", "install:b"}, exec.Calls())
}

func TestQueueKeepsAlternatingOpsInOrder(t *testing.T) {
	exec := &fakeExecutor{gate: make(chan struct{})}
	q := NewQueue(exec, nil)

	busy := q.EnqueueInstall("x", "ux")
	require.Eventually(t, func() bool { return len(q.Jobs()) == 1 && q.Jobs()[0].Running }, time.Second, time.Millisecond)

	waits := []<-chan error{
		q.EnqueueInstall("a", "u1"),
		q.EnqueueRemove("a"),
		q.EnqueueInstall("a", "u2"),
		// Same op as the newest pending job for "a": merged into it.
		q.EnqueueInstall("a", "u3"),
	}
	assert.Equal(t, 4, q.Len())
	jobs := q.Jobs()
	require.Len(t, jobs, 4)
	assert.Equal(t, "u1", jobs[1].DownloadURL)
	assert.Equal(t, "u3", jobs[3].DownloadURL)

	close(exec.gate)
	require.NoError(t, <-busy)
	for _, ch := range waits {
		require.NoError(t, <-ch)
	}
	assert.Equal(t, []string{"install:x", "install:a", "remove:a", "install:a"}, exec.Calls())
}

func TestQueueReportsFailuresAndContinues(t *testing.T) {
	exec := &fakeExecutor{fail: map[string]error{"bad": errors.New("boom")}}
	q := NewQueue(exec, nil)

	bad := q.EnqueueInstall("bad", "u")
	good := q.EnqueueInstall("good", "u")

	assert.EqualError(t, <-bad, "boom")
	assert.NoError(t, <-good)
}

type panickyExecutor struct{ fakeExecutor }

func (p *panickyExecutor) Install(context.Context, string, string) error { panic("kaboom") }

func TestQueueRecoversPanics(t *testing.T) {
	q := NewQueue(&panickyExecutor{}, nil)

	err := <-q.EnqueueInstall("a", "u")
	assert.ErrorContains(t, err, "kaboom")
	assert.NoError(t, <-q.EnqueueRemove("a"))
}

func TestQueueIgnoresCallerCancellation(t *testing.T) {
	exec := &fakeExecutor{gate: make(chan struct{})}
	q := NewQueue(exec, nil)
	o := NewOrchestrator(nil, nil, q, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- o.RemoveNow(ctx, "a") }()

	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(exec.gate)
	require.NoError(t, q.Wait(context.Background()))
	assert.Equal(t, []string{"remove:a"}, exec.Calls())
}
