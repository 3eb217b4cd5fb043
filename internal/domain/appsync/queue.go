package appsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/monitoring"
	"github.com/LSFLK/superapp-mobile-sub000/internal/shared/id"
)

// Op is a queued lifecycle operation.
type Op string

const (
	OpInstall Op = "install"
	OpRemove  Op = "remove"
)

// Executor performs queued operations; install.Pipeline satisfies it.
type Executor interface {
	Install(ctx context.Context, appID, downloadURL string) error
	Remove(ctx context.Context, appID string) error
}

// JobInfo describes a pending or running job.
type JobInfo struct {
	ID          id.JobID  `json:"id"`
	Op          Op        `json:"op"`
	AppID       string    `json:"appId"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	Running     bool      `json:"running"`
	QueuedAt    time.Time `json:"queuedAt"`
}

type job struct {
	info    JobInfo
	waiters []chan error
}

// Queue runs installs and removals one at a time in arrival order. A job
// enqueued while an identical one (same op and app) is still pending joins
// it instead of running twice. Jobs ignore caller cancellation.
type Queue struct {
	exec    Executor
	log     *zap.Logger
	metrics *monitoring.Metrics

	mu         sync.Mutex
	pending    []*job
	current    *job
	processing bool
	idle       chan struct{}
}

// NewQueue creates an idle queue.
func NewQueue(exec Executor, log *zap.Logger) *Queue {
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		exec: exec,
		log:  logging.OrNop(log),
		idle: idle,
	}
}

// WithMetrics reports queue depth.
func (q *Queue) WithMetrics(metrics *monitoring.Metrics) *Queue {
	q.metrics = metrics
	return q
}

// EnqueueInstall queues an install. The channel yields its result.
func (q *Queue) EnqueueInstall(appID, downloadURL string) <-chan error {
	return q.enqueue(OpInstall, appID, downloadURL)
}

// EnqueueRemove queues a removal. The channel yields its result.
func (q *Queue) EnqueueRemove(appID string) <-chan error {
	return q.enqueue(OpRemove, appID, "")
}

func (q *Queue) enqueue(op Op, appID, downloadURL string) <-chan error {
	done := make(chan error, 1)

	q.mu.Lock()
	defer q.mu.Unlock()

	// Only the newest pending job for the app can absorb this one; merging
	// past a different op on the same app would reorder them.
	if j := q.lastPendingLocked(appID); j != nil && j.info.Op == op {
		if downloadURL != "" {
			j.info.DownloadURL = downloadURL
		}
		j.waiters = append(j.waiters, done)
		q.log.Debug("Merged duplicate job", zap.String("job_id", j.info.ID.String()), zap.String("app_id", appID))
		return done
	}

	j := &job{
		info: JobInfo{
			ID:          id.NewJobID(),
			Op:          op,
			AppID:       appID,
			DownloadURL: downloadURL,
			QueuedAt:    time.Now(),
		},
		waiters: []chan error{done},
	}
	q.pending = append(q.pending, j)
	q.metrics.SetQueueDepth(q.depthLocked())

	if !q.processing {
		q.processing = true
		q.idle = make(chan struct{})
		go q.run()
	}
	return done
}

func (q *Queue) lastPendingLocked(appID string) *job {
	for i := len(q.pending) - 1; i >= 0; i-- {
		if q.pending[i].info.AppID == appID {
			return q.pending[i]
		}
	}
	return nil
}

func (q *Queue) run() {
	ctx := context.WithoutCancel(context.Background())
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.current = nil
			q.processing = false
			close(q.idle)
			q.metrics.SetQueueDepth(0)
			q.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending = q.pending[1:]
		j.info.Running = true
		q.current = j
		q.metrics.SetQueueDepth(q.depthLocked())
		q.mu.Unlock()

		err := q.execute(ctx, j.info)

		q.mu.Lock()
		q.current = nil
		q.mu.Unlock()
		for _, w := range j.waiters {
			w <- err
		}
	}
}

func (q *Queue) execute(ctx context.Context, info JobInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s %s panicked: %v", info.Op, info.AppID, r)
		}
	}()

	log := q.log.With(zap.String("job_id", info.ID.String()), zap.String("op", string(info.Op)), zap.String("app_id", info.AppID))
	log.Debug("Job started")
	switch info.Op {
	case OpInstall:
		err = q.exec.Install(ctx, info.AppID, info.DownloadURL)
	case OpRemove:
		err = q.exec.Remove(ctx, info.AppID)
	default:
		err = fmt.Errorf("unknown op %q", info.Op)
	}
	if err != nil {
		log.Warn("Job failed", zap.Error(err))
	} else {
		log.Debug("Job finished")
	}
	return err
}

// Jobs returns the running job followed by pending jobs.
func (q *Queue) Jobs() []JobInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]JobInfo, 0, len(q.pending)+1)
	if q.current != nil {
		out = append(out, q.current.info)
	}
	for _, j := range q.pending {
		out = append(out, j.info)
	}
	return out
}

// Len counts running and pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked()
}

// Processing reports whether the worker is running.
func (q *Queue) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// Wait blocks until the queue is empty or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) depthLocked() int {
	n := len(q.pending)
	if q.current != nil {
		n++
	}
	return n
}
