package webview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
)

// Renderer is a headless content view: a goja VM with the browser globals
// micro-app bundles and the bridge runtime rely on.
//
// Content never calls back into the host synchronously. postMessage only
// appends to an outbox that the host drains with Messages, so handlers may
// inject replies without re-entering the VM.
type Renderer struct {
	mu     sync.Mutex
	vm     *goja.Runtime
	config Config
	log    *zap.Logger

	// Survives Reload, like a page's session storage.
	storage map[string]string

	scripts []string // Replayed on Reload
	timers  map[int64]*timer
	nextID  int64
	elapsed time.Duration // Virtual clock for timers
	closed  bool

	outMu   sync.Mutex
	outbox  []Message
	console []LogEntry
}

type timer struct {
	id  int64
	due time.Duration
	seq int64
	fn  goja.Callable
}

// New creates a renderer with fresh globals.
func New(config Config, log *zap.Logger) (*Renderer, error) {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	r := &Renderer{
		config:  config,
		log:     logging.OrNop(log),
		storage: make(map[string]string),
		timers:  make(map[int64]*timer),
	}
	if err := r.reset(); err != nil {
		return nil, err
	}
	return r, nil
}

// Origin returns the URL content is reported as loaded from.
func (r *Renderer) Origin() string {
	return r.config.Origin
}

// Load runs a script now and again after every Reload.
func (r *Renderer) Load(ctx context.Context, script string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.scripts = append(r.scripts, script)
	_, err := r.run(ctx, script)
	return err
}

// InjectJavaScript runs a host-to-content script call.
func (r *Renderer) InjectJavaScript(script string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	_, err := r.run(context.Background(), script)
	return err
}

// Eval runs script and exports its completion value.
func (r *Renderer) Eval(ctx context.Context, script string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	v, err := r.run(ctx, script)
	if err != nil {
		return nil, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

// Messages drains the outbox.
func (r *Renderer) Messages() []Message {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	out := r.outbox
	r.outbox = nil
	return out
}

// Console returns captured console output.
func (r *Renderer) Console() []LogEntry {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	return append([]LogEntry(nil), r.console...)
}

// Pump fires timers that are already due.
func (r *Renderer) Pump() int {
	return r.Advance(0)
}

// Advance moves the virtual clock forward and fires due timers in order.
func (r *Renderer) Advance(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	r.elapsed += d

	fired := 0
	for {
		next := r.nextDue()
		if next == nil {
			return fired
		}
		delete(r.timers, next.id)
		if _, err := next.fn(goja.Undefined()); err != nil {
			r.log.Warn("Timer callback failed", zap.Error(err))
		}
		fired++
	}
}

// Reload discards globals, pending timers and undelivered messages, then
// replays loaded scripts. Session storage is kept.
func (r *Renderer) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := r.reset(); err != nil {
		return err
	}
	r.outMu.Lock()
	r.outbox = nil
	r.outMu.Unlock()

	for _, script := range r.scripts {
		if _, err := r.run(ctx, script); err != nil {
			return fmt.Errorf("replay script: %w", err)
		}
	}
	return nil
}

// Close releases the VM. Later calls return ErrClosed.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.vm = nil
	r.timers = nil
	return nil
}

func (r *Renderer) nextDue() *timer {
	var due []*timer
	for _, t := range r.timers {
		if t.due <= r.elapsed {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})
	return due[0]
}

// run must be called with mu held.
func (r *Renderer) run(ctx context.Context, script string) (goja.Value, error) {
	vm := r.vm
	done := make(chan struct{})
	exited := make(chan struct{})

	deadline := time.NewTimer(r.config.Timeout)
	defer deadline.Stop()

	go func() {
		defer close(exited)
		select {
		case <-deadline.C:
			vm.Interrupt(ErrTimeout)
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	v, err := vm.RunString(script)
	close(done)
	<-exited
	vm.ClearInterrupt()

	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			if cause, ok := ie.Value().(error); ok {
				return nil, cause
			}
		}
		return nil, err
	}
	return v, nil
}

// reset must be called with mu held.
func (r *Renderer) reset() error {
	vm := goja.New()
	if r.config.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}
	r.vm = vm
	r.timers = make(map[int64]*timer)
	return r.setupGlobals()
}
