package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests while half-open")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Defaults to 5.
	Threshold uint32
	// Probes is how many trial calls a half-open breaker admits; that many
	// successes close it again. Defaults to 1.
	Probes uint32
	// Interval clears the closed-state counts periodically. Zero never
	// clears them.
	Interval time.Duration
	// Cooldown is how long the breaker stays open. Defaults to 30s.
	Cooldown time.Duration
	// IsFailure classifies an error. Errors it rejects count as successes,
	// so callers can keep client errors from tripping the breaker. Defaults
	// to err != nil.
	IsFailure func(err error) bool
	// OnStateChange is called, without the lock held, after every transition.
	OnStateChange func(name string, from, to State)
}

// Counts holds the statistics for the current generation
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker guards calls to a dependency that may be down.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New creates a closed breaker.
func New(name string, settings Settings) *Breaker {
	if settings.Threshold == 0 {
		settings.Threshold = 5
	}
	if settings.Probes == 0 {
		settings.Probes = 1
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool { return err != nil }
	}
	b := &Breaker{name: name, settings: settings, now: time.Now}
	b.expiry = b.closedExpiry(b.now())
	return b
}

// WithClock replaces time.Now in tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	b.expiry = b.closedExpiry(now())
	return b
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	state, _, change := b.current(b.now())
	b.mu.Unlock()
	b.notify(change)
	return state
}

// Counts returns a copy of the current generation's counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn unless the breaker is open. fn's error is returned as is.
func (b *Breaker) Do(fn func() error) error {
	generation, err := b.before()
	if err != nil {
		return err
	}

	defer func() {
		if e := recover(); e != nil {
			b.after(generation, true)
			panic(e)
		}
	}()

	err = fn()
	b.after(generation, b.settings.IsFailure(err))
	return err
}

type transition struct {
	from, to State
	changed  bool
}

func (b *Breaker) notify(t transition) {
	if t.changed && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, t.from, t.to)
	}
}

func (b *Breaker) before() (uint64, error) {
	b.mu.Lock()
	state, generation, change := b.current(b.now())
	var err error
	switch {
	case state == StateOpen:
		err = ErrCircuitOpen
	case state == StateHalfOpen && b.counts.Requests >= b.settings.Probes:
		err = ErrTooManyRequests
	default:
		b.counts.Requests++
	}
	b.mu.Unlock()
	b.notify(change)
	return generation, err
}

func (b *Breaker) after(before uint64, failed bool) {
	b.mu.Lock()
	now := b.now()
	state, generation, change := b.current(now)
	if generation == before {
		var c transition
		if failed {
			c = b.onFailure(state, now)
		} else {
			c = b.onSuccess(state, now)
		}
		if c.changed {
			change = c
		}
	}
	b.mu.Unlock()
	b.notify(change)
}

func (b *Breaker) onSuccess(state State, now time.Time) transition {
	b.counts.TotalSuccesses++
	b.counts.ConsecutiveSuccesses++
	b.counts.ConsecutiveFailures = 0
	if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.Probes {
		return b.setState(StateClosed, now)
	}
	return transition{}
}

func (b *Breaker) onFailure(state State, now time.Time) transition {
	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.settings.Threshold {
			return b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		return b.setState(StateOpen, now)
	}
	return transition{}
}

// current must be called with mu held.
func (b *Breaker) current(now time.Time) (State, uint64, transition) {
	var change transition
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && !now.Before(b.expiry) {
			b.newGeneration(b.closedExpiry(now))
		}
	case StateOpen:
		if !now.Before(b.expiry) {
			change = b.setState(StateHalfOpen, now)
		}
	}
	return b.state, b.generation, change
}

func (b *Breaker) setState(state State, now time.Time) transition {
	if b.state == state {
		return transition{}
	}
	prev := b.state
	b.state = state

	var expiry time.Time
	switch state {
	case StateClosed:
		expiry = b.closedExpiry(now)
	case StateOpen:
		expiry = now.Add(b.settings.Cooldown)
	}
	b.newGeneration(expiry)
	return transition{from: prev, to: state, changed: true}
}

func (b *Breaker) newGeneration(expiry time.Time) {
	b.generation++
	b.counts = Counts{}
	b.expiry = expiry
}

func (b *Breaker) closedExpiry(now time.Time) time.Time {
	if b.settings.Interval <= 0 {
		return time.Time{}
	}
	return now.Add(b.settings.Interval)
}
