package bridge

import "sync"

// TokenWaitlist holds the current capability token for a rendered app and
// the token requests that arrived before it was available.
type TokenWaitlist struct {
	mu      sync.Mutex
	token   string
	waiters []func(token string)
}

// NewTokenWaitlist creates an empty wait-list.
func NewTokenWaitlist() *TokenWaitlist {
	return &TokenWaitlist{}
}

// Token returns the current token, or "" when none has been provided.
func (w *TokenWaitlist) Token() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.token
}

// EnqueueWaiter queues fn until a token is provided. If one already is, fn
// runs immediately.
func (w *TokenWaitlist) EnqueueWaiter(fn func(token string)) {
	w.mu.Lock()
	if w.token == "" {
		w.waiters = append(w.waiters, fn)
		w.mu.Unlock()
		return
	}
	token := w.token
	w.mu.Unlock()
	fn(token)
}

// DrainWaiters hands token to every queued waiter in arrival order and
// empties the queue.
func (w *TokenWaitlist) DrainWaiters(token string) int {
	w.mu.Lock()
	waiters := w.waiters
	w.waiters = nil
	w.mu.Unlock()

	for _, fn := range waiters {
		fn(token)
	}
	return len(waiters)
}

// Provide records token and drains the queue.
func (w *TokenWaitlist) Provide(token string) int {
	if token == "" {
		return 0
	}
	w.mu.Lock()
	w.token = token
	w.mu.Unlock()
	return w.DrainWaiters(token)
}

// Pending reports how many requests are waiting.
func (w *TokenWaitlist) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiters)
}
