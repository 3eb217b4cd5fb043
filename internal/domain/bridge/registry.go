package bridge

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
)

var (
	ErrEmptyTopic     = errors.New("bridge: topic name is required")
	ErrInvalidTopic   = errors.New("bridge: topic name must be lower snake case")
	ErrDuplicateTopic = errors.New("bridge: duplicate topic")
)

// Topic names become JavaScript identifiers.
var topicPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

type entry struct {
	def     Definition
	methods Methods
}

// Registry maps topic names to handlers and their generated method tables.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]entry
}

// NewRegistry registers defs in order, failing on the first bad name.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{entries: make(map[string]entry)}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds one topic.
func (r *Registry) Register(def Definition) error {
	name := def.Topic()
	if name == "" {
		return ErrEmptyTopic
	}
	if !topicPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTopic, name)
	}
	r.entries[name] = entry{def: def, methods: MethodsFor(name)}
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the handler for topic.
func (r *Registry) Lookup(topic string) (Definition, Methods, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[topic]
	return e.def, e.methods, ok
}

// Topics returns topic names in registration order.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Table returns the method table in registration order.
func (r *Registry) Table() []Methods {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Methods, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].methods)
	}
	return out
}
