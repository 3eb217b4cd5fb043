package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPayload wraps a data field that does not decode into the
// topic's payload type.
var ErrInvalidPayload = errors.New("invalid payload")

// Definition is one registered topic.
type Definition interface {
	Topic() string
	Invoke(ctx context.Context, data json.RawMessage, bc *Context) error
}

type typedTopic[P any] struct {
	name string
	fn   func(context.Context, P, *Context) error
}

// NewTopic binds a handler to a topic. data is decoded into P before the
// handler runs; a missing or null data field yields the zero P.
func NewTopic[P any](name string, fn func(ctx context.Context, payload P, bc *Context) error) Definition {
	return typedTopic[P]{name: name, fn: fn}
}

func (t typedTopic[P]) Topic() string { return t.name }

func (t typedTopic[P]) Invoke(ctx context.Context, data json.RawMessage, bc *Context) error {
	var payload P
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return fmt.Errorf("%w for %s: %v", ErrInvalidPayload, t.name, err)
		}
	}
	return t.fn(ctx, payload, bc)
}

// Empty is the payload of topics that ignore their data.
type Empty struct{}

// UnmarshalJSON accepts any value.
func (*Empty) UnmarshalJSON([]byte) error { return nil }
