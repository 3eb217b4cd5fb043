package bridge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/security"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/monitoring"
)

// Outcome classifies what happened to one inbound message.
type Outcome int

const (
	OutcomeHandled Outcome = iota
	OutcomeMalformed
	OutcomeOriginRejected
	OutcomeUnknownTopic
	OutcomeHandlerError
	OutcomePanic
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHandled:
		return "handled"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeOriginRejected:
		return "origin_rejected"
	case OutcomeUnknownTopic:
		return "unknown_topic"
	case OutcomeHandlerError:
		return "handler_error"
	case OutcomePanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Dispatcher routes inbound bridge messages to registered topics. Nothing
// it does returns an error or panics to the caller: every failure is
// logged and reported as an Outcome.
type Dispatcher struct {
	registry  *Registry
	validator *security.Validator
	log       *zap.Logger
	metrics   *monitoring.Metrics
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, log *zap.Logger) *Dispatcher {
	log = logging.OrNop(log)
	return &Dispatcher{
		registry:  registry,
		validator: security.NewValidator(log),
		log:       log,
	}
}

// WithMetrics adds per-topic outcome counters.
func (d *Dispatcher) WithMetrics(metrics *monitoring.Metrics) *Dispatcher {
	d.metrics = metrics
	return d
}

// Registry returns the topic registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch handles one raw message posted by content loaded from origin.
func (d *Dispatcher) Dispatch(ctx context.Context, env *Env, policy security.Policy, raw, origin string) (outcome Outcome) {
	topic := ""
	defer func() {
		d.metrics.RecordBridgeMessage(topic, outcome.String())
	}()

	msg, err := security.SanitizeBridgeMessage(raw)
	if err != nil {
		d.log.Warn("Dropped malformed bridge message", zap.String("app_id", env.AppID), zap.Error(err))
		return OutcomeMalformed
	}

	if v := d.validator.ValidateMessageOrigin(origin, policy, env.AppID); !v.IsValid {
		d.log.Warn("Dropped bridge message",
			zap.String("app_id", env.AppID),
			zap.String("topic", msg.Topic),
			zap.String("reason", v.Reason))
		return OutcomeOriginRejected
	}

	def, methods, ok := d.registry.Lookup(msg.Topic)
	if !ok {
		// The content-side promise stays pending unless the runtime was
		// generated with a request timeout.
		d.log.Warn("Unknown bridge topic",
			zap.String("app_id", env.AppID),
			zap.String("topic", msg.Topic),
			zap.String("request_id", msg.RequestID))
		return OutcomeUnknownTopic
	}
	topic = msg.Topic

	bc := &Context{
		UserID:    env.UserID,
		AppID:     env.AppID,
		Topic:     msg.Topic,
		RequestID: msg.RequestID,
		methods:   methods,
		env:       env,
		log:       d.log.With(zap.String("topic", msg.Topic), zap.String("app_id", env.AppID)),
	}

	if err := d.invoke(ctx, def, msg.Data, bc); err != nil {
		var pe *panicError
		if errors.As(err, &pe) {
			d.log.Error("Bridge handler panicked",
				zap.String("topic", msg.Topic),
				zap.Any("panic", pe.value),
				zap.Stack("stack"))
			return OutcomePanic
		}
		d.log.Error("Bridge handler failed", zap.String("topic", msg.Topic), zap.Error(err))
		if errors.Is(err, ErrInvalidPayload) {
			bc.Reject(err.Error())
		}
		return OutcomeHandlerError
	}
	return OutcomeHandled
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func (d *Dispatcher) invoke(ctx context.Context, def Definition, data []byte, bc *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return def.Invoke(ctx, data, bc)
}
