package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
)

var (
	ErrMalformedMessage = errors.New("failed to parse message")
	ErrInvalidFormat    = errors.New("invalid message format")
	ErrMissingTopic     = errors.New("missing or invalid topic")
	ErrPollutedPayload  = errors.New("potentially malicious payload detected")
)

// Envelope is an inbound bridge message after sanitization.
type Envelope struct {
	Topic     string          `json:"topic"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// Validation is the verdict on a message origin.
type Validation struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason,omitempty"`
}

// Validator checks message origins and logs every verdict.
type Validator struct {
	log *zap.Logger
}

// NewValidator creates a validator; a nil logger discards output.
func NewValidator(log *zap.Logger) *Validator {
	return &Validator{log: logging.OrNop(log)}
}

// ValidateMessageOrigin rejects messages when the bridge is disabled or the
// origin matches no bridge pattern.
func (v *Validator) ValidateMessageOrigin(origin string, p Policy, appID string) Validation {
	if !p.BridgeEnabled {
		v.log.Warn("Bridge disabled for app", zap.String("app_id", appID), zap.String("origin", origin))
		return Validation{Reason: "Bridge disabled for this app"}
	}

	matched := make([]string, 0, 1)
	unmatched := make([]string, 0, len(p.AllowedBridgeOrigins))
	for _, pattern := range p.AllowedBridgeOrigins {
		if Match(origin, pattern) {
			matched = append(matched, pattern)
		} else {
			unmatched = append(unmatched, pattern)
		}
	}

	if len(matched) == 0 {
		v.log.Warn("Bridge message from unauthorized origin",
			zap.String("app_id", appID),
			zap.String("origin", origin),
			zap.Strings("allowed", p.AllowedBridgeOrigins))
		return Validation{Reason: fmt.Sprintf("Origin %s not authorized for bridge access", origin)}
	}

	v.log.Debug("Bridge origin validated",
		zap.String("app_id", appID),
		zap.String("origin", origin),
		zap.Strings("matched", matched),
		zap.Strings("unmatched", unmatched))
	return Validation{IsValid: true}
}

// SanitizeBridgeMessage parses a raw bridge message. The checks are a
// minimum bar: a JSON object, a non-empty string topic, and no own
// __proto__ key carrying anything but an empty object. Nested payloads are
// passed through untouched.
func SanitizeBridgeMessage(raw string) (Envelope, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Envelope{}, ErrInvalidFormat
		}
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if fields == nil {
		return Envelope{}, ErrInvalidFormat
	}
	if dec.More() {
		return Envelope{}, ErrMalformedMessage
	}

	var topic string
	if err := json.Unmarshal(fields["topic"], &topic); err != nil || topic == "" {
		return Envelope{}, ErrMissingTopic
	}

	if proto, ok := fields["__proto__"]; ok && !isEmptyObject(proto) {
		return Envelope{}, ErrPollutedPayload
	}

	env := Envelope{Topic: topic, Data: fields["data"]}
	env.RequestID = requestID(fields["requestId"])
	return env, nil
}

// requestID accepts string or numeric ids.
func requestID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func isEmptyObject(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return false
	}
	return len(m) == 0 && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{"))
}
