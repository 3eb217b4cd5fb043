package bridge

import (
	"context"

	"go.uber.org/zap"
)

// Topic names served by the host.
const (
	TopicToken         = "token"
	TopicUserID        = "user_id"
	TopicQRRequest     = "qr_request"
	TopicAlert         = "alert"
	TopicConfirmAlert  = "confirm_alert"
	TopicSaveLocalData = "save_local_data"
	TopicGetLocalData  = "get_local_data"
	TopicMicroAppToken = "micro_app_token"
	TopicSecurityAudit = "security_audit"
)

// SaveLocalDataRequest is the payload of save_local_data.
type SaveLocalDataRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetLocalDataRequest is the payload of get_local_data.
type GetLocalDataRequest struct {
	Key string `json:"key"`
}

// LocalDataValue answers get_local_data; Value is null when unset.
type LocalDataValue struct {
	Value *string `json:"value"`
}

// MicroAppToken answers micro_app_token.
type MicroAppToken struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
	AppID     string `json:"app_id"`
}

// DefaultTopics returns the host's topic set in registration order.
func DefaultTopics(s Services) []Definition {
	s = s.withDefaults()
	return []Definition{
		NewTopic(TopicToken, handleToken),
		NewTopic(TopicUserID, handleUserID),
		NewTopic(TopicQRRequest, handleQRRequest),
		NewTopic(TopicAlert, s.handleAlert),
		NewTopic(TopicConfirmAlert, s.handleConfirmAlert),
		NewTopic(TopicSaveLocalData, s.handleSaveLocalData),
		NewTopic(TopicGetLocalData, s.handleGetLocalData),
		NewTopic(TopicMicroAppToken, s.handleMicroAppToken),
		NewTopic(TopicSecurityAudit, s.handleSecurityAudit),
	}
}

// NewDefaultRegistry builds a registry of DefaultTopics.
func NewDefaultRegistry(s Services) (*Registry, error) {
	return NewRegistry(DefaultTopics(s)...)
}

// token is the only topic with deferred resolution: requests arriving
// before the token is available wait on the session's wait-list.
func handleToken(_ context.Context, _ Empty, bc *Context) error {
	waitlist := bc.Tokens()
	if waitlist == nil {
		bc.Reject("Token not available")
		return nil
	}
	if token := waitlist.Token(); token != "" {
		bc.Resolve(token)
		waitlist.DrainWaiters(token)
		return nil
	}
	waitlist.EnqueueWaiter(func(token string) {
		bc.Resolve(token)
	})
	return nil
}

func handleUserID(_ context.Context, _ Empty, bc *Context) error {
	bc.Resolve(bc.UserID)
	return nil
}

func handleQRRequest(_ context.Context, _ Empty, bc *Context) error {
	bc.SetScannerVisible(true)
	return nil
}

func (s Services) handleAlert(ctx context.Context, req AlertRequest, bc *Context) error {
	s.Dialogs.Alert(ctx, bc.AppID, req)
	return nil
}

func (s Services) handleConfirmAlert(ctx context.Context, req ConfirmRequest, bc *Context) error {
	s.Dialogs.Confirm(ctx, bc.AppID, req, func(confirmed bool) {
		if confirmed {
			bc.Resolve("confirm")
			return
		}
		bc.Resolve("cancel")
	})
	return nil
}

func (s Services) handleSaveLocalData(ctx context.Context, req SaveLocalDataRequest, bc *Context) error {
	if s.Local == nil {
		bc.Reject("Local storage unavailable")
		return nil
	}
	if req.Key == "" {
		bc.Reject("key is required")
		return nil
	}
	if err := s.Local.Set(ctx, LocalKey(bc.AppID, req.Key), req.Value); err != nil {
		s.Log.Warn("save_local_data failed", zap.String("app_id", bc.AppID), zap.Error(err))
		bc.Reject(err.Error())
		return nil
	}
	bc.Resolve(nil)
	return nil
}

func (s Services) handleGetLocalData(ctx context.Context, req GetLocalDataRequest, bc *Context) error {
	if s.Local == nil {
		bc.Reject("Local storage unavailable")
		return nil
	}
	value, err := s.Local.Get(ctx, LocalKey(bc.AppID, req.Key))
	switch {
	case err == nil:
		bc.Resolve(LocalDataValue{Value: &value})
	case isNotFound(err):
		bc.Resolve(LocalDataValue{})
	default:
		s.Log.Warn("get_local_data failed", zap.String("app_id", bc.AppID), zap.Error(err))
		bc.Reject(err.Error())
	}
	return nil
}

func (s Services) handleMicroAppToken(ctx context.Context, _ Empty, bc *Context) error {
	if bc.AppID == "" {
		bc.Reject("app_id parameter is required")
		return nil
	}
	if bc.UserID == "" {
		bc.Reject("User ID is not available")
		return nil
	}
	if s.Tokens == nil {
		bc.Reject("Token service unavailable")
		return nil
	}

	tok, err := s.Tokens.Get(ctx, bc.UserID, bc.AppID)
	if err != nil {
		s.Log.Warn("micro_app_token failed", zap.String("app_id", bc.AppID), zap.Error(err))
		bc.Reject(err.Error())
		return nil
	}
	bc.Resolve(MicroAppToken{Token: tok.Token, ExpiresAt: tok.ExpiresAt, AppID: bc.AppID})
	return nil
}
