package bridge

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/tokencache"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/kv"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
)

// AlertRequest is the payload of the alert topic.
type AlertRequest struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	ButtonText string `json:"buttonText"`
}

// ConfirmRequest is the payload of the confirm_alert topic.
type ConfirmRequest struct {
	Title             string `json:"title"`
	Message           string `json:"message"`
	CancelButtonText  string `json:"cancelButtonText"`
	ConfirmButtonText string `json:"confirmButtonText"`
}

// Dialogs shows native modals. Confirm must not block: the answer is
// delivered through the callback whenever the user responds.
type Dialogs interface {
	Alert(ctx context.Context, appID string, req AlertRequest)
	Confirm(ctx context.Context, appID string, req ConfirmRequest, answer func(confirmed bool))
}

// LocalStore is the durable storage behind save_local_data/get_local_data.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// TokenSource issues per-app capability tokens.
type TokenSource interface {
	Get(ctx context.Context, user, appID string) (tokencache.CachedToken, error)
}

// Services are the native capabilities the default topics call into.
type Services struct {
	Dialogs Dialogs
	Local   LocalStore
	Tokens  TokenSource
	Log     *zap.Logger
	Now     func() time.Time
}

func (s Services) withDefaults() Services {
	s.Log = logging.OrNop(s.Log)
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.Dialogs == nil {
		s.Dialogs = NewLogDialogs(s.Log, false)
	}
	return s
}

// LocalKey namespaces a micro-app's local data key.
func LocalKey(appID, key string) string {
	return "local:" + appID + ":" + key
}

func isNotFound(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}

// LogDialogs is a headless Dialogs that logs every modal and answers
// confirmations with a fixed choice.
type LogDialogs struct {
	log     *zap.Logger
	confirm bool
}

// NewLogDialogs creates headless dialogs.
func NewLogDialogs(log *zap.Logger, confirm bool) *LogDialogs {
	return &LogDialogs{log: logging.OrNop(log), confirm: confirm}
}

func (d *LogDialogs) Alert(_ context.Context, appID string, req AlertRequest) {
	d.log.Info("Micro-app alert",
		zap.String("app_id", appID),
		zap.String("title", req.Title),
		zap.String("message", req.Message))
}

func (d *LogDialogs) Confirm(_ context.Context, appID string, req ConfirmRequest, answer func(bool)) {
	d.log.Info("Micro-app confirmation",
		zap.String("app_id", appID),
		zap.String("title", req.Title),
		zap.Bool("confirmed", d.confirm))
	answer(d.confirm)
}
