package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/kv"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/monitoring"
)

// KeyPrefix namespaces cached tokens in the key-value store.
const KeyPrefix = "microapp-token:"

var (
	ErrMissingUser  = errors.New("user is required")
	ErrMissingApp   = errors.New("micro-app id is required")
	ErrMissingToken = errors.New("invalid response: token field is missing")
)

// Issued is what the remote issuer returns.
type Issued struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// Issuer fetches fresh capability tokens.
type Issuer interface {
	Issue(ctx context.Context, user, appID string) (Issued, error)
}

// CachedToken is the persisted form of one (user, app) token.
type CachedToken struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
	UserKey   string `json:"userKey"`
	AppID     string `json:"appId"`
	CachedAt  int64  `json:"cachedAt"`
}

// Expiry resolves the token's expiry: the explicit expiresAt, else the
// embedded JWT exp claim. ok is false for tokens that never expire.
func (c CachedToken) Expiry() (time.Time, bool) {
	if c.ExpiresAt > 0 {
		return time.UnixMilli(c.ExpiresAt), true
	}
	return jwtExpiry(c.Token)
}

// Expired reports whether now is at or past the expiry.
func (c CachedToken) Expired(now time.Time) bool {
	exp, ok := c.Expiry()
	if !ok {
		return false
	}
	return !now.Before(exp)
}

// Cache avoids redundant issuance calls per (user, app).
type Cache struct {
	store   kv.Store
	issuer  Issuer
	log     *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// New creates a token cache.
func New(store kv.Store, issuer Issuer, log *zap.Logger) *Cache {
	return &Cache{
		store:  store,
		issuer: issuer,
		log:    logging.OrNop(log),
		now:    time.Now,
	}
}

// WithMetrics adds hit/miss tracking.
func (c *Cache) WithMetrics(metrics *monitoring.Metrics) *Cache {
	c.metrics = metrics
	return c
}

// WithClock overrides the time source.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Key is the storage key for one (user, app) pair.
func Key(user, appID string) string {
	return KeyPrefix + user + ":" + appID
}

// Get returns a valid token, fetching and persisting a fresh one when the
// cached entry is missing, unreadable or expired.
func (c *Cache) Get(ctx context.Context, user, appID string) (CachedToken, error) {
	if user == "" {
		return CachedToken{}, ErrMissingUser
	}
	if appID == "" {
		return CachedToken{}, ErrMissingApp
	}

	if cached, ok := c.lookup(ctx, user, appID); ok {
		c.metrics.RecordTokenCache(true)
		return cached, nil
	}
	c.metrics.RecordTokenCache(false)

	issued, err := c.issuer.Issue(ctx, user, appID)
	if err != nil {
		return CachedToken{}, fmt.Errorf("fetch token for %s: %w", appID, err)
	}
	if issued.Token == "" {
		return CachedToken{}, ErrMissingToken
	}

	fresh := CachedToken{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		UserKey:   user,
		AppID:     appID,
		CachedAt:  c.now().UnixMilli(),
	}
	data, err := json.Marshal(fresh)
	if err != nil {
		return CachedToken{}, err
	}
	// A token we could not persist is still usable for this call.
	if err := c.store.Set(ctx, Key(user, appID), string(data)); err != nil {
		c.log.Warn("Failed to cache token", zap.String("app_id", appID), zap.Error(err))
	}
	return fresh, nil
}

func (c *Cache) lookup(ctx context.Context, user, appID string) (CachedToken, bool) {
	raw, err := c.store.Get(ctx, Key(user, appID))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.log.Warn("Token cache read failed", zap.String("app_id", appID), zap.Error(err))
		}
		return CachedToken{}, false
	}

	var cached CachedToken
	if err := json.Unmarshal([]byte(raw), &cached); err != nil || cached.Token == "" {
		c.log.Warn("Discarding unreadable cached token", zap.String("app_id", appID))
		return CachedToken{}, false
	}
	if cached.Expired(c.now()) {
		c.log.Debug("Cached token expired", zap.String("app_id", appID))
		return CachedToken{}, false
	}
	return cached, true
}

// Invalidate drops the cached token for one (user, app).
func (c *Cache) Invalidate(ctx context.Context, user, appID string) error {
	return c.store.Delete(ctx, Key(user, appID))
}

// InvalidateAll drops every cached token.
func (c *Cache) InvalidateAll(ctx context.Context) (int, error) {
	keys, err := c.store.List(ctx, KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list cached tokens: %w", err)
	}
	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			return 0, err
		}
	}
	c.log.Info("Invalidated cached tokens", zap.Int("count", len(keys)))
	return len(keys), nil
}

// jwtExpiry reads exp without verifying the signature; the host is only
// deciding whether to refetch.
func jwtExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
