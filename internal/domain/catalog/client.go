package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/httpclient"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
)

// AppListConfigKey is the user configuration entry holding the allow-list.
const AppListConfigKey = "superapp.apps.list"

const (
	catalogPath    = "micro-apps"
	userConfigPath = "users/app-configs"
)

var ErrMissingUser = errors.New("catalog: user is required")

// Arrangement is a folder of apps in a user's custom layout.
type Arrangement struct {
	Name        string   `json:"name"`
	IsDirectory bool     `json:"isDirectory"`
	Apps        []string `json:"apps"`
}

// UserConfig is one per-user configuration entry.
type UserConfig struct {
	Email       string          `json:"email"`
	ConfigKey   string          `json:"configKey"`
	ConfigValue json.RawMessage `json:"configValue"`
	IsActive    int             `json:"isActive"`
}

// AppIDs reads ConfigValue as a list of app ids. Layout entries
// contribute the apps they contain.
func (c UserConfig) AppIDs() []string {
	var raw []json.RawMessage
	if err := json.Unmarshal(c.ConfigValue, &raw); err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, item := range raw {
		var id string
		if err := json.Unmarshal(item, &id); err == nil {
			add(id)
			continue
		}
		var a Arrangement
		if err := json.Unmarshal(item, &a); err == nil {
			for _, id := range a.Apps {
				add(id)
			}
		}
	}
	return out
}

// Client talks to the catalog and user configuration endpoints.
type Client struct {
	http *httpclient.Client
	log  *zap.Logger
}

// NewClient creates a catalog client.
func NewClient(http *httpclient.Client, log *zap.Logger) *Client {
	return &Client{http: http, log: logging.OrNop(log)}
}

// FetchCatalog returns every app the backend publishes.
func (c *Client) FetchCatalog(ctx context.Context) ([]microapp.MicroApp, error) {
	var apps []microapp.MicroApp
	if err := c.http.GetJSON(ctx, catalogPath, nil, &apps); err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	c.log.Debug("Fetched catalog", zap.Int("count", len(apps)))
	return apps, nil
}

// FetchUserConfigs returns the user's configuration entries.
func (c *Client) FetchUserConfigs(ctx context.Context, user string) ([]UserConfig, error) {
	if user == "" {
		return nil, ErrMissingUser
	}
	var configs []UserConfig
	if err := c.http.GetJSON(ctx, userConfigPath, map[string]string{"email": user}, &configs); err != nil {
		return nil, fmt.Errorf("fetch user configs: %w", err)
	}
	return configs, nil
}

// FetchAllowList returns the app ids user is entitled to. A user with no
// allow-list entry is entitled to nothing.
func (c *Client) FetchAllowList(ctx context.Context, user string) ([]string, error) {
	configs, err := c.FetchUserConfigs(ctx, user)
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if cfg.ConfigKey != AppListConfigKey {
			continue
		}
		if cfg.Email != "" && cfg.Email != user {
			continue
		}
		return cfg.AppIDs(), nil
	}
	c.log.Info("User has no app list configuration", zap.String("user", user))
	return []string{}, nil
}

// UpdateAllowList replaces the user's allow-list.
func (c *Client) UpdateAllowList(ctx context.Context, user string, appIDs []string) error {
	if user == "" {
		return ErrMissingUser
	}
	if appIDs == nil {
		appIDs = []string{}
	}
	value, err := json.Marshal(appIDs)
	if err != nil {
		return err
	}
	body := UserConfig{
		Email:       user,
		ConfigKey:   AppListConfigKey,
		ConfigValue: value,
		IsActive:    1,
	}
	if err := c.http.PostJSON(ctx, userConfigPath, body, http.StatusCreated); err != nil {
		return fmt.Errorf("update allow-list: %w", err)
	}
	return nil
}
