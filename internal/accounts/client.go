// Package accounts calls the remote privileged endpoint that manages user
// accounts (create/update/delete).
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// ErrUnknownAction 不支持的 action
var ErrUnknownAction = errors.New("accounts: unknown action")

// Profile 远端返回的用户资料
type Profile struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
}

type invokeRequest struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
}

type invokeResponse struct {
	Profile *Profile `json:"profile"`
	Error   string   `json:"error"`
}

// Client 远端账号服务客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		httpClient.SetAuthToken(apiKey)
	}
	return &Client{httpClient: httpClient, logger: logger}
}

// Invoke sends one action and returns the resulting profile. A delete may
// return no profile.
func (c *Client) Invoke(ctx context.Context, action string, payload map[string]any) (*Profile, error) {
	switch action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	var out invokeResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(invokeRequest{Action: action, Payload: payload}).
		Post("/accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to call accounts service: %w", err)
	}
	if body := resp.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil && !resp.IsError() {
			return nil, fmt.Errorf("failed to decode accounts response: %w", err)
		}
	}
	if resp.IsError() || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = resp.Status()
		}
		c.logger.Warn("accounts service rejected action",
			zap.String("action", action),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", msg),
		)
		return nil, fmt.Errorf("accounts service error: %s", msg)
	}
	return out.Profile, nil
}
