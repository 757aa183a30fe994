// File: pkg/broker/ctrader/ctauth.go
package ctrader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	utils "github.com/Bardaqus/signalsbot-sub001/utilities"
)

// TokenSource holds the OAuth2 token pair for the Open API and refreshes it
// against the vendor's token endpoint. cTrader rotates both tokens on every
// refresh, so the refresh token is mutable state too.
type TokenSource struct {
	HTTPClient *http.Client
	logger     *utils.Logger

	apiBaseURL   string
	clientID     string
	clientSecret string

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	Description  string `json:"description,omitempty"`
}

func NewTokenSource(cfg *utils.CTraderConfig, logger *utils.Logger) (*TokenSource, error) {
	if cfg == nil {
		return nil, errors.New("ctrader token source: CTraderConfig cannot be nil")
	}
	if logger == nil {
		logger = utils.NewLogger(utils.Info)
		logger.LogWarn("cTrader TokenSource: Logger not provided, using default logger.")
	}
	apiBaseURL := cfg.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = "https://openapi.ctrader.com"
		logger.LogWarn("cTrader TokenSource: APIBaseURL not set, defaulting to %s", apiBaseURL)
	}
	return &TokenSource{
		HTTPClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       logger,
		apiBaseURL:   strings.TrimSuffix(apiBaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
	}, nil
}

// AccessToken returns the current access token.
func (t *TokenSource) AccessToken() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accessToken
}

// Refresh exchanges the stored refresh token for a fresh token pair.
func (t *TokenSource) Refresh(ctx context.Context) error {
	t.mu.Lock()
	refreshToken := t.refreshToken
	t.mu.Unlock()

	if refreshToken == "" {
		return errors.New("ctrader token source: no refresh token available")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", t.clientID)
	form.Set("client_secret", t.clientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiBaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("ctrader token refresh: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	t.logger.LogInfo("cTrader TokenSource: refreshing access token...")

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ctrader token refresh: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("ctrader token refresh: read response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ctrader token refresh: endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tokens tokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return fmt.Errorf("ctrader token refresh: decode response failed: %w", err)
	}
	if tokens.ErrorCode != "" {
		return fmt.Errorf("ctrader token refresh: %s: %s", tokens.ErrorCode, tokens.Description)
	}
	if tokens.AccessToken == "" {
		return errors.New("ctrader token refresh: response carried no access token")
	}

	t.mu.Lock()
	t.accessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		t.refreshToken = tokens.RefreshToken
	}
	t.mu.Unlock()

	t.logger.LogInfo("cTrader TokenSource: access token refreshed.")
	return nil
}
