// Package token manages Twitch OAuth access tokens through the refresh-token
// grant. The access token is cached in memory and renewed ahead of expiry;
// a rotated refresh token replaces the stored one for the next renewal.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultEndpoint is the Twitch OAuth token endpoint.
const DefaultEndpoint = "https://id.twitch.tv/oauth2/token"

// expirySkew is subtracted from the reported lifetime so a token is never
// handed out moments before it dies.
const expirySkew = 5 * time.Minute

// Config identifies the application and account to refresh for.
type Config struct {
	// ClientID and ClientSecret identify the registered application.
	ClientID     string
	ClientSecret string

	// RefreshToken is the long-lived token obtained during initial
	// authorization.
	RefreshToken string

	// Endpoint overrides the token endpoint, for tests.
	Endpoint string

	// HTTPClient overrides the HTTP client. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Manager caches one account's access token. Safe for concurrent use.
type Manager struct {
	cfg Config
	now func() time.Time

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewManager creates a Manager. The first Token call performs a refresh.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("token: client credentials are required")
	}
	if cfg.RefreshToken == "" {
		return nil, fmt.Errorf("token: refresh token is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Manager{cfg: cfg, now: time.Now, refreshToken: cfg.RefreshToken}, nil
}

// Token returns a valid access token, refreshing when the cached one is
// missing or close to expiry.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accessToken != "" && m.now().Before(m.expiresAt) {
		return m.accessToken, nil
	}
	if err := m.refresh(ctx); err != nil {
		return "", err
	}
	return m.accessToken, nil
}

// ForceRefresh discards the cached token and fetches a fresh one, for use
// after an upstream 401.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refresh(ctx); err != nil {
		return "", err
	}
	return m.accessToken, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// refresh performs the grant. Caller holds m.mu.
func (m *Manager) refresh(ctx context.Context) error {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {m.refreshToken},
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("token: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("token: refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("token: refresh failed: status %d: %s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("token: decode response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("token: refresh returned no access token")
	}

	m.accessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		m.refreshToken = tr.RefreshToken
	}
	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime > expirySkew {
		lifetime -= expirySkew
	}
	m.expiresAt = m.now().Add(lifetime)
	return nil
}
