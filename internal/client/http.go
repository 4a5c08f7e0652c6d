// Package client provides the HTTP and WebSocket client used by the chat TUI
// to talk to a courier server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/courier-chat/courier/internal/store"
)

// API is a courier server REST client.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI creates a REST client for the given server base URL,
// e.g. "http://localhost:8080".
func NewAPI(baseURL string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken sets the bearer token used on subsequent requests.
func (a *API) SetToken(token string) { a.token = token }

// BaseURL returns the server base URL.
func (a *API) BaseURL() string { return a.baseURL }

// Token returns the current bearer token.
func (a *API) Token() string { return a.token }

// User is a directory entry enriched with live presence.
type User struct {
	store.User
	Online bool `json:"online"`
}

// AuthConfig reports which auth provider the server runs.
type AuthConfig struct {
	Provider string `json:"provider"`
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (a *API) Login(ctx context.Context, username, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	err := a.do(ctx, http.MethodPost, "/api/auth/login",
		map[string]string{"username": username, "password": password}, &resp)
	if err != nil {
		return err
	}
	a.token = resp.Token
	return nil
}

// Register creates a new account on the server.
func (a *API) Register(ctx context.Context, username, password string) error {
	return a.do(ctx, http.MethodPost, "/api/auth/register",
		map[string]string{"username": username, "password": password}, nil)
}

// GetAuthConfig returns the server's auth provider configuration.
func (a *API) GetAuthConfig(ctx context.Context) (*AuthConfig, error) {
	var cfg AuthConfig
	if err := a.do(ctx, http.MethodGet, "/api/auth/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Me returns the authenticated identity.
func (a *API) Me(ctx context.Context) (id, username, role string, err error) {
	var resp struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/me", nil, &resp); err != nil {
		return "", "", "", err
	}
	return resp.ID, resp.Username, resp.Role, nil
}

// ListUsers returns the user directory with presence flags.
func (a *API) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := a.do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Conversation returns the message history with the given peer.
func (a *API) Conversation(ctx context.Context, peerID string, limit int) ([]store.Message, error) {
	path := fmt.Sprintf("/api/messages/with/%s?limit=%d", peerID, limit)
	var msgs []store.Message
	if err := a.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UnreadCounts returns per-sender unread message counts.
func (a *API) UnreadCounts(ctx context.Context) ([]store.UnreadCount, error) {
	var counts []store.UnreadCount
	if err := a.do(ctx, http.MethodGet, "/api/messages/unread", nil, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", path, apiErr.Error)
		}
		return fmt.Errorf("%s: server returned %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
