package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLogin_SetsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req["username"] != "alice" {
			t.Errorf("expected username alice, got %q", req["username"])
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL)
	if err := api.Login(context.Background(), "alice", "password123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if api.Token() != "tok-123" {
		t.Errorf("expected token tok-123, got %q", api.Token())
	}
}

func TestLogin_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL)
	err := api.Login(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid credentials") {
		t.Errorf("expected server error message, got %v", err)
	}
}

func TestListUsers_SendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("expected bearer token, got %q", got)
		}
		_ = json.NewEncoder(w).Encode([]User{{Online: true}})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL)
	api.SetToken("tok-123")
	users, err := api.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 || !users[0].Online {
		t.Errorf("unexpected users: %+v", users)
	}
}

func TestWSURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws?token=tok"},
		{"https://chat.example.com", "wss://chat.example.com/ws?token=tok"},
		{"http://localhost:8080/", "ws://localhost:8080/ws?token=tok"},
	}
	for _, tc := range cases {
		c := &WS{baseURL: tc.base, token: "tok"}
		got, err := c.wsURL()
		if err != nil {
			t.Fatalf("wsURL(%q) failed: %v", tc.base, err)
		}
		if got != tc.want {
			t.Errorf("wsURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}
