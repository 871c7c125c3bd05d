package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/msgin/msgin-server/internal/auth"
	"github.com/msgin/msgin-server/internal/config"
	"github.com/msgin/msgin-server/internal/core"
	"github.com/msgin/msgin-server/internal/store"
	"github.com/msgin/msgin-server/internal/store/sqlite"
)

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.Store, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}

type testServer struct {
	ts       *httptest.Server
	store    store.Store
	registry *core.Registry
}

// startTestServer wires a full server over an in-memory store.
func startTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	st := createTestStore(t)
	authService := createTestAuthService(t, st, "test-secret-change-me")
	registry := core.NewRegistry(&logger)
	delivery := core.NewDelivery(st, registry, nil, nil, &logger)

	server := NewServer(delivery, registry, authService, st, nil, config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, store: st, registry: registry}
}

// signupUser registers an account through the API and returns its token and id.
func (s *testServer) signupUser(t *testing.T, fullName, email string) (token string, id int64) {
	t.Helper()

	body, _ := json.Marshal(SignupRequest{FullName: fullName, Email: email, Password: "password123"})
	resp, err := s.ts.Client().Post(s.ts.URL+"/api/auth/signup", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("signup request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 201 {
		t.Fatalf("signup returned status %d", resp.StatusCode)
	}

	var authResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}
	return authResp.Token, authResp.User.ID
}

// seedMessage persists a message directly, bypassing the API.
func (s *testServer) seedMessage(t *testing.T, senderID, receiverID int64, text string) *store.Message {
	t.Helper()

	msg, err := s.store.CreateMessage(context.Background(), senderID, receiverID, text, "")
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return msg
}
