// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/mulearr/internal/auth"
	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/services/categories"
	"github.com/autobrr/mulearr/internal/services/events"
	"github.com/autobrr/mulearr/internal/services/history"
)

func newTestDependencies(t *testing.T) *Dependencies {
	t.Helper()

	cfg := &domain.Config{
		Host: "localhost",
		Port: 7476,
		Amule: domain.AmuleConfig{
			DownloadFolder: "/downloads",
		},
	}

	authService, err := auth.NewService(t.TempDir())
	require.NoError(t, err)

	clientManager := clients.NewManager(cfg)

	categoryService, err := categories.NewService(t.TempDir(), clientManager)
	require.NoError(t, err)

	historyService, err := history.NewService(t.TempDir())
	require.NoError(t, err)

	eventsConfig, err := events.OpenConfig(t.TempDir())
	require.NoError(t, err)

	return &Dependencies{
		Config:         cfg,
		AuthService:    authService,
		SessionManager: scs.New(),
		ClientManager:  clientManager,
		Categories:     categoryService,
		History:        historyService,
		EventsConfig:   eventsConfig,
		Events:         events.NewService(eventsConfig),
	}
}

func newTestServer(t *testing.T, deps *Dependencies) *httptest.Server {
	t.Helper()

	router, err := NewServer(deps).Handler()
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func TestHealthzIsPublic(t *testing.T) {
	srv := newTestServer(t, newTestDependencies(t))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequireSetupBlocksAPI(t *testing.T) {
	srv := newTestServer(t, newTestDependencies(t))

	resp, err := http.Get(srv.URL + "/api/clients")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPreconditionRequired, resp.StatusCode)
}

func TestSetupLoginAndSession(t *testing.T) {
	srv := newTestServer(t, newTestDependencies(t))
	client := newTestClient(t)

	// check-setup is reachable before the account exists
	resp, err := client.Get(srv.URL + "/api/auth/check-setup")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Post(srv.URL+"/api/auth/setup", "application/json",
		strings.NewReader(`{"username":"admin","password":"hunter2-secret"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// setup established a session; protected routes open up
	resp, err = client.Get(srv.URL + "/api/auth/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/api/clients")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// a fresh client without the cookie stays locked out
	resp, err = http.Get(srv.URL + "/api/clients")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPIKeyHeaderAuth(t *testing.T) {
	deps := newTestDependencies(t)
	srv := newTestServer(t, deps)

	_, err := deps.AuthService.SetupUser(t.Context(), "admin", "hunter2-secret")
	require.NoError(t, err)

	rawKey, _, err := deps.AuthService.CreateAPIKey(t.Context(), "test")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/clients", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", rawKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthDisabledOpensAPI(t *testing.T) {
	deps := newTestDependencies(t)
	deps.Config.AuthDisabled = true
	srv := newTestServer(t, deps)

	resp, err := http.Get(srv.URL + "/api/clients")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHistoryEndpoints(t *testing.T) {
	deps := newTestDependencies(t)
	deps.Config.AuthDisabled = true
	srv := newTestServer(t, deps)

	deps.History.Observe([]domain.Item{
		{Hash: "aabb", Name: "debian.iso", Size: 100, Client: domain.ClientAmule},
	})

	resp, err := http.Get(srv.URL + "/api/history?search=debian")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/history/aabb", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// deleting again reports not found
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBaseURLMountsSubtree(t *testing.T) {
	deps := newTestDependencies(t)
	deps.Config.BaseURL = "/mulearr/"
	srv := newTestServer(t, deps)

	resp, err := http.Get(srv.URL + "/mulearr/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
