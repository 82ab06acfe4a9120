// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preflight(t *testing.T, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	server := NewServer(newTestDependencies(t))
	router, err := server.Handler()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, target, nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCORSPreflightBypassesAuth(t *testing.T) {
	rec := preflight(t, "/api/auth/me", nil)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSAllowsAPIKeyHeaders(t *testing.T) {
	// browsers send the requested header names lowercased
	rec := preflight(t, "/api/auth/me", map[string]string{
		"Access-Control-Request-Headers": "x-api-key, x-requested-with",
	})

	require.Equal(t, http.StatusNoContent, rec.Code)

	// rs/cors echoes back the allowed subset, normalized to lowercase
	allowed := strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Contains(t, allowed, "x-api-key")
	assert.Contains(t, allowed, "x-requested-with")
}
