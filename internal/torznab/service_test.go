// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/mulearr/internal/auth"
	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/services/categories"
	"github.com/autobrr/mulearr/internal/services/search"
)

func newTestServer(t *testing.T, cfg *domain.Config, authSvc *auth.Service) *httptest.Server {
	t.Helper()

	mgr := clients.NewManager(cfg)
	cats, err := categories.NewService(t.TempDir(), mgr)
	require.NoError(t, err)

	svc := NewService(cfg, search.NewService(mgr, cats), authSvc)

	r := chi.NewRouter()
	r.Route("/indexer", svc.Routes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestCapsDocument(t *testing.T) {
	srv := newTestServer(t, &domain.Config{AuthDisabled: true}, nil)

	status, body := get(t, srv.URL+"/indexer/amule?t=caps")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "<caps>")
	assert.Contains(t, body, `id="2000"`)
	assert.Contains(t, body, `id="5000"`)
	assert.Contains(t, body, `tv-search`)
}

func TestUnknownFunction(t *testing.T) {
	srv := newTestServer(t, &domain.Config{AuthDisabled: true}, nil)

	_, body := get(t, srv.URL+"/indexer/amule?t=music")
	assert.Contains(t, body, `code="202"`)
}

func TestEmptyQueryReturnsEmptyFeed(t *testing.T) {
	srv := newTestServer(t, &domain.Config{AuthDisabled: true}, nil)

	_, body := get(t, srv.URL+"/indexer/amule?t=search")

	var parsed feed
	require.NoError(t, xml.Unmarshal([]byte(body), &parsed))
	assert.Empty(t, parsed.Channel.Items)
}

func TestSearchWithoutBackendFails(t *testing.T) {
	srv := newTestServer(t, &domain.Config{AuthDisabled: true}, nil)

	_, body := get(t, srv.URL+"/indexer/amule?t=search&q=ubuntu")
	assert.Contains(t, body, `code="900"`)
}

func TestAPIKeyRequiredWhenAuthEnabled(t *testing.T) {
	authSvc, err := auth.NewService(t.TempDir())
	require.NoError(t, err)
	_, err = authSvc.SetupUser(context.Background(), "admin", "hunter2-secret")
	require.NoError(t, err)

	srv := newTestServer(t, &domain.Config{}, authSvc)

	t.Run("missing key rejected", func(t *testing.T) {
		_, body := get(t, srv.URL+"/indexer/amule?t=caps")
		assert.Contains(t, body, `code="100"`)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		_, body := get(t, srv.URL+"/indexer/amule?t=caps&apikey=wrong")
		assert.Contains(t, body, `code="100"`)
	})

	t.Run("password accepted", func(t *testing.T) {
		_, body := get(t, srv.URL+"/indexer/amule?t=caps&apikey=hunter2-secret")
		assert.Contains(t, body, "<caps>")
	})

	t.Run("api key accepted", func(t *testing.T) {
		rawKey, _, err := authSvc.CreateAPIKey(context.Background(), "torznab")
		require.NoError(t, err)

		_, body := get(t, srv.URL+"/indexer/amule?t=caps&apikey="+rawKey)
		assert.Contains(t, body, "<caps>")
	})
}

func TestItemRendering(t *testing.T) {
	cfg := &domain.Config{AuthDisabled: true}
	mgr := clients.NewManager(cfg)
	cats, err := categories.NewService(t.TempDir(), mgr)
	require.NoError(t, err)
	svc := NewService(cfg, search.NewService(mgr, cats), nil)

	res := domain.SearchResult{
		Hash:            "31d6cfe0d16ae931b73c59d7e0c089c0",
		Name:            "Some.Movie.2024.1080p.BluRay.x264",
		Size:            4 << 30,
		Sources:         12,
		CompleteSources: 7,
		MagnetLink:      "magnet:?xt=urn:btih:0000000031d6cfe0d16ae931b73c59d7e0c089c0",
	}

	it := svc.itemOf(res)
	assert.Equal(t, res.Name, it.Title)
	assert.Equal(t, "00000000"+res.Hash, it.GUID)
	assert.Equal(t, res.MagnetLink, it.Link)
	assert.Equal(t, 2000, it.Category)

	attrs := map[string]string{}
	for _, a := range it.Attrs {
		attrs[a.Name] = a.Value
	}
	assert.Equal(t, "7", attrs["seeders"])
	assert.Equal(t, "12", attrs["peers"])
	assert.Equal(t, "00000000"+res.Hash, attrs["infohash"])
}
