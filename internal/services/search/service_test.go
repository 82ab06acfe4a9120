// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/mulearr/internal/amule"
	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/services/categories"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	mgr := clients.NewManager(&domain.Config{})
	cats, err := categories.NewService(t.TempDir(), mgr)
	require.NoError(t, err)
	return NewService(mgr, cats)
}

func TestSearchValidatesQuery(t *testing.T) {
	s := newTestService(t)

	_, err := s.Search(context.Background(), Params{}, nil)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestSearchRequiresSession(t *testing.T) {
	s := newTestService(t)

	_, err := s.Search(context.Background(), Params{Query: "linux"}, nil)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.False(t, s.Running(), "lock released on failure")
}

func TestSearchLockExcludes(t *testing.T) {
	s := newTestService(t)

	require.True(t, s.tryAcquire())
	assert.False(t, s.tryAcquire())

	_, err := s.Search(context.Background(), Params{Query: "linux"}, nil)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestLockChangeNotifies(t *testing.T) {
	s := newTestService(t)

	var transitions []bool
	s.OnLockChange(func(locked bool) { transitions = append(transitions, locked) })

	// failed searches still cycle the lock so UIs never hang locked
	_, _ = s.Search(context.Background(), Params{Query: "linux"}, nil)
	assert.Equal(t, []bool{true, false}, transitions)
}

func TestProjectHits(t *testing.T) {
	hits := []amule.SearchHit{
		{
			Hash:            "31d6cfe0d16ae931b73c59d7e0c089c0",
			Name:            "ubuntu.iso",
			Size:            1048576,
			Sources:         12,
			CompleteSources: 4,
		},
		{Name: "no hash, dropped"},
	}

	results := projectHits(hits)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "ed2k://|file|ubuntu.iso|1048576|31D6CFE0D16AE931B73C59D7E0C089C0|/", r.Ed2kLink)
	assert.Contains(t, r.MagnetLink, "xt=urn:btih:0000000031d6cfe0d16ae931b73c59d7e0c089c0")
	assert.Contains(t, r.MagnetLink, "xl=1048576")
	assert.Equal(t, 12, r.Sources)
}

func TestTorznabCategory(t *testing.T) {
	s := newTestService(t)

	assert.Equal(t, 2000, s.TorznabCategory("Some.Movie.2024.1080p.BluRay.x264-GROUP"))
	assert.Equal(t, 5000, s.TorznabCategory("Show.S01E02.720p.WEB.h264-GROUP"))
	assert.Equal(t, 8000, s.TorznabCategory("random_file.zip"))

	// second lookup hits the cache
	assert.Equal(t, 2000, s.TorznabCategory("Some.Movie.2024.1080p.BluRay.x264-GROUP"))
}
