// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dataplane

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/mulearr/internal/domain"
)

func filterFixture() []domain.Item {
	return []domain.Item{
		{Hash: strings.Repeat("1", 40), Name: "Ubuntu 24.04 ISO", Category: "Linux", Client: domain.ClientRtorrent, State: domain.StateSeeding, Ratio: 2.5, Size: 4 << 30},
		{Hash: strings.Repeat("2", 40), Name: "Debian netinst", Category: "Linux", Client: domain.ClientRtorrent, State: domain.StateDownloading, Size: 700 << 20},
		{Hash: strings.Repeat("3", 40), Name: "holiday photos.zip", Category: "Default", Client: domain.ClientAmule, State: domain.StateDownloading, Size: 1 << 20},
	}
}

func TestFilterByCategoryAndClient(t *testing.T) {
	items, err := Filter(filterFixture(), FilterOptions{Category: "Linux"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = Filter(filterFixture(), FilterOptions{Client: "amule"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "holiday photos.zip", items[0].Name)
}

func TestFilterByStateAndHash(t *testing.T) {
	items, err := Filter(filterFixture(), FilterOptions{States: []string{"seeding"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Ubuntu 24.04 ISO", items[0].Name)

	items, err = Filter(filterFixture(), FilterOptions{Hashes: []string{strings.Repeat("2", 40)}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Debian netinst", items[0].Name)
}

func TestFilterFuzzySearch(t *testing.T) {
	items, err := Filter(filterFixture(), FilterOptions{Search: "ubuntu"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Ubuntu 24.04 ISO", items[0].Name)

	items, err = Filter(filterFixture(), FilterOptions{Search: "nothing matches"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFilterExpr(t *testing.T) {
	items, err := Filter(filterFixture(), FilterOptions{Expr: `ratio > 2.0 && client == "rtorrent"`})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Ubuntu 24.04 ISO", items[0].Name)

	items, err = Filter(filterFixture(), FilterOptions{Expr: `size < 10 * 1024 * 1024`})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "holiday photos.zip", items[0].Name)
}

func TestFilterExprInvalid(t *testing.T) {
	_, err := Filter(filterFixture(), FilterOptions{Expr: `not even an expression ((`})
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	// well-formed but not boolean
	_, err = Filter(filterFixture(), FilterOptions{Expr: `size + 1`})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestFilterEmptyOptionsPassesAll(t *testing.T) {
	items, err := Filter(filterFixture(), FilterOptions{})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}
