// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package hashstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/pkg/magnet"
)

const (
	ed2kA = "31d6cfe0d16ae931b73c59d7e0c089c0"
	ed2kB = "0123456789abcdef0123456789abcdef"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSetMappingRoundTrip(t *testing.T) {
	s := openTestStore(t)

	magnetHash := magnet.SynthesizeInfoHash(ed2kA, "File.iso")
	require.NoError(t, s.SetMapping(ed2kA, magnetHash, Meta{FileName: "File.iso", Category: "Movies"}))

	got, ok := s.MagnetHash(ed2kA)
	require.True(t, ok)
	assert.Equal(t, magnetHash, got)

	back, ok := s.Ed2kHash(magnetHash)
	require.True(t, ok)
	assert.Equal(t, ed2kA, back)

	entry, ok := s.Get(ed2kA)
	require.True(t, ok)
	assert.Equal(t, "File.iso", entry.Meta.FileName)
	assert.Equal(t, "Movies", entry.Meta.Category)
	assert.NotZero(t, entry.Meta.AddedAt)
}

func TestSetMappingCaseInsensitive(t *testing.T) {
	s := openTestStore(t)

	magnetHash := magnet.PadEd2kHash(ed2kA)
	require.NoError(t, s.SetMapping(strings.ToUpper(ed2kA), strings.ToUpper(magnetHash), Meta{}))

	_, ok := s.MagnetHash(ed2kA)
	assert.True(t, ok)
	_, ok = s.Ed2kHash(magnetHash)
	assert.True(t, ok)
}

func TestSetMappingCollisionRefused(t *testing.T) {
	s := openTestStore(t)

	magnetHash := magnet.PadEd2kHash(ed2kA)
	require.NoError(t, s.SetMapping(ed2kA, magnetHash, Meta{}))

	err := s.SetMapping(ed2kB, magnetHash, Meta{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// the original mapping is untouched
	back, ok := s.Ed2kHash(magnetHash)
	require.True(t, ok)
	assert.Equal(t, ed2kA, back)
}

func TestSetMappingRebindSameEd2k(t *testing.T) {
	s := openTestStore(t)

	first := magnet.SynthesizeInfoHash(ed2kA, "a")
	second := magnet.SynthesizeInfoHash(ed2kA, "longer-name")
	require.NoError(t, s.SetMapping(ed2kA, first, Meta{}))
	require.NoError(t, s.SetMapping(ed2kA, second, Meta{}))

	_, ok := s.Ed2kHash(first)
	assert.False(t, ok, "stale reverse entry must be dropped")

	got, ok := s.MagnetHash(ed2kA)
	require.True(t, ok)
	assert.Equal(t, second, got)
	assert.Equal(t, 1, s.Len())
}

func TestSetMappingValidation(t *testing.T) {
	s := openTestStore(t)

	assert.ErrorIs(t, s.SetMapping("short", magnet.PadEd2kHash(ed2kA), Meta{}), domain.ErrBadRequest)
	assert.ErrorIs(t, s.SetMapping(ed2kA, "not-forty-hex", Meta{}), domain.ErrBadRequest)
}

func TestRemoveMapping(t *testing.T) {
	s := openTestStore(t)

	magnetHash := magnet.PadEd2kHash(ed2kA)
	require.NoError(t, s.SetMapping(ed2kA, magnetHash, Meta{}))
	require.NoError(t, s.RemoveMapping(ed2kA))

	_, ok := s.MagnetHash(ed2kA)
	assert.False(t, ok)
	_, ok = s.Ed2kHash(magnetHash)
	assert.False(t, ok)

	// removing twice is fine
	assert.NoError(t, s.RemoveMapping(ed2kA))
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)

	magnetHash := magnet.SynthesizeInfoHash(ed2kA, "File.iso")
	require.NoError(t, s.SetMapping(ed2kA, magnetHash, Meta{FileName: "File.iso"}))

	reopened, err := Open(dir)
	require.NoError(t, err)

	got, ok := reopened.MagnetHash(ed2kA)
	require.True(t, ok)
	assert.Equal(t, magnetHash, got)

	back, ok := reopened.Ed2kHash(magnetHash)
	require.True(t, ok)
	assert.Equal(t, ed2kA, back)
}

func TestUpdateCategory(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SetMapping(ed2kA, magnet.PadEd2kHash(ed2kA), Meta{Category: "Movies"}))
	require.NoError(t, s.UpdateCategory(ed2kA, "Shows"))

	entry, _ := s.Get(ed2kA)
	assert.Equal(t, "Shows", entry.Meta.Category)

	assert.ErrorIs(t, s.UpdateCategory(ed2kB, "x"), domain.ErrNotFound)
}
