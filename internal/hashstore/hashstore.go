// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package hashstore keeps the persistent two-way map between ed2k
// hashes and the synthetic 40-hex info-hashes the bridge hands to
// BitTorrent-shaped consumers. The mapping must survive restarts:
// *arr tools de-duplicate on the info-hash, so recomputing it would
// fork identities.
package hashstore

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/pkg/jsonfile"
	"github.com/autobrr/mulearr/pkg/magnet"
)

const storeFile = "hashstore.json"

// Meta is the sidecar recorded with each mapping.
type Meta struct {
	FileName string `json:"fileName"`
	Category string `json:"category,omitempty"`
	AddedAt  int64  `json:"addedAt"`
}

// Entry is one persisted mapping.
type Entry struct {
	MagnetHash string `json:"magnetHash"`
	Meta       Meta   `json:"meta"`
}

// Store is the hash map plus its reverse index. Reads take the shared
// lock; mutations serialize on the exclusive lock and write through to
// disk before returning.
type Store struct {
	path string

	mu      sync.RWMutex
	entries map[string]Entry  // ed2k hash -> entry
	reverse map[string]string // magnet hash -> ed2k hash
}

// Open loads the store from dataDir, creating an empty one when the
// file does not exist yet.
func Open(dataDir string) (*Store, error) {
	s := &Store{
		path:    filepath.Join(dataDir, storeFile),
		entries: make(map[string]Entry),
		reverse: make(map[string]string),
	}

	found, err := jsonfile.Load(s.path, &s.entries)
	if err != nil {
		return nil, errors.Wrap(err, "load hash store")
	}

	for ed2k, entry := range s.entries {
		if other, dup := s.reverse[entry.MagnetHash]; dup {
			// should not happen; keep the first mapping and drop the rest
			log.Warn().
				Str("magnetHash", entry.MagnetHash).
				Str("kept", other).
				Str("dropped", ed2k).
				Msg("hash store file carries a duplicate magnet hash")
			delete(s.entries, ed2k)
			continue
		}
		s.reverse[entry.MagnetHash] = ed2k
	}

	if found {
		log.Debug().Int("mappings", len(s.entries)).Msg("hash store loaded")
	}
	return s, nil
}

// SetMapping records ed2k <-> magnetHash with its sidecar. Inserting a
// magnet hash already bound to a different ed2k hash is refused: the
// synthetic transform is expected to be injective, and silently
// rebinding would corrupt identities held by upstream tools.
func (s *Store) SetMapping(ed2k, magnetHash string, meta Meta) error {
	ed2k = strings.ToLower(ed2k)
	magnetHash = strings.ToLower(magnetHash)

	if !magnet.IsHexHash(ed2k, 32) {
		return errors.Wrapf(domain.ErrBadRequest, "invalid ed2k hash %q", ed2k)
	}
	if !magnet.IsHexHash(magnetHash, 40) {
		return errors.Wrapf(domain.ErrBadRequest, "invalid magnet hash %q", magnetHash)
	}
	if meta.AddedAt == 0 {
		meta.AddedAt = time.Now().Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if bound, ok := s.reverse[magnetHash]; ok && bound != ed2k {
		return errors.Wrapf(domain.ErrConflict, "magnet hash %s already maps to %s", magnetHash, bound)
	}
	if prev, ok := s.entries[ed2k]; ok && prev.MagnetHash != magnetHash {
		delete(s.reverse, prev.MagnetHash)
	}

	s.entries[ed2k] = Entry{MagnetHash: magnetHash, Meta: meta}
	s.reverse[magnetHash] = ed2k

	return s.persistLocked()
}

// MagnetHash resolves the synthetic info-hash for an ed2k hash.
func (s *Store) MagnetHash(ed2k string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[strings.ToLower(ed2k)]
	return entry.MagnetHash, ok
}

// Ed2kHash resolves the ed2k hash behind a synthetic info-hash.
func (s *Store) Ed2kHash(magnetHash string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ed2k, ok := s.reverse[strings.ToLower(magnetHash)]
	return ed2k, ok
}

// Get returns the full entry for an ed2k hash.
func (s *Store) Get(ed2k string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[strings.ToLower(ed2k)]
	return entry, ok
}

// RemoveMapping deletes both directions. Removing an absent hash is a
// no-op: deletes race with snapshot reconciliation.
func (s *Store) RemoveMapping(ed2k string) error {
	ed2k = strings.ToLower(ed2k)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[ed2k]
	if !ok {
		return nil
	}

	delete(s.entries, ed2k)
	delete(s.reverse, entry.MagnetHash)

	return s.persistLocked()
}

// UpdateCategory rewrites the category in an entry's sidecar.
func (s *Store) UpdateCategory(ed2k, category string) error {
	ed2k = strings.ToLower(ed2k)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[ed2k]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "no mapping for %s", ed2k)
	}

	entry.Meta.Category = category
	s.entries[ed2k] = entry

	return s.persistLocked()
}

// Len reports the number of mappings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) persistLocked() error {
	return errors.Wrap(jsonfile.Save(s.path, s.entries), "persist hash store")
}
