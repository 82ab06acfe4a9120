// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package history keeps an append-only record of every item the data
// plane has ever observed, so finished or vanished transfers remain
// queryable after they leave the live view.
package history

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/pkg/jsonfile"
)

// Status is the record lifecycle state. Transitions are monotone within
// a session: completed is permanent, missing only ever replaces a
// non-completed status.
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusMissing     Status = "missing"
	StatusError       Status = "error"
)

const (
	storeFile     = "history.json"
	flushInterval = 5 * time.Second
)

// Record is one observed item.
type Record struct {
	Hash          string            `json:"hash"`
	Name          string            `json:"name"`
	Size          int64             `json:"size"`
	Downloaded    int64             `json:"downloaded"`
	Uploaded      int64             `json:"uploaded"`
	Ratio         float64           `json:"ratio"`
	Status        Status            `json:"status"`
	TrackerDomain string            `json:"trackerDomain,omitempty"`
	Client        domain.ClientType `json:"client"`
	Category      string            `json:"category,omitempty"`
	AddedAt       int64             `json:"addedAt"`
	CompletedAt   int64             `json:"completedAt,omitempty"` // 0 until first completion
}

// Service is the recorder. Observe feeds it live snapshots; a dirty
// flag batches disk writes onto the flush tick.
type Service struct {
	path string

	mu      sync.RWMutex
	records map[string]*Record
	dirty   bool

	now func() time.Time
}

// NewService loads history.json from the data directory, starting empty
// when the file does not exist yet.
func NewService(dataDir string) (*Service, error) {
	s := &Service{
		path:    filepath.Join(dataDir, storeFile),
		records: make(map[string]*Record),
		now:     time.Now,
	}

	var stored []Record
	found, err := jsonfile.Load(s.path, &stored)
	if err != nil {
		return nil, errors.Wrap(err, "load history")
	}
	if found {
		for i := range stored {
			rec := stored[i]
			s.records[rec.Hash] = &rec
		}
		log.Debug().Int("records", len(stored)).Msg("history loaded")
	}
	return s, nil
}

// Run flushes dirty state every few seconds until ctx is cancelled,
// with a final flush on the way out.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// Observe upserts a record per live item and marks vanished unfinished
// records missing. Called on every snapshot.
func (s *Service) Observe(items []domain.Item) {
	now := s.now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[string]struct{}, len(items))
	for _, item := range items {
		live[item.Hash] = struct{}{}
		s.upsertLocked(item, now)
	}

	for hash, rec := range s.records {
		if _, ok := live[hash]; ok {
			continue
		}
		if rec.Status == StatusCompleted || rec.Status == StatusMissing {
			continue
		}
		rec.Status = StatusMissing
		s.dirty = true
	}
}

func (s *Service) upsertLocked(item domain.Item, now int64) {
	rec, ok := s.records[item.Hash]
	if !ok {
		rec = &Record{
			Hash:    item.Hash,
			AddedAt: now,
			Status:  StatusDownloading,
		}
		if item.AddedOn > 0 {
			rec.AddedAt = item.AddedOn
		}
		s.records[item.Hash] = rec
	}

	changed := rec.Name != item.Name ||
		rec.Size != item.Size ||
		rec.Downloaded != item.Downloaded ||
		rec.Uploaded != item.Uploaded ||
		rec.Ratio != item.Ratio ||
		rec.Category != item.Category

	rec.Name = item.Name
	rec.Size = item.Size
	rec.Downloaded = item.Downloaded
	rec.Uploaded = item.Uploaded
	rec.Ratio = item.Ratio
	rec.Client = item.Client
	rec.Category = item.Category
	if item.Tracker != "" {
		rec.TrackerDomain = item.Tracker
	}

	if item.Progress >= 100 && rec.CompletedAt == 0 {
		rec.CompletedAt = now
		if item.CompletedOn > 0 {
			rec.CompletedAt = item.CompletedOn
		}
		changed = true
	}

	// completed is permanent; a missing record seen live again resumes
	switch {
	case rec.CompletedAt != 0:
		if rec.Status != StatusCompleted {
			rec.Status = StatusCompleted
			changed = true
		}
	case item.State == domain.StateError:
		if rec.Status != StatusError {
			rec.Status = StatusError
			changed = true
		}
	default:
		if rec.Status != StatusDownloading {
			rec.Status = StatusDownloading
			changed = true
		}
	}

	if changed || !ok {
		s.dirty = true
	}
}

// Delete removes a record. Unknown hashes are reported, not ignored.
func (s *Service) Delete(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[hash]; !ok {
		return errors.Wrapf(domain.ErrNotFound, "no history for %s", hash)
	}
	delete(s.records, hash)
	s.dirty = true
	return nil
}

// Get looks one record up.
func (s *Service) Get(hash string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[hash]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Query narrows and paginates the record set.
type Query struct {
	Status Status
	Client domain.ClientType
	Search string
	Offset int
	Limit  int // 0 means no limit
}

// List returns matching records newest-first plus the total match count
// before pagination.
func (s *Service) List(q Query) ([]Record, int) {
	s.mu.RLock()
	matched := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if q.Status != "" && rec.Status != q.Status {
			continue
		}
		if q.Client != "" && rec.Client != q.Client {
			continue
		}
		if q.Search != "" && !fuzzy.MatchNormalizedFold(q.Search, rec.Name) {
			continue
		}
		matched = append(matched, *rec)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].AddedAt != matched[j].AddedAt {
			return matched[i].AddedAt > matched[j].AddedAt
		}
		return matched[i].Hash < matched[j].Hash
	})

	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []Record{}, total
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total
}

// Len reports the record count.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Flush persists when dirty. Errors are logged; the dirty flag stays
// set so the next tick retries.
func (s *Service) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return
	}

	stored := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		stored = append(stored, *rec)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Hash < stored[j].Hash })

	if err := jsonfile.Save(s.path, stored); err != nil {
		log.Error().Err(err).Msg("persist history")
		return
	}
	s.dirty = false
}
