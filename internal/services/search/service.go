// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package search drives ED2K searches through the aMule session. The
// daemon runs one search at a time, so the service serializes callers
// behind a lock and keeps the last result set around for late joiners.
package search

import (
	"context"
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/moistari/rls"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/amule"
	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/ec"
	"github.com/autobrr/mulearr/internal/services/categories"
	"github.com/autobrr/mulearr/pkg/magnet"
)

const (
	pollInterval  = time.Second
	searchTimeout = 45 * time.Second
	resultsTTL    = 5 * time.Minute
	resultsKey    = "last"
)

// Params selects what and where to search.
type Params struct {
	Query     string
	Kad       bool // Kad network instead of the connected server
	MinSize   uint64
	MaxSize   uint64
	FileType  string
	Extension string
}

// Service owns the search lock and the result cache.
type Service struct {
	mgr  *clients.Manager
	cats *categories.Service

	mu      sync.Mutex
	running bool
	onLock  []func(locked bool)

	results  *ttlcache.Cache[string, []domain.SearchResult]
	releases *ttlcache.Cache[string, rls.Release]
}

func NewService(mgr *clients.Manager, cats *categories.Service) *Service {
	return &Service{
		mgr:  mgr,
		cats: cats,
		results: ttlcache.New(ttlcache.Options[string, []domain.SearchResult]{}.
			SetDefaultTTL(resultsTTL)),
		releases: ttlcache.New(ttlcache.Options[string, rls.Release]{}.
			SetDefaultTTL(resultsTTL)),
	}
}

// OnLockChange registers a listener for search-lock transitions. Used
// by the broadcaster to keep every UI in sync.
func (s *Service) OnLockChange(fn func(locked bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLock = append(s.onLock, fn)
}

// Running reports whether a search is in flight.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	listeners := make([]func(bool), len(s.onLock))
	copy(listeners, s.onLock)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}

// tryAcquire flips the lock on, failing when a search already holds it.
func (s *Service) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}
	s.running = true
	return true
}

// Search runs one ED2K search to completion, streaming intermediate
// result sets through onResults (which may be nil). A second search
// while one is running returns ErrConflict.
func (s *Service) Search(ctx context.Context, params Params, onResults func([]domain.SearchResult)) ([]domain.SearchResult, error) {
	if params.Query == "" {
		return nil, errors.Wrap(domain.ErrBadRequest, "empty search query")
	}

	if !s.tryAcquire() {
		return nil, errors.Wrap(domain.ErrConflict, "a search is already running")
	}
	s.setRunning(true)
	defer s.setRunning(false)

	client, err := s.mgr.Amule()
	if err != nil {
		return nil, err
	}

	searchType := uint32(ec.SearchGlobal)
	if params.Kad {
		searchType = ec.SearchKad
	}
	err = client.SearchStart(ctx, amule.SearchParams{
		Query:     params.Query,
		Type:      searchType,
		MinSize:   params.MinSize,
		MaxSize:   params.MaxSize,
		FileType:  params.FileType,
		Extension: params.Extension,
	})
	if err != nil {
		return nil, errors.Wrap(err, "start search")
	}

	results, err := s.poll(ctx, client, onResults)
	if err != nil {
		// best effort; the daemon drops the search on the next start anyway
		if stopErr := client.SearchStop(context.WithoutCancel(ctx)); stopErr != nil {
			log.Debug().Err(stopErr).Msg("stop search after failure")
		}
		return nil, err
	}

	s.results.Set(resultsKey, results, ttlcache.DefaultTTL)
	log.Debug().Str("query", params.Query).Int("results", len(results)).Msg("search finished")
	return results, nil
}

func (s *Service) poll(ctx context.Context, client *amule.Client, onResults func([]domain.SearchResult)) ([]domain.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last []domain.SearchResult
	for {
		select {
		case <-ctx.Done():
			// timeout is not an error: return what arrived so far
			return last, nil
		case <-ticker.C:
		}

		progress, err := client.SearchProgress(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "search progress")
		}

		hits, err := client.SearchResults(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "fetch search results")
		}

		current := projectHits(hits)
		if len(current) != len(last) && onResults != nil {
			onResults(current)
		}
		last = current

		if progress >= 100 {
			return last, nil
		}
	}
}

// Last returns the cached result set of the most recent search.
func (s *Service) Last() ([]domain.SearchResult, bool) {
	return s.results.Get(resultsKey)
}

// Download starts downloading one hit, assigned to the category.
func (s *Service) Download(ctx context.Context, ed2kHash, category string) error {
	client, err := s.mgr.Amule()
	if err != nil {
		return err
	}
	return client.DownloadSearchResult(ctx, ed2kHash, s.cats.AmuleID(category))
}

func projectHits(hits []amule.SearchHit) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Hash == "" {
			continue
		}
		out = append(out, domain.SearchResult{
			Hash:            hit.Hash,
			Name:            hit.Name,
			Size:            hit.Size,
			Sources:         hit.Sources,
			CompleteSources: hit.CompleteSources,
			Downloading:     hit.Downloading,
			Ed2kLink: magnet.Ed2kLink{
				Name: hit.Name,
				Size: hit.Size,
				Hash: hit.Hash,
			}.String(),
			MagnetLink: magnet.Magnet{
				InfoHash: magnet.PadEd2kHash(hit.Hash),
				Name:     hit.Name,
				Size:     hit.Size,
			}.String(),
		})
	}
	return out
}

// TorznabCategory infers the Torznab category id from the release
// name: movies 2000, tv 5000, audio 3000, everything else 8000.
func (s *Service) TorznabCategory(name string) int {
	release, ok := s.releases.Get(name)
	if !ok {
		release = rls.ParseString(name)
		s.releases.Set(name, release, ttlcache.DefaultTTL)
	}

	switch release.Type {
	case rls.Movie:
		return 2000
	case rls.Episode, rls.Series:
		return 5000
	case rls.Music:
		return 3000
	default:
		return 8000
	}
}
