// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package torznab exposes the ED2K search as a Torznab indexer, so
// Prowlarr and the *arr applications can treat the bridge like any
// other tracker. Optionally fans searches out to real Prowlarr
// indexers and merges the results into the feed.
package torznab

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/auth"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/services/search"
	"github.com/autobrr/mulearr/pkg/magnet"
	"github.com/autobrr/mulearr/pkg/prowlarr"
)

const indexerTitle = "mulearr"

// Service renders the Torznab surface over the search service.
type Service struct {
	cfg      *domain.Config
	search   *search.Service
	auth     *auth.Service
	prowlarr *prowlarr.Client
}

// NewService wires the adapter. authSvc may be nil when auth is
// disabled; the Prowlarr client is only built when the passthrough is
// configured.
func NewService(cfg *domain.Config, searchSvc *search.Service, authSvc *auth.Service) *Service {
	s := &Service{
		cfg:    cfg,
		search: searchSvc,
		auth:   authSvc,
	}
	if cfg.Prowlarr.Enabled && cfg.Prowlarr.Host != "" {
		s.prowlarr = prowlarr.NewClient(prowlarr.Config{
			Host:    cfg.Prowlarr.Host,
			APIKey:  cfg.Prowlarr.APIKey,
			Timeout: time.Duration(cfg.Prowlarr.TimeoutSeconds) * time.Second,
		})
	}
	return s
}

// Routes mounts the indexer endpoint, normally at /indexer.
func (s *Service) Routes(r chi.Router) {
	r.Get("/amule", s.handle)
	r.Get("/amule/api", s.handle)
}

func (s *Service) handle(w http.ResponseWriter, r *http.Request) {
	if !s.apiKeyValid(r) {
		writeError(w, errCodeBadCredentials, "invalid api key")
		return
	}

	switch r.URL.Query().Get("t") {
	case "caps":
		writeXML(w, s.caps())
	case "search", "tvsearch", "movie":
		s.handleSearch(w, r)
	default:
		writeError(w, errCodeNoSuchFunction, "unknown function")
	}
}

// apiKeyValid checks apikey against the web credentials: either the
// account password or an issued API key passes. With auth disabled the
// parameter is ignored.
func (s *Service) apiKeyValid(r *http.Request) bool {
	if s.cfg.AuthDisabled || s.auth == nil {
		return true
	}

	key := r.URL.Query().Get("apikey")
	if key == "" {
		return false
	}

	if _, err := s.auth.ValidateAPIKey(r.Context(), key); err == nil {
		return true
	}

	user := s.auth.GetUser(r.Context())
	if user == nil {
		return false
	}
	ok, err := auth.VerifyPassword(key, user.PasswordHash)
	return err == nil && ok
}

func (s *Service) caps() caps {
	return caps{
		Server: capsServer{Title: indexerTitle},
		Limits: capsLimits{Max: 200, Default: 100},
		Searching: capsSearching{
			Search:      capsSearch{Available: "yes", SupportedParams: "q"},
			TVSearch:    capsSearch{Available: "yes", SupportedParams: "q"},
			MovieSearch: capsSearch{Available: "yes", SupportedParams: "q"},
		},
		Categories: capsCats{Categories: []capsCat{
			{ID: 2000, Name: "Movies"},
			{ID: 3000, Name: "Audio"},
			{ID: 5000, Name: "TV"},
			{ID: 8000, Name: "Other"},
		}},
	}
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		// empty query is the *arr connectivity test: answer an empty feed
		writeXML(w, s.feedOf(nil))
		return
	}

	results, err := s.search.Search(r.Context(), search.Params{Query: query}, nil)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// a search is running; the cached set is the best we have
			if cached, ok := s.search.Last(); ok {
				results = cached
			} else {
				writeError(w, errCodeUnknown, "a search is already running")
				return
			}
		} else {
			log.Warn().Err(err).Str("query", query).Msg("torznab search failed")
			writeError(w, errCodeUnknown, err.Error())
			return
		}
	}

	items := make([]item, 0, len(results))
	for _, res := range results {
		items = append(items, s.itemOf(res))
	}
	items = append(items, s.prowlarrItems(r.Context(), query)...)

	writeXML(w, s.feedOf(items))
}

func (s *Service) feedOf(items []item) feed {
	return feed{
		Version:   "2.0",
		TorznabNS: torznabNS,
		Channel: channel{
			Title:       indexerTitle,
			Description: "aMule ED2K search",
			Items:       items,
		},
	}
}

// itemOf renders one ED2K hit. The link is the synthesized magnet; the
// downloader hands it back through torrents/add, where it is converted
// into the original ed2k link again.
func (s *Service) itemOf(res domain.SearchResult) item {
	infoHash := magnet.PadEd2kHash(res.Hash)
	return item{
		Title:    res.Name,
		GUID:     infoHash,
		Link:     res.MagnetLink,
		Size:     res.Size,
		Category: s.search.TorznabCategory(res.Name),
		Enclosure: enclosure{
			URL:    res.MagnetLink,
			Length: res.Size,
			Type:   "application/x-bittorrent;x-scheme-handler/magnet",
		},
		Attrs: []itemAttr{
			{Name: "seeders", Value: strconv.Itoa(res.CompleteSources)},
			{Name: "peers", Value: strconv.Itoa(res.Sources)},
			{Name: "infohash", Value: infoHash},
			{Name: "size", Value: strconv.FormatInt(res.Size, 10)},
		},
	}
}

// prowlarrItems fans the query out to the configured passthrough
// indexers. Failures degrade to an ED2K-only feed.
func (s *Service) prowlarrItems(ctx context.Context, query string) []item {
	if s.prowlarr == nil || len(s.cfg.Prowlarr.IndexerIDs) == 0 {
		return nil
	}

	var items []item
	for _, id := range s.cfg.Prowlarr.IndexerIDs {
		rss, err := s.prowlarr.SearchIndexer(ctx, id, map[string]string{"q": query})
		if err != nil {
			log.Warn().Err(err).Str("indexer", id).Msg("prowlarr passthrough search failed")
			continue
		}
		for _, hit := range rss.Channel.Items {
			items = append(items, item{
				Title:    hit.Title,
				GUID:     hit.GUID,
				Link:     hit.Link,
				Size:     hit.Size,
				Category: s.search.TorznabCategory(hit.Title),
				Enclosure: enclosure{
					URL:    hit.Enclosure.URL,
					Length: hit.Size,
					Type:   hit.Enclosure.Type,
				},
				Attrs: []itemAttr{
					{Name: "seeders", Value: hit.Attr("seeders")},
					{Name: "peers", Value: hit.Attr("peers")},
					{Name: "infohash", Value: hit.Attr("infohash")},
				},
			})
		}
	}
	return items
}
