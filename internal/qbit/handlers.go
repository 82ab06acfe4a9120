// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbit

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/services/dataplane"
)

const (
	respOK    = "Ok."
	respFails = "Fails."
	respFail  = "Fail."

	sessionKeyAuthed = "qbit_authenticated"

	maxAddBody = 64 << 20
)

// Routes mounts the WebUI v2 surface under the given router, normally
// at /api/v2.
func (s *Service) Routes(r chi.Router) {
	// the facade owns its SID cookie; the management API's session
	// middleware never sees these routes
	if s.sessions != nil {
		r.Use(s.sessions.LoadAndSave)
	}

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/app/version", s.handleAppVersion)
		r.Get("/app/webapiVersion", s.handleWebAPIVersion)
		r.Get("/app/preferences", s.handlePreferences)

		r.Get("/torrents/info", s.handleTorrentsInfo)
		r.Post("/torrents/add", s.handleTorrentsAdd)
		r.Post("/torrents/delete", s.handleTorrentsDelete)
		r.Post("/torrents/pause", s.handleTorrentsPause)
		r.Post("/torrents/resume", s.handleTorrentsResume)
		r.Post("/torrents/stop", s.handleTorrentsPause)  // qBittorrent 5.x rename
		r.Post("/torrents/start", s.handleTorrentsResume)
		r.Post("/torrents/setCategory", s.handleSetCategory)
		r.Get("/torrents/categories", s.handleCategories)
		r.Post("/torrents/createCategory", s.handleCreateCategory)
	})
}

// requireAuth accepts an authenticated session; with auth disabled the
// whole surface is open.
func (s *Service) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthDisabled || s.auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		if !s.sessions.GetBool(r.Context(), sessionKeyAuthed) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AuthDisabled || s.auth == nil {
		writeText(w, respOK)
		return
	}

	if err := r.ParseForm(); err != nil {
		writeText(w, respFails)
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	if _, err := s.auth.Login(r.Context(), username, password); err != nil {
		log.Debug().Str("username", username).Msg("qbit login rejected")
		writeText(w, respFails)
		return
	}

	if err := s.sessions.RenewToken(r.Context()); err != nil {
		log.Error().Err(err).Msg("renew session token")
		writeText(w, respFails)
		return
	}
	s.sessions.Put(r.Context(), sessionKeyAuthed, true)
	writeText(w, respOK)
}

func (s *Service) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.sessions != nil {
		if err := s.sessions.Destroy(r.Context()); err != nil {
			log.Debug().Err(err).Msg("destroy qbit session")
		}
	}
	writeText(w, respOK)
}

func (s *Service) handleAppVersion(w http.ResponseWriter, _ *http.Request) {
	writeText(w, appVersion)
}

func (s *Service) handleWebAPIVersion(w http.ResponseWriter, _ *http.Request) {
	writeText(w, webapiVersion)
}

func (s *Service) handlePreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.preferences())
}

func (s *Service) handleTorrentsInfo(w http.ResponseWriter, r *http.Request) {
	// consistent category view per request: resolve the barrier before
	// reading the plane
	s.Categories(r.Context())

	opts := dataplane.FilterOptions{
		Category: r.URL.Query().Get("category"),
	}
	if raw := r.URL.Query().Get("hashes"); raw != "" {
		opts.Hashes, _ = splitHashes(raw)
	}
	if filter := r.URL.Query().Get("filter"); filter != "" {
		opts.States = statesForFilter(filter)
	}

	items, err := dataplane.Filter(s.plane.Items(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	infos := make([]TorrentInfo, 0, len(items))
	for _, item := range items {
		infos = append(infos, projectTorrent(item))
	}
	writeJSON(w, infos)
}

// statesForFilter maps the qBittorrent filter vocabulary onto unified
// states. Unknown filters match everything, like qBittorrent does.
func statesForFilter(filter string) []string {
	switch filter {
	case "downloading":
		return []string{"downloading", "queued"}
	case "seeding":
		return []string{"seeding"}
	case "completed":
		return []string{"completed", "seeding"}
	case "paused", "stopped":
		return []string{"paused"}
	case "active":
		return []string{"downloading", "seeding", "checking"}
	case "errored":
		return []string{"error"}
	default:
		return nil
	}
}

func (s *Service) handleTorrentsAdd(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAddRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.Categories(r.Context())

	failed := 0
	for _, raw := range req.URLs {
		if err := s.addOne(r.Context(), raw, req); err != nil {
			log.Warn().Err(err).Str("url", truncateForLog(raw)).Msg("add url failed")
			failed++
		}
	}
	for _, body := range req.Torrents {
		if err := s.addTorrentFile(r.Context(), body, req); err != nil {
			log.Warn().Err(err).Msg("add torrent file failed")
			failed++
		}
	}

	if failed > 0 {
		writeText(w, respFail)
		return
	}
	writeText(w, respOK)
}

// decodeAddRequest handles both the multipart and the urlencoded form
// of torrents/add.
func decodeAddRequest(r *http.Request) (addRequest, error) {
	var req addRequest

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/") {
		if err := r.ParseMultipartForm(maxAddBody); err != nil {
			return req, err
		}
		if r.MultipartForm != nil {
			for _, header := range r.MultipartForm.File["torrents"] {
				f, err := header.Open()
				if err != nil {
					return req, err
				}
				body, err := io.ReadAll(io.LimitReader(f, maxTorrentLen))
				f.Close()
				if err != nil {
					return req, err
				}
				req.Torrents = append(req.Torrents, body)
			}
		}
	} else if err := r.ParseForm(); err != nil {
		return req, err
	}

	for _, line := range strings.Split(r.PostFormValue("urls"), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			req.URLs = append(req.URLs, line)
		}
	}
	req.Category = r.PostFormValue("category")
	req.SavePath = r.PostFormValue("savepath")
	return req, nil
}

func (s *Service) handleTorrentsDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeText(w, respFail)
		return
	}

	hashes, all := splitHashes(r.PostFormValue("hashes"))
	if all {
		hashes = s.allHashes()
	}
	deleteFiles := r.PostFormValue("deleteFiles") == "true"

	failed := 0
	for _, hash := range hashes {
		if err := s.Delete(r.Context(), hash, deleteFiles); err != nil {
			log.Warn().Err(err).Str("hash", hash).Msg("delete failed")
			failed++
		}
	}

	s.plane.RequestRefresh()
	if failed > 0 {
		writeText(w, respFail)
		return
	}
	writeText(w, respOK)
}

func (s *Service) handleTorrentsPause(w http.ResponseWriter, r *http.Request) {
	s.batchAction(w, r, s.Pause)
}

func (s *Service) handleTorrentsResume(w http.ResponseWriter, r *http.Request) {
	s.batchAction(w, r, s.Resume)
}

func (s *Service) batchAction(w http.ResponseWriter, r *http.Request, action actionFunc) {
	if err := r.ParseForm(); err != nil {
		writeText(w, respFail)
		return
	}

	hashes, all := splitHashes(r.PostFormValue("hashes"))
	if all {
		hashes = s.allHashes()
	}

	failed := 0
	for _, hash := range hashes {
		if err := action(r.Context(), hash); err != nil {
			log.Warn().Err(err).Str("hash", hash).Msg("torrent action failed")
			failed++
		}
	}

	s.plane.RequestRefresh()
	if failed > 0 {
		writeText(w, respFail)
		return
	}
	writeText(w, respOK)
}

func (s *Service) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeText(w, respFail)
		return
	}

	category := r.PostFormValue("category")
	hashes, all := splitHashes(r.PostFormValue("hashes"))
	if all {
		hashes = s.allHashes()
	}

	failed := 0
	for _, hash := range hashes {
		if err := s.SetCategory(r.Context(), hash, category); err != nil {
			log.Warn().Err(err).Str("hash", hash).Msg("set category failed")
			failed++
		}
	}

	s.plane.RequestRefresh()
	if failed > 0 {
		writeText(w, respFail)
		return
	}
	writeText(w, respOK)
}

func (s *Service) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Categories(r.Context()))
}

func (s *Service) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeText(w, respFail)
		return
	}

	name := r.PostFormValue("category")
	err := s.cats.Create(r.Context(), domain.Category{
		Name:     name,
		SavePath: r.PostFormValue("savePath"),
	})
	if err != nil {
		log.Warn().Err(err).Str("category", name).Msg("create category failed")
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	s.SyncCategories(r.Context())
	writeText(w, respOK)
}

func (s *Service) allHashes() []string {
	items := s.plane.Items()
	hashes := make([]string, 0, len(items))
	for _, item := range items {
		hashes = append(hashes, item.Hash)
	}
	return hashes
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encode json response")
	}
}
