// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbit re-exports the unified data plane as a qBittorrent
// WebUI v2 API, so *arr applications and other stock qBittorrent
// clients can drive the bridge unchanged.
package qbit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/mulearr/internal/auth"
	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/hashstore"
	"github.com/autobrr/mulearr/internal/services/categories"
	"github.com/autobrr/mulearr/internal/services/dataplane"
)

// Version strings reported to clients. Pinned to a qBittorrent release
// the *arr suite is known to accept.
const (
	appVersion    = "v5.1.4"
	webapiVersion = "2.11.4"
)

const (
	// initDeadline force-opens the category barrier so requests made
	// before the first backend sync eventually see an empty set instead
	// of hanging.
	initDeadline    = 60 * time.Second
	refreshInterval = 5 * time.Minute
)

// HistoryRemover drops the recorder's entry for a deleted item, so a
// deletion through the facade also forgets the transfer.
type HistoryRemover interface {
	Delete(hash string) error
}

// Category is the torrents/categories entry shape.
type Category struct {
	Name     string `json:"name"`
	SavePath string `json:"savePath"`
}

// Service implements the facade. The category view is an immutable map
// swapped atomically after each sync; readers never see a half-built
// state.
type Service struct {
	cfg      *domain.Config
	mgr      *clients.Manager
	plane    *dataplane.Service
	cats     *categories.Service
	hashes   *hashstore.Store
	emitter  dataplane.Emitter
	history  HistoryRemover
	auth     *auth.Service
	sessions *scs.SessionManager

	catView  atomic.Pointer[map[string]Category]
	initOnce sync.Once
	initCh   chan struct{}
	sync     singleflight.Group

	started time.Time
}

// NewService wires the facade. emitter, history and authSvc may be nil
// (events disabled, no recorder, auth disabled).
func NewService(
	cfg *domain.Config,
	mgr *clients.Manager,
	plane *dataplane.Service,
	cats *categories.Service,
	hashes *hashstore.Store,
	emitter dataplane.Emitter,
	history HistoryRemover,
	authSvc *auth.Service,
	sessions *scs.SessionManager,
) *Service {
	s := &Service{
		cfg:      cfg,
		mgr:      mgr,
		plane:    plane,
		cats:     cats,
		hashes:   hashes,
		emitter:  emitter,
		history:  history,
		auth:     authSvc,
		sessions: sessions,
		initCh:   make(chan struct{}),
		started:  time.Now(),
	}
	empty := map[string]Category{}
	s.catView.Store(&empty)

	// register before the supervisors start dialing, so a fast connect
	// cannot slip past the listener
	s.mgr.OnConnect(domain.ClientAmule, func(cctx context.Context) {
		s.SyncCategories(cctx)
	})
	return s
}

// Run keeps the category view fresh on a fixed tick; the connect
// listener registered at construction handles the initial sync. The
// safety deadline opens the barrier even when no backend ever
// connects.
func (s *Service) Run(ctx context.Context) {
	deadline := time.NewTimer(initDeadline)
	defer deadline.Stop()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			s.initOnce.Do(func() {
				log.Warn().Dur("after", initDeadline).Msg("category init deadline reached, serving empty category set")
				close(s.initCh)
			})
		case <-ticker.C:
			if !s.mgr.Connected(domain.ClientAmule) && !s.mgr.Connected(domain.ClientRtorrent) {
				continue
			}
			s.SyncCategories(ctx)
		}
	}
}

// SyncCategories reconciles the category manager against the daemons
// and swaps in a fresh immutable view. Concurrent calls coalesce onto
// one in-flight sync.
func (s *Service) SyncCategories(ctx context.Context) {
	s.sync.Do("sync", func() (any, error) {
		s.cats.Reconcile(ctx)

		view := make(map[string]Category)
		for _, cat := range s.cats.List() {
			view[cat.Name] = Category{
				Name:     cat.Name,
				SavePath: cat.EffectivePath(domain.ClientAmule),
			}
		}
		s.catView.Store(&view)
		s.initOnce.Do(func() { close(s.initCh) })
		return nil, nil
	})
}

// Categories returns the current immutable view, blocking until the
// first sync completed or the safety deadline opened the barrier.
func (s *Service) Categories(ctx context.Context) map[string]Category {
	select {
	case <-s.initCh:
	case <-ctx.Done():
	}
	return *s.catView.Load()
}

// ready reports whether the first-init barrier is open, for tests and
// health checks.
func (s *Service) ready() bool {
	select {
	case <-s.initCh:
		return true
	default:
		return false
	}
}
