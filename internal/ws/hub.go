// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ws pushes live bridge state to browser sessions over a
// WebSocket and accepts UI actions on the same connection. Slow
// consumers never stall the producers: every subscriber gets a bounded
// queue that drops its oldest frames under pressure, so the latest
// state always wins.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/qbit"
	"github.com/autobrr/mulearr/internal/services/categories"
	"github.com/autobrr/mulearr/internal/services/dataplane"
	"github.com/autobrr/mulearr/internal/services/search"
)

const (
	// flushInterval collapses pending deltas into one batch-update.
	flushInterval = 2 * time.Second
	// sendQueueSize is the per-subscriber high-water mark.
	sendQueueSize = 64
)

// pendingDelta tracks which batch-update keys changed since the last
// flush.
type pendingDelta struct {
	stats              bool
	items              bool
	categories         bool
	clientDefaultPaths bool
	hasPathWarnings    bool
}

func (p pendingDelta) empty() bool {
	return !p.stats && !p.items && !p.categories && !p.clientDefaultPaths && !p.hasPathWarnings
}

// Hub owns the subscriber set and the delta collapsing.
type Hub struct {
	cfg    *domain.Config
	mgr    *clients.Manager
	plane  *dataplane.Service
	cats   *categories.Service
	search *search.Service
	qbit   *qbit.Service
	logs   *LogRing

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	pendingMu sync.Mutex
	pending   pendingDelta
}

func NewHub(
	cfg *domain.Config,
	mgr *clients.Manager,
	plane *dataplane.Service,
	cats *categories.Service,
	searchSvc *search.Service,
	qbitSvc *qbit.Service,
	logs *LogRing,
) *Hub {
	return &Hub{
		cfg:    cfg,
		mgr:    mgr,
		plane:  plane,
		cats:   cats,
		search: searchSvc,
		qbit:   qbitSvc,
		logs:   logs,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Run wires the producers and flushes pending deltas until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	h.plane.Subscribe(func(snap dataplane.Snapshot) {
		h.pendingMu.Lock()
		h.pending.items = h.pending.items || snap.ItemsChanged
		h.pending.stats = h.pending.stats || snap.StatsChanged
		h.pendingMu.Unlock()
	})

	h.cats.SetOnChange(func() {
		h.pendingMu.Lock()
		h.pending.categories = true
		h.pending.clientDefaultPaths = true
		h.pending.hasPathWarnings = true
		h.pendingMu.Unlock()
	})

	h.search.OnLockChange(func(locked bool) {
		h.broadcast(frame("search-lock", map[string]bool{"locked": locked}))
	})

	if h.logs != nil {
		h.logs.SetOnLine(func(line string) {
			h.broadcast(frame("app-log-update", map[string]string{"line": line}))
		})
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.flush()
		}
	}
}

// flush collapses the pending delta set into a single batch-update.
func (h *Hub) flush() {
	h.pendingMu.Lock()
	pending := h.pending
	h.pending = pendingDelta{}
	h.pendingMu.Unlock()

	if pending.empty() {
		return
	}
	h.broadcast(frame("batch-update", h.updateData(pending)))
}

// updateData assembles the batch-update payload for the flagged keys.
func (h *Hub) updateData(delta pendingDelta) map[string]any {
	data := make(map[string]any)
	if delta.stats {
		data["stats"] = h.plane.Stats()
	}
	if delta.items {
		data["items"] = h.plane.Items()
	}
	if delta.categories {
		data["categories"] = h.cats.List()
	}
	if delta.clientDefaultPaths {
		data["clientDefaultPaths"] = map[string]string{
			string(domain.ClientAmule):    h.cfg.Amule.DownloadFolder,
			string(domain.ClientRtorrent): h.cfg.Rtorrent.DownloadFolder,
		}
	}
	if delta.hasPathWarnings {
		data["hasPathWarnings"] = h.cats.HasPathWarnings()
	}
	return data
}

func fullDelta() pendingDelta {
	return pendingDelta{stats: true, items: true, categories: true, clientDefaultPaths: true, hasPathWarnings: true}
}

func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()

	log.Debug().Int("subscribers", count).Msg("ws subscriber connected")

	// late joiners start from full state
	sub.enqueue(frame("batch-update", h.updateData(fullDelta())))
	if results, ok := h.search.Last(); ok {
		sub.enqueue(frame("previous-search-results", map[string]any{"results": results}))
	}
	if h.search.Running() {
		sub.enqueue(frame("search-lock", map[string]bool{"locked": true}))
	}
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		sub.markClosed()
		close(sub.send)
	}
	count := len(h.subs)
	h.mu.Unlock()

	log.Debug().Int("subscribers", count).Msg("ws subscriber disconnected")
}

// broadcast fans a frame out to every subscriber. Nil frames come from
// marshal failures and are dropped upstream.
func (h *Hub) broadcast(payload []byte) {
	if payload == nil {
		return
	}

	h.mu.Lock()
	for sub := range h.subs {
		sub.enqueue(payload)
	}
	h.mu.Unlock()
}

// Subscribers reports the live connection count, for the metrics gauge.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.markClosed()
		close(sub.send)
	}
	h.mu.Unlock()
}
