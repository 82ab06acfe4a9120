// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dataplane merges the per-client item lists into the single
// unified stream every consumer reads: the qBittorrent facade, the
// WebSocket broadcaster and the history recorder. One loop queries
// both back-ends, projects records into the unified Item shape and
// fans the snapshot out to subscribers.
package dataplane

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/mulearr/internal/amule"
	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/hashstore"
	"github.com/autobrr/mulearr/internal/resolver"
	"github.com/autobrr/mulearr/internal/services/categories"
)

// Emitter receives lifecycle events without ever blocking the caller.
type Emitter interface {
	Emit(event domain.Event)
}

// Snapshot is one merged view of both back-ends.
type Snapshot struct {
	Items        []domain.Item
	Stats        domain.Stats
	ItemsChanged bool
	StatsChanged bool
}

// Service runs the merge loop.
type Service struct {
	cfg     *domain.Config
	mgr     *clients.Manager
	cats    *categories.Service
	hashes  *hashstore.Store
	peers   *resolver.Resolver
	emitter Emitter

	mu        sync.RWMutex
	items     []domain.Item
	stats     domain.Stats
	itemsHash uint64
	statsHash uint64
	completed map[string]bool // hash -> completion already observed

	subsMu sync.Mutex
	subs   []func(Snapshot)

	refresh chan struct{}
}

// NewService wires the merge loop. The emitter may be nil.
func NewService(cfg *domain.Config, mgr *clients.Manager, cats *categories.Service, hashes *hashstore.Store, peers *resolver.Resolver, emitter Emitter) *Service {
	s := &Service{
		cfg:       cfg,
		mgr:       mgr,
		cats:      cats,
		hashes:    hashes,
		peers:     peers,
		emitter:   emitter,
		completed: make(map[string]bool),
		refresh:   make(chan struct{}, 1),
	}

	// an early snapshot as soon as a backend connects; registered here
	// so supervisors started before Run cannot fire past the listener
	s.mgr.OnConnect(domain.ClientAmule, func(context.Context) { s.RequestRefresh() })
	s.mgr.OnConnect(domain.ClientRtorrent, func(context.Context) { s.RequestRefresh() })
	return s
}

// Subscribe registers a snapshot listener. Listeners run on the merge
// goroutine and must hand work off, never block.
func (s *Service) Subscribe(fn func(Snapshot)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

// RequestRefresh schedules an immediate snapshot, used after any
// mutation the bridge performed itself. Coalesces while one is queued.
func (s *Service) RequestRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Items returns a copy of the latest merged item list.
func (s *Service) Items() []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, len(s.items))
	copy(items, s.items)
	return items
}

// Item looks a single item up by its unified hash.
func (s *Service) Item(hash string) (domain.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.Hash == hash {
			return item, true
		}
	}
	return domain.Item{}, false
}

// Stats returns the latest aggregate stats.
func (s *Service) Stats() domain.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Run drives the snapshot cadence until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SnapshotInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.refresh:
		}
		s.Refresh(ctx)
	}
}

// Refresh queries both back-ends, merges and publishes. Query failures
// degrade the offending backend and leave its previous contribution
// out of the snapshot.
func (s *Service) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RPCTimeout())
	defer cancel()

	var (
		amuleDownloads []amule.Download
		amuleShared    []amule.SharedFile
		amuleStats     *amule.Stats
		amuleConn      *amule.ConnState
		amuleUploads   []amule.UploadSlot
		rtItems        []domain.Item
	)

	g, gctx := errgroup.WithContext(ctx)

	if client, err := s.mgr.Amule(); err == nil {
		g.Go(func() error {
			var qerr error
			if amuleDownloads, qerr = client.ListDownloads(gctx); qerr != nil {
				s.reportQueryFailure(domain.ClientAmule, "download queue", qerr)
				return nil
			}
			if amuleShared, qerr = client.ListShared(gctx); qerr != nil {
				s.reportQueryFailure(domain.ClientAmule, "shared files", qerr)
			}
			return nil
		})
		g.Go(func() error {
			var qerr error
			if amuleStats, qerr = client.GetStats(gctx); qerr != nil {
				s.reportQueryFailure(domain.ClientAmule, "stats", qerr)
				return nil
			}
			if amuleConn, qerr = client.GetConnState(gctx); qerr != nil {
				s.reportQueryFailure(domain.ClientAmule, "connection state", qerr)
			}
			if amuleUploads, qerr = client.UploadQueue(gctx); qerr != nil {
				s.reportQueryFailure(domain.ClientAmule, "upload queue", qerr)
			}
			return nil
		})
	}

	if client, err := s.mgr.Rtorrent(); err == nil {
		g.Go(func() error {
			downloads, qerr := client.ListDownloads(gctx)
			if qerr != nil {
				s.reportQueryFailure(domain.ClientRtorrent, "downloads", qerr)
				return nil
			}
			seeding, qerr := client.ListSeeding(gctx)
			if qerr != nil {
				s.reportQueryFailure(domain.ClientRtorrent, "seeding", qerr)
				return nil
			}

			rtItems = make([]domain.Item, 0, len(downloads)+len(seeding))
			for _, d := range downloads {
				rtItems = append(rtItems, s.projectRtorrent(d))
			}
			for _, d := range seeding {
				rtItems = append(rtItems, s.projectRtorrent(d))
			}
			return nil
		})
	}

	g.Wait()

	items := s.merge(amuleDownloads, amuleShared, rtItems)
	stats := s.buildStats(amuleStats, amuleConn, amuleUploads, items)

	s.publish(items, stats)
}

func (s *Service) reportQueryFailure(client domain.ClientType, what string, err error) {
	log.Warn().Err(err).Str("client", string(client)).Msgf("%s query failed", what)
	s.mgr.ReportFailure(client, err)
}

// merge projects and deduplicates. A file both downloading and shared
// in amule keeps the download record: it carries the live transfer
// fields.
func (s *Service) merge(downloads []amule.Download, shared []amule.SharedFile, rtItems []domain.Item) []domain.Item {
	byHash := make(map[string]domain.Item, len(downloads)+len(shared)+len(rtItems))
	order := make([]string, 0, len(downloads)+len(shared)+len(rtItems))

	add := func(item domain.Item, replace bool) {
		if prev, seen := byHash[item.Hash]; seen {
			if replace {
				byHash[item.Hash] = mergeUpload(item, prev)
			}
			return
		}
		byHash[item.Hash] = item
		order = append(order, item.Hash)
	}

	for _, d := range downloads {
		add(s.projectAmuleDownload(d), true)
	}
	for _, f := range shared {
		add(s.projectAmuleShared(f), false)
	}
	for _, item := range rtItems {
		add(item, false)
	}

	items := make([]domain.Item, 0, len(order))
	for _, hash := range order {
		items = append(items, byHash[hash])
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

// mergeUpload folds a shared-file record's upload counters into the
// authoritative download record for the same hash.
func mergeUpload(download, other domain.Item) domain.Item {
	if other.Uploaded > download.Uploaded {
		download.Uploaded = other.Uploaded
	}
	if other.SeedsComplete > download.SeedsComplete {
		download.SeedsComplete = other.SeedsComplete
	}
	return download
}

func (s *Service) buildStats(amuleStats *amule.Stats, conn *amule.ConnState, uploads []amule.UploadSlot, items []domain.Item) domain.Stats {
	stats := domain.Stats{
		Clients: make(map[domain.ClientType]domain.ClientStats, 2),
	}

	amuleClient := domain.ClientStats{Connected: s.mgr.Connected(domain.ClientAmule)}
	if amuleStats != nil {
		amuleClient.DownloadSpeed = amuleStats.DownloadSpeed
		amuleClient.UploadSpeed = amuleStats.UploadSpeed
		amuleClient.TotalDownloaded = amuleStats.TotalReceived
		amuleClient.TotalUploaded = amuleStats.TotalSent
	}
	stats.Clients[domain.ClientAmule] = amuleClient

	rtClient := domain.ClientStats{Connected: s.mgr.Connected(domain.ClientRtorrent)}
	for _, item := range items {
		if item.Client != domain.ClientRtorrent {
			continue
		}
		rtClient.DownloadSpeed += item.DownloadSpeed
		rtClient.UploadSpeed += item.UploadSpeed
		rtClient.TotalDownloaded += item.Downloaded
		rtClient.TotalUploaded += item.Uploaded
	}
	stats.Clients[domain.ClientRtorrent] = rtClient

	stats.DownloadSpeed = amuleClient.DownloadSpeed + rtClient.DownloadSpeed
	stats.UploadSpeed = amuleClient.UploadSpeed + rtClient.UploadSpeed

	if conn != nil {
		network := &domain.Ed2kNetwork{
			ClientID:   conn.ClientID,
			HighID:     conn.HighID(),
			Ed2kStatus: "disconnected",
			KadStatus:  "disconnected",
		}
		switch {
		case conn.ConnectedEd2k:
			network.Ed2kStatus = "connected"
		case conn.ConnectingEd2k:
			network.Ed2kStatus = "connecting"
		}
		switch {
		case conn.ConnectedKad && conn.KadFirewalled:
			network.KadStatus = "firewalled"
		case conn.ConnectedKad:
			network.KadStatus = "connected"
		}
		if conn.Server != nil {
			network.ServerName = conn.Server.Name
			network.ServerAddr = conn.Server.Addr()
			network.ServerUsers = conn.Server.Users
			network.ServerFiles = conn.Server.Files
		}
		if amuleStats != nil {
			network.ServerUsers = max(network.ServerUsers, amuleStats.Ed2kUsers)
			network.ServerFiles = max(network.ServerFiles, amuleStats.Ed2kFiles)
		}
		stats.Ed2k = network
	}

	stats.Uploads = make([]domain.UploadPeer, 0, len(uploads))
	for _, slot := range uploads {
		stats.Uploads = append(stats.Uploads, domain.UploadPeer{
			FileName: slot.FileName,
			FileHash: slot.FileHash,
			PeerName: slot.UserName,
			PeerIP:   slot.IP,
			Software: slot.Software,
			SpeedUp:  slot.SpeedUp,
			Uploaded: slot.UploadedSession,
			Client:   domain.ClientAmule,
		})
	}
	stats.Uploads = s.peers.EnrichPeers(stats.Uploads)

	return stats
}

// publish stores the snapshot, detects changes and notifies
// subscribers. Change detection hashes the serialized payloads so a
// quiet system causes no broadcast traffic.
func (s *Service) publish(items []domain.Item, stats domain.Stats) {
	itemsHash := hashOf(items)
	statsHash := hashOf(stats)

	s.mu.Lock()
	itemsChanged := itemsHash != s.itemsHash
	statsChanged := statsHash != s.statsHash
	s.items = items
	s.stats = stats
	s.itemsHash = itemsHash
	s.statsHash = statsHash
	s.mu.Unlock()

	s.emitCompletions(items)

	if !itemsChanged && !statsChanged {
		return
	}

	snap := Snapshot{
		Items:        items,
		Stats:        stats,
		ItemsChanged: itemsChanged,
		StatsChanged: statsChanged,
	}

	s.subsMu.Lock()
	subs := make([]func(Snapshot), len(s.subs))
	copy(subs, s.subs)
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// emitCompletions fires downloadFinished exactly once per hash, on the
// first snapshot that shows it complete.
func (s *Service) emitCompletions(items []domain.Item) {
	if s.emitter == nil {
		return
	}

	live := make(map[string]struct{}, len(items))
	for _, item := range items {
		live[item.Hash] = struct{}{}

		if item.Progress < 100 {
			// arriving incomplete marks the hash as seen downloading;
			// completions of files never seen downloading stay silent
			s.completed[item.Hash] = false
			continue
		}

		done, seen := s.completed[item.Hash]
		if !seen || done {
			s.completed[item.Hash] = true
			continue
		}

		s.completed[item.Hash] = true
		s.emitter.Emit(domain.Event{
			Type:      domain.EventDownloadFinished,
			Hash:      item.Hash,
			Name:      item.Name,
			Client:    item.Client,
			Category:  item.Category,
			Size:      item.Size,
			Path:      item.SavePath,
			Timestamp: time.Now(),
		})
	}

	for hash := range s.completed {
		if _, ok := live[hash]; !ok {
			delete(s.completed, hash)
		}
	}
}

func hashOf(v any) uint64 {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(data)
}
