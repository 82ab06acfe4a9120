// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ws

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/amule"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/services/categories"
	"github.com/autobrr/mulearr/internal/services/search"
)

// dispatch runs one inbound action. Long operations run on their own
// goroutine so the read pump keeps draining.
func (h *Hub) dispatch(ctx context.Context, sub *subscriber, req request) {
	switch req.Action {
	case "search":
		go h.runSearch(ctx, sub, req)
	case "batch-download":
		go h.batchDownload(ctx, sub, req)
	case "batch-pause":
		go h.batchHashes(ctx, sub, req, "batch-pause-complete", h.qbit.Pause)
	case "batch-resume":
		go h.batchHashes(ctx, sub, req, "batch-resume-complete", h.qbit.Resume)
	case "batch-delete":
		go h.batchDelete(ctx, sub, req)
	case "set-file-category":
		go h.batchSetCategory(ctx, sub, req)
	case "create-category", "update-category", "delete-category":
		go h.categoryAction(ctx, sub, req)
	case "get-servers":
		go h.sendServers(ctx, sub)
	case "server-action":
		go h.serverAction(ctx, sub, req)
	case "get-logs":
		go h.sendLogs(ctx, sub)
	case "get-stats-tree":
		go h.sendStatsTree(ctx, sub)
	default:
		sub.enqueue(frame("error", errorFrame{
			RequestID: req.RequestID,
			Action:    req.Action,
			Message:   "unknown action",
		}))
	}
}

func (h *Hub) sendError(sub *subscriber, req request, err error) {
	sub.enqueue(frame("error", errorFrame{
		RequestID: req.RequestID,
		Action:    req.Action,
		Message:   err.Error(),
	}))
}

// runSearch streams intermediate result sets to every subscriber; the
// search-lock frames come through the lock-change listener.
func (h *Hub) runSearch(ctx context.Context, sub *subscriber, req request) {
	results, err := h.search.Search(ctx, search.Params{Query: req.Query, Kad: req.Kad}, func(partial []domain.SearchResult) {
		h.broadcast(frame("search-results", map[string]any{"results": partial, "done": false}))
	})
	if err != nil {
		h.sendError(sub, req, err)
		return
	}
	h.broadcast(frame("search-results", map[string]any{"results": results, "done": true}))
}

// batchDownload adds each link through the unified add path and
// additionally answers the scheme-specific *-added frame the UI keys
// toasts on.
func (h *Hub) batchDownload(ctx context.Context, sub *subscriber, req request) {
	result := newBatchResult(req.RequestID)
	for _, link := range req.Links {
		if err := h.qbit.AddURL(ctx, link, req.Category, req.SavePath); err != nil {
			log.Warn().Err(err).Str("link", truncate(link)).Msg("ws batch download failed")
			result.fail(link, err)
			continue
		}
		result.ok(link)
		sub.enqueue(frame(addedFrameType(link), map[string]string{"link": link}))
	}
	h.plane.RequestRefresh()
	sub.enqueue(frame("batch-download-complete", result))
}

func addedFrameType(link string) string {
	switch {
	case strings.HasPrefix(strings.ToLower(link), "ed2k://"):
		return "ed2k-added"
	case strings.HasPrefix(strings.ToLower(link), "magnet:"):
		return "magnet-added"
	default:
		return "torrent-added"
	}
}

// batchHashes runs one per-hash operation across the batch.
func (h *Hub) batchHashes(ctx context.Context, sub *subscriber, req request, doneFrame string, op func(context.Context, string) error) {
	result := newBatchResult(req.RequestID)
	for _, hash := range req.Hashes {
		if err := op(ctx, hash); err != nil {
			result.fail(hash, err)
			continue
		}
		result.ok(hash)
	}
	h.plane.RequestRefresh()
	sub.enqueue(frame(doneFrame, result))
}

func (h *Hub) batchDelete(ctx context.Context, sub *subscriber, req request) {
	h.batchHashes(ctx, sub, req, "batch-delete-complete", func(ctx context.Context, hash string) error {
		return h.qbit.Delete(ctx, hash, req.DeleteFiles)
	})
}

// batchSetCategory answers both completion frames: the category one
// covers amule moves, the label one rtorrent relabels. The UI treats
// them identically.
func (h *Hub) batchSetCategory(ctx context.Context, sub *subscriber, req request) {
	result := newBatchResult(req.RequestID)
	for _, hash := range req.Hashes {
		if err := h.qbit.SetCategory(ctx, hash, req.Category); err != nil {
			result.fail(hash, err)
			continue
		}
		result.ok(hash)
	}
	h.plane.RequestRefresh()
	sub.enqueue(frame("batch-category-changed-complete", result))
	sub.enqueue(frame("batch-label-changed-complete", result))
}

func (h *Hub) categoryAction(ctx context.Context, sub *subscriber, req request) {
	var err error
	switch req.Action {
	case "create-category":
		err = h.cats.Create(ctx, domain.Category{
			Name:     req.Name,
			SavePath: req.SavePath,
			Comment:  req.Comment,
			Color:    req.Color,
			Priority: domain.CategoryPriority(req.Priority),
		})
	case "update-category":
		patch := categories.Patch{}
		if req.SavePath != "" {
			patch.SavePath = &req.SavePath
		}
		if req.Comment != "" {
			patch.Comment = &req.Comment
		}
		if req.Color != "" {
			patch.Color = &req.Color
		}
		if req.Priority != "" {
			prio := domain.CategoryPriority(req.Priority)
			patch.Priority = &prio
		}
		err = h.cats.Update(ctx, req.Name, patch)
	case "delete-category":
		err = h.cats.Delete(ctx, req.Name)
	}
	if err != nil {
		h.sendError(sub, req, err)
		return
	}
	h.qbit.SyncCategories(ctx)
	h.broadcast(frame("categories-update", map[string]any{"categories": h.cats.List()}))
}

// serverEntry is the servers-update wire shape for one list row.
type serverEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Addr        string `json:"addr"`
	Ping        int    `json:"ping"`
	Users       int64  `json:"users"`
	MaxUsers    int64  `json:"maxUsers"`
	Files       int64  `json:"files"`
	Static      bool   `json:"static"`
	Connected   bool   `json:"connected"`
}

func (h *Hub) sendServers(ctx context.Context, sub *subscriber) {
	payload, err := h.serversPayload(ctx)
	if err != nil {
		h.sendError(sub, request{Action: "get-servers"}, err)
		return
	}
	sub.enqueue(frame("servers-update", payload))

	if client, cerr := h.mgr.Amule(); cerr == nil {
		if state, serr := client.GetConnState(ctx); serr == nil {
			sub.enqueue(frame("server-info-update", map[string]any{
				"ed2kConnected": state.ConnectedEd2k,
				"kadConnected":  state.ConnectedKad,
				"kadFirewalled": state.KadFirewalled,
				"highId":        state.HighID(),
				"version":       client.DaemonVersion(),
			}))
		}
	}
}

func (h *Hub) serversPayload(ctx context.Context) (map[string]any, error) {
	client, err := h.mgr.Amule()
	if err != nil {
		return nil, err
	}

	servers, err := client.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	state, err := client.GetConnState(ctx)
	if err != nil {
		return nil, err
	}

	connected := ""
	if state.Server != nil {
		connected = state.Server.Addr()
	}

	entries := make([]serverEntry, 0, len(servers))
	for _, srv := range servers {
		entries = append(entries, serverEntry{
			Name:        srv.Name,
			Description: srv.Description,
			Addr:        srv.Addr(),
			Ping:        srv.Ping,
			Users:       srv.Users,
			MaxUsers:    srv.MaxUsers,
			Files:       srv.Files,
			Static:      srv.Static,
			Connected:   srv.Addr() == connected,
		})
	}
	return map[string]any{
		"servers":   entries,
		"connected": connected,
		"highId":    state.HighID(),
	}, nil
}

func (h *Hub) serverAction(ctx context.Context, sub *subscriber, req request) {
	client, err := h.mgr.Amule()
	if err != nil {
		h.sendError(sub, req, err)
		return
	}

	switch req.Op {
	case "connect":
		if req.Addr != "" {
			err = client.ConnectServer(ctx, req.Addr)
		} else {
			err = client.ConnectNetworks(ctx)
		}
	case "disconnect":
		err = client.DisconnectServer(ctx)
	case "add":
		err = client.AddServer(ctx, req.Host, req.Port, req.Name)
	case "remove":
		err = client.RemoveServer(ctx, req.Host, req.Port)
	case "refresh":
		err = client.UpdateServersFromURL(ctx, req.URL)
	default:
		err = errors.Wrapf(domain.ErrBadRequest, "unknown server action %q", req.Op)
	}
	if err != nil {
		h.sendError(sub, req, err)
		return
	}

	sub.enqueue(frame("server-action", map[string]any{"requestId": req.RequestID, "op": req.Op, "ok": true}))
	if payload, perr := h.serversPayload(ctx); perr == nil {
		h.broadcast(frame("servers-update", payload))
	}
}

// sendLogs answers with both log sources: the daemon's own log and
// the bridge's application log ring.
func (h *Hub) sendLogs(ctx context.Context, sub *subscriber) {
	if client, err := h.mgr.Amule(); err == nil {
		if lines, lerr := client.GetLog(ctx); lerr == nil {
			sub.enqueue(frame("log-update", map[string]any{"lines": lines}))
		} else {
			log.Debug().Err(lerr).Msg("daemon log fetch failed")
		}
	}
	if h.logs != nil {
		sub.enqueue(frame("app-log-update", map[string]any{"lines": h.logs.Lines()}))
	}
}

func (h *Hub) sendStatsTree(ctx context.Context, sub *subscriber) {
	client, err := h.mgr.Amule()
	if err != nil {
		h.sendError(sub, request{Action: "get-stats-tree"}, err)
		return
	}

	tree, err := client.GetStatsTree(ctx)
	if err != nil {
		h.sendError(sub, request{Action: "get-stats-tree"}, err)
		return
	}
	sub.enqueue(frame("stats-tree-update", map[string]any{"tree": statsNodes(tree)}))
}

// statsNode mirrors amule's rendered statistics tree for the UI.
type statsNode struct {
	Label    string      `json:"label"`
	Children []statsNode `json:"children,omitempty"`
}

func statsNodes(nodes []amule.StatsNode) []statsNode {
	out := make([]statsNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, statsNode{Label: n.Label, Children: statsNodes(n.Children)})
	}
	return out
}

func truncate(s string) string {
	if len(s) <= 96 {
		return s
	}
	return s[:96] + "..."
}
