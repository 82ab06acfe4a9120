// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/hashstore"
	"github.com/autobrr/mulearr/internal/qbit"
	"github.com/autobrr/mulearr/internal/services/categories"
	"github.com/autobrr/mulearr/internal/services/dataplane"
	"github.com/autobrr/mulearr/internal/services/search"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()

	cfg := &domain.Config{
		AuthDisabled: true,
		Amule:        domain.AmuleConfig{DownloadFolder: "/downloads"},
		Rtorrent:     domain.RtorrentConfig{DownloadFolder: "/torrents"},
	}
	mgr := clients.NewManager(cfg)

	cats, err := categories.NewService(t.TempDir(), mgr)
	require.NoError(t, err)

	hashes, err := hashstore.Open(t.TempDir())
	require.NoError(t, err)

	plane := dataplane.NewService(cfg, mgr, cats, hashes, nil, nil)
	searchSvc := search.NewService(mgr, cats)
	qbitSvc := qbit.NewService(cfg, mgr, plane, cats, hashes, nil, nil, nil, nil)

	return NewHub(cfg, mgr, plane, cats, searchSvc, qbitSvc, NewLogRing())
}

func newTestSubscriber() *subscriber {
	return &subscriber{send: make(chan []byte, sendQueueSize)}
}

type decodedFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func nextFrame(t *testing.T, sub *subscriber) decodedFrame {
	t.Helper()

	select {
	case payload := <-sub.send:
		var f decodedFrame
		require.NoError(t, json.Unmarshal(payload, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return decodedFrame{}
	}
}

func TestRegisterSendsFullState(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber()

	h.register(sub)

	f := nextFrame(t, sub)
	assert.Equal(t, "batch-update", f.Type)

	var data map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Contains(t, data, "stats")
	assert.Contains(t, data, "items")
	assert.Contains(t, data, "categories")
	assert.Contains(t, data, "clientDefaultPaths")
	assert.Contains(t, data, "hasPathWarnings")

	var paths map[string]string
	require.NoError(t, json.Unmarshal(data["clientDefaultPaths"], &paths))
	assert.Equal(t, "/downloads", paths["amule"])
	assert.Equal(t, "/torrents", paths["rtorrent"])
}

func TestFlushCollapsesPendingDeltas(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber()
	h.register(sub)
	nextFrame(t, sub) // drain the registration frame

	h.pendingMu.Lock()
	h.pending.stats = true
	h.pendingMu.Unlock()
	h.flush()

	f := nextFrame(t, sub)
	assert.Equal(t, "batch-update", f.Type)

	var data map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Contains(t, data, "stats")
	assert.NotContains(t, data, "items")
	assert.NotContains(t, data, "categories")

	// nothing pending: flush stays silent
	h.flush()
	select {
	case payload := <-sub.send:
		t.Fatalf("unexpected frame: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEnqueueDropsOldestOnOverflow(t *testing.T) {
	sub := newTestSubscriber()

	for i := 0; i < sendQueueSize+10; i++ {
		sub.enqueue([]byte(fmt.Sprintf("frame-%d", i)))
	}

	assert.Len(t, sub.send, sendQueueSize)
	assert.Equal(t, "frame-10", string(<-sub.send))
}

func TestEnqueueAfterCloseIsSafe(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber()

	h.register(sub)
	h.unregister(sub)

	// must not panic on the closed channel
	sub.enqueue([]byte("late"))
}

func TestDispatchUnknownAction(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber()

	h.dispatch(context.Background(), sub, request{Action: "reticulate", RequestID: "r1"})

	f := nextFrame(t, sub)
	assert.Equal(t, "error", f.Type)

	var e errorFrame
	require.NoError(t, json.Unmarshal(f.Data, &e))
	assert.Equal(t, "r1", e.RequestID)
	assert.Equal(t, "reticulate", e.Action)
}

func TestBatchHashesReportsPerItemOutcome(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber()

	op := func(_ context.Context, hash string) error {
		if hash == "bad" {
			return assert.AnError
		}
		return nil
	}
	h.batchHashes(context.Background(), sub, request{
		RequestID: "r2",
		Hashes:    []string{"good", "bad", "alsogood"},
	}, "batch-pause-complete", op)

	f := nextFrame(t, sub)
	assert.Equal(t, "batch-pause-complete", f.Type)

	var result batchResult
	require.NoError(t, json.Unmarshal(f.Data, &result))
	assert.Equal(t, "r2", result.RequestID)
	assert.Equal(t, []string{"good", "alsogood"}, result.Successes)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "bad", result.Failures[0].ID)
}

func TestBatchDownloadFailsWithoutBackend(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber()

	h.batchDownload(context.Background(), sub, request{
		RequestID: "r3",
		Links:     []string{"ed2k://|file|a.iso|1|31d6cfe0d16ae931b73c59d7e0c089c0|/"},
	})

	f := nextFrame(t, sub)
	assert.Equal(t, "batch-download-complete", f.Type)

	var result batchResult
	require.NoError(t, json.Unmarshal(f.Data, &result))
	assert.Empty(t, result.Successes)
	assert.Len(t, result.Failures, 1)
}

func TestAddedFrameType(t *testing.T) {
	assert.Equal(t, "ed2k-added", addedFrameType("ed2k://|file|a|1|ab|/"))
	assert.Equal(t, "magnet-added", addedFrameType("MAGNET:?xt=urn:btih:abc"))
	assert.Equal(t, "torrent-added", addedFrameType("https://example.org/a.torrent"))
}

func TestCategoryActionBroadcastsUpdate(t *testing.T) {
	h := newTestHub(t)
	sub := newTestSubscriber()
	h.register(sub)
	nextFrame(t, sub)

	h.categoryAction(context.Background(), sub, request{
		Action:   "create-category",
		Name:     "isos",
		SavePath: "/downloads/isos",
	})

	f := nextFrame(t, sub)
	assert.Equal(t, "categories-update", f.Type)

	var data struct {
		Categories []domain.Category `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &data))

	names := make([]string, 0, len(data.Categories))
	for _, cat := range data.Categories {
		names = append(names, cat.Name)
	}
	assert.Contains(t, names, "isos")
}

func TestLogRing(t *testing.T) {
	r := NewLogRing()

	var received []string
	r.SetOnLine(func(line string) { received = append(received, line) })

	_, err := r.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = r.Write([]byte("second\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, r.Lines())
	assert.Equal(t, []string{"first", "second"}, received)
}

func TestLogRingWraps(t *testing.T) {
	r := NewLogRing()

	for i := 0; i < logRingSize+5; i++ {
		_, err := r.Write([]byte(fmt.Sprintf("line-%d\n", i)))
		require.NoError(t, err)
	}

	lines := r.Lines()
	require.Len(t, lines, logRingSize)
	assert.Equal(t, "line-5", lines[0])
	assert.Equal(t, fmt.Sprintf("line-%d", logRingSize+4), lines[logRingSize-1])
}
