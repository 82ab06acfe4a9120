// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package rtorrent

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/domain"
)

// Download is one rtorrent item as reported by d.multicall2.
type Download struct {
	Hash       string // 40-hex lowercase
	Name       string
	Size       int64
	Completed  int64
	Downloaded int64
	Uploaded   int64
	DownRate   int64
	UpRate     int64
	Ratio      int64 // per mille
	Label      string
	Directory  string
	Message    string
	IsActive   bool
	IsOpen     bool
	IsComplete bool
	IsHashing  bool
	Peers      int
	Seeds      int
	AddedAt    int64
	FinishedAt int64
	TrackerURL string
}

// State translates rtorrent's flag soup into the unified vocabulary.
func (d Download) State() domain.ItemState {
	switch {
	case d.IsHashing:
		return domain.StateChecking
	case d.Message != "" && !strings.HasPrefix(d.Message, "Tracker:"):
		return domain.StateError
	case !d.IsOpen || !d.IsActive:
		return domain.StatePaused
	case d.IsComplete:
		return domain.StateSeeding
	default:
		return domain.StateDownloading
	}
}

// downloadFields is the d.multicall2 getter list, kept in lockstep with
// parseDownload. Daemons older than multicallBatchVersion choke on the
// timestamp getters and get the short list.
var downloadFields = []string{
	"d.hash=",
	"d.name=",
	"d.size_bytes=",
	"d.completed_bytes=",
	"d.down.total=",
	"d.up.total=",
	"d.down.rate=",
	"d.up.rate=",
	"d.ratio=",
	"d.custom1=",
	"d.directory=",
	"d.message=",
	"d.is_active=",
	"d.is_open=",
	"d.complete=",
	"d.hashing=",
	"d.peers_accounted=",
	"d.peers_complete=",
	"d.timestamp.started=",
	"d.timestamp.finished=",
}

const shortFieldCount = 18 // legacy list stops before the timestamps

// ListDownloads returns the incomplete view: everything still fetching
// payload, whether running or paused.
func (c *Client) ListDownloads(ctx context.Context) ([]Download, error) {
	return c.listView(ctx, "incomplete")
}

// ListSeeding returns the complete view. Together with ListDownloads
// this covers the whole session without overlap.
func (c *Client) ListSeeding(ctx context.Context) ([]Download, error) {
	return c.listView(ctx, "complete")
}

func (c *Client) listView(ctx context.Context, view string) ([]Download, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	c.mu.Lock()
	legacy := c.legacyFields
	c.mu.Unlock()

	fields := downloadFields
	if legacy {
		fields = downloadFields[:shortFieldCount]
	}

	params := make([]any, 0, len(fields)+2)
	params = append(params, "", view)
	for _, f := range fields {
		params = append(params, f)
	}

	resp, err := c.call(ctx, "d.multicall2", params...)
	if err != nil {
		return nil, err
	}
	if resp.Kind != kindArray {
		return nil, errors.Wrap(domain.ErrProtocol, "d.multicall2 returned no array")
	}

	downloads := make([]Download, 0, len(resp.Array))
	for _, row := range resp.Array {
		if row.Kind != kindArray || len(row.Array) < shortFieldCount {
			log.Debug().Str("view", view).Msg("short d.multicall2 row skipped")
			continue
		}
		downloads = append(downloads, parseDownload(row.Array))
	}

	c.attachTrackers(ctx, downloads)
	return downloads, nil
}

func parseDownload(row []value) Download {
	d := Download{
		Hash:       strings.ToLower(row[0].String()),
		Name:       row[1].String(),
		Size:       row[2].Int(),
		Completed:  row[3].Int(),
		Downloaded: row[4].Int(),
		Uploaded:   row[5].Int(),
		DownRate:   row[6].Int(),
		UpRate:     row[7].Int(),
		Ratio:      row[8].Int(),
		Label:      row[9].String(),
		Directory:  row[10].String(),
		Message:    row[11].String(),
		IsActive:   row[12].Int() != 0,
		IsOpen:     row[13].Int() != 0,
		IsComplete: row[14].Int() != 0,
		IsHashing:  row[15].Int() != 0,
		Peers:      int(row[16].Int()),
		Seeds:      int(row[17].Int()),
	}
	if len(row) >= 20 {
		d.AddedAt = row[18].Int()
		d.FinishedAt = row[19].Int()
	}
	return d
}

// trackerCache remembers the first announce URL per hash. Tracker sets
// never change for a loaded item, so entries live until the item is
// erased.
type trackerCache struct {
	mu   sync.Mutex
	urls map[string]string
}

func (tc *trackerCache) get(hash string) (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	url, ok := tc.urls[hash]
	return url, ok
}

func (tc *trackerCache) put(hash, url string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.urls == nil {
		tc.urls = make(map[string]string)
	}
	tc.urls[hash] = url
}

// attachTrackers fills TrackerURL, asking the daemon only for hashes
// not seen before.
func (c *Client) attachTrackers(ctx context.Context, downloads []Download) {
	for i := range downloads {
		d := &downloads[i]
		if url, ok := c.trackers.get(d.Hash); ok {
			d.TrackerURL = url
			continue
		}

		resp, err := c.call(ctx, "t.url", strings.ToUpper(d.Hash)+":t0")
		if err != nil {
			// magnet stubs have no tracker rows yet; retry next listing
			log.Trace().Err(err).Str("hash", d.Hash).Msg("tracker lookup failed")
			continue
		}
		d.TrackerURL = resp.String()
		c.trackers.put(d.Hash, d.TrackerURL)
	}
}

// AddByMagnet loads a magnet link, started, with the label and
// directory applied atomically via load commands.
func (c *Client) AddByMagnet(ctx context.Context, uri, label, dir string) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	params := []any{"", uri}
	params = append(params, loadSetters(label, dir)...)

	_, err := c.call(ctx, "load.start", params...)
	return err
}

// AddByTorrentFile loads a raw .torrent body, started.
func (c *Client) AddByTorrentFile(ctx context.Context, raw []byte, label, dir string) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	params := []any{"", raw}
	params = append(params, loadSetters(label, dir)...)

	_, err := c.call(ctx, "load.raw_start", params...)
	return err
}

func loadSetters(label, dir string) []any {
	var setters []any
	if label != "" {
		setters = append(setters, "d.custom1.set="+label)
	}
	if dir != "" {
		setters = append(setters, "d.directory.set="+dir)
	}
	return setters
}

// Remove erases the item from the session. File deletion is the
// bridge's job; rtorrent never touches payload on erase.
func (c *Client) Remove(ctx context.Context, hash string) error {
	return c.simpleAction(ctx, "d.erase", hash)
}

// Pause stops transferring but keeps the item in its view.
func (c *Client) Pause(ctx context.Context, hash string) error {
	return c.simpleAction(ctx, "d.stop", hash)
}

// Resume restarts a stopped or closed item.
func (c *Client) Resume(ctx context.Context, hash string) error {
	if err := c.simpleAction(ctx, "d.open", hash); err != nil {
		return err
	}
	return c.simpleAction(ctx, "d.start", hash)
}

// Stop closes the item, releasing its file handles and peers.
func (c *Client) Stop(ctx context.Context, hash string) error {
	return c.simpleAction(ctx, "d.close", hash)
}

// CheckHash re-verifies payload against the piece hashes.
func (c *Client) CheckHash(ctx context.Context, hash string) error {
	return c.simpleAction(ctx, "d.check_hash", hash)
}

// SetLabel rewrites the item's custom1 label.
func (c *Client) SetLabel(ctx context.Context, hash, label string) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	_, err := c.call(ctx, "d.custom1.set", strings.ToUpper(hash), label)
	return err
}

func (c *Client) simpleAction(ctx context.Context, method, hash string) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	_, err := c.call(ctx, method, strings.ToUpper(hash))
	return err
}

// ListLabels returns the distinct custom1 labels present in the
// session, sorted. rtorrent has no first-class label object; the
// session content is the only registry.
func (c *Client) ListLabels(ctx context.Context) ([]string, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	resp, err := c.call(ctx, "d.multicall2", "", "main", "d.custom1=")
	if err != nil {
		return nil, err
	}
	if resp.Kind != kindArray {
		return nil, errors.Wrap(domain.ErrProtocol, "d.multicall2 returned no array")
	}

	seen := make(map[string]struct{})
	for _, row := range resp.Array {
		if row.Kind != kindArray || len(row.Array) < 1 {
			continue
		}
		if label := row.Array[0].String(); label != "" {
			seen[label] = struct{}{}
		}
	}

	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels, nil
}
