// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbit

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/bencode"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/hashstore"
	"github.com/autobrr/mulearr/pkg/magnet"
)

const (
	fetchTimeout  = 30 * time.Second
	fetchAttempts = 3
	maxTorrentLen = 32 << 20
)

// addRequest is one torrents/add call after form decoding.
type addRequest struct {
	URLs     []string // magnet:, ed2k:, http(s):
	Torrents [][]byte // raw .torrent bodies
	Category string
	SavePath string
}

// AddURL dispatches a single download link (magnet, ed2k or http(s))
// into the right engine. Exposed for the WebSocket batch actions.
func (s *Service) AddURL(ctx context.Context, raw, category, savePath string) error {
	return s.addOne(ctx, raw, addRequest{Category: category, SavePath: savePath})
}

// addOne dispatches a single URL. Errors are collected by the caller;
// one failing URL never aborts the batch.
func (s *Service) addOne(ctx context.Context, raw string, req addRequest) error {
	switch {
	case strings.HasPrefix(strings.ToLower(raw), "magnet:"):
		m, err := magnet.Parse(raw)
		if err != nil {
			return errors.Wrap(domain.ErrBadRequest, err.Error())
		}
		return s.addMagnet(ctx, m, req)

	case strings.HasPrefix(strings.ToLower(raw), "ed2k://"):
		link, err := magnet.ParseEd2k(raw)
		if err != nil {
			return errors.Wrap(domain.ErrBadRequest, err.Error())
		}
		return s.addEd2k(ctx, link, req.Category)

	case strings.HasPrefix(strings.ToLower(raw), "http://"), strings.HasPrefix(strings.ToLower(raw), "https://"):
		body, err := fetchTorrent(ctx, raw)
		if err != nil {
			return err
		}
		return s.addTorrentFile(ctx, body, req)

	default:
		return errors.Wrapf(domain.ErrBadRequest, "unsupported url scheme in %q", truncateForLog(raw))
	}
}

// addMagnet routes a magnet to its engine: tracker-carrying magnets are
// real BitTorrent and go to rTorrent; trackerless ones are converted
// back into the ed2k link they encode.
func (s *Service) addMagnet(ctx context.Context, m magnet.Magnet, req addRequest) error {
	if len(m.Trackers) > 0 && s.mgr.Enabled(domain.ClientRtorrent) {
		client, err := s.mgr.Rtorrent()
		if err != nil {
			return err
		}
		if err := client.AddByMagnet(ctx, m.String(), s.cats.LabelFor(req.Category), s.savePathFor(req, domain.ClientRtorrent)); err != nil {
			return err
		}
		s.plane.RequestRefresh()
		s.emit(domain.EventDownloadAdded, m.InfoHash, m.Name, domain.ClientRtorrent, req.Category)
		return nil
	}

	link, err := ConvertMagnetToED2K(m)
	if err != nil {
		return err
	}

	if err := s.hashes.SetMapping(link.Hash, m.InfoHash, hashstore.Meta{
		FileName: link.Name,
		Category: req.Category,
		AddedAt:  time.Now().Unix(),
	}); err != nil {
		return err
	}

	if err := s.addEd2k(ctx, link, req.Category); err != nil {
		// roll the mapping back so a retry is not refused as a conflict
		s.hashes.RemoveMapping(link.Hash)
		return err
	}
	return nil
}

func (s *Service) addEd2k(ctx context.Context, link magnet.Ed2kLink, category string) error {
	client, err := s.mgr.Amule()
	if err != nil {
		return err
	}

	if err := client.AddEd2kLink(ctx, link.String(), s.cats.AmuleID(category)); err != nil {
		return err
	}

	s.plane.RequestRefresh()
	s.emit(domain.EventDownloadAdded, magnet.PadEd2kHash(link.Hash), link.Name, domain.ClientAmule, category)
	return nil
}

// addTorrentFile parses a .torrent body and hands it to rTorrent.
func (s *Service) addTorrentFile(ctx context.Context, body []byte, req addRequest) error {
	name, infoHash, err := parseTorrent(body)
	if err != nil {
		return err
	}

	client, err := s.mgr.Rtorrent()
	if err != nil {
		return err
	}

	if err := client.AddByTorrentFile(ctx, body, s.cats.LabelFor(req.Category), s.savePathFor(req, domain.ClientRtorrent)); err != nil {
		return err
	}

	s.plane.RequestRefresh()
	s.emit(domain.EventDownloadAdded, infoHash, name, domain.ClientRtorrent, req.Category)
	return nil
}

// parseTorrent extracts the display name and v1 info-hash. The raw
// info dict is re-encoded with bencode so the hash covers the exact
// bytes the tracker will see.
func parseTorrent(body []byte) (name, infoHash string, err error) {
	mi, err := metainfo.Load(bytes.NewReader(body))
	if err != nil {
		return "", "", errors.Wrap(domain.ErrBadRequest, "parse torrent file")
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return "", "", errors.Wrap(domain.ErrBadRequest, "parse torrent info dict")
	}

	// sanity check that the info dict round-trips; a malformed dict
	// would make rtorrent and the announce disagree on the hash
	var raw map[string]bencode.RawMessage
	if err := bencode.DecodeBytes(body, &raw); err != nil {
		return "", "", errors.Wrap(domain.ErrBadRequest, "decode torrent dict")
	}
	if _, ok := raw["info"]; !ok {
		return "", "", errors.Wrap(domain.ErrBadRequest, "torrent carries no info dict")
	}

	return info.BestName(), mi.HashInfoBytes().HexString(), nil
}

// fetchTorrent downloads a .torrent with retries; transient HTTP
// failures back off and retry, client errors fail immediately.
func fetchTorrent(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(errors.Wrap(domain.ErrBadRequest, err.Error()))
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return errors.Wrap(domain.ErrTransport, err.Error())
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(errors.Wrapf(domain.ErrBadRequest, "fetch %s: status %d", truncateForLog(url), resp.StatusCode))
			}
			if resp.StatusCode != http.StatusOK {
				return errors.Wrapf(domain.ErrTransport, "fetch %s: status %d", truncateForLog(url), resp.StatusCode)
			}

			body, err = io.ReadAll(io.LimitReader(resp.Body, maxTorrentLen))
			if err != nil {
				return errors.Wrap(domain.ErrTransport, err.Error())
			}
			return nil
		},
		retry.Attempts(fetchAttempts),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("attempt", n+1).Str("url", truncateForLog(url)).Msg("torrent fetch retry")
		}),
	)
	return body, err
}

func (s *Service) savePathFor(req addRequest, client domain.ClientType) string {
	if req.SavePath != "" {
		return req.SavePath
	}
	if cat, ok := s.cats.Get(req.Category); ok {
		return cat.EffectivePath(client)
	}
	return ""
}

func (s *Service) emit(event domain.EventType, hash, name string, client domain.ClientType, category string) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(domain.Event{
		Type:     event,
		Hash:     hash,
		Name:     name,
		Client:   client,
		Category: category,
	})
}

func truncateForLog(s string) string {
	if len(s) <= 96 {
		return s
	}
	return s[:96] + "..."
}
