// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbit

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/pkg/magnet"
)

// etaCap mirrors qBittorrent's "infinity" sentinel for unknown ETAs.
const etaCap = 8640000

// TorrentInfo is the torrents/info response shape. Field names follow
// the qBittorrent WebUI v2 JSON exactly so stock clients parse it.
type TorrentInfo struct {
	Hash         string  `json:"hash"`
	Name         string  `json:"name"`
	Size         int64   `json:"size"`
	TotalSize    int64   `json:"total_size"`
	Progress     float64 `json:"progress"` // 0..1
	DlSpeed      int64   `json:"dlspeed"`
	UpSpeed      int64   `json:"upspeed"`
	Downloaded   int64   `json:"downloaded"`
	Uploaded     int64   `json:"uploaded"`
	AmountLeft   int64   `json:"amount_left"`
	ETA          int64   `json:"eta"`
	State        string  `json:"state"`
	Category     string  `json:"category"`
	Tags         string  `json:"tags"`
	SavePath     string  `json:"save_path"`
	ContentPath  string  `json:"content_path"`
	AddedOn      int64   `json:"added_on"`
	CompletionOn int64   `json:"completion_on"`
	Ratio        float64 `json:"ratio"`
	NumSeeds     int     `json:"num_seeds"`
	NumComplete  int     `json:"num_complete"`
	NumLeechs    int     `json:"num_leechs"`
	NumIncomplet int     `json:"num_incomplete"`
	Availability float64 `json:"availability"`
	Tracker      string  `json:"tracker"`
	MagnetURI    string  `json:"magnet_uri"`
	InfohashV1   string  `json:"infohash_v1"`
}

// qbState translates the unified state into qBittorrent's vocabulary.
func qbState(item domain.Item) string {
	switch item.State {
	case domain.StateDownloading:
		if item.DownloadSpeed > 0 {
			return "downloading"
		}
		return "stalledDL"
	case domain.StateQueued:
		return "stalledDL"
	case domain.StatePaused:
		if item.Progress >= 100 {
			return "pausedUP"
		}
		return "pausedDL"
	case domain.StateSeeding:
		if item.UploadSpeed > 0 {
			return "uploading"
		}
		return "stalledUP"
	case domain.StateCompleted:
		return "pausedUP"
	case domain.StateChecking:
		if item.Progress >= 100 {
			return "checkingUP"
		}
		return "checkingDL"
	case domain.StateError:
		return "error"
	default:
		return "unknown"
	}
}

// projectTorrent renders one unified item in qBittorrent shape.
func projectTorrent(item domain.Item) TorrentInfo {
	eta := int64(etaCap)
	if item.ETASeconds >= 0 && item.ETASeconds < etaCap {
		eta = item.ETASeconds
	}

	info := TorrentInfo{
		Hash:         item.Hash,
		InfohashV1:   item.Hash,
		Name:         item.Name,
		Size:         item.Size,
		TotalSize:    item.Size,
		Progress:     float64(item.Progress) / 100,
		DlSpeed:      item.DownloadSpeed,
		UpSpeed:      item.UploadSpeed,
		Downloaded:   item.Downloaded,
		Uploaded:     item.Uploaded,
		AmountLeft:   item.Size - item.Downloaded,
		ETA:          eta,
		State:        qbState(item),
		Category:     item.Category,
		SavePath:     item.SavePath,
		AddedOn:      item.AddedOn,
		CompletionOn: item.CompletedOn,
		Ratio:        item.Ratio,
		NumSeeds:     item.Sources,
		NumComplete:  item.SeedsComplete,
		Availability: item.Availability,
		Tracker:      item.Tracker,
	}
	if item.SavePath != "" {
		info.ContentPath = strings.TrimRight(item.SavePath, "/") + "/" + item.Name
	}
	if item.Link != "" {
		info.MagnetURI = magnet.Magnet{InfoHash: item.Hash, Name: item.Name, Size: item.Size}.String()
	}
	return info
}

// ConvertMagnetToED2K recovers the ed2k link embedded in a synthetic
// magnet: a zero-padded btih carries the ed2k hash in its tail, any
// other btih in its head. Needs dn and xl to build a complete link.
func ConvertMagnetToED2K(m magnet.Magnet) (magnet.Ed2kLink, error) {
	if m.Name == "" {
		return magnet.Ed2kLink{}, errors.Wrap(domain.ErrBadRequest, "magnet carries no dn, cannot build ed2k link")
	}
	if m.Size <= 0 {
		return magnet.Ed2kLink{}, errors.Wrap(domain.ErrBadRequest, "magnet carries no xl, cannot build ed2k link")
	}

	ed2kHash, err := magnet.Ed2kFromInfoHash(m.InfoHash)
	if err != nil {
		return magnet.Ed2kLink{}, errors.Wrap(domain.ErrBadRequest, err.Error())
	}

	return magnet.Ed2kLink{
		Name: m.Name,
		Size: m.Size,
		Hash: ed2kHash,
	}, nil
}

// splitHashes parses qBittorrent's pipe-joined hashes parameter. The
// literal "all" returns nil with all=true.
func splitHashes(raw string) (hashes []string, all bool) {
	if raw == "all" {
		return nil, true
	}
	for _, h := range strings.Split(raw, "|") {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hashes = append(hashes, h)
		}
	}
	return hashes, false
}
