// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dataplane

import (
	"github.com/autobrr/mulearr/internal/amule"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/ec"
	"github.com/autobrr/mulearr/internal/rtorrent"
	"github.com/autobrr/mulearr/pkg/magnet"
)

// progressOf computes the whole-percent progress, clamping downloaded
// to size so a daemon rounding glitch can never report 101%.
func progressOf(downloaded, size int64) (int64, int) {
	if size <= 0 {
		return 0, 0
	}
	if downloaded > size {
		downloaded = size
	}
	return downloaded, int(downloaded * 100 / size)
}

// etaOf derives the remaining seconds from speed, -1 when stalled.
func etaOf(downloaded, size, speed int64) int64 {
	if speed <= 0 || size <= downloaded {
		return -1
	}
	return (size - downloaded) / speed
}

// amuleState translates the partfile status byte plus the stopped flag.
func amuleState(d amule.Download) domain.ItemState {
	if d.Stopped {
		return domain.StatePaused
	}

	switch d.Status {
	case ec.StatusPaused:
		return domain.StatePaused
	case ec.StatusHashing, ec.StatusWaitingForHash, ec.StatusCompleting, ec.StatusAllocating:
		return domain.StateChecking
	case ec.StatusError, ec.StatusInsufficient:
		return domain.StateError
	case ec.StatusComplete:
		return domain.StateCompleted
	}

	if d.SizeDone >= d.Size && d.Size > 0 {
		return domain.StateCompleted
	}
	if d.Speed > 0 || d.SourcesXfer > 0 {
		return domain.StateDownloading
	}
	return domain.StateQueued
}

// byteRangesOf lifts wire ranges into the unified item shape.
func byteRangesOf(ranges []ec.Range) []domain.ByteRange {
	if len(ranges) == 0 {
		return nil
	}
	out := make([]domain.ByteRange, len(ranges))
	for i, r := range ranges {
		out[i] = domain.ByteRange{Start: r.Start, End: r.End}
	}
	return out
}

// availabilityOf is the share of parts with at least one source.
func availabilityOf(partStatus []uint8) float64 {
	if len(partStatus) == 0 {
		return 0
	}
	covered := 0
	for _, sources := range partStatus {
		if sources > 0 {
			covered++
		}
	}
	return float64(covered) / float64(len(partStatus))
}

// magnetHashFor resolves the unified 40-hex identity of an ed2k hash:
// the persisted mapping when one exists, the zero-padded form
// otherwise.
func (s *Service) magnetHashFor(ed2k string) string {
	if mapped, ok := s.hashes.MagnetHash(ed2k); ok {
		return mapped
	}
	return magnet.PadEd2kHash(ed2k)
}

func (s *Service) projectAmuleDownload(d amule.Download) domain.Item {
	downloaded, progress := progressOf(d.SizeDone, d.Size)

	item := domain.Item{
		Hash:          s.magnetHashFor(d.Hash),
		Name:          d.Name,
		Size:          d.Size,
		Downloaded:    downloaded,
		DownloadSpeed: d.Speed,
		Progress:      progress,
		ETASeconds:    etaOf(downloaded, d.Size, d.Speed),
		State:         amuleState(d),
		Category:      s.cats.NameForAmuleID(d.CategoryID),
		Client:        domain.ClientAmule,
		Sources:       d.SourceCount,
		Availability:  availabilityOf(d.PartStatus),
		Link:          d.Ed2kLink,
		PartStatus:    d.PartStatus,
		GapStatus:     byteRangesOf(d.Gaps),
		ReqStatus:     byteRangesOf(d.Requested),
	}

	if cat, ok := s.cats.Get(item.Category); ok {
		item.SavePath = cat.EffectivePath(domain.ClientAmule)
	}
	if item.State == domain.StateCompleted {
		item.Downloaded = item.Size
		item.Progress = 100
		item.ETASeconds = -1
	}
	return item
}

func (s *Service) projectAmuleShared(f amule.SharedFile) domain.Item {
	item := domain.Item{
		Hash:          s.magnetHashFor(f.Hash),
		Name:          f.Name,
		Size:          f.Size,
		Downloaded:    f.Size,
		Uploaded:      f.UploadedTotal,
		Progress:      100,
		ETASeconds:    -1,
		State:         domain.StateSeeding,
		Category:      domain.DefaultCategory,
		Client:        domain.ClientAmule,
		SeedsComplete: f.CompleteSources,
		Availability:  1,
	}

	// shared files carry no category on the wire; the hash store
	// sidecar remembers the category chosen at add time
	if entry, ok := s.hashes.Get(f.Hash); ok && entry.Meta.Category != "" {
		if _, known := s.cats.Get(entry.Meta.Category); known {
			item.Category = entry.Meta.Category
		}
	}
	if cat, ok := s.cats.Get(item.Category); ok {
		item.SavePath = cat.EffectivePath(domain.ClientAmule)
	}
	return item
}

func (s *Service) projectRtorrent(d rtorrent.Download) domain.Item {
	downloaded, progress := progressOf(d.Completed, d.Size)

	item := domain.Item{
		Hash:          d.Hash,
		Name:          d.Name,
		Size:          d.Size,
		Downloaded:    downloaded,
		Uploaded:      d.Uploaded,
		DownloadSpeed: d.DownRate,
		UploadSpeed:   d.UpRate,
		Progress:      progress,
		ETASeconds:    etaOf(downloaded, d.Size, d.DownRate),
		State:         d.State(),
		Category:      s.cats.NameForLabel(d.Label),
		SavePath:      d.Directory,
		Client:        domain.ClientRtorrent,
		Sources:       d.Peers + d.Seeds,
		SeedsComplete: d.Seeds,
		Ratio:         float64(d.Ratio) / 1000,
		AddedOn:       d.AddedAt,
		CompletedOn:   d.FinishedAt,
		Tracker:       trackerDomain(d.TrackerURL),
		Message:       d.Message,
	}

	if item.State == domain.StateSeeding || item.State == domain.StateCompleted {
		item.Downloaded = item.Size
		item.Progress = 100
		item.ETASeconds = -1
	}
	return item
}
