// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbit

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/pkg/magnet"
)

type actionFunc func(ctx context.Context, hash string) error

// resolveHash routes a unified 40-hex hash to its engine: the hash
// store decides for mapped hashes, the zero-pad marker for unmapped
// amule items, everything else is BitTorrent.
func (s *Service) resolveHash(hash string) (client domain.ClientType, ed2k string) {
	hash = strings.ToLower(hash)

	if mapped, ok := s.hashes.Ed2kHash(hash); ok {
		return domain.ClientAmule, mapped
	}
	if recovered, err := magnet.Ed2kFromInfoHash(hash); err == nil && strings.HasPrefix(hash, "00000000") {
		return domain.ClientAmule, recovered
	}
	return domain.ClientRtorrent, ""
}

func (s *Service) Delete(ctx context.Context, hash string, deleteFiles bool) error {
	item, known := s.plane.Item(hash)

	client, ed2k := s.resolveHash(hash)
	if client == domain.ClientAmule {
		amuleClient, err := s.mgr.Amule()
		if err != nil {
			return err
		}

		// live partfiles are cancelled daemon-side; finished files need
		// the filesystem delete below
		if err := amuleClient.DeleteFile(ctx, ed2k); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if deleteFiles && known && item.State.Terminal() {
			if err := s.removeFromDisk(item); err != nil {
				return err
			}
		}

		s.hashes.RemoveMapping(ed2k)
	} else {
		rtClient, err := s.mgr.Rtorrent()
		if err != nil {
			return err
		}
		if err := rtClient.Remove(ctx, hash); err != nil {
			return err
		}
		if deleteFiles && known {
			if err := s.removeFromDisk(item); err != nil {
				return err
			}
		}
	}

	// a deleted live item takes its recorder entry with it; items that
	// were never observed have no entry
	if s.history != nil {
		if err := s.history.Delete(hash); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Error().Err(err).Str("hash", hash).Msg("drop history record")
		}
	}

	name := hash
	if known {
		name = item.Name
	}
	s.emit(domain.EventFileDeleted, hash, name, client, item.Category)
	return nil
}

// removeFromDisk deletes the payload through the category's effective
// path, i.e. the path as the bridge container sees it.
func (s *Service) removeFromDisk(item domain.Item) error {
	if item.SavePath == "" || item.Name == "" {
		return nil
	}

	// RemoveAll handles multi-file payloads stored as a directory and
	// is a no-op for paths already gone.
	path := filepath.Join(item.SavePath, item.Name)
	if err := os.RemoveAll(path); err != nil {
		return errors.Wrapf(err, "delete %s", path)
	}
	return nil
}

func (s *Service) Pause(ctx context.Context, hash string) error {
	client, ed2k := s.resolveHash(hash)
	if client == domain.ClientAmule {
		amuleClient, err := s.mgr.Amule()
		if err != nil {
			return err
		}
		return amuleClient.PauseFile(ctx, ed2k)
	}

	rtClient, err := s.mgr.Rtorrent()
	if err != nil {
		return err
	}
	return rtClient.Pause(ctx, hash)
}

func (s *Service) Resume(ctx context.Context, hash string) error {
	client, ed2k := s.resolveHash(hash)
	if client == domain.ClientAmule {
		amuleClient, err := s.mgr.Amule()
		if err != nil {
			return err
		}
		return amuleClient.ResumeFile(ctx, ed2k)
	}

	rtClient, err := s.mgr.Rtorrent()
	if err != nil {
		return err
	}
	return rtClient.Resume(ctx, hash)
}

func (s *Service) SetCategory(ctx context.Context, hash, category string) error {
	if category == "" {
		category = domain.DefaultCategory
	}
	if _, ok := s.cats.Get(category); !ok {
		return errors.Wrapf(domain.ErrNotFound, "unknown category %q", category)
	}

	item, known := s.plane.Item(hash)
	previous := ""
	if known {
		previous = item.Category
	}

	client, ed2k := s.resolveHash(hash)
	if client == domain.ClientAmule {
		amuleClient, err := s.mgr.Amule()
		if err != nil {
			return err
		}
		if err := amuleClient.SetFileCategory(ctx, ed2k, s.cats.AmuleID(category)); err != nil {
			return err
		}
		// unmapped zero-padded items have no sidecar entry to update
		if err := s.hashes.UpdateCategory(ed2k, category); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Error().Err(err).Str("hash", hash).Msg("persist category in hash store")
		}
	} else {
		rtClient, err := s.mgr.Rtorrent()
		if err != nil {
			return err
		}
		if err := rtClient.SetLabel(ctx, hash, s.cats.LabelFor(category)); err != nil {
			return err
		}
	}

	name := hash
	if known {
		name = item.Name
	}
	if s.emitter != nil {
		s.emitter.Emit(domain.Event{
			Type:     domain.EventCategoryChanged,
			Hash:     hash,
			Name:     name,
			Client:   client,
			Category: category,
			Previous: previous,
		})
	}
	return nil
}

// statusFor maps domain sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotConnected), errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
