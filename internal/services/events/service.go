// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package events fans lifecycle events out to the Apprise notifier and
// the user's event script. The hand-off is fire-and-forget: emitters
// never wait on delivery and delivery failures never reach them.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/domain"
)

const (
	queueSize   = 256
	workerCount = 2
)

// Service is the event dispatcher.
type Service struct {
	config   *ConfigStore
	notifier *appriseNotifier

	queue chan domain.Event
	wg    sync.WaitGroup
}

// NewService builds the dispatcher over a loaded config store.
func NewService(config *ConfigStore) *Service {
	return &Service{
		config:   config,
		notifier: newAppriseNotifier(),
		queue:    make(chan domain.Event, queueSize),
	}
}

// Emit queues an event without blocking. A full queue drops the event
// with a warning; the caller is never held up.
func (s *Service) Emit(event domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case s.queue <- event:
	default:
		log.Warn().Str("event", string(event.Type)).Msg("event queue full, dropping event")
	}
}

// Run starts the delivery workers and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	for i := 0; i < workerCount; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.wg.Wait()
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.queue:
			s.deliver(ctx, event)
		}
	}
}

func (s *Service) deliver(ctx context.Context, event domain.Event) {
	cfg := s.config.Get()

	if cfg.Enabled && cfg.Events[event.Type] {
		title, body := formatEvent(event)
		if err := s.notifier.Send(ctx, title, body, cfg.Services); err != nil {
			log.Error().Err(err).Str("event", string(event.Type)).Msg("notification delivery failed")
		}
	}

	if cfg.Script.Enabled && cfg.Events[event.Type] {
		if err := runScript(ctx, cfg.Script, event); err != nil {
			log.Error().Err(err).Str("event", string(event.Type)).Str("script", cfg.Script.Path).Msg("event script failed")
		}
	}
}

// SendTest pushes a synthetic notification through the configured
// services, bypassing the enable flags so setups can be verified.
func (s *Service) SendTest(ctx context.Context) error {
	cfg := s.config.Get()
	return s.notifier.Send(ctx, "mulearr test", "If you can read this, notifications are working.", cfg.Services)
}

// formatEvent renders the human-readable notification per event type.
func formatEvent(event domain.Event) (title, body string) {
	name := event.Name
	if name == "" {
		name = event.Hash
	}

	switch event.Type {
	case domain.EventDownloadAdded:
		return "Download added", fmt.Sprintf("%s queued on %s (category %s)", name, event.Client, event.Category)
	case domain.EventDownloadFinished:
		title = "Download finished"
		body = fmt.Sprintf("%s finished on %s", name, event.Client)
		if event.Size > 0 {
			body += fmt.Sprintf(" (%s)", humanSize(event.Size))
		}
		return title, body
	case domain.EventCategoryChanged:
		return "Category changed", fmt.Sprintf("%s moved from %s to %s", name, event.Previous, event.Category)
	case domain.EventFileMoved:
		return "File moved", fmt.Sprintf("%s moved to %s", name, event.Path)
	case domain.EventFileDeleted:
		return "File deleted", fmt.Sprintf("%s deleted from %s", name, event.Client)
	default:
		return string(event.Type), name
	}
}

func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
