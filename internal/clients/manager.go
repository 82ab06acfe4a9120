// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package clients

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/autobrr/mulearr/internal/amule"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/rtorrent"
)

// Manager owns both back-end clients and their supervisors. Accessors
// hand out the typed client only while its session is up; everything
// else gets ErrNotConnected immediately, never a block on reconnect.
type Manager struct {
	cfg *domain.Config

	amule    *amule.Client
	rtorrent *rtorrent.Client

	supervisors map[domain.ClientType]*Supervisor

	wg sync.WaitGroup
}

// NewManager builds clients and supervisors from config. Nothing is
// dialed until Start.
func NewManager(cfg *domain.Config) *Manager {
	m := &Manager{
		cfg:         cfg,
		amule:       amule.NewClient(cfg.Amule),
		rtorrent:    rtorrent.NewClient(cfg.Rtorrent),
		supervisors: make(map[domain.ClientType]*Supervisor, 2),
	}

	m.supervisors[domain.ClientAmule] = NewSupervisor(m.amule, cfg.Amule.Enabled)
	m.supervisors[domain.ClientRtorrent] = NewSupervisor(m.rtorrent, cfg.Rtorrent.Enabled)
	return m
}

// Start launches one supervisor goroutine per enabled backend.
func (m *Manager) Start(ctx context.Context) {
	for _, sup := range m.supervisors {
		sup := sup
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			sup.Run(ctx)
		}()
	}
}

// Wait blocks until every supervisor has shut down.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Amule returns the ED2K client while its session is up.
func (m *Manager) Amule() (*amule.Client, error) {
	if !m.supervisors[domain.ClientAmule].Connected() {
		return nil, errors.Wrap(domain.ErrNotConnected, "amule")
	}
	return m.amule, nil
}

// Rtorrent returns the BitTorrent client while its session is up.
func (m *Manager) Rtorrent() (*rtorrent.Client, error) {
	if !m.supervisors[domain.ClientRtorrent].Connected() {
		return nil, errors.Wrap(domain.ErrNotConnected, "rtorrent")
	}
	return m.rtorrent, nil
}

// Supervisor exposes one backend's supervisor for state reads and
// onConnect registration.
func (m *Manager) Supervisor(client domain.ClientType) *Supervisor {
	return m.supervisors[client]
}

// OnConnect registers a connect listener for one backend.
func (m *Manager) OnConnect(client domain.ClientType, fn func(ctx context.Context)) {
	if sup, ok := m.supervisors[client]; ok {
		sup.OnConnect(fn)
	}
}

// Enabled reports whether a backend is configured at all.
func (m *Manager) Enabled(client domain.ClientType) bool {
	sup, ok := m.supervisors[client]
	return ok && sup.State() != StateDisabled
}

// Connected reports whether a backend session is currently usable.
func (m *Manager) Connected(client domain.ClientType) bool {
	sup, ok := m.supervisors[client]
	return ok && sup.Connected()
}

// ReportFailure marks a backend degraded after a caller observed a
// transport failure. Only transport-class errors count: a BadRequest
// says nothing about session health.
func (m *Manager) ReportFailure(client domain.ClientType, err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, domain.ErrTransport) && !errors.Is(err, domain.ErrTimeout) {
		return
	}
	if sup, ok := m.supervisors[client]; ok {
		sup.ReportFailure()
	}
}

// States snapshots every backend's lifecycle state.
func (m *Manager) States() map[domain.ClientType]State {
	states := make(map[domain.ClientType]State, len(m.supervisors))
	for client, sup := range m.supervisors {
		states[client] = sup.State()
	}
	return states
}
