// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes a Prometheus registry on its own listener,
// kept off the main router so scrapes never touch session auth.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/services/dataplane"
)

type Manager struct {
	registry        *prometheus.Registry
	bridgeCollector *BridgeCollector
}

func NewManager(plane *dataplane.Service, clientManager *clients.Manager) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bridgeCollector := NewBridgeCollector(plane, clientManager)
	registry.MustRegister(bridgeCollector)

	log.Debug().Msg("metrics registry initialized")

	return &Manager{
		registry:        registry,
		bridgeCollector: bridgeCollector,
	}
}

// SetSubscriberCount wires the WebSocket hub's live subscriber count
// into the collector.
func (m *Manager) SetSubscriberCount(fn func() int) {
	m.bridgeCollector.subscribers = fn
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}
