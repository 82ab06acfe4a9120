// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/services/dataplane"
)

// BridgeCollector surfaces the unified data plane snapshot: per-backend
// connection state, item counts by state, transfer speeds and the live
// WebSocket subscriber count.
type BridgeCollector struct {
	plane         *dataplane.Service
	clientManager *clients.Manager
	subscribers   func() int

	itemsDesc         *prometheus.Desc
	downloadSpeedDesc *prometheus.Desc
	uploadSpeedDesc   *prometheus.Desc
	connectionDesc    *prometheus.Desc
	subscribersDesc   *prometheus.Desc
	ed2kHighIDDesc    *prometheus.Desc
}

func NewBridgeCollector(plane *dataplane.Service, clientManager *clients.Manager) *BridgeCollector {
	return &BridgeCollector{
		plane:         plane,
		clientManager: clientManager,

		itemsDesc: prometheus.NewDesc(
			"mulearr_items",
			"Number of transfer items by back-end and state",
			[]string{"client", "state"},
			nil,
		),
		downloadSpeedDesc: prometheus.NewDesc(
			"mulearr_download_speed_bytes_per_second",
			"Aggregate download speed across back-ends",
			nil,
			nil,
		),
		uploadSpeedDesc: prometheus.NewDesc(
			"mulearr_upload_speed_bytes_per_second",
			"Aggregate upload speed across back-ends",
			nil,
			nil,
		),
		connectionDesc: prometheus.NewDesc(
			"mulearr_client_connection_status",
			"Back-end supervisor state (1=connected, 0=anything else)",
			[]string{"client", "state"},
			nil,
		),
		subscribersDesc: prometheus.NewDesc(
			"mulearr_websocket_subscribers",
			"Connected WebSocket subscribers",
			nil,
			nil,
		),
		ed2kHighIDDesc: prometheus.NewDesc(
			"mulearr_ed2k_high_id",
			"Whether the ED2K connection holds a high ID (1) or is firewalled (0)",
			nil,
			nil,
		),
	}
}

func (c *BridgeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.itemsDesc
	ch <- c.downloadSpeedDesc
	ch <- c.uploadSpeedDesc
	ch <- c.connectionDesc
	ch <- c.subscribersDesc
	ch <- c.ed2kHighIDDesc
}

func (c *BridgeCollector) Collect(ch chan<- prometheus.Metric) {
	if c.clientManager != nil {
		for client, state := range c.clientManager.States() {
			connected := 0.0
			if state == clients.StateConnected {
				connected = 1.0
			}
			ch <- prometheus.MustNewConstMetric(
				c.connectionDesc,
				prometheus.GaugeValue,
				connected,
				string(client),
				string(state),
			)
		}
	}

	if c.subscribers != nil {
		ch <- prometheus.MustNewConstMetric(
			c.subscribersDesc,
			prometheus.GaugeValue,
			float64(c.subscribers()),
		)
	}

	if c.plane == nil {
		return
	}

	counts := make(map[domain.ClientType]map[domain.ItemState]int)
	for _, item := range c.plane.Items() {
		if counts[item.Client] == nil {
			counts[item.Client] = make(map[domain.ItemState]int)
		}
		counts[item.Client][item.State]++
	}
	for client, states := range counts {
		for state, count := range states {
			ch <- prometheus.MustNewConstMetric(
				c.itemsDesc,
				prometheus.GaugeValue,
				float64(count),
				string(client),
				string(state),
			)
		}
	}

	stats := c.plane.Stats()
	ch <- prometheus.MustNewConstMetric(c.downloadSpeedDesc, prometheus.GaugeValue, float64(stats.DownloadSpeed))
	ch <- prometheus.MustNewConstMetric(c.uploadSpeedDesc, prometheus.GaugeValue, float64(stats.UploadSpeed))

	if stats.Ed2k != nil {
		highID := 0.0
		if stats.Ed2k.HighID {
			highID = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.ed2kHighIDDesc, prometheus.GaugeValue, highID)
	}
}
