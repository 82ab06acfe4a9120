// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/domain"
)

type ClientsHandler struct {
	clientManager *clients.Manager
	config        *domain.Config
}

func NewClientsHandler(clientManager *clients.Manager, config *domain.Config) *ClientsHandler {
	return &ClientsHandler{
		clientManager: clientManager,
		config:        config,
	}
}

// ClientStatus is the per-backend row in the clients listing.
type ClientStatus struct {
	Enabled        bool          `json:"enabled"`
	State          clients.State `json:"state"`
	DownloadFolder string        `json:"downloadFolder,omitempty"`
}

// List reports the supervisor state of every configured back-end.
func (h *ClientsHandler) List(w http.ResponseWriter, r *http.Request) {
	states := h.clientManager.States()

	out := map[domain.ClientType]ClientStatus{
		domain.ClientAmule: {
			Enabled:        h.config.Amule.Enabled,
			State:          states[domain.ClientAmule],
			DownloadFolder: h.config.Amule.DownloadFolder,
		},
		domain.ClientRtorrent: {
			Enabled:        h.config.Rtorrent.Enabled,
			State:          states[domain.ClientRtorrent],
			DownloadFolder: h.config.Rtorrent.DownloadFolder,
		},
	}

	RespondJSON(w, http.StatusOK, out)
}
