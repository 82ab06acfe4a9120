// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/services/events"
)

type NotificationsHandler struct {
	configStore  *events.ConfigStore
	eventService *events.Service
}

func NewNotificationsHandler(configStore *events.ConfigStore, eventService *events.Service) *NotificationsHandler {
	return &NotificationsHandler{
		configStore:  configStore,
		eventService: eventService,
	}
}

func (h *NotificationsHandler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/", h.Update)
	r.Post("/test", h.Test)
}

func (h *NotificationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.configStore.Get())
}

func (h *NotificationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var cfg events.Config
	if !DecodeJSON(w, r, &cfg) {
		return
	}

	if err := h.configStore.Update(cfg); err != nil {
		RespondDomainError(w, err, "Failed to update notification settings")
		return
	}

	RespondJSON(w, http.StatusOK, h.configStore.Get())
}

// Test pushes a synthetic event through every enabled service so the
// user can verify delivery end to end.
func (h *NotificationsHandler) Test(w http.ResponseWriter, r *http.Request) {
	if err := h.eventService.SendTest(r.Context()); err != nil {
		log.Warn().Err(err).Msg("notification test failed")
		RespondDomainError(w, err, "Failed to send test notification")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"message": "Test notification sent",
	})
}
