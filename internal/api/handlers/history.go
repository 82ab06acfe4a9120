// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/services/history"
)

const (
	historyDefaultLimit = 100
	historyMaxLimit     = 1000
)

type HistoryHandler struct {
	historyService *history.Service
}

func NewHistoryHandler(historyService *history.Service) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

func (h *HistoryHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Delete("/{hash}", h.Delete)
}

// List returns records newest-first, narrowed by the optional status,
// client and search query parameters.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, historyDefaultLimit, historyMaxLimit)

	records, total := h.historyService.List(history.Query{
		Status: history.Status(r.URL.Query().Get("status")),
		Client: domain.ClientType(r.URL.Query().Get("client")),
		Search: r.URL.Query().Get("search"),
		Offset: p.Offset,
		Limit:  p.Limit,
	})

	RespondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
		"limit":   p.Limit,
		"offset":  p.Offset,
	})
}

func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hash, ok := ParseStringParam(w, r, "hash", "Hash")
	if !ok {
		return
	}

	if err := h.historyService.Delete(hash); err != nil {
		RespondDomainError(w, err, "Failed to delete history record")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"message": "History record deleted successfully",
	})
}
