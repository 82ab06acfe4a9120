// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/services/dataplane"
)

// ItemSource hands out the latest merged item list.
type ItemSource interface {
	Items() []domain.Item
}

type ItemsHandler struct {
	plane ItemSource
}

func NewItemsHandler(plane ItemSource) *ItemsHandler {
	return &ItemsHandler{plane: plane}
}

func (h *ItemsHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
}

// List returns the unified item list, narrowed by the optional
// category, client, state, search and expr query parameters. expr takes
// an expression over the item fields, e.g. `progress < 100 && sources
// == 0`.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := dataplane.FilterOptions{
		Category: q.Get("category"),
		Client:   q.Get("client"),
		Search:   q.Get("search"),
		Expr:     q.Get("expr"),
	}
	if state := q.Get("state"); state != "" {
		opts.States = strings.Split(state, ",")
	}

	items, err := dataplane.Filter(h.plane.Items(), opts)
	if err != nil {
		RespondDomainError(w, err, "Failed to filter items")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}
