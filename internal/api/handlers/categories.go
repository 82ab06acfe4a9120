// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/qbit"
	"github.com/autobrr/mulearr/internal/services/categories"
)

type CategoriesHandler struct {
	categoryService *categories.Service
	qbitService     *qbit.Service
}

func NewCategoriesHandler(categoryService *categories.Service, qbitService *qbit.Service) *CategoriesHandler {
	return &CategoriesHandler{
		categoryService: categoryService,
		qbitService:     qbitService,
	}
}

func (h *CategoriesHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Patch("/{name}", h.Update)
	r.Delete("/{name}", h.Delete)
	r.Post("/{name}/check-path", h.CheckPath)
}

// List returns all categories plus the current path warnings.
func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]any{
		"categories": h.categoryService.List(),
		"warnings":   h.categoryService.Warnings(),
	})
}

// CategoryRequest carries category fields for create and update.
type CategoryRequest struct {
	Name         string              `json:"name"`
	SavePath     string              `json:"savePath"`
	PathMappings domain.PathMappings `json:"pathMappings"`
	Comment      string              `json:"comment"`
	Color        string              `json:"color"`
	Priority     string              `json:"priority"`
}

func (h *CategoriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	cat := domain.Category{
		Name:         req.Name,
		SavePath:     req.SavePath,
		PathMappings: req.PathMappings,
		Comment:      req.Comment,
		Color:        req.Color,
		Priority:     domain.CategoryPriority(req.Priority),
	}
	if err := h.categoryService.Create(r.Context(), cat); err != nil {
		RespondDomainError(w, err, "Failed to create category")
		return
	}

	h.syncFacade(r)
	RespondJSON(w, http.StatusCreated, cat)
}

func (h *CategoriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	name, ok := ParseStringParam(w, r, "name", "Category name")
	if !ok {
		return
	}

	var req struct {
		SavePath     *string              `json:"savePath"`
		PathMappings *domain.PathMappings `json:"pathMappings"`
		Comment      *string              `json:"comment"`
		Color        *string              `json:"color"`
		Priority     *string              `json:"priority"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	patch := categories.Patch{
		SavePath:     req.SavePath,
		PathMappings: req.PathMappings,
		Comment:      req.Comment,
		Color:        req.Color,
	}
	if req.Priority != nil {
		prio := domain.CategoryPriority(*req.Priority)
		patch.Priority = &prio
	}
	if err := h.categoryService.Update(r.Context(), name, patch); err != nil {
		RespondDomainError(w, err, "Failed to update category")
		return
	}

	h.syncFacade(r)
	cat, _ := h.categoryService.Get(name)
	RespondJSON(w, http.StatusOK, cat)
}

func (h *CategoriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name, ok := ParseStringParam(w, r, "name", "Category name")
	if !ok {
		return
	}

	if err := h.categoryService.Delete(r.Context(), name); err != nil {
		RespondDomainError(w, err, "Failed to delete category")
		return
	}

	h.syncFacade(r)
	RespondJSON(w, http.StatusOK, map[string]string{
		"message": "Category deleted successfully",
	})
}

// CheckPath revalidates save paths on demand and answers with the
// warnings touching the named category.
func (h *CategoriesHandler) CheckPath(w http.ResponseWriter, r *http.Request) {
	name, ok := ParseStringParam(w, r, "name", "Category name")
	if !ok {
		return
	}
	if _, exists := h.categoryService.Get(name); !exists {
		RespondError(w, http.StatusNotFound, "Category not found")
		return
	}

	warnings := h.categoryService.CheckPaths()
	matched := make([]domain.PathWarning, 0, len(warnings))
	for _, warning := range warnings {
		if warning.Category == name {
			matched = append(matched, warning)
		}
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"ok":       len(matched) == 0,
		"warnings": matched,
	})
}

// syncFacade refreshes the qBittorrent-compatible category snapshot so
// *arr clients see mutations immediately instead of on the next poll.
func (h *CategoriesHandler) syncFacade(r *http.Request) {
	if h.qbitService == nil {
		return
	}
	h.qbitService.SyncCategories(r.Context())
}
