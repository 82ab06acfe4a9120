// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api assembles the HTTP surface: the management API, the
// qBittorrent-compatible facade, the Torznab indexer endpoint and the
// live WebSocket feed.
package api

import (
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/cors"

	"github.com/autobrr/mulearr/internal/api/handlers"
	"github.com/autobrr/mulearr/internal/api/middleware"
	"github.com/autobrr/mulearr/internal/auth"
	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/qbit"
	"github.com/autobrr/mulearr/internal/services/categories"
	"github.com/autobrr/mulearr/internal/services/events"
	"github.com/autobrr/mulearr/internal/services/history"
	"github.com/autobrr/mulearr/internal/torznab"
	"github.com/autobrr/mulearr/internal/ws"
)

// compressMinSize keeps small JSON bodies uncompressed; below this the
// encoding overhead outweighs the wire savings.
const compressMinSize = 1024

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Config         *domain.Config
	AuthService    *auth.Service
	SessionManager *scs.SessionManager
	ClientManager  *clients.Manager
	Categories     *categories.Service
	Plane          handlers.ItemSource
	History        *history.Service
	EventsConfig   *events.ConfigStore
	Events         *events.Service
	Qbit           *qbit.Service
	Torznab        *torznab.Service
	Hub            *ws.Hub
}

type Server struct {
	deps *Dependencies
}

func NewServer(deps *Dependencies) *Server {
	return &Server{deps: deps}
}

// Handler builds the full router. The qBittorrent facade and the
// Torznab endpoint carry their own authentication; everything under
// /api goes through the session/API-key middleware.
func (s *Server) Handler() (http.Handler, error) {
	deps := s.deps
	if deps.Config == nil {
		return nil, errors.New("api: config is required")
	}
	if deps.SessionManager == nil {
		return nil, errors.New("api: session manager is required")
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Preflight requests are answered here and never reach auth.
	r.Use(cors.New(cors.Options{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.Use(middleware.SelectiveCompress(compressMinSize, 4, true, true))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.SessionManager, deps.Config)
	categoriesHandler := handlers.NewCategoriesHandler(deps.Categories, deps.Qbit)
	historyHandler := handlers.NewHistoryHandler(deps.History)
	itemsHandler := handlers.NewItemsHandler(deps.Plane)
	notificationsHandler := handlers.NewNotificationsHandler(deps.EventsConfig, deps.Events)
	clientsHandler := handlers.NewClientsHandler(deps.ClientManager, deps.Config)

	r.Route("/api", func(r chi.Router) {
		// the facade manages its own SID cookie; keep scs out of its way
		if deps.Qbit != nil {
			r.Route("/v2", deps.Qbit.Routes)
		}

		r.Group(func(r chi.Router) {
			r.Use(deps.SessionManager.LoadAndSave)
			r.Use(middleware.RequireSetup(deps.AuthService, deps.Config))

			r.Post("/auth/setup", authHandler.Setup)
			r.Get("/auth/check-setup", authHandler.CheckSetupRequired)
			r.Post("/auth/login", authHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(middleware.IsAuthenticated(deps.AuthService, deps.SessionManager, deps.Config))

				r.Post("/auth/logout", authHandler.Logout)
				r.Get("/auth/me", authHandler.GetCurrentUser)
				r.Post("/auth/change-password", authHandler.ChangePassword)
				r.Route("/auth/api-keys", func(r chi.Router) {
					r.Get("/", authHandler.ListAPIKeys)
					r.Post("/", authHandler.CreateAPIKey)
					r.Delete("/{id}", authHandler.DeleteAPIKey)
				})

				r.Get("/version", handlers.Version)
				r.Get("/clients", clientsHandler.List)
				if deps.Plane != nil {
					r.Route("/items", itemsHandler.Routes)
				}
				r.Route("/categories", categoriesHandler.Routes)
				r.Route("/history", historyHandler.Routes)
				r.Route("/notifications", notificationsHandler.Routes)
			})
		})
	})

	if deps.Torznab != nil {
		r.Route("/indexer", deps.Torznab.Routes)
	}

	if deps.Hub != nil {
		r.Group(func(r chi.Router) {
			r.Use(deps.SessionManager.LoadAndSave)
			r.Use(middleware.APIKeyFromQuery("apikey"))
			r.Use(middleware.IsAuthenticated(deps.AuthService, deps.SessionManager, deps.Config))
			r.Get("/ws", deps.Hub.ServeHTTP)
		})
	}

	if base := normalizeBaseURL(deps.Config.BaseURL); base != "/" {
		outer := chi.NewRouter()
		outer.Mount(base, r)
		return outer, nil
	}
	return r, nil
}

func normalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return "/"
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
