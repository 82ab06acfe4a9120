// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/api/ctxkeys"
	"github.com/autobrr/mulearr/internal/auth"
	"github.com/autobrr/mulearr/internal/domain"
)

// IsAuthenticated accepts an API key header or an authenticated
// session. With auth disabled a synthetic user passes through.
func IsAuthenticated(authService *auth.Service, sessionManager *scs.SessionManager, cfg *domain.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg != nil && cfg.AuthDisabled {
				ctx := context.WithValue(r.Context(), ctxkeys.Username, "admin")
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				key, err := authService.ValidateAPIKey(r.Context(), apiKey)
				if err != nil {
					log.Warn().Err(err).Msg("invalid api key")
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				log.Debug().Int("apiKeyID", key.ID).Str("name", key.Name).Msg("api key authenticated")
				next.ServeHTTP(w, r)
				return
			}

			if !sessionManager.GetBool(r.Context(), "authenticated") {
				// 403 keeps Chromium from resetting upstream Basic Auth creds
				// behind reverse proxies
				http.Error(w, "Unauthorized", http.StatusForbidden)
				return
			}

			username := sessionManager.GetString(r.Context(), "username")
			ctx := context.WithValue(r.Context(), ctxkeys.Username, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSetup blocks the API until the initial account exists.
func RequireSetup(authService *auth.Service, cfg *domain.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg != nil && cfg.AuthDisabled {
				next.ServeHTTP(w, r)
				return
			}

			if strings.HasSuffix(r.URL.Path, "/auth/setup") || strings.HasSuffix(r.URL.Path, "/auth/check-setup") {
				next.ServeHTTP(w, r)
				return
			}

			complete, err := authService.IsSetupComplete(r.Context())
			if err != nil {
				log.Error().Err(err).Msg("check setup status")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if !complete {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusPreconditionRequired)
				w.Write([]byte(`{"error":"Initial setup required","setup_required":true}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
