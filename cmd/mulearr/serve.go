// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/mulearr/internal/api"
	"github.com/autobrr/mulearr/internal/auth"
	"github.com/autobrr/mulearr/internal/buildinfo"
	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/config"
	"github.com/autobrr/mulearr/internal/hashstore"
	"github.com/autobrr/mulearr/internal/metrics"
	"github.com/autobrr/mulearr/internal/qbit"
	"github.com/autobrr/mulearr/internal/resolver"
	"github.com/autobrr/mulearr/internal/services/categories"
	"github.com/autobrr/mulearr/internal/services/dataplane"
	"github.com/autobrr/mulearr/internal/services/events"
	"github.com/autobrr/mulearr/internal/services/history"
	"github.com/autobrr/mulearr/internal/services/search"
	"github.com/autobrr/mulearr/internal/torznab"
	"github.com/autobrr/mulearr/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func RunServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configDir)
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory or file for config.toml (default: XDG config dir)")
	return cmd
}

func serve(ctx context.Context, configDir string) error {
	cfg, err := config.New(configDir)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	cfg.Config.Version = buildinfo.Version

	// the ring buffer feeds recent log lines to WebSocket subscribers
	logRing := ws.NewLogRing()
	cfg.SetupLogger(logRing)

	log.Info().
		Str("version", buildinfo.Version).
		Str("commit", buildinfo.Commit).
		Msg("starting mulearr")

	if err := cfg.Watch(ctx); err != nil {
		log.Warn().Err(err).Msg("config watch unavailable, dynamic reload disabled")
	}

	dataDir := cfg.GetDataDir()

	authSvc, err := auth.NewService(dataDir)
	if err != nil {
		return errors.Wrap(err, "init auth")
	}

	hashes, err := hashstore.Open(dataDir)
	if err != nil {
		return errors.Wrap(err, "open hash store")
	}

	peers, err := resolver.New(cfg.Config.Resolver)
	if err != nil {
		return errors.Wrap(err, "init hostname resolver")
	}

	eventsConfig, err := events.OpenConfig(dataDir)
	if err != nil {
		return errors.Wrap(err, "open notifications config")
	}
	eventsSvc := events.NewService(eventsConfig)

	mgr := clients.NewManager(cfg.Config)

	cats, err := categories.NewService(dataDir, mgr)
	if err != nil {
		return errors.Wrap(err, "init categories")
	}

	plane := dataplane.NewService(cfg.Config, mgr, cats, hashes, peers, eventsSvc)

	historySvc, err := history.NewService(dataDir)
	if err != nil {
		return errors.Wrap(err, "init history")
	}
	plane.Subscribe(func(snap dataplane.Snapshot) {
		historySvc.Observe(snap.Items)
	})

	searchSvc := search.NewService(mgr, cats)

	sessions := newSessionManager(cfg.Config.BaseURL)
	qbitSessions := newQbitSessionManager()

	qbitSvc := qbit.NewService(cfg.Config, mgr, plane, cats, hashes, eventsSvc, historySvc, authSvc, qbitSessions)
	torznabSvc := torznab.NewService(cfg.Config, searchSvc, authSvc)
	hub := ws.NewHub(cfg.Config, mgr, plane, cats, searchSvc, qbitSvc, logRing)

	server := api.NewServer(&api.Dependencies{
		Config:         cfg.Config,
		AuthService:    authSvc,
		SessionManager: sessions,
		ClientManager:  mgr,
		Plane:          plane,
		Categories:     cats,
		History:        historySvc,
		EventsConfig:   eventsConfig,
		Events:         eventsSvc,
		Qbit:           qbitSvc,
		Torznab:        torznabSvc,
		Hub:            hub,
	})
	handler, err := server.Handler()
	if err != nil {
		return errors.Wrap(err, "build router")
	}

	g, gctx := errgroup.WithContext(ctx)

	mgr.Start(gctx)
	g.Go(func() error {
		cats.Run(gctx, cfg.Config.CategoryRefreshInterval())
		return nil
	})
	g.Go(func() error {
		plane.Run(gctx)
		return nil
	})
	g.Go(func() error {
		historySvc.Run(gctx)
		return nil
	})
	g.Go(func() error {
		eventsSvc.Run(gctx)
		return nil
	})
	g.Go(func() error {
		qbitSvc.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Config.Host, cfg.Config.Port),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Str("baseUrl", cfg.Config.BaseURL).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.Config.MetricsEnabled {
		metricsManager := metrics.NewManager(plane, mgr)
		metricsManager.SetSubscriberCount(hub.Subscribers)
		metricsServer := metrics.NewMetricsServer(metricsManager, cfg.Config.MetricsHost, cfg.Config.MetricsPort, cfg.Config.MetricsBasicAuthUsers)

		g.Go(func() error {
			log.Info().Str("host", cfg.Config.MetricsHost).Int("port", cfg.Config.MetricsPort).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	mgr.Wait()
	log.Info().Msg("shutdown complete")
	return err
}

// newSessionManager builds the in-memory session store for the web UI.
// qBittorrent SID cookies are issued by the facade itself; this only
// covers /api and /ws.
func newSessionManager(baseURL string) *scs.SessionManager {
	sm := scs.New()
	sm.Lifetime = 31 * 24 * time.Hour
	sm.Cookie.Name = "mulearr_session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = normalizeCookiePath(baseURL)
	return sm
}

// newQbitSessionManager issues the facade's SID cookie. qBittorrent
// names its session cookie SID and some consumers match on the name.
func newQbitSessionManager() *scs.SessionManager {
	sm := scs.New()
	sm.Lifetime = time.Hour
	sm.Cookie.Name = "SID"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	return sm
}

func normalizeCookiePath(baseURL string) string {
	if baseURL == "" || baseURL == "/" {
		return "/"
	}
	return baseURL
}
