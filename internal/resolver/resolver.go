// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package resolver caches reverse-DNS lookups for the upload peers
// view. Lookups never block a caller: a miss returns immediately and a
// background goroutine fills the cache for the next read.
package resolver

import (
	"context"
	"net"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/mulearr/internal/domain"
)

const (
	defaultMaxCacheSize = 1024
	defaultTTL          = 60 * time.Minute
	defaultFailedTTL    = 10 * time.Minute
	lookupTimeout       = 3 * time.Second
)

type entry struct {
	hostname   string // "" for a negative entry
	resolvedAt time.Time
}

// Resolver is the bounded LRU hostname cache. The singleflight group
// guarantees at most one in-flight lookup per IP.
type Resolver struct {
	cfg       domain.ResolverConfig
	ttl       time.Duration
	failedTTL time.Duration

	cache *lru.Cache[string, entry]
	sf    singleflight.Group

	lookup func(ctx context.Context, ip string) ([]string, error)
	now    func() time.Time
}

// New builds a resolver from config, applying defaults for zero
// values.
func New(cfg domain.ResolverConfig) (*Resolver, error) {
	size := cfg.MaxCacheSize
	if size <= 0 {
		size = defaultMaxCacheSize
	}

	cache, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		cfg:       cfg,
		ttl:       defaultTTL,
		failedTTL: defaultFailedTTL,
		cache:     cache,
		now:       time.Now,
	}
	if cfg.TTLMinutes > 0 {
		r.ttl = time.Duration(cfg.TTLMinutes) * time.Minute
	}
	if cfg.FailedTTLMins > 0 {
		r.failedTTL = time.Duration(cfg.FailedTTLMins) * time.Minute
	}

	var res net.Resolver
	r.lookup = func(ctx context.Context, ip string) ([]string, error) {
		return res.LookupAddr(ctx, ip)
	}

	return r, nil
}

// Hostname returns the cached hostname for ip, or "" when unknown. A
// stale or missing entry schedules one background lookup; the caller
// is never blocked on DNS.
func (r *Resolver) Hostname(ip string) string {
	if net.ParseIP(ip) == nil {
		return ""
	}

	if e, ok := r.cache.Get(ip); ok {
		ttl := r.ttl
		if e.hostname == "" {
			ttl = r.failedTTL
		}
		if r.now().Sub(e.resolvedAt) < ttl {
			return e.hostname
		}
	}

	r.schedule(ip)
	return ""
}

// schedule starts a lookup for ip unless one is already in flight.
// DoChan runs the lookup on its own goroutine and coalesces concurrent
// misses onto it; the result lands in the cache, so the channel is
// deliberately dropped.
func (r *Resolver) schedule(ip string) {
	r.sf.DoChan(ip, func() (any, error) {
		r.resolve(ip)
		return nil, nil
	})
}

func (r *Resolver) resolve(ip string) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	names, err := r.lookup(ctx, ip)
	hostname := ""
	if err == nil && len(names) > 0 {
		hostname = strings.TrimSuffix(names[0], ".")
	} else if err != nil {
		log.Trace().Err(err).Str("ip", ip).Msg("reverse dns lookup failed")
	}

	r.cache.Add(ip, entry{hostname: hostname, resolvedAt: r.now()})
}

// EnrichPeers fills the Hostname field on each peer from cache,
// scheduling lookups for peers not yet resolved.
func (r *Resolver) EnrichPeers(peers []domain.UploadPeer) []domain.UploadPeer {
	if r == nil || !r.cfg.Enabled {
		return peers
	}
	for i := range peers {
		peers[i].Hostname = r.Hostname(peers[i].PeerIP)
	}
	return peers
}

// Len reports the cache population, at most maxCacheSize.
func (r *Resolver) Len() int {
	return r.cache.Len()
}
