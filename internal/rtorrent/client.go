// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package rtorrent drives an rtorrent daemon over its SCGI XML-RPC
// endpoint. SCGI carries one exchange per connection; the client keeps
// the endpoint address and bounds in-flight calls with a semaphore so
// a burst of bridge traffic cannot exhaust the daemon's socket backlog.
package rtorrent

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/autobrr/mulearr/internal/domain"
)

const defaultMaxConcurrentCalls = 16

// multicallBatchVersion is the first rtorrent release whose
// d.multicall2 reliably accepts the trailing custom getters the bridge
// issues. Older daemons get the narrower field list.
var multicallBatchVersion = semver.MustParse("0.9.7")

// Client talks to one rtorrent daemon.
type Client struct {
	cfg  domain.RtorrentConfig
	slot *semaphore.Weighted

	trackers trackerCache

	mu            sync.Mutex
	daemonVersion string
	legacyFields  bool
}

// NewClient builds a client; the endpoint is not contacted until the
// first call.
func NewClient(cfg domain.RtorrentConfig) *Client {
	cap := int64(cfg.MaxConcurrentCalls)
	if cap <= 0 {
		cap = defaultMaxConcurrentCalls
	}
	return &Client{
		cfg:  cfg,
		slot: semaphore.NewWeighted(cap),
	}
}

// Name implements the backend identity used by the client manager.
func (c *Client) Name() string { return string(domain.ClientRtorrent) }

// DaemonVersion returns the version reported by the last handshake, or
// "" before the first successful Dial.
func (c *Client) DaemonVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.daemonVersion
}

// Dial verifies the endpoint answers and records the daemon version.
// There is no persistent socket to establish: SCGI dials per exchange.
func (c *Client) Dial(ctx context.Context) error {
	v, err := c.call(ctx, "system.client_version")
	if err != nil {
		return err
	}

	version := v.String()
	legacy := false
	if parsed, perr := semver.NewVersion(version); perr == nil {
		legacy = parsed.LessThan(multicallBatchVersion)
	}

	c.mu.Lock()
	c.daemonVersion = version
	c.legacyFields = legacy
	c.mu.Unlock()

	log.Debug().
		Str("client", c.Name()).
		Str("addr", c.cfg.Addr).
		Str("daemonVersion", version).
		Msg("rtorrent endpoint reachable")
	return nil
}

// Close releases nothing: connections are per-call.
func (c *Client) Close() error { return nil }

// Ping verifies the endpoint with a cheap call.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "system.pid")
	return err
}

// call performs one XML-RPC exchange. The semaphore slot is released
// the moment the exchange finishes or the context is cancelled.
func (c *Client) call(ctx context.Context, method string, params ...any) (value, error) {
	if err := c.slot.Acquire(ctx, 1); err != nil {
		return value{}, errors.Wrapf(domain.ErrTimeout, "waiting for rpc slot: %v", err)
	}
	defer c.slot.Release(1)

	body, err := marshalCall(method, params...)
	if err != nil {
		return value{}, err
	}

	network := "tcp"
	if strings.HasPrefix(c.cfg.Addr, "/") {
		network = "unix"
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, c.cfg.Addr)
	if err != nil {
		return value{}, errors.Wrapf(domain.ErrTransport, "dial %s: %v", c.cfg.Addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return value{}, errors.Wrapf(domain.ErrTransport, "set deadline: %v", err)
		}
	}

	log.Trace().Str("method", method).Msg("rtorrent call")

	if err := writeSCGIRequest(conn, body); err != nil {
		return value{}, err
	}

	raw, err := readSCGIResponse(conn)
	if err != nil {
		if ctx.Err() != nil {
			return value{}, errors.Wrapf(domain.ErrTimeout, "%s: %v", method, ctx.Err())
		}
		return value{}, err
	}

	v, err := parseResponse(raw)
	if err != nil {
		return value{}, errors.Wrapf(err, "%s", method)
	}
	return v, nil
}

// withDefaultTimeout applies the standard RPC deadline when the caller
// did not set one.
func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 30*time.Second)
}
