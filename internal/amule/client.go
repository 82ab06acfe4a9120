// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package amule speaks the External Connections protocol to an amuled
// instance. One client holds one authenticated TCP session; requests
// are strict request/response pairs serialized on the connection.
package amule

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/buildinfo"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/ec"
)

// Client is an authenticated EC session.
type Client struct {
	cfg domain.AmuleConfig

	mu            sync.Mutex
	conn          net.Conn
	daemonVersion string
}

// NewClient builds a client; no connection is made until Dial.
func NewClient(cfg domain.AmuleConfig) *Client {
	return &Client{cfg: cfg}
}

// Name implements the backend identity used by the client manager.
func (c *Client) Name() string { return string(domain.ClientAmule) }

// DaemonVersion returns the daemon version reported during the
// handshake, or "" before the first successful Dial.
func (c *Client) DaemonVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.daemonVersion
}

// Dial connects and runs the salted two-step login.
func (c *Client) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(domain.ErrTransport, "dial %s: %v", addr, err)
	}

	if err := c.authenticate(ctx, conn); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	log.Debug().
		Str("client", c.Name()).
		Str("addr", addr).
		Str("daemonVersion", c.daemonVersion).
		Msg("ec session established")
	return nil
}

func (c *Client) authenticate(ctx context.Context, conn net.Conn) error {
	req := ec.NewPacket(ec.OpAuthReq,
		ec.StringTag(ec.TagClientName, "mulearr"),
		ec.StringTag(ec.TagClientVersion, buildinfo.Version),
		ec.U16Tag(ec.TagProtocolVersion, ec.ProtocolVersion),
	)

	resp, err := roundTrip(ctx, conn, req)
	if err != nil {
		return err
	}

	switch resp.Op {
	case ec.OpAuthOK:
		// daemon with empty password skips the salt step
	case ec.OpAuthSalt:
		salt, ok := resp.TagUInt(ec.TagPasswdSalt)
		if !ok {
			return errors.Wrap(domain.ErrProtocol, "auth salt response carries no salt")
		}

		digest := ec.SaltedPasswordHash(c.cfg.Password, salt)
		passwd := ec.NewPacket(ec.OpAuthPasswd, ec.Tag{
			Name:  ec.TagPasswdHash,
			Type:  ec.TagTypeHash16,
			Value: digest,
		})

		resp, err = roundTrip(ctx, conn, passwd)
		if err != nil {
			return err
		}
		if resp.Op == ec.OpAuthFail {
			return errors.Wrapf(domain.ErrBadRequest, "authentication rejected: %s", resp.TagString(ec.TagString))
		}
		if resp.Op != ec.OpAuthOK {
			return errors.Wrapf(domain.ErrProtocol, "unexpected auth response %s", ec.OpName(resp.Op))
		}
	case ec.OpAuthFail:
		return errors.Wrapf(domain.ErrBadRequest, "authentication rejected: %s", resp.TagString(ec.TagString))
	default:
		return errors.Wrapf(domain.ErrProtocol, "unexpected auth response %s", ec.OpName(resp.Op))
	}

	c.daemonVersion = resp.TagString(ec.TagServerVersion)
	return nil
}

// Close tears the session down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Ping verifies the session with a noop round trip.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, ec.NewPacket(ec.OpNoop))
	return err
}

// request performs one request/response exchange. Transport failures
// poison the connection so the supervisor redials.
func (c *Client) request(ctx context.Context, p *ec.Packet) (*ec.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, errors.Wrap(domain.ErrNotConnected, "no ec session")
	}

	resp, err := roundTrip(ctx, c.conn, p)
	if err != nil {
		if errors.Is(err, domain.ErrTransport) || errors.Is(err, domain.ErrTimeout) {
			c.conn.Close()
			c.conn = nil
		}
		return nil, err
	}

	if resp.Op == ec.OpFailed {
		return nil, failure(p.Op, resp.TagString(ec.TagString))
	}
	return resp, nil
}

// failure classifies an OpFailed reply by its message. The daemon
// reports unknown hashes textually ("File not found"), and callers
// need to tell that apart from a genuinely malformed request.
func failure(op uint8, msg string) error {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "not found") || strings.Contains(lower, "no such") {
		return errors.Wrapf(domain.ErrNotFound, "%s failed: %s", ec.OpName(op), msg)
	}
	return errors.Wrapf(domain.ErrBadRequest, "%s failed: %s", ec.OpName(op), msg)
}

func roundTrip(ctx context.Context, conn net.Conn, p *ec.Packet) (*ec.Packet, error) {
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, errors.Wrap(domain.ErrTransport, err.Error())
		}
		defer conn.SetDeadline(time.Time{})
	}

	log.Trace().Str("op", ec.OpName(p.Op)).Msg("ec request")

	if err := ec.WritePacket(conn, p); err != nil {
		return nil, err
	}

	resp, err := ec.ReadPacket(conn)
	if err != nil {
		return nil, err
	}

	log.Trace().Str("op", ec.OpName(resp.Op)).Msg("ec response")
	return resp, nil
}
