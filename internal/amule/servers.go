// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package amule

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/ec"
)

// Server is one ED2K server list entry.
type Server struct {
	Name        string
	Description string
	Host        string
	Port        int
	Ping        int
	Users       int64
	MaxUsers    int64
	Files       int64
	Static      bool
	Failed      int
	Version     string
}

// Addr returns host:port.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ConnState is the daemon's network connection state.
type ConnState struct {
	ConnectedEd2k  bool
	ConnectingEd2k bool
	ConnectedKad   bool
	KadFirewalled  bool
	KadRunning     bool
	ClientID       uint32
	Server         *Server
}

// HighID reports whether the ed2k connection has a routable ID.
func (s *ConnState) HighID() bool {
	return s.ConnectedEd2k && s.ClientID >= ec.LowIDThreshold
}

// ListServers fetches the server list.
func (c *Client) ListServers(ctx context.Context) ([]Server, error) {
	resp, err := c.request(ctx, ec.NewPacket(ec.OpGetServerList, ec.U8Tag(ec.TagDetailLevel, ec.DetailWeb)))
	if err != nil {
		return nil, err
	}
	if resp.Op != ec.OpServerList {
		return nil, errors.Wrapf(domain.ErrProtocol, "unexpected response %s to server list request", ec.OpName(resp.Op))
	}

	servers := make([]Server, 0, len(resp.Tags))
	for i := range resp.Tags {
		tag := &resp.Tags[i]
		if tag.Name != ec.TagServer {
			continue
		}
		servers = append(servers, parseServer(tag))
	}
	return servers, nil
}

func parseServer(tag *ec.Tag) Server {
	s := Server{
		Name:        tag.ChildString(ec.TagServerName),
		Description: tag.ChildString(ec.TagServerDesc),
		Version:     tag.ChildString(ec.TagServerVersion),
	}

	if addr, ok := tag.IPv4Value(); ok {
		s.Host = addr.Addr().String()
		s.Port = int(addr.Port())
	}
	// the address child wins over the packed value: it survives
	// unresolved hostnames
	if addr := tag.ChildString(ec.TagServerAddress); addr != "" {
		if host, port, err := net.SplitHostPort(addr); err == nil {
			s.Host = host
			if p, err := strconv.Atoi(port); err == nil {
				s.Port = p
			}
		}
	}

	if v, ok := tag.ChildUInt(ec.TagServerPing); ok {
		s.Ping = int(v)
	}
	if v, ok := tag.ChildUInt(ec.TagServerUsers); ok {
		s.Users = int64(v)
	}
	if v, ok := tag.ChildUInt(ec.TagServerUsersMax); ok {
		s.MaxUsers = int64(v)
	}
	if v, ok := tag.ChildUInt(ec.TagServerFiles); ok {
		s.Files = int64(v)
	}
	if v, ok := tag.ChildUInt(ec.TagServerFailed); ok {
		s.Failed = int(v)
	}
	s.Static = tag.ChildBool(ec.TagServerStatic)
	return s
}

// GetConnState fetches the network state, including the connected
// server when there is one.
func (c *Client) GetConnState(ctx context.Context) (*ConnState, error) {
	resp, err := c.request(ctx, ec.NewPacket(ec.OpGetConnState, ec.U8Tag(ec.TagDetailLevel, ec.DetailWeb)))
	if err != nil {
		return nil, err
	}

	tag := resp.Tag(ec.TagConnState)
	if tag == nil {
		return nil, errors.Wrap(domain.ErrProtocol, "connection state response carries no state tag")
	}

	bits := uint8(tag.UIntValue())
	state := &ConnState{
		ConnectedEd2k:  bits&ec.ConnStateConnectedEd2k != 0,
		ConnectingEd2k: bits&ec.ConnStateConnectingEd2k != 0,
		ConnectedKad:   bits&ec.ConnStateConnectedKad != 0,
		KadFirewalled:  bits&ec.ConnStateKadFirewalled != 0,
		KadRunning:     bits&ec.ConnStateKadRunning != 0,
	}

	if v, ok := tag.ChildUInt(ec.TagEd2kID); ok {
		state.ClientID = uint32(v)
	} else if v, ok := tag.ChildUInt(ec.TagClientID); ok {
		state.ClientID = uint32(v)
	}

	if srv := tag.Child(ec.TagServer); srv != nil {
		server := parseServer(srv)
		state.Server = &server
	}
	return state, nil
}

// ConnectServer connects the daemon to a specific server, or to any
// when addr is empty.
func (c *Client) ConnectServer(ctx context.Context, addr string) error {
	req := ec.NewPacket(ec.OpServerConnect)
	if addr != "" {
		req.AddTag(ec.StringTag(ec.TagServerAddress, addr))
	}
	_, err := c.request(ctx, req)
	return err
}

// DisconnectServer drops the current server connection.
func (c *Client) DisconnectServer(ctx context.Context) error {
	_, err := c.request(ctx, ec.NewPacket(ec.OpServerDisconnect))
	return err
}

// AddServer adds a server list entry.
func (c *Client) AddServer(ctx context.Context, host string, port int, name string) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	req := ec.NewPacket(ec.OpServerAdd,
		ec.StringTag(ec.TagServerAddress, addr),
		ec.StringTag(ec.TagServerName, name),
	)
	_, err := c.request(ctx, req)
	return err
}

// RemoveServer drops a server list entry.
func (c *Client) RemoveServer(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	_, err := c.request(ctx, ec.NewPacket(ec.OpServerRemove, ec.StringTag(ec.TagServerAddress, addr)))
	return err
}

// UpdateServersFromURL refreshes the server list from a server.met URL.
func (c *Client) UpdateServersFromURL(ctx context.Context, url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return errors.Wrapf(domain.ErrBadRequest, "server.met url must be http(s): %q", url)
	}
	_, err := c.request(ctx, ec.NewPacket(ec.OpServerUpdateFromURL, ec.StringTag(ec.TagString, url)))
	return err
}

// ConnectNetworks brings the ed2k and kad networks up.
func (c *Client) ConnectNetworks(ctx context.Context) error {
	_, err := c.request(ctx, ec.NewPacket(ec.OpConnect))
	return err
}

// DisconnectNetworks takes both networks down.
func (c *Client) DisconnectNetworks(ctx context.Context) error {
	_, err := c.request(ctx, ec.NewPacket(ec.OpDisconnect))
	return err
}

// KadStart boots the kad network, optionally with a known peer.
func (c *Client) KadStart(ctx context.Context) error {
	_, err := c.request(ctx, ec.NewPacket(ec.OpKadStart))
	return err
}

// KadStop stops the kad network.
func (c *Client) KadStop(ctx context.Context) error {
	_, err := c.request(ctx, ec.NewPacket(ec.OpKadStop))
	return err
}

// GetLog fetches the daemon log as lines.
func (c *Client) GetLog(ctx context.Context) ([]string, error) {
	resp, err := c.request(ctx, ec.NewPacket(ec.OpGetLog))
	if err != nil {
		return nil, err
	}

	var lines []string
	for i := range resp.Tags {
		if resp.Tags[i].Name != ec.TagString {
			continue
		}
		text := resp.Tags[i].StringValue()
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimRight(line, "\r"); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}
