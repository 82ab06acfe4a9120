// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package amule

import (
	"context"

	"github.com/pkg/errors"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/ec"
)

// Stats is the daemon's transfer and network statistics.
type Stats struct {
	UploadSpeed   int64
	DownloadSpeed int64
	UploadLimit   int64
	DownloadLimit int64
	TotalSent     int64
	TotalReceived int64
	TotalSources  int
	QueueLength   int
	Ed2kUsers     int64
	KadUsers      int64
	Ed2kFiles     int64
	KadFiles      int64
}

// UploadSlot is one active upload.
type UploadSlot struct {
	UserName        string
	Software        string
	FileName        string
	FileHash        string
	IP              string
	Port            uint16
	SpeedUp         int64
	UploadedSession int64
	UploadedTotal   int64
}

// StatsNode is one line of the daemon statistics tree.
type StatsNode struct {
	Label    string      `json:"label"`
	Children []StatsNode `json:"children,omitempty"`
}

// GetStats fetches transfer statistics.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	resp, err := c.request(ctx, ec.NewPacket(ec.OpStatReq, ec.U8Tag(ec.TagDetailLevel, ec.DetailWeb)))
	if err != nil {
		return nil, err
	}
	if resp.Op != ec.OpStats {
		return nil, errors.Wrapf(domain.ErrProtocol, "unexpected response %s to stats request", ec.OpName(resp.Op))
	}

	s := &Stats{}
	read := func(name uint16) int64 {
		v, _ := resp.TagUInt(name)
		return int64(v)
	}
	s.UploadSpeed = read(ec.TagStatsULSpeed)
	s.DownloadSpeed = read(ec.TagStatsDLSpeed)
	s.UploadLimit = read(ec.TagStatsULSpeedLimit)
	s.DownloadLimit = read(ec.TagStatsDLSpeedLimit)
	s.TotalSent = read(ec.TagStatsTotalSent)
	s.TotalReceived = read(ec.TagStatsTotalReceived)
	s.TotalSources = int(read(ec.TagStatsTotalSrcCount))
	s.QueueLength = int(read(ec.TagStatsULQueueLen))
	s.Ed2kUsers = read(ec.TagStatsEd2kUsers)
	s.KadUsers = read(ec.TagStatsKadUsers)
	s.Ed2kFiles = read(ec.TagStatsEd2kFiles)
	s.KadFiles = read(ec.TagStatsKadFiles)
	return s, nil
}

// UploadQueue fetches the active upload slots.
func (c *Client) UploadQueue(ctx context.Context) ([]UploadSlot, error) {
	resp, err := c.request(ctx, ec.NewPacket(ec.OpGetUploadQueue, ec.U8Tag(ec.TagDetailLevel, ec.DetailWeb)))
	if err != nil {
		return nil, err
	}
	if resp.Op != ec.OpUploadQueue {
		return nil, errors.Wrapf(domain.ErrProtocol, "unexpected response %s to upload queue request", ec.OpName(resp.Op))
	}

	slots := make([]UploadSlot, 0, len(resp.Tags))
	for i := range resp.Tags {
		tag := &resp.Tags[i]
		if tag.Name != ec.TagClient {
			continue
		}

		slot := UploadSlot{
			UserName: tag.ChildString(ec.TagClientUserName),
			Software: tag.ChildString(ec.TagClientSoftware),
			FileName: tag.ChildString(ec.TagClientUploadFile),
			FileHash: tag.ChildHash(ec.TagPartfileHash),
		}
		if addr := tag.Child(ec.TagClientUserIP); addr != nil {
			if ap, ok := addr.IPv4Value(); ok {
				slot.IP = ap.Addr().String()
				slot.Port = ap.Port()
			}
		}
		if v, ok := tag.ChildUInt(ec.TagClientUpSpeed); ok {
			slot.SpeedUp = int64(v)
		}
		if v, ok := tag.ChildUInt(ec.TagClientUploadSession); ok {
			slot.UploadedSession = int64(v)
		}
		if v, ok := tag.ChildUInt(ec.TagClientUploadTotal); ok {
			slot.UploadedTotal = int64(v)
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// GetStatsTree fetches the rendered statistics tree.
func (c *Client) GetStatsTree(ctx context.Context) ([]StatsNode, error) {
	resp, err := c.request(ctx, ec.NewPacket(ec.OpGetStatsTree))
	if err != nil {
		return nil, err
	}
	if resp.Op != ec.OpStatsTree {
		return nil, errors.Wrapf(domain.ErrProtocol, "unexpected response %s to stats tree request", ec.OpName(resp.Op))
	}

	nodes := make([]StatsNode, 0, len(resp.Tags))
	for i := range resp.Tags {
		if resp.Tags[i].Name != ec.TagStatTreeNode {
			continue
		}
		nodes = append(nodes, parseStatsNode(&resp.Tags[i]))
	}
	return nodes, nil
}

func parseStatsNode(tag *ec.Tag) StatsNode {
	node := StatsNode{Label: tag.StringValue()}
	for i := range tag.Children {
		child := &tag.Children[i]
		if child.Name != ec.TagStatTreeNode {
			continue
		}
		node.Children = append(node.Children, parseStatsNode(child))
	}
	return node
}
