// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package amule

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/ec"
)

// Download is one entry of the download queue.
type Download struct {
	Hash             string // 32-hex lowercase
	Name             string
	Size             int64
	SizeDone         int64
	SizeXfer         int64
	Speed            int64
	Status           uint8
	Stopped          bool
	Prio             uint8
	PrioAuto         bool
	SourceCount      int
	SourcesXfer      int
	SourcesA4AF      int
	SourcesNotCurr   int
	CategoryID       uint32
	Ed2kLink         string
	PartStatus       []uint8
	Gaps             []ec.Range
	Requested        []ec.Range
	LastSeenComplete int64
}

// SharedFile is one entry of the shared files list.
type SharedFile struct {
	Hash            string
	Name            string
	Size            int64
	UploadedSession int64
	UploadedTotal   int64
	Requests        int
	Prio            uint8
	PrioAuto        bool
	CompleteSources int
}

// ListDownloads fetches the download queue at web detail.
func (c *Client) ListDownloads(ctx context.Context) ([]Download, error) {
	req := ec.NewPacket(ec.OpGetDownloadQueue, ec.U8Tag(ec.TagDetailLevel, ec.DetailWeb))
	resp, err := c.request(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Op != ec.OpDownloadQueue {
		return nil, errors.Wrapf(domain.ErrProtocol, "unexpected response %s to download queue request", ec.OpName(resp.Op))
	}

	downloads := make([]Download, 0, len(resp.Tags))
	for i := range resp.Tags {
		tag := &resp.Tags[i]
		if tag.Name != ec.TagPartfile {
			continue
		}
		downloads = append(downloads, parseDownload(tag))
	}
	return downloads, nil
}

func parseDownload(tag *ec.Tag) Download {
	d := Download{
		Hash: tag.HashValue(),
		Name: tag.ChildString(ec.TagPartfileName),
	}
	if d.Hash == "" {
		d.Hash = tag.ChildHash(ec.TagPartfileHash)
	}

	if v, ok := tag.ChildUInt(ec.TagPartfileSizeFull); ok {
		d.Size = int64(v)
	}
	if v, ok := tag.ChildUInt(ec.TagPartfileSizeDone); ok {
		d.SizeDone = int64(v)
	}
	if v, ok := tag.ChildUInt(ec.TagPartfileSizeXfer); ok {
		d.SizeXfer = int64(v)
	}
	if v, ok := tag.ChildUInt(ec.TagPartfileSpeed); ok {
		d.Speed = int64(v)
	}
	if v, ok := tag.ChildUInt(ec.TagPartfileStatus); ok {
		d.Status = uint8(v)
	}
	d.Stopped = tag.ChildBool(ec.TagPartfileStopped)

	if v, ok := tag.ChildUInt(ec.TagPartfilePrio); ok {
		d.Prio, d.PrioAuto = ec.DecodePriority(uint8(v))
	}
	if v, ok := tag.ChildUInt(ec.TagPartfileSourceCount); ok {
		d.SourceCount = int(v)
	}
	if v, ok := tag.ChildUInt(ec.TagPartfileSourceCountXfer); ok {
		d.SourcesXfer = int(v)
	}
	if v, ok := tag.ChildUInt(ec.TagPartfileSourceCountA4AF); ok {
		d.SourcesA4AF = int(v)
	}
	if v, ok := tag.ChildUInt(ec.TagPartfileSourceCountNC); ok {
		d.SourcesNotCurr = int(v)
	}
	if v, ok := tag.ChildUInt(ec.TagPartfileCat); ok {
		d.CategoryID = uint32(v)
	}
	if v, ok := tag.ChildUInt(ec.TagPartfileLastSeenComp); ok {
		d.LastSeenComplete = int64(v)
	}
	d.Ed2kLink = tag.ChildString(ec.TagPartfileEd2kLink)

	if raw := tag.ChildBytes(ec.TagPartfilePartStatus); raw != nil {
		d.PartStatus = ec.DecodePartStatus(raw)
	}
	if raw := tag.ChildBytes(ec.TagPartfileGapStatus); raw != nil {
		gaps, err := ec.DecodeRanges(raw)
		if err != nil {
			log.Debug().Err(err).Str("hash", d.Hash).Msg("unreadable gap buffer")
		} else {
			d.Gaps = gaps
		}
	}
	if raw := tag.ChildBytes(ec.TagPartfileReqStatus); raw != nil {
		reqs, err := ec.DecodeRanges(raw)
		if err != nil {
			log.Debug().Err(err).Str("hash", d.Hash).Msg("unreadable request buffer")
		} else {
			d.Requested = reqs
		}
	}
	return d
}

// ListShared fetches the shared files list.
func (c *Client) ListShared(ctx context.Context) ([]SharedFile, error) {
	req := ec.NewPacket(ec.OpGetSharedFiles, ec.U8Tag(ec.TagDetailLevel, ec.DetailWeb))
	resp, err := c.request(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Op != ec.OpSharedFiles {
		return nil, errors.Wrapf(domain.ErrProtocol, "unexpected response %s to shared files request", ec.OpName(resp.Op))
	}

	files := make([]SharedFile, 0, len(resp.Tags))
	for i := range resp.Tags {
		tag := &resp.Tags[i]
		if tag.Name != ec.TagKnownfile {
			continue
		}

		f := SharedFile{
			Hash: tag.HashValue(),
			Name: tag.ChildString(ec.TagKnownfileFilename),
		}
		if f.Name == "" {
			f.Name = tag.ChildString(ec.TagPartfileName)
		}
		if v, ok := tag.ChildUInt(ec.TagPartfileSizeFull); ok {
			f.Size = int64(v)
		}
		if v, ok := tag.ChildUInt(ec.TagKnownfileXferred); ok {
			f.UploadedSession = int64(v)
		}
		if v, ok := tag.ChildUInt(ec.TagKnownfileXferredAll); ok {
			f.UploadedTotal = int64(v)
		}
		if v, ok := tag.ChildUInt(ec.TagKnownfileReqCountAll); ok {
			f.Requests = int(v)
		}
		if v, ok := tag.ChildUInt(ec.TagKnownfilePrio); ok {
			f.Prio, f.PrioAuto = ec.DecodePriority(uint8(v))
		}
		if v, ok := tag.ChildUInt(ec.TagKnownfileCompleteSources); ok {
			f.CompleteSources = int(v)
		}
		files = append(files, f)
	}
	return files, nil
}

// AddEd2kLink hands a link to the daemon, assigned to the given
// category index.
func (c *Client) AddEd2kLink(ctx context.Context, link string, categoryID uint32) error {
	req := ec.NewPacket(ec.OpAddLink, ec.StringTag(ec.TagString, link))
	if categoryID != 0 {
		req.AddTag(ec.U32Tag(ec.TagPartfileCat, categoryID))
	}

	_, err := c.request(ctx, req)
	return err
}

// PauseFile pauses one download.
func (c *Client) PauseFile(ctx context.Context, hash string) error {
	return c.partfileAction(ctx, ec.OpPartfilePause, hash)
}

// ResumeFile resumes one download.
func (c *Client) ResumeFile(ctx context.Context, hash string) error {
	return c.partfileAction(ctx, ec.OpPartfileResume, hash)
}

// StopFile stops one download, releasing its slots.
func (c *Client) StopFile(ctx context.Context, hash string) error {
	return c.partfileAction(ctx, ec.OpPartfileStop, hash)
}

// DeleteFile removes one download from the queue.
func (c *Client) DeleteFile(ctx context.Context, hash string) error {
	return c.partfileAction(ctx, ec.OpPartfileDelete, hash)
}

func (c *Client) partfileAction(ctx context.Context, op uint8, hash string) error {
	hashTag, err := ec.HashTag(ec.TagPartfile, hash)
	if err != nil {
		return err
	}

	_, err = c.request(ctx, ec.NewPacket(op, hashTag))
	return err
}

// SetFileCategory moves one download to another category index.
func (c *Client) SetFileCategory(ctx context.Context, hash string, categoryID uint32) error {
	hashTag, err := ec.HashTag(ec.TagPartfile, hash)
	if err != nil {
		return err
	}

	req := ec.NewPacket(ec.OpPartfileSetCat, hashTag, ec.U32Tag(ec.TagPartfileCat, categoryID))
	_, err = c.request(ctx, req)
	return err
}

// SetFilePriority sets one download's priority.
func (c *Client) SetFilePriority(ctx context.Context, hash string, prio uint8, auto bool) error {
	hashTag, err := ec.HashTag(ec.TagPartfile, hash)
	if err != nil {
		return err
	}

	req := ec.NewPacket(ec.OpPartfilePrioSet, hashTag,
		ec.U8Tag(ec.TagPartfilePrio, ec.EncodePriority(prio, auto)))
	_, err = c.request(ctx, req)
	return err
}
