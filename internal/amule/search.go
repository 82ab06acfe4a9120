// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package amule

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/ec"
)

// SearchParams configures a daemon-side search.
type SearchParams struct {
	Query     string
	Type      uint32 // ec.SearchLocal, SearchGlobal or SearchKad
	MinSize   uint64
	MaxSize   uint64
	FileType  string
	Extension string
}

// SearchHit is one result of a running or finished search.
type SearchHit struct {
	Hash            string
	Name            string
	Size            int64
	Sources         int
	CompleteSources int
	Downloading     bool
}

// SearchStart begins a new search. The daemon runs one search at a
// time; starting a new one discards the previous result set.
func (c *Client) SearchStart(ctx context.Context, params SearchParams) error {
	search := ec.U32Tag(ec.TagSearchType, params.Type).WithChildren(
		ec.StringTag(ec.TagSearchName, params.Query),
	)
	if params.MinSize > 0 {
		search = search.WithChildren(ec.U64Tag(ec.TagSearchMinSize, params.MinSize))
	}
	if params.MaxSize > 0 {
		search = search.WithChildren(ec.U64Tag(ec.TagSearchMaxSize, params.MaxSize))
	}
	if params.FileType != "" {
		search = search.WithChildren(ec.StringTag(ec.TagSearchFileType, params.FileType))
	}
	if params.Extension != "" {
		search = search.WithChildren(ec.StringTag(ec.TagSearchExtension, params.Extension))
	}

	_, err := c.request(ctx, ec.NewPacket(ec.OpSearchStart, search))
	return err
}

// SearchStop cancels the running search.
func (c *Client) SearchStop(ctx context.Context) error {
	_, err := c.request(ctx, ec.NewPacket(ec.OpSearchStop))
	return err
}

// SearchProgress reports completion in percent. Kad searches report
// 0xffff while running; that is clamped to 100.
func (c *Client) SearchProgress(ctx context.Context) (int, error) {
	resp, err := c.request(ctx, ec.NewPacket(ec.OpSearchProgress))
	if err != nil {
		return 0, err
	}

	progress, ok := resp.TagUInt(ec.TagSearchStatus)
	if !ok {
		return 0, errors.Wrap(domain.ErrProtocol, "search progress response carries no status")
	}
	if progress > 100 {
		progress = 100
	}
	return int(progress), nil
}

// SearchResults fetches the current result set. File names arrive in
// whatever normalization the remote peers used; they are folded to NFC
// so equal names compare equal.
func (c *Client) SearchResults(ctx context.Context) ([]SearchHit, error) {
	req := ec.NewPacket(ec.OpSearchResults, ec.U8Tag(ec.TagDetailLevel, ec.DetailWeb))
	resp, err := c.request(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Op != ec.OpSearchResults {
		return nil, errors.Wrapf(domain.ErrProtocol, "unexpected response %s to search results request", ec.OpName(resp.Op))
	}

	hits := make([]SearchHit, 0, len(resp.Tags))
	for i := range resp.Tags {
		tag := &resp.Tags[i]
		if tag.Name != ec.TagSearchFile {
			continue
		}

		hit := SearchHit{
			Hash: tag.HashValue(),
			Name: norm.NFC.String(tag.ChildString(ec.TagPartfileName)),
		}
		if hit.Hash == "" {
			hit.Hash = tag.ChildHash(ec.TagPartfileHash)
		}
		if v, ok := tag.ChildUInt(ec.TagPartfileSizeFull); ok {
			hit.Size = int64(v)
		}
		if v, ok := tag.ChildUInt(ec.TagPartfileSourceCount); ok {
			hit.Sources = int(v)
		}
		if v, ok := tag.ChildUInt(ec.TagPartfileSourceCountXfer); ok {
			hit.CompleteSources = int(v)
		}
		hit.Downloading = tag.ChildBool(ec.TagPartfileStatus)
		hits = append(hits, hit)
	}
	return hits, nil
}

// DownloadSearchResult asks the daemon to start downloading one hit.
func (c *Client) DownloadSearchResult(ctx context.Context, hash string, categoryID uint32) error {
	hashTag, err := ec.HashTag(ec.TagSearchFile, hash)
	if err != nil {
		return err
	}

	req := ec.NewPacket(ec.OpDownloadSearchResult, hashTag)
	if categoryID != 0 {
		req.AddTag(ec.U32Tag(ec.TagPartfileCat, categoryID))
	}
	_, err = c.request(ctx, req)
	return err
}
