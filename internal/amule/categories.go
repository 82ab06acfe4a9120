// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package amule

import (
	"context"

	"github.com/pkg/errors"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/ec"
)

// Category is one daemon-side download category. ID is the category
// index; index 0 is the daemon's built-in catch-all.
type Category struct {
	ID       uint32
	Title    string
	Path     string
	Comment  string
	Color    uint32
	Prio     uint8
	PrioAuto bool
}

// GetCategories reads the daemon's category table from preferences.
func (c *Client) GetCategories(ctx context.Context) ([]Category, error) {
	req := ec.NewPacket(ec.OpGetPreferences, ec.U32Tag(ec.TagSelectPrefs, ec.PrefsCategories))
	resp, err := c.request(ctx, req)
	if err != nil {
		return nil, err
	}

	prefs := resp.Tag(ec.TagPrefsCategories)
	if prefs == nil {
		// daemon with no user categories sends an empty preference set
		return nil, nil
	}

	categories := make([]Category, 0, len(prefs.Children))
	for i := range prefs.Children {
		tag := &prefs.Children[i]
		if tag.Name != ec.TagCategory {
			continue
		}

		cat := Category{
			ID:      uint32(tag.UIntValue()),
			Title:   tag.ChildString(ec.TagCategoryTitle),
			Path:    tag.ChildString(ec.TagCategoryPath),
			Comment: tag.ChildString(ec.TagCategoryComment),
		}
		if v, ok := tag.ChildUInt(ec.TagCategoryColor); ok {
			cat.Color = uint32(v)
		}
		if v, ok := tag.ChildUInt(ec.TagCategoryPrio); ok {
			cat.Prio, cat.PrioAuto = ec.DecodePriority(uint8(v))
		}
		categories = append(categories, cat)
	}
	return categories, nil
}

func categoryTag(cat Category) ec.Tag {
	return ec.U32Tag(ec.TagCategory, cat.ID).WithChildren(
		ec.StringTag(ec.TagCategoryTitle, cat.Title),
		ec.StringTag(ec.TagCategoryPath, cat.Path),
		ec.StringTag(ec.TagCategoryComment, cat.Comment),
		ec.U32Tag(ec.TagCategoryColor, cat.Color),
		ec.U8Tag(ec.TagCategoryPrio, ec.EncodePriority(cat.Prio, cat.PrioAuto)),
	)
}

// CreateCategory appends a category. The daemon assigns the next free
// index; pass the intended table position as ID.
func (c *Client) CreateCategory(ctx context.Context, cat Category) error {
	_, err := c.request(ctx, ec.NewPacket(ec.OpCreateCategory, categoryTag(cat)))
	return err
}

// UpdateCategory rewrites the category at cat.ID.
func (c *Client) UpdateCategory(ctx context.Context, cat Category) error {
	_, err := c.request(ctx, ec.NewPacket(ec.OpUpdateCategory, categoryTag(cat)))
	return err
}

// DeleteCategory removes the category at the given index. Files keep
// running and fall back to the catch-all category.
func (c *Client) DeleteCategory(ctx context.Context, id uint32) error {
	if id == 0 {
		return errors.Wrap(domain.ErrConflict, "category 0 is the daemon's catch-all")
	}
	_, err := c.request(ctx, ec.NewPacket(ec.OpDeleteCategory, ec.U32Tag(ec.TagCategory, id)))
	return err
}

// Directories reads the daemon's incoming and temp directories.
func (c *Client) Directories(ctx context.Context) (incoming, temp string, err error) {
	req := ec.NewPacket(ec.OpGetPreferences, ec.U32Tag(ec.TagSelectPrefs, ec.PrefsDirectories))
	resp, err := c.request(ctx, req)
	if err != nil {
		return "", "", err
	}

	dirs := resp.Tag(ec.TagPrefsDirectories)
	if dirs == nil {
		return "", "", errors.Wrap(domain.ErrProtocol, "preferences response carries no directories")
	}
	return dirs.ChildString(ec.TagDirectoriesIncoming), dirs.ChildString(ec.TagDirectoriesTemp), nil
}
