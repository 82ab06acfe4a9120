// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// DefaultCategory always exists and cannot be renamed, repathed or
// removed. aMule's category 0 and the unlabeled rtorrent view map to it.
const DefaultCategory = "Default"

// CategoryPriority is the download priority applied to transfers
// assigned to a category.
type CategoryPriority string

const (
	PriorityNormal CategoryPriority = "normal"
	PriorityHigh   CategoryPriority = "high"
	PriorityLow    CategoryPriority = "low"
	PriorityAuto   CategoryPriority = "auto"
)

// PathMappings carries per-backend overrides for a category's save
// path, for setups where the engines see different mount points than
// the bridge.
type PathMappings struct {
	Amule    string `json:"amule,omitempty"`
	Rtorrent string `json:"rtorrent,omitempty"`
}

// Category is the bridge's source of truth for one category. Mirrors
// in each back-end (aMule numeric categories, rtorrent labels) are
// reconciled from this.
type Category struct {
	Name         string           `json:"name"`
	SavePath     string           `json:"savePath"`
	PathMappings PathMappings     `json:"pathMappings,omitzero"`
	Comment      string           `json:"comment,omitempty"`
	Color        string           `json:"color,omitempty"` // #rrggbb
	Priority     CategoryPriority `json:"priority,omitempty"`
}

// EffectivePath resolves the save path a given back-end should use.
func (c Category) EffectivePath(client ClientType) string {
	switch client {
	case ClientAmule:
		if c.PathMappings.Amule != "" {
			return c.PathMappings.Amule
		}
	case ClientRtorrent:
		if c.PathMappings.Rtorrent != "" {
			return c.PathMappings.Rtorrent
		}
	}
	return c.SavePath
}

// PathWarning flags a category save path the bridge cannot use for a
// connected back-end.
type PathWarning struct {
	Category   string     `json:"category"`
	Client     ClientType `json:"client"`
	Path       string     `json:"path"`
	Problem    string     `json:"problem"`
	DockerHint bool       `json:"dockerHint"`
}
