// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "time"

// EventType enumerates the bridge lifecycle events that can trigger
// notifications and event scripts.
type EventType string

const (
	EventDownloadAdded    EventType = "downloadAdded"
	EventDownloadFinished EventType = "downloadFinished"
	EventCategoryChanged  EventType = "categoryChanged"
	EventFileMoved        EventType = "fileMoved"
	EventFileDeleted      EventType = "fileDeleted"
)

// AllEventTypes lists every event in a stable order, used for config
// validation and defaults.
var AllEventTypes = []EventType{
	EventDownloadAdded,
	EventDownloadFinished,
	EventCategoryChanged,
	EventFileMoved,
	EventFileDeleted,
}

// Event is the payload handed to notifiers and event scripts. The JSON
// shape is part of the event script contract: the full event is written
// to the script's stdin.
type Event struct {
	Type      EventType  `json:"type"`
	Hash      string     `json:"hash,omitempty"`
	Name      string     `json:"name,omitempty"`
	Client    ClientType `json:"client,omitempty"`
	Category  string     `json:"category,omitempty"`
	Previous  string     `json:"previous,omitempty"` // previous category for categoryChanged
	Path      string     `json:"path,omitempty"`
	Size      int64      `json:"size,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
