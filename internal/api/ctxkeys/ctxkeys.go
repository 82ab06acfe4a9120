// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ctxkeys holds the typed request-context keys shared between
// the auth middleware and the handlers.
package ctxkeys

type Key int

const (
	// Username carries the authenticated account name.
	Username Key = iota
)
