// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "errors"

// Error kinds shared across the bridge. Transport and protocol layers
// wrap these so callers can classify failures with errors.Is without
// depending on back-end specific error types.
var (
	// ErrNotConnected is returned for operations that need a back-end
	// the client manager does not currently hold in connected state.
	ErrNotConnected = errors.New("client not connected")

	// ErrTimeout is returned when an operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrBadRequest is returned for malformed or unsupported caller input.
	ErrBadRequest = errors.New("bad request")

	// ErrConflict is returned when an operation would violate an
	// invariant, such as mutating the Default category or inserting a
	// colliding hash mapping.
	ErrConflict = errors.New("conflict")

	// ErrTransport is returned for connection-level failures mid-operation.
	ErrTransport = errors.New("transport failure")

	// ErrProtocol is returned for malformed frames or responses from a
	// back-end.
	ErrProtocol = errors.New("protocol error")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned when an optional subsystem is not
	// present, such as a missing apprise binary.
	ErrUnavailable = errors.New("unavailable")
)
