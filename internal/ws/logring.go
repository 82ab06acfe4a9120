// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ws

import (
	"strings"
	"sync"
)

const logRingSize = 200

// LogRing keeps the most recent application log lines and fans new
// ones out to a listener. It plugs into the zerolog writer chain, so
// Write must never block or log.
type LogRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool

	onLine func(line string)
}

func NewLogRing() *LogRing {
	return &LogRing{lines: make([]string, logRingSize)}
}

// SetOnLine registers the broadcast callback.
func (r *LogRing) SetOnLine(fn func(line string)) {
	r.mu.Lock()
	r.onLine = fn
	r.mu.Unlock()
}

// Write records one log event. zerolog hands each event as a single
// Write call, so splitting on newlines is enough.
func (r *LogRing) Write(p []byte) (int, error) {
	var fns []func(string)
	var added []string

	r.mu.Lock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		r.lines[r.next] = line
		r.next = (r.next + 1) % logRingSize
		if r.next == 0 {
			r.full = true
		}
		added = append(added, line)
	}
	if r.onLine != nil && len(added) > 0 {
		fn := r.onLine
		for range added {
			fns = append(fns, fn)
		}
	}
	r.mu.Unlock()

	for i, fn := range fns {
		fn(added[i])
	}
	return len(p), nil
}

// Lines returns the buffered lines, oldest first.
func (r *LogRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}

	out := make([]string, 0, logRingSize)
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}
