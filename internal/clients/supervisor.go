// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package clients supervises the long-lived back-end sessions. Each
// configured engine gets one supervisor running a connect / health /
// reconnect loop; the rest of the bridge only ever sees the current
// state and a client handle that is valid while connected.
package clients

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
)

// State is the supervisor lifecycle state.
type State string

const (
	StateDisabled     State = "disabled"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StateDisconnected State = "disconnected"
)

// Backend is the session contract a supervisor drives.
type Backend interface {
	Name() string
	Dial(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

const (
	dialTimeout       = 30 * time.Second
	probeTimeout      = 10 * time.Second
	healthInterval    = 30 * time.Second
	degradedInterval  = 10 * time.Second
	maxDegradedProbes = 3
	backoffInitial    = 2 * time.Second
	backoffCap        = 30 * time.Second
)

// Supervisor runs one backend's session lifecycle. Transitions are
// serialized by the run loop; state reads are atomic under the mutex.
type Supervisor struct {
	backend Backend
	enabled bool

	mu        sync.Mutex
	state     State
	onConnect []func(ctx context.Context)

	// kick wakes the run loop out of a backoff wait, used by explicit
	// reconnect requests.
	kick chan struct{}
}

// NewSupervisor wraps a backend. A disabled supervisor never dials.
func NewSupervisor(backend Backend, enabled bool) *Supervisor {
	state := StateConnecting
	if !enabled {
		state = StateDisabled
	}
	return &Supervisor{
		backend: backend,
		enabled: enabled,
		state:   state,
		kick:    make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether calls may be issued right now.
func (s *Supervisor) Connected() bool {
	st := s.State()
	return st == StateConnected || st == StateDegraded
}

// OnConnect registers a listener fired exactly once per transition
// into connected. Listeners run sequentially on the supervisor
// goroutine so they observe a stable session.
func (s *Supervisor) OnConnect(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

// ReportFailure nudges the supervisor into degraded after a transport
// error observed by a caller. Probing takes over from there.
func (s *Supervisor) ReportFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnected {
		s.state = StateDegraded
		log.Warn().Str("client", s.backend.Name()).Msg("backend degraded after transport error")
	}
}

// Reconnect forces the loop out of any backoff wait.
func (s *Supervisor) Reconnect() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev != state {
		log.Info().
			Str("client", s.backend.Name()).
			Str("from", string(prev)).
			Str("to", string(state)).
			Msg("backend state change")
	}
}

// Run drives the lifecycle until ctx is cancelled. Not started for
// disabled supervisors.
func (s *Supervisor) Run(ctx context.Context) {
	if !s.enabled {
		return
	}

	retry := &backoff.Backoff{
		Min:    backoffInitial,
		Max:    backoffCap,
		Factor: 2,
		Jitter: true,
	}

	for {
		if ctx.Err() != nil {
			s.backend.Close()
			return
		}

		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		err := s.backend.Dial(dialCtx)
		cancel()

		if err != nil {
			wait := retry.Duration()
			log.Warn().Err(err).
				Str("client", s.backend.Name()).
				Dur("retryIn", wait).
				Msg("backend dial failed")

			select {
			case <-ctx.Done():
				return
			case <-s.kick:
			case <-time.After(wait):
			}
			continue
		}

		retry.Reset()
		s.setState(StateConnected)
		s.fireOnConnect(ctx)

		s.healthLoop(ctx)

		s.backend.Close()
		if ctx.Err() != nil {
			return
		}
		s.setState(StateDisconnected)
	}
}

// fireOnConnect runs the listener set once for this transition.
func (s *Supervisor) fireOnConnect(ctx context.Context) {
	s.mu.Lock()
	listeners := make([]func(ctx context.Context), len(s.onConnect))
	copy(listeners, s.onConnect)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx)
	}
}

// healthLoop probes the session until it is deemed dead. Returns when
// the session should be torn down and redialed.
func (s *Supervisor) healthLoop(ctx context.Context) {
	failures := 0

	for {
		interval := healthInterval
		if s.State() == StateDegraded {
			interval = degradedInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-s.kick:
			return
		case <-time.After(interval):
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := s.backend.Ping(probeCtx)
		cancel()

		if err == nil {
			if failures > 0 {
				log.Info().Str("client", s.backend.Name()).Msg("backend recovered")
			}
			failures = 0
			s.setState(StateConnected)
			continue
		}

		failures++
		log.Warn().Err(err).
			Str("client", s.backend.Name()).
			Int("failures", failures).
			Msg("backend health probe failed")

		if failures >= maxDegradedProbes {
			return
		}
		s.setState(StateDegraded)
	}
}
