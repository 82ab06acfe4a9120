// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package events

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/domain"
)

// killGrace is how long a timed-out script gets between SIGTERM and
// SIGKILL.
const killGrace = 2 * time.Second

// runScript spawns the user's event script: event type as the sole
// argument, EVENT_* variables in the environment, the full event JSON
// on stdin.
func runScript(ctx context.Context, cfg ScriptConfig, event domain.Event) error {
	if cfg.Path == "" {
		return errors.Wrap(domain.ErrBadRequest, "event script path not set")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(cfg.Path, string(event.Type))
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(),
		"EVENT_TYPE="+string(event.Type),
		"EVENT_HASH="+event.Hash,
		"EVENT_FILENAME="+event.Name,
		"EVENT_CLIENT_TYPE="+string(event.Client),
	)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start event script %s", cfg.Path)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrapf(err, "event script failed: %s", strings.TrimSpace(output.String()))
		}
		return nil

	case <-ctx.Done():
		// ask nicely first, then force
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			log.Debug().Err(err).Msg("signal event script")
		}
		select {
		case <-done:
		case <-time.After(killGrace):
			_ = cmd.Process.Kill()
			<-done
		}
		return errors.Wrapf(domain.ErrTimeout, "event script exceeded %s", timeout)
	}
}
