// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package events

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"

	shellquote "github.com/Hellseher/go-shellquote"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/domain"
)

const appriseTimeout = 30 * time.Second

// appriseNotifier shells out to the Apprise CLI, one invocation per
// event carrying every enabled service URL.
type appriseNotifier struct {
	binary string // resolved path, "" when apprise is not installed

	warnedMissing bool
}

func newAppriseNotifier() *appriseNotifier {
	n := &appriseNotifier{}
	if path, err := exec.LookPath("apprise"); err == nil {
		n.binary = path
	}
	return n
}

// serviceURL maps one service config to its Apprise URL. The second
// return is false when the config is incomplete for its type.
func serviceURL(svc ServiceConfig) (string, bool) {
	opt := func(key string) string { return strings.TrimSpace(svc.Options[key]) }

	switch svc.Type {
	case "discord":
		id, token := opt("webhookId"), opt("webhookToken")
		if id == "" || token == "" {
			return "", false
		}
		return fmt.Sprintf("discord://%s/%s", id, token), true

	case "telegram":
		token, chat := opt("botToken"), opt("chatId")
		if token == "" || chat == "" {
			return "", false
		}
		return fmt.Sprintf("tgram://%s/%s", token, chat), true

	case "slack":
		a, b, c := opt("tokenA"), opt("tokenB"), opt("tokenC")
		if a == "" || b == "" || c == "" {
			return "", false
		}
		return fmt.Sprintf("slack://%s/%s/%s", a, b, c), true

	case "pushover":
		user, token := opt("userKey"), opt("appToken")
		if user == "" || token == "" {
			return "", false
		}
		return fmt.Sprintf("pover://%s@%s", user, token), true

	case "ntfy":
		host, topic := opt("host"), opt("topic")
		if host == "" || topic == "" {
			return "", false
		}
		scheme := "ntfys"
		if opt("insecure") == "true" {
			scheme = "ntfy"
		}
		return fmt.Sprintf("%s://%s/%s", scheme, host, topic), true

	case "gotify":
		host, token := opt("host"), opt("token")
		if host == "" || token == "" {
			return "", false
		}
		scheme := "gotifys"
		if opt("insecure") == "true" {
			scheme = "gotify"
		}
		return fmt.Sprintf("%s://%s/%s", scheme, host, token), true

	case "email":
		user, pass, to := opt("username"), opt("password"), opt("to")
		if user == "" || pass == "" || to == "" {
			return "", false
		}
		host := opt("host")
		if host == "" {
			if _, domainPart, ok := strings.Cut(user, "@"); ok {
				host = domainPart
			} else {
				return "", false
			}
		}
		return fmt.Sprintf("mailto://%s:%s@%s?to=%s",
			url.QueryEscape(user), url.QueryEscape(pass), host, url.QueryEscape(to)), true

	case "webhook":
		raw := opt("url")
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return "", false
		}
		switch u.Scheme {
		case "https":
			u.Scheme = "jsons"
		case "http":
			u.Scheme = "json"
		default:
			return "", false
		}
		return u.String(), true

	default:
		// custom: a raw Apprise URL passed straight through
		if raw := opt("url"); raw != "" {
			return raw, true
		}
		return "", false
	}
}

// urls collects the Apprise URLs of every enabled, complete service.
func urls(services []ServiceConfig) []string {
	out := make([]string, 0, len(services))
	for _, svc := range services {
		if !svc.Enabled {
			continue
		}
		u, ok := serviceURL(svc)
		if !ok {
			log.Warn().Str("service", svc.Name).Str("type", svc.Type).Msg("notification service config incomplete, skipping")
			continue
		}
		out = append(out, u)
	}
	return out
}

// Send invokes apprise once with every target URL. Returns
// ErrUnavailable when the CLI is not installed.
func (n *appriseNotifier) Send(ctx context.Context, title, body string, services []ServiceConfig) error {
	if n.binary == "" {
		if !n.warnedMissing {
			n.warnedMissing = true
			log.Warn().Msg("apprise CLI not found in PATH, notifications disabled")
		}
		return errors.Wrap(domain.ErrUnavailable, "apprise CLI not installed")
	}

	targets := urls(services)
	if len(targets) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, appriseTimeout)
	defer cancel()

	args := append([]string{"-t", title, "-b", body}, targets...)
	cmd := exec.CommandContext(ctx, n.binary, args...)

	log.Debug().
		Int("targets", len(targets)).
		Str("command", shellquote.Join(append([]string{n.binary}, args...)...)).
		Msg("sending notification")

	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "apprise failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}
