// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package events

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/mulearr/internal/domain"
)

func TestConfigDefaults(t *testing.T) {
	store, err := OpenConfig(t.TempDir())
	require.NoError(t, err)

	cfg := store.Get()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 30, cfg.Script.TimeoutSeconds)
	for _, event := range domain.AllEventTypes {
		assert.True(t, cfg.Events[event], string(event))
	}
}

func TestConfigPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenConfig(dir)
	require.NoError(t, err)

	cfg := store.Get()
	cfg.Enabled = true
	cfg.Events[domain.EventFileMoved] = false
	cfg.Services = []ServiceConfig{{ID: "d1", Name: "chat", Type: "discord", Enabled: true,
		Options: map[string]string{"webhookId": "1", "webhookToken": "t"}}}
	require.NoError(t, store.Update(cfg))

	reloaded, err := OpenConfig(dir)
	require.NoError(t, err)

	got := reloaded.Get()
	assert.True(t, got.Enabled)
	assert.False(t, got.Events[domain.EventFileMoved])
	require.Len(t, got.Services, 1)
	assert.Equal(t, "discord", got.Services[0].Type)
}

func TestConfigValidation(t *testing.T) {
	store, err := OpenConfig(t.TempDir())
	require.NoError(t, err)

	cfg := store.Get()
	cfg.Services = []ServiceConfig{{Name: "no id"}}
	assert.ErrorIs(t, store.Update(cfg), domain.ErrBadRequest)

	cfg = store.Get()
	cfg.Services = []ServiceConfig{{ID: "x"}, {ID: "x"}}
	assert.ErrorIs(t, store.Update(cfg), domain.ErrBadRequest)

	cfg = store.Get()
	cfg.Events["bogus"] = true
	assert.ErrorIs(t, store.Update(cfg), domain.ErrBadRequest)
}

func TestServiceURLs(t *testing.T) {
	tests := []struct {
		name string
		svc  ServiceConfig
		want string
		ok   bool
	}{
		{
			name: "discord",
			svc:  ServiceConfig{Type: "discord", Options: map[string]string{"webhookId": "123", "webhookToken": "abc"}},
			want: "discord://123/abc",
			ok:   true,
		},
		{
			name: "discord incomplete",
			svc:  ServiceConfig{Type: "discord", Options: map[string]string{"webhookId": "123"}},
		},
		{
			name: "telegram",
			svc:  ServiceConfig{Type: "telegram", Options: map[string]string{"botToken": "b", "chatId": "c"}},
			want: "tgram://b/c",
			ok:   true,
		},
		{
			name: "slack",
			svc:  ServiceConfig{Type: "slack", Options: map[string]string{"tokenA": "a", "tokenB": "b", "tokenC": "c"}},
			want: "slack://a/b/c",
			ok:   true,
		},
		{
			name: "pushover",
			svc:  ServiceConfig{Type: "pushover", Options: map[string]string{"userKey": "u", "appToken": "t"}},
			want: "pover://u@t",
			ok:   true,
		},
		{
			name: "ntfy",
			svc:  ServiceConfig{Type: "ntfy", Options: map[string]string{"host": "ntfy.sh", "topic": "done"}},
			want: "ntfys://ntfy.sh/done",
			ok:   true,
		},
		{
			name: "gotify insecure",
			svc:  ServiceConfig{Type: "gotify", Options: map[string]string{"host": "gotify.lan", "token": "t", "insecure": "true"}},
			want: "gotify://gotify.lan/t",
			ok:   true,
		},
		{
			name: "webhook https",
			svc:  ServiceConfig{Type: "webhook", Options: map[string]string{"url": "https://example.com/hook"}},
			want: "jsons://example.com/hook",
			ok:   true,
		},
		{
			name: "webhook bad scheme",
			svc:  ServiceConfig{Type: "webhook", Options: map[string]string{"url": "ftp://example.com"}},
		},
		{
			name: "custom passthrough",
			svc:  ServiceConfig{Type: "custom", Options: map[string]string{"url": "pover://x@y"}},
			want: "pover://x@y",
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := serviceURL(tt.svc)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURLsSkipsDisabledAndBroken(t *testing.T) {
	services := []ServiceConfig{
		{Type: "discord", Enabled: true, Options: map[string]string{"webhookId": "1", "webhookToken": "t"}},
		{Type: "discord", Enabled: false, Options: map[string]string{"webhookId": "2", "webhookToken": "t"}},
		{Type: "discord", Enabled: true},
	}
	assert.Equal(t, []string{"discord://1/t"}, urls(services))
}

func TestEmitNeverBlocks(t *testing.T) {
	store, err := OpenConfig(t.TempDir())
	require.NoError(t, err)
	s := NewService(store)

	// no workers running; fill past capacity and keep going
	for i := 0; i < queueSize+10; i++ {
		s.Emit(domain.Event{Type: domain.EventDownloadFinished})
	}
	assert.Len(t, s.queue, queueSize)
}

func TestRunScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script test")
	}

	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	script := filepath.Join(dir, "handler.sh")

	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\nprintf '%s ' \"$1\" \"$EVENT_TYPE\" \"$EVENT_HASH\" > "+out+"\ncat >> "+out+"\n"), 0o755))

	event := domain.Event{
		Type: domain.EventDownloadFinished,
		Hash: "0123",
		Name: "file.iso",
	}
	require.NoError(t, runScript(context.Background(), ScriptConfig{Path: script, TimeoutSeconds: 10}, event))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "downloadFinished downloadFinished 0123")
	assert.Contains(t, string(data), `"name":"file.iso"`)
}

func TestRunScriptTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script test")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "slow.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 60\n"), 0o755))

	start := time.Now()
	err := runScript(context.Background(), ScriptConfig{Path: script, TimeoutSeconds: 1}, domain.Event{Type: domain.EventFileDeleted})
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunScriptMissingPath(t *testing.T) {
	err := runScript(context.Background(), ScriptConfig{}, domain.Event{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestFormatEvent(t *testing.T) {
	title, body := formatEvent(domain.Event{
		Type:   domain.EventDownloadFinished,
		Name:   "ubuntu.iso",
		Client: domain.ClientRtorrent,
		Size:   2 << 30,
	})
	assert.Equal(t, "Download finished", title)
	assert.Contains(t, body, "ubuntu.iso")
	assert.Contains(t, body, "2.0 GiB")

	_, body = formatEvent(domain.Event{
		Type:     domain.EventCategoryChanged,
		Name:     "x",
		Previous: "Default",
		Category: "Movies",
	})
	assert.Contains(t, body, "from Default to Movies")
}
