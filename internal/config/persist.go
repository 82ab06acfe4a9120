// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const defaultConfigTemplate = `# config.toml - Auto-generated on first run

# Hostname / IP
# Default: "localhost"
host = "%s"

# Port
# Default: 7476
port = %d

# Base url
# Set custom baseUrl eg /mulearr/ to serve in subdirectory
# Not needed for subdomain or by accessing with the :port directly
# Optional
#baseUrl = "/mulearr/"

# Session secret
# Signs the session cookie. Keep it stable across restarts.
sessionSecret = "%s"

# Log file path
# If not defined, logs to stdout
# Optional
#logPath = "log/mulearr.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: 50
#logMaxSize = 50

# Number of rotated log files to retain (0 keeps all)
# Default: 3
#logMaxBackups = 3

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "INFO"

# Data directory for the JSON stores (users, api keys, categories,
# hash mappings, history, notifications)
# Default: next to this config file
#dataDir = "/var/lib/mulearr"

# Disable built-in authentication
# Only do this behind a reverse proxy that authenticates for you
#authDisabled = false

# Prometheus metrics endpoint
#metricsEnabled = false
#metricsHost = "127.0.0.1"
#metricsPort = 9074
# Basic auth users as "user:bcryptHash,user2:bcryptHash2"
#metricsBasicAuthUsers = ""

# aMule ED2K engine (amuled external connections)
[amule]
enabled = true
host = "localhost"
port = 4712
password = ""
# How this bridge reaches amule's incoming directory
#downloadFolder = "/downloads"

# rtorrent BitTorrent engine (SCGI)
[rtorrent]
enabled = false
# host:port for TCP or an absolute path for a unix socket
#addr = "127.0.0.1:5000"
#downloadFolder = "/torrents"

# Prowlarr passthrough for Torznab searches
[prowlarr]
enabled = false
#host = "http://localhost:9696"
#apiKey = ""
#indexerIds = ["1"]
`

// writeDefaultConfig renders the commented template with a fresh
// session secret.
func (c *AppConfig) writeDefaultConfig(path string) error {
	content := fmt.Sprintf(defaultConfigTemplate,
		c.viper.GetString("host"),
		c.viper.GetInt("port"),
		generateSecret(),
	)
	return errors.Wrap(os.WriteFile(path, []byte(content), 0o600), "write default config")
}

// UpdateLogSettings rewrites the log keys of the config file in place,
// preserving the surrounding comments and layout.
func (c *AppConfig) UpdateLogSettings(level, path string, maxSize, maxBackups int) error {
	raw, err := os.ReadFile(c.configFile)
	if err != nil {
		return errors.Wrap(err, "read config")
	}

	updated := updateLogSettingsInTOML(string(raw), level, path, maxSize, maxBackups)
	if err := os.WriteFile(c.configFile, []byte(updated), 0o600); err != nil {
		return errors.Wrap(err, "write config")
	}

	c.mu.Lock()
	c.Config.LogLevel = level
	c.Config.LogPath = path
	c.Config.LogMaxSize = maxSize
	c.Config.LogMaxBackups = maxBackups
	c.mu.Unlock()
	return nil
}

// updateLogSettingsInTOML replaces, or uncomments and replaces, the
// log keys in the top-level section without disturbing anything else.
// Keys genuinely absent from the file are appended before the first
// table header so they stay in the top-level section.
func updateLogSettingsInTOML(content, level, path string, maxSize, maxBackups int) string {
	replacements := []struct {
		key   string
		value string
	}{
		{"logLevel", fmt.Sprintf("logLevel = %q", level)},
		{"logPath", fmt.Sprintf("logPath = %q", path)},
		{"logMaxSize", fmt.Sprintf("logMaxSize = %d", maxSize)},
		{"logMaxBackups", fmt.Sprintf("logMaxBackups = %d", maxBackups)},
	}

	var missing []string
	for _, repl := range replacements {
		pattern := regexp.MustCompile(`(?m)^#?\s*` + repl.key + `\s*=.*$`)
		if pattern.MatchString(content) {
			replaced := false
			content = pattern.ReplaceAllStringFunc(content, func(match string) string {
				if replaced {
					return match
				}
				replaced = true
				return repl.value
			})
			continue
		}
		missing = append(missing, repl.value)
	}

	if len(missing) > 0 {
		block := strings.Join(missing, "\n") + "\n"
		if idx := firstTableIndex(content); idx >= 0 {
			content = content[:idx] + block + "\n" + content[idx:]
		} else {
			if !strings.HasSuffix(content, "\n") {
				content += "\n"
			}
			content += block
		}
	}
	return content
}

var tableHeaderRe = regexp.MustCompile(`(?m)^\[`)

func firstTableIndex(content string) int {
	loc := tableHeaderRe.FindStringIndex(content)
	if loc == nil {
		return -1
	}
	return loc[0]
}
