// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogger wires the global zerolog logger: pretty console output on
// a terminal, JSON otherwise, lumberjack rotation when logPath is set.
// Extra writers (the UI log ring) join the chain.
func (c *AppConfig) SetupLogger(extra ...io.Writer) {
	writers := make([]io.Writer, 0, 2+len(extra))

	if term.IsTerminal(int(os.Stdout.Fd())) {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stdout)
	}

	if c.Config.LogPath != "" {
		path := c.Config.LogPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(c.configFile), path)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    c.Config.LogMaxSize,
			MaxBackups: c.Config.LogMaxBackups,
			Compress:   true,
		})
	}

	writers = append(writers, extra...)

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	applyLogLevel(c.Config.LogLevel)
}

func applyLogLevel(level string) {
	switch strings.ToUpper(level) {
	case "TRACE":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
