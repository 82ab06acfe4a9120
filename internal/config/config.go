// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads config.toml via viper, layers MULEARR__ env
// overrides on top and watches the file for dynamic settings.
package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/mulearr/internal/domain"
)

const configFileName = "config.toml"

// envBindings maps config keys onto their MULEARR__ environment
// variables. viper's automatic env mapping cannot produce the
// double-underscore convention, so every key binds explicitly.
var envBindings = map[string]string{
	"host":                  "MULEARR__HOST",
	"port":                  "MULEARR__PORT",
	"baseUrl":               "MULEARR__BASE_URL",
	"sessionSecret":         "MULEARR__SESSION_SECRET",
	"logLevel":              "MULEARR__LOG_LEVEL",
	"logPath":               "MULEARR__LOG_PATH",
	"logMaxSize":            "MULEARR__LOG_MAX_SIZE",
	"logMaxBackups":         "MULEARR__LOG_MAX_BACKUPS",
	"dataDir":               "MULEARR__DATA_DIR",
	"authDisabled":          "MULEARR__AUTH_DISABLED",
	"metricsEnabled":        "MULEARR__METRICS_ENABLED",
	"metricsHost":           "MULEARR__METRICS_HOST",
	"metricsPort":           "MULEARR__METRICS_PORT",
	"metricsBasicAuthUsers": "MULEARR__METRICS_BASIC_AUTH_USERS",

	"amule.enabled":        "MULEARR__AMULE_ENABLED",
	"amule.host":           "MULEARR__AMULE_HOST",
	"amule.port":           "MULEARR__AMULE_PORT",
	"amule.password":       "MULEARR__AMULE_PASSWORD",
	"amule.downloadFolder": "MULEARR__AMULE_DOWNLOAD_FOLDER",

	"rtorrent.enabled":            "MULEARR__RTORRENT_ENABLED",
	"rtorrent.addr":               "MULEARR__RTORRENT_ADDR",
	"rtorrent.downloadFolder":     "MULEARR__RTORRENT_DOWNLOAD_FOLDER",
	"rtorrent.maxConcurrentCalls": "MULEARR__RTORRENT_MAX_CONCURRENT_CALLS",

	"prowlarr.enabled":    "MULEARR__PROWLARR_ENABLED",
	"prowlarr.host":       "MULEARR__PROWLARR_HOST",
	"prowlarr.apiKey":     "MULEARR__PROWLARR_API_KEY",
	"prowlarr.indexerIds": "MULEARR__PROWLARR_INDEXER_IDS",

	"bridge.snapshotIntervalSeconds": "MULEARR__BRIDGE_SNAPSHOT_INTERVAL",
	"bridge.categoryRefreshMinutes":  "MULEARR__BRIDGE_CATEGORY_REFRESH",
	"bridge.rpcTimeoutSeconds":       "MULEARR__BRIDGE_RPC_TIMEOUT",
}

// AppConfig wraps the parsed configuration plus the machinery to
// reload it when the file changes.
type AppConfig struct {
	Config *domain.Config

	viper      *viper.Viper
	configFile string

	mu       sync.Mutex
	onReload []func(*domain.Config)
}

// New resolves the config location, generates a default file on first
// run and parses it. configPath may be empty (XDG default dir), a
// directory, or a path to the toml file itself.
func New(configPath string) (*AppConfig, error) {
	c := &AppConfig{
		Config: &domain.Config{},
		viper:  viper.New(),
	}

	dir, file, err := resolveConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	c.configFile = file

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create config directory")
	}

	c.setDefaults()
	for key, env := range envBindings {
		if err := c.viper.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "bind %s", env)
		}
	}

	if _, err := os.Stat(file); os.IsNotExist(err) {
		if err := c.writeDefaultConfig(file); err != nil {
			return nil, err
		}
		log.Info().Str("path", file).Msg("generated default config")
	}

	c.viper.SetConfigFile(file)
	if err := c.viper.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if c.Config.SessionSecret == "" {
		c.Config.SessionSecret = generateSecret()
		log.Warn().Msg("no sessionSecret configured, generated an ephemeral one; sessions reset on restart")
	}

	return c, nil
}

func resolveConfigFile(configPath string) (dir, file string, err error) {
	switch {
	case configPath == "":
		dir = getDefaultConfigDir()
	case strings.HasSuffix(configPath, ".toml"):
		abs, aerr := filepath.Abs(configPath)
		if aerr != nil {
			return "", "", errors.Wrap(aerr, "resolve config path")
		}
		return filepath.Dir(abs), abs, nil
	default:
		dir = configPath
	}

	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", "", errors.Wrap(err, "resolve config dir")
	}
	return dir, filepath.Join(dir, configFileName), nil
}

// getDefaultConfigDir honors XDG_CONFIG_HOME. The Docker image sets it
// to /config and expects the file directly there rather than in an app
// subdirectory.
func getDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		if xdg == "/config" {
			return xdg
		}
		return filepath.Join(xdg, "mulearr")
	}
	if home, err := os.UserConfigDir(); err == nil {
		return filepath.Join(home, "mulearr")
	}
	return "."
}

func (c *AppConfig) setDefaults() {
	v := c.viper
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 7476)
	v.SetDefault("baseUrl", "/")
	v.SetDefault("logLevel", "INFO")
	v.SetDefault("logMaxSize", 50)
	v.SetDefault("logMaxBackups", 3)
	v.SetDefault("dataDir", "")
	v.SetDefault("metricsEnabled", false)
	v.SetDefault("metricsHost", "127.0.0.1")
	v.SetDefault("metricsPort", 9074)

	v.SetDefault("amule.enabled", true)
	v.SetDefault("amule.host", "localhost")
	v.SetDefault("amule.port", 4712)
	v.SetDefault("rtorrent.maxConcurrentCalls", 16)
	v.SetDefault("prowlarr.timeoutSeconds", 60)

	v.SetDefault("bridge.snapshotIntervalSeconds", 2)
	v.SetDefault("bridge.categoryRefreshMinutes", 5)
	v.SetDefault("bridge.rpcTimeoutSeconds", 30)
}

// ConfigFile returns the resolved config.toml path.
func (c *AppConfig) ConfigFile() string {
	return c.configFile
}

// GetDataDir resolves where the JSON stores live: the configured
// dataDir when set (relative paths resolve against the config dir),
// otherwise next to the config file.
func (c *AppConfig) GetDataDir() string {
	dir := c.Config.DataDir
	if dir == "" {
		return filepath.Dir(c.configFile)
	}
	if !filepath.IsAbs(dir) {
		return filepath.Join(filepath.Dir(c.configFile), dir)
	}
	return dir
}

// OnReload registers a callback invoked with the fresh config after a
// successful file reload.
func (c *AppConfig) OnReload(fn func(*domain.Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReload = append(c.onReload, fn)
}

// Watch re-reads the config when the file changes and reapplies the
// dynamic settings (log level and rotation). Editors replace rather
// than rewrite, so the watch covers the directory.
func (c *AppConfig) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create config watcher")
	}
	if err := watcher.Add(filepath.Dir(c.configFile)); err != nil {
		watcher.Close()
		return errors.Wrap(err, "watch config directory")
	}

	go func() {
		defer watcher.Close()

		// editors fire several events per save; debounce them
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != c.configFile {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				pending = time.After(250 * time.Millisecond)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			case <-pending:
				pending = nil
				c.reload()
			}
		}
	}()
	return nil
}

func (c *AppConfig) reload() {
	if err := c.viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("config reload failed, keeping previous settings")
		return
	}

	fresh := &domain.Config{}
	if err := c.viper.Unmarshal(fresh); err != nil {
		log.Warn().Err(err).Msg("config reload parse failed, keeping previous settings")
		return
	}

	c.mu.Lock()
	// only the dynamic settings take effect without a restart
	c.Config.LogLevel = fresh.LogLevel
	c.Config.LogMaxSize = fresh.LogMaxSize
	c.Config.LogMaxBackups = fresh.LogMaxBackups
	callbacks := make([]func(*domain.Config), len(c.onReload))
	copy(callbacks, c.onReload)
	cfg := c.Config
	c.mu.Unlock()

	applyLogLevel(cfg.LogLevel)
	log.Info().Str("logLevel", cfg.LogLevel).Msg("config reloaded")

	for _, fn := range callbacks {
		fn(cfg)
	}
}

func generateSecret() string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		// rand.Read only fails when the OS entropy source is broken
		panic(err)
	}
	return hex.EncodeToString(raw)
}
