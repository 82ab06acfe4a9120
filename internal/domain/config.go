// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"time"
)

// Config represents the application configuration
type Config struct {
	Version               string
	Host                  string `toml:"host" mapstructure:"host"`
	Port                  int    `toml:"port" mapstructure:"port"`
	BaseURL               string `toml:"baseUrl" mapstructure:"baseUrl"`
	SessionSecret         string `toml:"sessionSecret" mapstructure:"sessionSecret"`
	LogLevel              string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath               string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize            int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups         int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir               string `toml:"dataDir" mapstructure:"dataDir"`
	MetricsEnabled        bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost           string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort           int    `toml:"metricsPort" mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `toml:"metricsBasicAuthUsers" mapstructure:"metricsBasicAuthUsers"`

	// AuthDisabled turns the web login and the qBittorrent SID handshake
	// into no-ops. Intended for deployments behind a reverse proxy that
	// handles authentication.
	AuthDisabled bool `toml:"authDisabled" mapstructure:"authDisabled"`

	Amule    AmuleConfig    `toml:"amule" mapstructure:"amule"`
	Rtorrent RtorrentConfig `toml:"rtorrent" mapstructure:"rtorrent"`
	Resolver ResolverConfig `toml:"resolver" mapstructure:"resolver"`
	Bridge   BridgeConfig   `toml:"bridge" mapstructure:"bridge"`
	Prowlarr ProwlarrConfig `toml:"prowlarr" mapstructure:"prowlarr"`
}

// ProwlarrConfig enables the optional indexer passthrough: Torznab
// searches fan out to the listed Prowlarr indexers alongside the ED2K
// search.
type ProwlarrConfig struct {
	Enabled        bool     `toml:"enabled" mapstructure:"enabled"`
	Host           string   `toml:"host" mapstructure:"host"`
	APIKey         string   `toml:"apiKey" mapstructure:"apiKey"`
	IndexerIDs     []string `toml:"indexerIds" mapstructure:"indexerIds"`
	TimeoutSeconds int      `toml:"timeoutSeconds" mapstructure:"timeoutSeconds"`
}

// AmuleConfig is the connection block for the ED2K engine (amuled
// external connections, usually port 4712).
type AmuleConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Host     string `toml:"host" mapstructure:"host"`
	Port     int    `toml:"port" mapstructure:"port"`
	Password string `toml:"password" mapstructure:"password"`
	// DownloadFolder is how the bridge reaches amule's incoming
	// directory, used for path warnings and deleteFiles.
	DownloadFolder string `toml:"downloadFolder" mapstructure:"downloadFolder"`
}

// RtorrentConfig is the connection block for the BitTorrent engine.
// Addr accepts host:port for TCP SCGI or an absolute path for a unix
// socket.
type RtorrentConfig struct {
	Enabled        bool   `toml:"enabled" mapstructure:"enabled"`
	Addr           string `toml:"addr" mapstructure:"addr"`
	DownloadFolder string `toml:"downloadFolder" mapstructure:"downloadFolder"`
	// MaxConcurrentCalls bounds in-flight RPC calls. Default 16.
	MaxConcurrentCalls int `toml:"maxConcurrentCalls" mapstructure:"maxConcurrentCalls"`
}

// ResolverConfig tunes the reverse-DNS hostname cache for the upload
// peers view.
type ResolverConfig struct {
	Enabled       bool `toml:"enabled" mapstructure:"enabled"`
	MaxCacheSize  int  `toml:"maxCacheSize" mapstructure:"maxCacheSize"`
	TTLMinutes    int  `toml:"ttlMinutes" mapstructure:"ttlMinutes"`
	FailedTTLMins int  `toml:"failedTtlMinutes" mapstructure:"failedTtlMinutes"`
}

// BridgeConfig groups data-plane behavior knobs.
type BridgeConfig struct {
	// SnapshotIntervalSeconds is the unified data plane refresh cadence.
	// Default 2.
	SnapshotIntervalSeconds int `toml:"snapshotIntervalSeconds" mapstructure:"snapshotIntervalSeconds"`
	// CategoryRefreshMinutes is the periodic category reconcile cadence.
	// Default 5.
	CategoryRefreshMinutes int `toml:"categoryRefreshMinutes" mapstructure:"categoryRefreshMinutes"`
	// RPCTimeoutSeconds is the default deadline applied to back-end
	// calls whose context carries none. Default 30.
	RPCTimeoutSeconds int `toml:"rpcTimeoutSeconds" mapstructure:"rpcTimeoutSeconds"`
}

// SnapshotInterval returns the configured data plane cadence.
func (c *Config) SnapshotInterval() time.Duration {
	if c.Bridge.SnapshotIntervalSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Bridge.SnapshotIntervalSeconds) * time.Second
}

// CategoryRefreshInterval returns the periodic reconcile cadence.
func (c *Config) CategoryRefreshInterval() time.Duration {
	if c.Bridge.CategoryRefreshMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Bridge.CategoryRefreshMinutes) * time.Minute
}

// RPCTimeout returns the default back-end call deadline.
func (c *Config) RPCTimeout() time.Duration {
	if c.Bridge.RPCTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Bridge.RPCTimeoutSeconds) * time.Second
}
