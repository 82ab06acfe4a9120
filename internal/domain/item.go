// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// ClientType identifies which back-end owns a transfer.
type ClientType string

const (
	ClientAmule    ClientType = "amule"
	ClientRtorrent ClientType = "rtorrent"
)

// ItemState is the unified transfer state vocabulary. Back-end specific
// states are translated into this set by the client adapters.
type ItemState string

const (
	StateDownloading ItemState = "downloading"
	StatePaused      ItemState = "paused"
	StateSeeding     ItemState = "seeding"
	StateCompleted   ItemState = "completed"
	StateQueued      ItemState = "queued"
	StateChecking    ItemState = "checking"
	StateError       ItemState = "error"
)

// Terminal reports whether the state marks a finished transfer.
func (s ItemState) Terminal() bool {
	return s == StateCompleted || s == StateSeeding
}

// ByteRange is a half-open [start,end) span of an item's payload.
type ByteRange struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Item is one transfer in the unified data plane. Hash is always the
// 40-hex lowercase identity: the BitTorrent info-hash for rtorrent
// items, the mapped or zero-padded magnet hash for amule items.
type Item struct {
	Hash          string     `json:"hash"`
	Name          string     `json:"name"`
	Size          int64      `json:"size"`
	Downloaded    int64      `json:"downloaded"`
	Uploaded      int64      `json:"uploaded"`
	DownloadSpeed int64      `json:"downloadSpeed"`
	UploadSpeed   int64      `json:"uploadSpeed"`
	Progress      int        `json:"progress"` // whole percent, 0-100
	ETASeconds    int64      `json:"eta"`      // -1 when unknown
	State         ItemState  `json:"state"`
	Category      string     `json:"category"`
	SavePath      string     `json:"savePath"`
	Client        ClientType `json:"client"`
	Sources       int        `json:"sources"`
	SeedsComplete int        `json:"seedsComplete"`
	Availability  float64    `json:"availability"` // share of parts with at least one source
	Ratio         float64    `json:"ratio"`
	AddedOn       int64      `json:"addedOn"` // unix seconds, 0 when unknown
	CompletedOn   int64      `json:"completedOn"`
	Tracker       string     `json:"tracker"` // eTLD+1 of the first tracker, "" for ED2K
	Link          string     `json:"link"`    // ed2k:// link for amule items
	Message       string     `json:"message"` // engine error text, "" otherwise

	// ED2K part-level detail, absent for BitTorrent items: source count
	// per 9,728,000-byte part, byte spans still missing, and byte spans
	// currently requested from sources.
	PartStatus []uint8     `json:"partStatus,omitempty"`
	GapStatus  []ByteRange `json:"gapStatus,omitempty"`
	ReqStatus  []ByteRange `json:"reqStatus,omitempty"`
}

// ClientStats is one back-end's transfer rates and totals.
type ClientStats struct {
	DownloadSpeed   int64 `json:"downloadSpeed"`
	UploadSpeed     int64 `json:"uploadSpeed"`
	TotalDownloaded int64 `json:"totalDownloaded"`
	TotalUploaded   int64 `json:"totalUploaded"`
	Connected       bool  `json:"connected"`
}

// Ed2kNetwork is the ED2K server and Kad connection state.
type Ed2kNetwork struct {
	ServerName  string `json:"serverName"`
	ServerAddr  string `json:"serverAddr"`
	ServerUsers int64  `json:"serverUsers"`
	ServerFiles int64  `json:"serverFiles"`
	HighID      bool   `json:"highId"`
	Ed2kStatus  string `json:"ed2kStatus"` // connected, connecting, disconnected
	KadStatus   string `json:"kadStatus"`  // connected, firewalled, disconnected
	ClientID    uint32 `json:"clientId"`
}

// UploadPeer is one active upload slot, enriched with the reverse-DNS
// hostname when the resolver has one cached.
type UploadPeer struct {
	FileName   string     `json:"fileName"`
	FileHash   string     `json:"fileHash"`
	PeerName   string     `json:"peerName"`
	PeerIP     string     `json:"peerIp"`
	Hostname   string     `json:"hostname,omitempty"`
	Software   string     `json:"software,omitempty"`
	SpeedUp    int64      `json:"speedUp"`
	Uploaded   int64      `json:"uploaded"`
	Client     ClientType `json:"client"`
}

// Stats is the aggregate state snapshot broadcast to subscribers.
type Stats struct {
	DownloadSpeed int64                      `json:"downloadSpeed"`
	UploadSpeed   int64                      `json:"uploadSpeed"`
	Clients       map[ClientType]ClientStats `json:"clients"`
	Ed2k          *Ed2kNetwork               `json:"ed2k,omitempty"`
	Uploads       []UploadPeer               `json:"uploads"`
}

// Ed2kServer is one entry of the ED2K server list.
type Ed2kServer struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Description string `json:"description,omitempty"`
	Users       int64  `json:"users"`
	MaxUsers    int64  `json:"maxUsers"`
	Files       int64  `json:"files"`
	Ping        int    `json:"ping"`
	Static      bool   `json:"static"`
	Connected   bool   `json:"connected"`
}

// SearchResult is one ED2K search hit.
type SearchResult struct {
	Hash            string `json:"hash"` // 32-hex ed2k hash
	Name            string `json:"name"`
	Size            int64  `json:"size"`
	Sources         int    `json:"sources"`
	CompleteSources int    `json:"completeSources"`
	Ed2kLink        string `json:"ed2kLink"`
	MagnetLink      string `json:"magnetLink"`
	Downloading     bool   `json:"downloading"`
}
