// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package prowlarr is a minimal Prowlarr API client covering what the
// bridge's indexer passthrough needs: listing configured indexers and
// running Torznab searches through them.
package prowlarr

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/sharedhttp"
	"github.com/pkg/errors"
)

// Config holds the options for constructing a Client.
type Config struct {
	Host       string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
}

// Client wraps the Prowlarr REST API for Torznab-style access.
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

// NewClient constructs a Client. The HTTP transport is shared across
// instances unless the caller brings its own client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   timeout,
			Transport: sharedhttp.Transport,
		}
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "mulearr"
	}

	return &Client{
		host:       strings.TrimRight(cfg.Host, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
		userAgent:  ua,
	}
}

// TorznabError is the <error code=".."/> document Torznab endpoints
// answer with instead of a feed.
type TorznabError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:"description,attr"`
}

// Rss is a Torznab search feed.
type Rss struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Channel carries the feed items.
type Channel struct {
	Title string `xml:"title"`
	Items []Item `xml:"item"`
}

// Item is one search hit.
type Item struct {
	Title     string      `xml:"title"`
	GUID      string      `xml:"guid"`
	Link      string      `xml:"link"`
	Size      int64       `xml:"size"`
	Category  []string    `xml:"category"`
	Enclosure Enclosure   `xml:"enclosure"`
	Attrs     []ItemAttr  `xml:"attr"`
}

// Enclosure holds the download link for the hit.
type Enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// ItemAttr is one <torznab:attr name=".." value=".."/> pair.
type ItemAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Attr returns the named torznab attribute, or "".
func (i Item) Attr(name string) string {
	for _, a := range i.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// Indexer is one configured Prowlarr indexer.
type Indexer struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Enable   bool   `json:"enable"`
	Protocol string `json:"protocol"` // "usenet" or "torrent"
}

// SearchIndexer runs a Torznab search through one indexer. params are
// passed through as query parameters; t defaults to "search".
func (c *Client) SearchIndexer(ctx context.Context, indexerID string, params map[string]string) (Rss, error) {
	var rss Rss

	indexerID = strings.TrimSpace(indexerID)
	if indexerID == "" {
		return rss, errors.New("prowlarr indexer id is required")
	}

	query := url.Values{}
	for key, value := range params {
		if strings.TrimSpace(value) != "" {
			query.Set(key, value)
		}
	}
	if query.Get("t") == "" {
		query.Set("t", "search")
	}
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}

	endpoint, err := url.JoinPath(c.host, "api", "v1", "indexer", indexerID, "newznab")
	if err != nil {
		return rss, errors.Wrap(err, "build prowlarr endpoint")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return rss, errors.Wrap(err, "build prowlarr request")
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rss, errors.Wrap(err, "prowlarr request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return rss, errors.Errorf("prowlarr returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return rss, errors.Wrap(err, "read prowlarr response")
	}

	if strings.HasPrefix(strings.TrimSpace(string(body)), "<error") {
		var terr TorznabError
		if uerr := xml.Unmarshal(body, &terr); uerr != nil {
			return rss, errors.Wrap(uerr, "decode torznab error")
		}
		return rss, errors.Errorf("torznab error %s: %s", terr.Code, terr.Message)
	}

	if err := xml.Unmarshal(body, &rss); err != nil {
		return rss, errors.Wrap(err, "decode prowlarr feed")
	}
	return rss, nil
}

// GetIndexers lists the indexers configured on the Prowlarr instance.
func (c *Client) GetIndexers(ctx context.Context) ([]Indexer, error) {
	endpoint, err := url.JoinPath(c.host, "api", "v1", "indexer")
	if err != nil {
		return nil, errors.Wrap(err, "build prowlarr endpoint")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build prowlarr request")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "prowlarr request")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, errors.Errorf("prowlarr returned %d (check api key)", resp.StatusCode)
	default:
		return nil, errors.Errorf("prowlarr returned status %d", resp.StatusCode)
	}

	var indexers []Indexer
	if err := json.NewDecoder(resp.Body).Decode(&indexers); err != nil {
		return nil, errors.Wrap(err, "decode prowlarr response")
	}
	return indexers, nil
}
