// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package magnet parses and builds magnet URIs and ed2k file links, and
// carries the hash transforms that bind the two identity schemes: ed2k
// hashes are 32 hex chars, BitTorrent info-hashes are 40. An ed2k hash
// travels inside a synthetic info-hash either zero-padded on the left
// or suffixed with an 8-hex discriminator, and both forms are reversed
// here.
package magnet

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	ed2kHashLen  = 32
	btihHashLen  = 40
	ed2kPadding  = "00000000"
	ed2kScheme   = "ed2k://"
	magnetScheme = "magnet:"
)

// Magnet is a parsed magnet URI.
type Magnet struct {
	InfoHash string // 40 hex, lowercase
	Name     string
	Size     int64
	Trackers []string
}

// Parse decodes a magnet URI. Only hex btih exact topics are accepted;
// base32 info-hashes do not occur in this system's traffic.
func Parse(uri string) (Magnet, error) {
	if !strings.HasPrefix(strings.ToLower(uri), magnetScheme) {
		return Magnet{}, errors.Errorf("not a magnet uri: %q", truncate(uri, 64))
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Magnet{}, errors.Wrap(err, "parse magnet uri")
	}

	q := u.Query()
	var m Magnet
	for _, xt := range q["xt"] {
		if h, ok := strings.CutPrefix(xt, "urn:btih:"); ok {
			m.InfoHash = strings.ToLower(h)
			break
		}
	}
	if !IsHexHash(m.InfoHash, btihHashLen) {
		return Magnet{}, errors.Errorf("magnet uri carries no valid btih: %q", truncate(uri, 64))
	}

	m.Name = q.Get("dn")
	if xl := q.Get("xl"); xl != "" {
		if size, err := strconv.ParseInt(xl, 10, 64); err == nil && size >= 0 {
			m.Size = size
		}
	}
	m.Trackers = q["tr"]

	return m, nil
}

// String renders the magnet URI.
func (m Magnet) String() string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(strings.ToLower(m.InfoHash))
	if m.Name != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(m.Name))
	}
	if m.Size > 0 {
		b.WriteString("&xl=")
		b.WriteString(strconv.FormatInt(m.Size, 10))
	}
	for _, tr := range m.Trackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tr))
	}
	return b.String()
}

// Ed2kLink is a parsed ed2k file link.
type Ed2kLink struct {
	Name string
	Size int64
	Hash string // 32 hex, lowercase
}

// ParseEd2k decodes an ed2k://|file|...| link. Trailing fields such as
// AICH root hashes or source lists are ignored.
func ParseEd2k(link string) (Ed2kLink, error) {
	raw, ok := strings.CutPrefix(link, ed2kScheme)
	if !ok {
		return Ed2kLink{}, errors.Errorf("not an ed2k link: %q", truncate(link, 64))
	}

	parts := strings.Split(strings.Trim(raw, "|/"), "|")
	if len(parts) < 4 || !strings.EqualFold(parts[0], "file") {
		return Ed2kLink{}, errors.Errorf("malformed ed2k link: %q", truncate(link, 64))
	}

	name := parts[1]
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	size, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || size < 0 {
		return Ed2kLink{}, errors.Errorf("ed2k link has invalid size %q", parts[2])
	}

	hash := strings.ToLower(parts[3])
	if !IsHexHash(hash, ed2kHashLen) {
		return Ed2kLink{}, errors.Errorf("ed2k link has invalid hash %q", parts[3])
	}

	return Ed2kLink{Name: name, Size: size, Hash: hash}, nil
}

// String renders the link the way amule prints them: pipe separated,
// uppercase hash, percent-encoded name.
func (l Ed2kLink) String() string {
	return fmt.Sprintf("ed2k://|file|%s|%d|%s|/",
		escapeEd2kName(l.Name), l.Size, strings.ToUpper(l.Hash))
}

// escapeEd2kName percent-encodes the characters that would break the
// pipe-separated link format.
func escapeEd2kName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '|', '%', '/':
			fmt.Fprintf(&b, "%%%02X", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PadEd2kHash widens a 32-hex ed2k hash to info-hash width by
// prefixing eight zeros. The inverse of Ed2kFromInfoHash for hashes
// with no known file name.
func PadEd2kHash(ed2k string) string {
	return ed2kPadding + strings.ToLower(ed2k)
}

// SynthesizeInfoHash derives the deterministic 40-hex identity for an
// ed2k file from its hash and file name. The suffix keeps distinct
// files with colliding prefixes apart while staying reproducible.
func SynthesizeInfoHash(ed2k, fileName string) string {
	return strings.ToLower(ed2k) + fmt.Sprintf("%08x", len(fileName))
}

// Ed2kFromInfoHash recovers the ed2k hash embedded in a synthetic
// info-hash: zero-padded hashes carry it in the last 32 chars,
// suffixed hashes in the first 32.
func Ed2kFromInfoHash(infoHash string) (string, error) {
	h := strings.ToLower(infoHash)
	if !IsHexHash(h, btihHashLen) {
		return "", errors.Errorf("invalid info-hash %q", truncate(infoHash, 64))
	}
	if strings.HasPrefix(h, ed2kPadding) {
		return h[len(ed2kPadding):], nil
	}
	return h[:ed2kHashLen], nil
}

// IsHexHash reports whether s is exactly n lowercase-insensitive hex
// characters.
func IsHexHash(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
