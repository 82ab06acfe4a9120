// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import (
	"encoding/xml"
	"net/http"

	"github.com/rs/zerolog/log"
)

const torznabNS = "http://torznab.com/schemas/2015/feed"

// feed is the outbound RSS document. The torznab namespace prefix is
// spelled out in the tags so encoding/xml emits the attribute form the
// *arr parsers expect.
type feed struct {
	XMLName   xml.Name `xml:"rss"`
	Version   string   `xml:"version,attr"`
	TorznabNS string   `xml:"xmlns:torznab,attr"`
	Channel   channel  `xml:"channel"`
}

type channel struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Items       []item `xml:"item"`
}

type item struct {
	Title     string     `xml:"title"`
	GUID      string     `xml:"guid"`
	Link      string     `xml:"link"`
	Size      int64      `xml:"size"`
	Category  int        `xml:"category"`
	Enclosure enclosure  `xml:"enclosure"`
	Attrs     []itemAttr `xml:"torznab:attr"`
}

type enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type itemAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// caps is the t=caps document.
type caps struct {
	XMLName    xml.Name      `xml:"caps"`
	Server     capsServer    `xml:"server"`
	Limits     capsLimits    `xml:"limits"`
	Searching  capsSearching `xml:"searching"`
	Categories capsCats      `xml:"categories"`
}

type capsServer struct {
	Title string `xml:"title,attr"`
}

type capsLimits struct {
	Max     int `xml:"max,attr"`
	Default int `xml:"default,attr"`
}

type capsSearching struct {
	Search      capsSearch `xml:"search"`
	TVSearch    capsSearch `xml:"tv-search"`
	MovieSearch capsSearch `xml:"movie-search"`
}

type capsSearch struct {
	Available       string `xml:"available,attr"`
	SupportedParams string `xml:"supportedParams,attr"`
}

type capsCats struct {
	Categories []capsCat `xml:"category"`
}

type capsCat struct {
	ID   int    `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

// torznabErr is the <error/> document.
type torznabErr struct {
	XMLName     xml.Name `xml:"error"`
	Code        int      `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

// Torznab error codes from the newznab convention.
const (
	errCodeBadCredentials = 100
	errCodeNoSuchFunction = 202
	errCodeUnknown        = 900
)

func writeXML(w http.ResponseWriter, doc any) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(doc); err != nil {
		log.Error().Err(err).Msg("encode torznab response")
	}
}

func writeError(w http.ResponseWriter, code int, description string) {
	writeXML(w, torznabErr{Code: code, Description: description})
}
