// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dataplane

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// trackerDomain reduces a tracker announce URL to its registrable
// domain (eTLD+1). IPs and unlisted hosts pass through as-is; garbage
// reduces to "".
func trackerDomain(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	host := u.Hostname()
	if host == "" {
		// udp trackers sometimes arrive without a scheme
		if h, _, splitErr := net.SplitHostPort(rawURL); splitErr == nil {
			host = h
		} else {
			return ""
		}
	}

	host = strings.ToLower(host)
	if net.ParseIP(host) != nil {
		return host
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
