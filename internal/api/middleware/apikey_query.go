// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import "net/http"

// APIKeyFromQuery lifts an API key query parameter into the X-API-Key
// header so IsAuthenticated sees one auth shape. Browsers cannot set
// headers on WebSocket dials, which is the only route that mounts
// this; a header supplied by the caller wins over the query param.
func APIKeyFromQuery(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") == "" {
				if key := r.URL.Query().Get(param); key != "" {
					r.Header.Set("X-API-Key", key)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
