// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/buildinfo"
)

// Version reports the stamped build metadata.
func Version(w http.ResponseWriter, r *http.Request) {
	data, err := buildinfo.JSON()
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode version info")
		RespondError(w, http.StatusInternalServerError, "Failed to encode version info")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
