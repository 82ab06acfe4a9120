// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ws

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// request is one inbound client message. The action selects which of
// the remaining fields matter.
type request struct {
	Action    string `json:"action"`
	RequestID string `json:"requestId,omitempty"`

	// search
	Query string `json:"query,omitempty"`
	Kad   bool   `json:"kad,omitempty"`

	// batch actions
	Links       []string `json:"links,omitempty"`
	Hashes      []string `json:"hashes,omitempty"`
	DeleteFiles bool     `json:"deleteFiles,omitempty"`
	Category    string   `json:"category,omitempty"`
	SavePath    string   `json:"savePath,omitempty"`

	// category CRUD
	Name     string `json:"name,omitempty"`
	Comment  string `json:"comment,omitempty"`
	Color    string `json:"color,omitempty"`
	Priority string `json:"priority,omitempty"`

	// server actions
	Op   string `json:"op,omitempty"`
	Addr string `json:"addr,omitempty"`
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	URL  string `json:"url,omitempty"`
}

// frame renders one outbound message. Marshal failures are programmer
// errors on our own types; log and drop.
func frame(frameType string, data any) []byte {
	payload, err := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: frameType, Data: data})
	if err != nil {
		log.Error().Err(err).Str("frame", frameType).Msg("encode ws frame")
		return nil
	}
	return payload
}

// batchResult answers a batch-*-complete frame: per-item outcome,
// never a whole-batch failure.
type batchResult struct {
	RequestID string      `json:"requestId,omitempty"`
	Successes []string    `json:"successes"`
	Failures  []batchFail `json:"failures"`
}

type batchFail struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

func newBatchResult(requestID string) batchResult {
	return batchResult{
		RequestID: requestID,
		Successes: []string{},
		Failures:  []batchFail{},
	}
}

func (r *batchResult) ok(id string) {
	r.Successes = append(r.Successes, id)
}

func (r *batchResult) fail(id string, err error) {
	r.Failures = append(r.Failures, batchFail{ID: id, Error: err.Error()})
}

// errorFrame is the generic failure answer for non-batch actions.
type errorFrame struct {
	RequestID string `json:"requestId,omitempty"`
	Action    string `json:"action,omitempty"`
	Message   string `json:"message"`
}
