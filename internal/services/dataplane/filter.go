// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dataplane

import (
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"

	"github.com/autobrr/mulearr/internal/domain"
)

// FilterOptions narrows an item list. Zero values mean "no constraint".
type FilterOptions struct {
	Category string   // exact category name
	Client   string   // "amule" or "rtorrent"
	States   []string // unified state names, OR-ed
	Hashes   []string // exact 40-hex hashes
	Search   string   // fuzzy match against the item name
	Expr     string   // expression over item fields
}

// exprEnv is the variable set an Expr filter sees, one entry per item.
type exprEnv struct {
	Name         string  `expr:"name"`
	Hash         string  `expr:"hash"`
	Size         int64   `expr:"size"`
	Progress     int     `expr:"progress"`
	State        string  `expr:"state"`
	Category     string  `expr:"category"`
	Client       string  `expr:"client"`
	Ratio        float64 `expr:"ratio"`
	Tracker      string  `expr:"tracker"`
	Sources      int     `expr:"sources"`
	Availability float64 `expr:"availability"`
	ETA          int64   `expr:"eta"`
}

func envOf(item domain.Item) exprEnv {
	return exprEnv{
		Name:         item.Name,
		Hash:         item.Hash,
		Size:         item.Size,
		Progress:     item.Progress,
		State:        string(item.State),
		Category:     item.Category,
		Client:       string(item.Client),
		Ratio:        item.Ratio,
		Tracker:      item.Tracker,
		Sources:      item.Sources,
		Availability: item.Availability,
		ETA:          item.ETASeconds,
	}
}

// Filter applies the options to a copy of items. An invalid Expr
// program fails the whole call rather than silently matching nothing.
func Filter(items []domain.Item, opts FilterOptions) ([]domain.Item, error) {
	var program *vm.Program
	if opts.Expr != "" {
		var err error
		program, err = expr.Compile(opts.Expr, expr.Env(exprEnv{}), expr.AsBool())
		if err != nil {
			return nil, errors.Wrapf(domain.ErrBadRequest, "invalid filter expression: %s", err)
		}
	}

	states := make(map[string]struct{}, len(opts.States))
	for _, state := range opts.States {
		states[strings.ToLower(state)] = struct{}{}
	}
	hashes := make(map[string]struct{}, len(opts.Hashes))
	for _, hash := range opts.Hashes {
		hashes[strings.ToLower(hash)] = struct{}{}
	}

	out := make([]domain.Item, 0, len(items))
	for _, item := range items {
		if opts.Category != "" && item.Category != opts.Category {
			continue
		}
		if opts.Client != "" && string(item.Client) != opts.Client {
			continue
		}
		if len(states) > 0 {
			if _, ok := states[string(item.State)]; !ok {
				continue
			}
		}
		if len(hashes) > 0 {
			if _, ok := hashes[strings.ToLower(item.Hash)]; !ok {
				continue
			}
		}
		if opts.Search != "" && !fuzzy.MatchNormalizedFold(opts.Search, item.Name) {
			continue
		}
		if program != nil {
			match, err := expr.Run(program, envOf(item))
			if err != nil {
				return nil, errors.Wrapf(domain.ErrBadRequest, "filter expression failed: %s", err)
			}
			if match != true {
				continue
			}
		}
		out = append(out, item)
	}
	return out, nil
}
