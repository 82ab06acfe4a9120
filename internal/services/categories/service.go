// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package categories keeps the bridge-side category set and reconciles
// it into each back-end's own vocabulary: numeric category indexes in
// amule, custom1 labels in rtorrent. The bridge's name-keyed set is the
// source of truth; mirrors are rewritten to match, never the other way
// around, except that unknown daemon categories are adopted on first
// sight so pre-existing setups keep working.
package categories

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/mulearr/internal/amule"
	"github.com/autobrr/mulearr/internal/clients"
	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/internal/ec"
	"github.com/autobrr/mulearr/pkg/jsonfile"
)

const storeFile = "categories.json"

// Service owns the unified category set. All state mutations serialize
// on mu; reconciliation against the back-ends happens under the same
// lock so readers never observe a half-synced mirror.
type Service struct {
	mgr  *clients.Manager
	path string

	mu       sync.RWMutex
	cats     map[string]domain.Category
	amuleIDs map[string]uint32 // name -> daemon category index
	warnings []domain.PathWarning

	onChange func()
}

// NewService loads the persisted set and guarantees Default exists.
func NewService(dataDir string, mgr *clients.Manager) (*Service, error) {
	s := &Service{
		mgr:      mgr,
		path:     filepath.Join(dataDir, storeFile),
		cats:     make(map[string]domain.Category),
		amuleIDs: make(map[string]uint32),
	}

	var persisted []domain.Category
	if _, err := jsonfile.Load(s.path, &persisted); err != nil {
		return nil, errors.Wrap(err, "load categories")
	}
	for _, cat := range persisted {
		s.cats[cat.Name] = cat
	}

	if _, ok := s.cats[domain.DefaultCategory]; !ok {
		s.cats[domain.DefaultCategory] = domain.Category{
			Name:     domain.DefaultCategory,
			Priority: domain.PriorityNormal,
		}
	}
	s.amuleIDs[domain.DefaultCategory] = 0

	return s, nil
}

// SetOnChange registers the callback fired after every successful
// mutation or reconcile, used to push category deltas to subscribers.
func (s *Service) SetOnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *Service) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// List returns every category, Default first, the rest sorted by name.
func (s *Service) List() []domain.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cats := make([]domain.Category, 0, len(s.cats))
	for _, cat := range s.cats {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Name == domain.DefaultCategory {
			return true
		}
		if cats[j].Name == domain.DefaultCategory {
			return false
		}
		return cats[i].Name < cats[j].Name
	})
	return cats
}

// Get looks one category up by name.
func (s *Service) Get(name string) (domain.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cat, ok := s.cats[name]
	return cat, ok
}

// AmuleID resolves a category name to the daemon's category index.
// Unknown names resolve to the catch-all index 0.
func (s *Service) AmuleID(name string) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.amuleIDs[name]
}

// NameForAmuleID resolves a daemon category index back to the unified
// name; unknown indexes resolve to Default.
func (s *Service) NameForAmuleID(id uint32) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for name, mirrorID := range s.amuleIDs {
		if mirrorID == id {
			return name
		}
	}
	return domain.DefaultCategory
}

// NameForLabel resolves an rtorrent label to the unified name. Labels
// mirror names directly; anything unknown falls back to Default.
func (s *Service) NameForLabel(label string) string {
	if label == "" {
		return domain.DefaultCategory
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.cats[label]; ok {
		return label
	}
	return domain.DefaultCategory
}

// LabelFor resolves a unified name to the rtorrent label. Default maps
// to the empty label, matching untagged downloads.
func (s *Service) LabelFor(name string) string {
	if name == "" || name == domain.DefaultCategory {
		return ""
	}
	return name
}

func validateName(name string) error {
	if name == "" {
		return errors.Wrap(domain.ErrBadRequest, "category name is required")
	}
	if strings.ContainsAny(name, "|\n") {
		return errors.Wrapf(domain.ErrBadRequest, "category name %q contains reserved characters", name)
	}
	return nil
}

// Create adds a category and writes it through to the connected
// back-ends.
func (s *Service) Create(ctx context.Context, cat domain.Category) error {
	if err := validateName(cat.Name); err != nil {
		return err
	}
	if cat.Priority == "" {
		cat.Priority = domain.PriorityNormal
	}

	s.mu.Lock()
	if _, exists := s.cats[cat.Name]; exists {
		s.mu.Unlock()
		return errors.Wrapf(domain.ErrConflict, "category %q already exists", cat.Name)
	}
	s.cats[cat.Name] = cat
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.Reconcile(ctx)
	return nil
}

// Patch carries the mutable category fields for Update; nil fields are
// left untouched.
type Patch struct {
	SavePath     *string
	PathMappings *domain.PathMappings
	Comment      *string
	Color        *string
	Priority     *domain.CategoryPriority
}

// Update applies a patch. Default accepts no changes at all: its
// identity is structural.
func (s *Service) Update(ctx context.Context, name string, patch Patch) error {
	if name == domain.DefaultCategory {
		return errors.Wrap(domain.ErrConflict, "the Default category cannot be modified")
	}

	s.mu.Lock()
	cat, ok := s.cats[name]
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(domain.ErrNotFound, "category %q", name)
	}

	if patch.SavePath != nil {
		cat.SavePath = *patch.SavePath
	}
	if patch.PathMappings != nil {
		cat.PathMappings = *patch.PathMappings
	}
	if patch.Comment != nil {
		cat.Comment = *patch.Comment
	}
	if patch.Color != nil {
		cat.Color = *patch.Color
	}
	if patch.Priority != nil {
		cat.Priority = *patch.Priority
	}

	s.cats[name] = cat
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.Reconcile(ctx)
	return nil
}

// Delete removes a category. Items assigned to it fall back to Default
// on the next snapshot; the daemon-side mirror is removed too.
func (s *Service) Delete(ctx context.Context, name string) error {
	if name == domain.DefaultCategory {
		return errors.Wrap(domain.ErrConflict, "the Default category cannot be deleted")
	}

	s.mu.Lock()
	if _, ok := s.cats[name]; !ok {
		s.mu.Unlock()
		return errors.Wrapf(domain.ErrNotFound, "category %q", name)
	}
	delete(s.cats, name)
	amuleID := s.amuleIDs[name]
	delete(s.amuleIDs, name)
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if client, cerr := s.mgr.Amule(); cerr == nil && amuleID != 0 {
		if derr := client.DeleteCategory(ctx, amuleID); derr != nil {
			log.Warn().Err(derr).Str("category", name).Msg("amule mirror delete failed")
			s.mgr.ReportFailure(domain.ClientAmule, derr)
		}
	}

	s.Reconcile(ctx)
	return nil
}

// Run reconciles on a fixed cadence until ctx is cancelled. Connect
// hooks are registered by the caller; this loop only covers drift.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Reconcile(ctx)
		}
	}
}

// Reconcile pushes the unified set into each connected back-end and
// re-reads the authoritative mirror state. Safe to call concurrently;
// the whole pass runs under the write lock.
func (s *Service) Reconcile(ctx context.Context) {
	s.mu.Lock()
	s.reconcileAmuleLocked(ctx)
	s.checkPathsLocked()
	s.mu.Unlock()

	s.notify()
}

// reconcileAmuleLocked aligns the daemon category table with the
// unified set: adopt unknown daemon categories, create missing
// mirrors, update drifted ones, then re-read to refresh the id map.
func (s *Service) reconcileAmuleLocked(ctx context.Context) {
	client, err := s.mgr.Amule()
	if err != nil {
		return
	}

	daemonCats, err := client.GetCategories(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("amule category read failed")
		s.mgr.ReportFailure(domain.ClientAmule, err)
		return
	}

	byTitle := make(map[string]amule.Category, len(daemonCats))
	for _, dc := range daemonCats {
		byTitle[dc.Title] = dc

		// adopt daemon categories created outside the bridge
		if _, known := s.cats[dc.Title]; !known && dc.ID != 0 {
			s.cats[dc.Title] = domain.Category{
				Name:     dc.Title,
				SavePath: dc.Path,
				Comment:  dc.Comment,
				Color:    colorString(dc.Color),
				Priority: priorityFromWire(dc.Prio, dc.PrioAuto),
			}
			log.Info().Str("category", dc.Title).Msg("adopted amule category")
		}
	}

	dirty := false
	nextID := uint32(len(daemonCats))
	for name, cat := range s.cats {
		if name == domain.DefaultCategory {
			continue
		}

		want := amule.Category{
			Title:   name,
			Path:    cat.EffectivePath(domain.ClientAmule),
			Comment: cat.Comment,
			Color:   colorValue(cat.Color),
		}
		want.Prio, want.PrioAuto = priorityToWire(cat.Priority)

		existing, ok := byTitle[name]
		if !ok {
			want.ID = nextID
			nextID++
			if cerr := client.CreateCategory(ctx, want); cerr != nil {
				log.Warn().Err(cerr).Str("category", name).Msg("amule mirror create failed")
				s.mgr.ReportFailure(domain.ClientAmule, cerr)
				continue
			}
			dirty = true
			continue
		}

		if existing.Path != want.Path || existing.Comment != want.Comment ||
			existing.Color != want.Color || existing.Prio != want.Prio || existing.PrioAuto != want.PrioAuto {
			want.ID = existing.ID
			if uerr := client.UpdateCategory(ctx, want); uerr != nil {
				log.Warn().Err(uerr).Str("category", name).Msg("amule mirror update failed")
				s.mgr.ReportFailure(domain.ClientAmule, uerr)
			}
			dirty = true
		}
	}

	if dirty {
		daemonCats, err = client.GetCategories(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("amule category re-read failed")
			s.mgr.ReportFailure(domain.ClientAmule, err)
			return
		}
	}

	ids := map[string]uint32{domain.DefaultCategory: 0}
	for _, dc := range daemonCats {
		if dc.ID == 0 {
			continue
		}
		ids[dc.Title] = dc.ID
	}
	s.amuleIDs = ids
}

// Warnings returns the current path warning set.
func (s *Service) Warnings() []domain.PathWarning {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PathWarning, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// HasPathWarnings reports whether any category path is unusable.
func (s *Service) HasPathWarnings() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.warnings) > 0
}

// CheckPaths recomputes path warnings on demand.
func (s *Service) CheckPaths() []domain.PathWarning {
	s.mu.Lock()
	s.checkPathsLocked()
	s.mu.Unlock()

	return s.Warnings()
}

func (s *Service) persistLocked() error {
	cats := make([]domain.Category, 0, len(s.cats))
	for _, cat := range s.cats {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })

	return errors.Wrap(jsonfile.Save(s.path, cats), "persist categories")
}

func priorityToWire(p domain.CategoryPriority) (prio uint8, auto bool) {
	switch p {
	case domain.PriorityLow:
		return ec.PrioLow, false
	case domain.PriorityHigh:
		return ec.PrioHigh, false
	case domain.PriorityAuto:
		return ec.PrioNormal, true
	default:
		return ec.PrioNormal, false
	}
}

func priorityFromWire(prio uint8, auto bool) domain.CategoryPriority {
	if auto {
		return domain.PriorityAuto
	}
	switch prio {
	case ec.PrioLow, ec.PrioVeryLow:
		return domain.PriorityLow
	case ec.PrioHigh, ec.PrioVeryHigh:
		return domain.PriorityHigh
	default:
		return domain.PriorityNormal
	}
}

func colorValue(color string) uint32 {
	raw := strings.TrimPrefix(color, "#")
	if len(raw) != 6 {
		return 0
	}
	v, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

func colorString(color uint32) string {
	if color == 0 {
		return ""
	}
	return fmt.Sprintf("#%06x", color)
}
