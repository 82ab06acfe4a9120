// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package categories

import (
	"os"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/autobrr/mulearr/internal/domain"
)

// dockerEnvFile marks a containerized filesystem; its presence turns
// every path warning into a volume-mount hint.
const dockerEnvFile = "/.dockerenv"

func runningInContainer() bool {
	_, err := os.Stat(dockerEnvFile)
	return err == nil
}

// checkPath probes one directory from the bridge's filesystem view.
// Empty problem means the path is usable.
func checkPath(path string) (problem string) {
	if path == "" {
		return ""
	}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return "path does not exist"
	case err != nil:
		return "path is not accessible: " + err.Error()
	case !info.IsDir():
		return "path is not a directory"
	}

	if err := unix.Access(path, unix.R_OK); err != nil {
		return "path is not readable"
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return "path is not writable"
	}
	return ""
}

// checkPathsLocked recomputes the warning set for every category and
// every connected back-end. Caller holds the write lock.
func (s *Service) checkPathsLocked() {
	inContainer := runningInContainer()
	var warnings []domain.PathWarning

	for _, client := range []domain.ClientType{domain.ClientAmule, domain.ClientRtorrent} {
		if !s.mgr.Connected(client) {
			continue
		}

		for name, cat := range s.cats {
			path := cat.EffectivePath(client)
			if path == "" {
				continue
			}

			if problem := checkPath(path); problem != "" {
				if inContainer {
					problem += "; verify the volume is mounted into the bridge container"
				}
				warnings = append(warnings, domain.PathWarning{
					Category:   name,
					Client:     client,
					Path:       path,
					Problem:    problem,
					DockerHint: inContainer,
				})
			}
		}
	}

	sort.Slice(warnings, func(i, j int) bool {
		if warnings[i].Category != warnings[j].Category {
			return warnings[i].Category < warnings[j].Category
		}
		return warnings[i].Client < warnings[j].Client
	})
	s.warnings = warnings
}
