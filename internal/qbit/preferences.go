// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbit

// preferences returns the app/preferences payload. The values are
// mostly frozen: the *arr clients read save_path and a handful of
// capability flags at setup time and ignore the rest, and nothing here
// is writable through the bridge.
func (s *Service) preferences() map[string]any {
	savePath := s.cfg.Amule.DownloadFolder
	if savePath == "" {
		savePath = s.cfg.Rtorrent.DownloadFolder
	}

	return map[string]any{
		"save_path":                     savePath,
		"temp_path":                     "",
		"temp_path_enabled":             false,
		"export_dir":                    "",
		"export_dir_fin":                "",
		"create_subfolder_enabled":      true,
		"torrent_content_layout":        "Original",
		"start_paused_enabled":          false,
		"auto_tmm_enabled":              false,
		"preallocate_all":               false,
		"incomplete_files_ext":          false,
		"max_active_downloads":          -1,
		"max_active_torrents":           -1,
		"max_active_uploads":            -1,
		"max_ratio_enabled":             false,
		"max_ratio":                     -1,
		"max_ratio_act":                 0,
		"max_seeding_time_enabled":      false,
		"max_seeding_time":              -1,
		"dht":                           false,
		"pex":                           false,
		"lsd":                           false,
		"encryption":                    0,
		"queueing_enabled":              false,
		"dont_count_slow_torrents":      false,
		"web_ui_address":                s.cfg.Host,
		"web_ui_port":                   s.cfg.Port,
		"web_ui_username":               "",
		"bypass_local_auth":             false,
		"bypass_auth_subnet_whitelist_enabled": false,
		"locale":                        "en",
	}
}
