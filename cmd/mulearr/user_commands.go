// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/autobrr/mulearr/internal/auth"
	"github.com/autobrr/mulearr/internal/config"
)

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Write a default config.toml without starting the bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New(configDir)
			if err != nil {
				return err
			}
			cmd.Printf("Config file: %s\n", cfg.ConfigFile())
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory or file for config.toml (default: XDG config dir)")
	return cmd
}

func RunCreateUserCommand() *cobra.Command {
	var (
		configDir string
		username  string
		password  string
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create the initial web UI user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			authSvc, err := openAuthService(configDir)
			if err != nil {
				return err
			}

			complete, err := authSvc.IsSetupComplete(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "check setup status")
			}
			if complete {
				cmd.Println("User account already exists, not overwriting. Use change-password instead.")
				return nil
			}

			if username == "" {
				return errors.New("--username is required")
			}
			if password == "" {
				if password, err = promptPassword(cmd, "New password: "); err != nil {
					return err
				}
			}

			if _, err := authSvc.SetupUser(cmd.Context(), username, password); err != nil {
				return err
			}
			cmd.Printf("User '%s' created successfully\n", username)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory or file for config.toml (default: XDG config dir)")
	cmd.Flags().StringVar(&username, "username", "", "Username for the new account")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	return cmd
}

func RunChangePasswordCommand() *cobra.Command {
	var (
		configDir string
		username  string
		password  string
	)

	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Reset the web UI password without the old one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			authSvc, err := openAuthService(configDir)
			if err != nil {
				return err
			}

			if password == "" {
				if password, err = promptPassword(cmd, "New password: "); err != nil {
					return err
				}
				confirm, err := promptPassword(cmd, "Confirm password: ")
				if err != nil {
					return err
				}
				if password != confirm {
					return errors.New("passwords do not match")
				}
			}

			if err := authSvc.SetPassword(cmd.Context(), username, password); err != nil {
				return err
			}
			cmd.Println("Password changed successfully")
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory or file for config.toml (default: XDG config dir)")
	cmd.Flags().StringVar(&username, "username", "", "Username to update (default: the existing account)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	return cmd
}

func openAuthService(configDir string) (*auth.Service, error) {
	cfg, err := config.New(configDir)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return auth.NewService(cfg.GetDataDir())
}

// promptPassword reads without echo when attached to a terminal and
// falls back to a plain line read otherwise, so the commands stay
// scriptable.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	cmd.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		cmd.Println()
		if err != nil {
			return "", errors.Wrap(err, "read password")
		}
		return string(raw), nil
	}

	var line string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &line); err != nil {
		return "", errors.Wrap(err, "read password")
	}
	return strings.TrimSpace(line), nil
}
