// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/difychat/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit the configuration",
		Long: `Show and edit the configuration.

Keys use dot notation, for example remote.base_url or client.direct.
Environment variables (DIFYCHAT_*) override the file but are never written
back to it.`,
	}
	cmd.AddCommand(
		newConfigShowCommand(a),
		newConfigGetCommand(a),
		newConfigSetCommand(a),
		newConfigPathCommand(a),
		newConfigKeysCommand(a),
	)
	return cmd
}

func newConfigShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (API key redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOutput {
				fmt.Fprintln(out, cfg.String())
				return nil
			}

			source := a.cfgPath
			if source == "" {
				source = "(defaults)"
			}
			fmt.Fprintln(out, RenderConditional(TitleStyle, "difychat configuration"))
			fmt.Fprintf(out, "%s%s\n", RenderLabel("file"), source)
			fmt.Fprintln(out, RenderSeparator(50))
			for _, key := range config.Keys() {
				v, _ := cfg.Get(key)
				if key == "remote.api_key" && v != "" {
					v = "[REDACTED]"
				}
				fmt.Fprintf(out, "%s%v\n", RenderLabel(key), v)
			}
			return nil
		},
	}
}

func newConfigGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				return &NotFoundError{Resource: "config key", ID: args[0]}
			}
			if a.jsonOutput {
				return NewJSONResponse("config get", map[string]any{"key": args[0], "value": v}).Print(cmd.OutOrStdout())
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newConfigSetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one value in the config file",
		Example: `  $ difychat config set remote.api_key app-xxxxxxxx
  $ difychat config set client.inputs '{"uuid":"1234"}'
  $ difychat config set server.cors_origins http://localhost:5173,https://chat.example.com`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.writablePath()
			if err != nil {
				return err
			}

			// Only the file is edited; environment overrides stay out of it.
			cfg := config.Default()
			if err := config.LoadFile(cfg, path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return &ValidationError{Field: args[0], Value: args[1], Reason: err.Error()}
			}
			cfg.SetDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s updated in %s\n", RenderConditional(SuccessStyle, "[OK]"), args[0], path)
			return nil
		},
	}
}

func newConfigPathCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.writablePath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigKeysCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List every configuration key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(config.Keys(), "\n"))
			return nil
		},
	}
}

// writablePath is the file config set writes: the resolved file, else the
// default location.
func (a *app) writablePath() (string, error) {
	if p := config.Resolve(a.configPath); p != "" {
		return p, nil
	}
	return config.DefaultPath()
}
