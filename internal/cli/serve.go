// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/difychat/internal/config"
	"github.com/jeranaias/difychat/internal/server"
)

// shutdownTimeout bounds how long open streams may take to finish.
const shutdownTimeout = 15 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var (
		addr      string
		staticDir string
		noWatch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat proxy",
		Long: `Run the HTTP proxy in front of the chat service.

The proxy injects the API key from [remote] so browsers and terminal clients
never see it, relays reply streams as they arrive and serves the static web
client from [server].static_dir. Changes to the config file are picked up
without a restart.`,
		Example: `  $ difychat serve
  $ difychat serve --addr :8080 --static ./web`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			logger, err := a.setupLogging(false)
			if err != nil {
				return err
			}

			sc := server.ConfigFrom(cfg, logger)
			if addr != "" {
				sc.Addr = addr
			}
			if staticDir != "" {
				sc.StaticDir = staticDir
			}
			if cfg.Remote.APIKey == "" {
				logger.Warn("remote.api_key is not set; the service will reject requests")
				fmt.Fprintf(cmd.ErrOrStderr(), "%s remote.api_key is not set; set it with 'difychat config set remote.api_key ...'\n",
					RenderConditional(WarningStyle, "[WARN]"))
			}

			srv := server.New(sc, server.NewUpstream(cfg, logger))

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if a.cfgPath != "" && !noWatch {
				err := srv.WatchConfig(ctx, a.cfgPath, func(c *config.Config) server.Upstream {
					return server.NewUpstream(c, logger)
				})
				if err != nil {
					logger.Warn("config hot reload disabled", "path", a.cfgPath, "error", err)
				}
			}

			if !a.jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "%s listening on %s, forwarding to %s\n",
					RenderConditional(TitleStyle, "difychat proxy"), srv.Addr(), cfg.Remote.BaseURL)
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			select {
			case err := <-errCh:
				return err
			case <-shutdownCtx.Done():
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&staticDir, "static", "", "static file directory (overrides server.static_dir)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}
