// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeranaias/difychat/internal/storage"
	"github.com/jeranaias/difychat/internal/ui/chat"
	"github.com/jeranaias/difychat/internal/ui/styles"
)

func newChatCommand(a *app) *cobra.Command {
	var (
		resume   string
		fresh    bool
		blocking bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start the full-screen chat",
		Long: `Start the full-screen chat interface.

The last conversation you had open is reopened. Keys:

  enter          send            ctrl+n      new conversation
  ctrl+up/down   move selection  ctrl+o      open selected
  ctrl+r         auto-rename     ctrl+x      delete selected
  esc            cancel reply    ctrl+c      quit
  alt+enter      newline         F1          all keys`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTerminal("difychat chat"); err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if _, err := a.setupLogging(true); err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			mgr, err := a.manager(ctx, a.rememberActive(ctx))
			if err != nil {
				return err
			}

			if resume == "" && !fresh {
				resume, _, _ = store.Get(ctx, storage.KeyLastConversation)
			}

			return chat.Run(ctx, mgr, chat.Options{
				Theme:    styles.NewTheme(),
				ResumeID: resume,
				Blocking: blocking || cfg.Client.ResponseMode == "blocking",
			})
		},
	}

	cmd.Flags().StringVar(&resume, "resume", "", "open this conversation id")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "do not reopen the last conversation")
	cmd.Flags().BoolVar(&blocking, "blocking", false, "wait for whole replies instead of streaming")
	return cmd
}
