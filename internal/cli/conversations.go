// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jeranaias/difychat/internal/gateway"
	"github.com/jeranaias/difychat/internal/util"
)

func newConversationsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv", "c"},
		Short:   "List, rename and delete conversations",
	}
	cmd.AddCommand(
		newConversationsListCommand(a),
		newConversationsRenameCommand(a),
		newConversationsDeleteCommand(a),
	)
	return cmd
}

func newConversationsListCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			gw, user, err := a.gatewayAndUser(cmd)
			if err != nil {
				return err
			}
			cfg, _ := a.loadConfig()
			if limit <= 0 {
				limit = cfg.Client.PageLimit
			}

			page, err := gw.ListConversations(ctx, gateway.ListConversationsParams{
				User:   user,
				Limit:  limit,
				SortBy: gateway.DefaultSortBy,
			})
			if err != nil {
				return err
			}

			data := make([]ConversationData, 0, len(page.Data))
			for _, rec := range page.Data {
				data = append(data, conversationData(rec))
			}
			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return NewJSONResponse("conversations list", data).Print(out)
			}
			if len(data) == 0 {
				fmt.Fprintln(out, "No conversations.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tUPDATED")
			for _, rec := range page.Data {
				s := rec.Summary()
				fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.ID, util.TruncateWidth(s.DisplayName, 40),
					s.LastUpdatedAt.Format("2006-01-02 15:04:05"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if page.HasMore {
				fmt.Fprintln(out, RenderConditional(DimStyle, "More conversations exist; raise --limit to see them."))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of conversations (default client.page_limit)")
	return cmd
}

func newConversationsRenameCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <id> [name]",
		Short: "Rename a conversation; without a name the service generates one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, user, err := a.gatewayAndUser(cmd)
			if err != nil {
				return err
			}
			name := strings.TrimSpace(strings.Join(args[1:], " "))
			res, err := gw.RenameConversation(cmd.Context(), args[0], name, user)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return NewJSONResponse("conversations rename", ConversationData{ID: res.ID, Name: res.Name}).Print(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s renamed to %q\n", RenderConditional(SuccessStyle, "[OK]"), args[0], res.Name)
			return nil
		},
	}
	return cmd
}

func newConversationsDeleteCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete conversations",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, user, err := a.gatewayAndUser(cmd)
			if err != nil {
				return err
			}
			var deleted []string
			for _, id := range args {
				if err := gw.DeleteConversation(cmd.Context(), id, user); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				deleted = append(deleted, id)
				if !a.jsonOutput {
					fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %s\n", RenderConditional(SuccessStyle, "[OK]"), id)
				}
			}
			if a.jsonOutput {
				return NewJSONResponse("conversations delete", map[string]any{"deleted": deleted}).Print(cmd.OutOrStdout())
			}
			return nil
		},
	}
	return cmd
}

// =============================================================================
// HISTORY
// =============================================================================

func newHistoryCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, user, err := a.gatewayAndUser(cmd)
			if err != nil {
				return err
			}
			page, err := gw.ListMessages(cmd.Context(), gateway.ListMessagesParams{
				ConversationID: args[0],
				User:           user,
				Limit:          limit,
			})
			if err != nil {
				return err
			}

			records := append([]gateway.MessageRecord(nil), page.Data...)
			sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt < records[j].CreatedAt })

			var turns []TurnData
			for _, rec := range records {
				turns = append(turns, TurnData{Role: "user", Content: rec.Query})
				if url, ok := rec.AssistantImage(); ok {
					turns = append(turns, TurnData{Role: "assistant", ImageURL: url})
				} else {
					turns = append(turns, TurnData{Role: "assistant", Content: rec.Answer})
				}
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return NewJSONResponse("history", turns).Print(out)
			}
			for i, t := range turns {
				if i > 0 && t.Role == "user" {
					fmt.Fprintln(out, RenderSeparator(40))
				}
				label := RenderConditional(promptStyle, "You:")
				if t.Role == "assistant" {
					label = RenderConditional(assistantStyle, "Assistant:")
				}
				text := t.Content
				if t.ImageURL != "" {
					text = "[image] " + t.ImageURL
				}
				fmt.Fprintf(out, "%s %s\n", label, text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", gateway.DefaultPageLimit, "number of messages")
	return cmd
}

// gatewayAndUser sets up logging and returns the client and user id for the
// CRUD commands.
func (a *app) gatewayAndUser(cmd *cobra.Command) (*gateway.Client, string, error) {
	if _, err := a.setupLogging(false); err != nil {
		return nil, "", err
	}
	gw, err := a.client()
	if err != nil {
		return nil, "", err
	}
	user, err := a.user(cmd.Context())
	if err != nil {
		return nil, "", err
	}
	return gw, user, nil
}
