// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Command: ask
// Short:   Ask a single question
//
// Examples:
//   difychat ask "What is the capital of Portugal?"
//   difychat ask --conversation 8e2f... "And of Spain?"
//   echo "Summarize this" | difychat ask
//   difychat ask --json "Hello"
//
// Flags:
//   --blocking            Wait for the whole answer (response_mode=blocking)
//   --conversation ID     Continue an existing conversation
//   --plain               Never render markdown

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/difychat/internal/gateway"
	"github.com/jeranaias/difychat/internal/model"
	"github.com/jeranaias/difychat/internal/session"
	"github.com/jeranaias/difychat/internal/ui/styles"
)

type askOptions struct {
	blocking     bool
	conversation string
	plain        bool
}

func newAskCommand(a *app) *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question",
		Long: `Ask a single question and print the answer.

When stdout is a terminal the answer is rendered as markdown once it is
complete. Otherwise it is streamed to stdout as plain text while it arrives.
With no argument the question is read from stdin.`,
		Example: `  $ difychat ask "What is the capital of Portugal?"
  $ difychat ask --conversation 8e2f0c1a "And of Spain?"
  $ echo "Summarize this" | difychat ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if query == "" && !stdinIsTerminal() {
				data, err := io.ReadAll(bufio.NewReader(os.Stdin))
				if err != nil {
					return fmt.Errorf("read question: %w", err)
				}
				query = string(data)
			}
			if strings.TrimSpace(query) == "" {
				return &ValidationError{Field: "question", Reason: "must not be empty", Example: `difychat ask "Hello"`}
			}

			if _, err := a.setupLogging(false); err != nil {
				return err
			}
			mgr, err := a.manager(cmd.Context(), nil)
			if err != nil {
				return err
			}
			cfg, _ := a.loadConfig()
			if cfg.Client.ResponseMode == string(gateway.ModeBlocking) {
				opts.blocking = true
			}
			return runAsk(cmd.Context(), a, mgr, query, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVar(&opts.blocking, "blocking", false, "wait for the whole answer (response_mode=blocking)")
	cmd.Flags().StringVar(&opts.conversation, "conversation", "", "continue this conversation id")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "never render markdown")
	return cmd
}

func runAsk(ctx context.Context, a *app, mgr *session.Manager, query string, opts *askOptions, out, errOut io.Writer) error {
	defer mgr.Wait()

	if opts.conversation != "" {
		if err := mgr.SwitchTo(ctx, opts.conversation); err != nil {
			return fmt.Errorf("open conversation %s: %w", opts.conversation, err)
		}
	} else {
		mgr.StartNew()
	}

	render := !opts.plain && !a.jsonOutput && isTerminalWriter(out)
	streaming := !opts.blocking && !render && !a.jsonOutput

	var printer *streamPrinter
	if streaming {
		printer = newStreamPrinter(out)
		detach := printer.attach(mgr.Transcript())
		defer detach()
	} else if render {
		fmt.Fprintln(errOut, RenderConditional(DimStyle, "Waiting for reply..."))
	}

	start := time.Now()
	var err error
	if opts.blocking {
		_, err = mgr.SubmitBlocking(ctx, query)
	} else {
		_, err = mgr.Submit(ctx, query)
	}
	if printer != nil {
		printer.finish()
	}
	if err != nil {
		return err
	}

	answer, imageURL := lastAnswer(mgr)
	mode := gateway.ModeStreaming
	if opts.blocking {
		mode = gateway.ModeBlocking
	}

	switch {
	case a.jsonOutput:
		return NewJSONResponse("ask", AskData{
			Answer:         answer,
			ImageURL:       imageURL,
			ConversationID: mgr.Session().Conversation.ID(),
			Mode:           string(mode),
			DurationMs:     time.Since(start).Milliseconds(),
		}).Print(out)
	case render:
		md := styles.NewMarkdown(styles.NewTheme())
		fmt.Fprintln(out, md.Render(answer, answerWidth(out)))
		if imageURL != "" {
			fmt.Fprintf(out, "[image] %s\n", imageURL)
		}
	case !streaming:
		fmt.Fprintln(out, answer)
		if imageURL != "" {
			fmt.Fprintf(out, "[image] %s\n", imageURL)
		}
	}
	return nil
}

// lastAnswer returns the text and first image of the assistant turns after
// the last user turn. Text split around an image is joined.
func lastAnswer(mgr *session.Manager) (text, imageURL string) {
	turns := mgr.Transcript().List()
	start := len(turns)
	for start > 0 && turns[start-1].Role != model.RoleUser {
		start--
	}
	var parts []string
	for _, t := range turns[start:] {
		switch {
		case t.IsImage && imageURL == "":
			imageURL = t.ImageURL
		case !t.IsImage:
			parts = append(parts, t.Content)
		}
	}
	return strings.Join(parts, ""), imageURL
}
