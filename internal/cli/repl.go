// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Line-oriented chat for terminals without the full-screen UI.
//
// Command: repl
// Short:   Chat line by line
//
// Interactive Commands:
//   /help, /h               Show available commands
//   /new                    Start a new conversation
//   /list, /ls              List conversations
//   /open <n|id>            Open a conversation and print its history
//   /rename <n|id> [name]   Rename a conversation (empty name: auto-generate)
//   /delete <n|id>          Delete a conversation
//   /quit, /q               Exit
//   Ctrl+C                  Cancel the reply being received
//   Ctrl+D                  Exit

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/difychat/internal/model"
	"github.com/jeranaias/difychat/internal/session"
	"github.com/jeranaias/difychat/internal/storage"
)

// lineReader is the part of liner.State the REPL uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// historyStore persists input lines between sessions.
type historyStore interface {
	AppendHistory(ctx context.Context, line string) error
	History(ctx context.Context, limit int) ([]string, error)
}

func newReplCommand(a *app) *cobra.Command {
	var resume bool

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Chat line by line",
		Long: `Chat line by line. Replies are printed as they stream in.

Type /help for the list of commands. Up and down arrows walk the input
history, which is kept between sessions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.setupLogging(false); err != nil {
				return err
			}
			// Ctrl+C cancels a reply, not the REPL; Ctrl+D exits.
			ctx := context.WithoutCancel(cmd.Context())

			store, err := a.openStore()
			if err != nil {
				return err
			}
			mgr, err := a.manager(ctx, nil)
			if err != nil {
				return err
			}
			defer mgr.Wait()

			line := liner.NewLiner()
			line.SetCtrlCAborts(true)

			r := &repl{
				mgr:     mgr,
				in:      line,
				history: store,
				out:     cmd.OutOrStdout(),
			}
			defer r.in.Close()

			last := ""
			if resume {
				last, _, _ = store.Get(ctx, storage.KeyLastConversation)
			}
			return r.run(ctx, last)
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "reopen the last conversation of the chat interface")
	return cmd
}

// =============================================================================
// REPL
// =============================================================================

type repl struct {
	mgr     *session.Manager
	in      lineReader
	history historyStore
	out     io.Writer
}

// run loads history and the conversation list, then reads lines until /quit
// or end of input.
func (r *repl) run(ctx context.Context, resumeID string) error {
	if r.history != nil {
		if lines, err := r.history.History(ctx, storage.DefaultHistoryLimit); err == nil {
			for _, l := range lines {
				r.in.AppendHistory(l)
			}
		}
	}

	if resumeID != "" {
		if err := r.mgr.Resume(ctx, resumeID); err == nil {
			r.printTranscript()
		}
	} else {
		r.mgr.StartNew()
		_ = r.mgr.Refresh(ctx)
	}
	fmt.Fprintf(r.out, "%s %d conversations. /help for commands, Ctrl+D to exit.\n",
		RenderConditional(TitleStyle, "difychat"), r.countCommitted())

	for {
		input, err := r.in.Prompt(RenderConditional(promptStyle, "> "))
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(r.out)
			return nil
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.in.AppendHistory(input)
		if r.history != nil {
			_ = r.history.AppendHistory(ctx, input)
		}

		if quit := r.handle(ctx, input); quit {
			return nil
		}
	}
}

// handle executes one input line. It reports whether the REPL should exit.
func (r *repl) handle(ctx context.Context, input string) (quit bool) {
	if !strings.HasPrefix(input, "/") {
		r.send(ctx, input)
		return false
	}

	fields := strings.Fields(input)
	name, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch name {
	case "/quit", "/q", "/exit":
		return true
	case "/help", "/h", "/?":
		r.printHelp()
	case "/new":
		r.mgr.StartNew()
		fmt.Fprintln(r.out, RenderConditional(DimStyle, "New conversation."))
	case "/list", "/ls":
		if err = r.mgr.Refresh(ctx); err == nil {
			r.printList()
		}
	case "/open":
		err = r.withTarget(args, func(id string) error {
			if err := r.mgr.SwitchTo(ctx, id); err != nil {
				return err
			}
			r.printTranscript()
			return nil
		})
	case "/rename":
		err = r.withTarget(args, func(id string) error {
			res, err := r.mgr.Rename(ctx, id, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Renamed to %q.\n", res.Name)
			return nil
		})
	case "/delete", "/rm":
		err = r.withTarget(args, func(id string) error {
			if err := r.mgr.Remove(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(r.out, "Deleted.")
			return nil
		})
	default:
		err = fmt.Errorf("unknown command %s (try /help)", name)
	}

	if err != nil {
		fmt.Fprintf(r.out, "%s %s\n", RenderConditional(ErrorStyle, "[ERROR]"), session.Describe(err))
	}
	return false
}

// send submits query and streams the reply. Ctrl+C while the reply arrives
// cancels it.
func (r *repl) send(ctx context.Context, query string) {
	printer := newStreamPrinter(r.out)
	detach := printer.attach(r.mgr.Transcript())
	defer detach()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			r.mgr.Cancel()
		case <-done:
		}
	}()

	fmt.Fprint(r.out, RenderConditional(assistantStyle, "Assistant: "))
	_, err := r.mgr.Submit(ctx, query)
	printer.finish()
	// Let the directory refresh land so list numbers match what /list shows.
	r.mgr.Wait()
	if !printer.wrote() {
		fmt.Fprintln(r.out)
	}
	if err != nil {
		fmt.Fprintf(r.out, "%s %s\n", RenderConditional(ErrorStyle, "[ERROR]"), session.Describe(err))
	}
}

// withTarget resolves the first argument, a list number or a conversation
// id, and calls fn with the id.
func (r *repl) withTarget(args []string, fn func(id string) error) error {
	if len(args) == 0 {
		return &ValidationError{Field: "conversation", Reason: "missing number or id", Example: "/open 1"}
	}
	id, err := r.resolve(args[0])
	if err != nil {
		return err
	}
	return fn(id)
}

func (r *repl) resolve(arg string) (string, error) {
	committed := r.committed()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(committed) {
			return "", &NotFoundError{Resource: "conversation", ID: arg}
		}
		return committed[n-1].Ref.ID(), nil
	}
	return arg, nil
}

// committed returns the listed conversations that exist on the service.
func (r *repl) committed() []model.Summary {
	var out []model.Summary
	for _, s := range r.mgr.Directory().List() {
		if s.Ref.IsCommitted() {
			out = append(out, s)
		}
	}
	return out
}

func (r *repl) countCommitted() int { return len(r.committed()) }

// =============================================================================
// OUTPUT
// =============================================================================

func (r *repl) printList() {
	list := r.committed()
	if len(list) == 0 {
		fmt.Fprintln(r.out, RenderConditional(DimStyle, "No conversations yet."))
		return
	}
	selected := r.mgr.Directory().Selected()
	for i, s := range list {
		marker := " "
		if s.Ref == selected {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %2d. %s  %s\n", marker, i+1, s.Label(), RenderConditional(DimStyle, s.Ref.ID()))
	}
}

func (r *repl) printTranscript() {
	for _, t := range r.mgr.Transcript().List() {
		label := RenderConditional(promptStyle, "You: ")
		if t.Role == model.RoleAssistant {
			label = RenderConditional(assistantStyle, "Assistant: ")
		}
		text := t.Content
		if t.IsImage {
			text = "[image] " + t.ImageURL
		}
		fmt.Fprintf(r.out, "%s%s\n", label, text)
	}
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, `Commands:
  /new                    start a new conversation
  /list                   list conversations
  /open <n|id>            open a conversation
  /rename <n|id> [name]   rename (no name: auto-generate)
  /delete <n|id>          delete a conversation
  /quit                   exit
Anything else is sent as a message. Ctrl+C cancels a reply.`)
}
