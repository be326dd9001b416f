// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jeranaias/difychat/internal/config"
	"github.com/jeranaias/difychat/internal/gateway"
	"github.com/jeranaias/difychat/internal/identity"
	"github.com/jeranaias/difychat/internal/logging"
	"github.com/jeranaias/difychat/internal/session"
	"github.com/jeranaias/difychat/internal/storage"
)

// BuildInfo is stamped into the binary at build time.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// =============================================================================
// APPLICATION STATE
// =============================================================================

// app is the state shared by all commands of one invocation. It is filled
// lazily so that commands like version never touch the disk.
type app struct {
	info BuildInfo

	// Global flags
	configPath string
	jsonOutput bool
	verbose    bool

	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger
	store   *storage.Store
	closers []io.Closer
}

// loadConfig reads the configuration once.
func (a *app) loadConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, path, err := config.Load(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.SetGlobal(cfg)
	a.cfg, a.cfgPath = cfg, path
	return cfg, nil
}

// setupLogging builds the process logger. Full-screen commands always log to
// a file so records never land on the terminal.
func (a *app) setupLogging(fullScreen bool) (*slog.Logger, error) {
	if a.logger != nil {
		return a.logger, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	lc := logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}
	if a.verbose {
		lc.Level = "debug"
	}
	switch {
	case cfg.Log.File != "":
		lc.Output, lc.FilePath = "file", cfg.Log.File
	case fullScreen:
		dir, err := config.ConfigDir()
		if err != nil {
			lc.Output = "discard"
		} else {
			lc.Output, lc.FilePath = "file", filepath.Join(dir, "difychat.log")
		}
	default:
		lc.Output = "stderr"
	}

	logger, closer, err := logging.Setup(lc)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	a.closers = append(a.closers, closer)
	a.logger = logger
	return logger, nil
}

// openStore opens the local state database.
func (a *app) openStore() (*storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.State.Path
	if path == "" {
		path = storage.DefaultPath()
	}
	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	a.closers = append(a.closers, store)
	a.store = store
	return store, nil
}

// user resolves the user identifier: the configured override, else the
// stored one, else a fresh one.
func (a *app) user(ctx context.Context) (string, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Client.UserID != "" {
		return cfg.Client.UserID, nil
	}
	store, err := a.openStore()
	if err != nil {
		return "", err
	}
	return identity.Resolve(ctx, store, "")
}

// client builds the gateway client. Clients talk to the proxy unless
// client.direct is set, in which case they carry the API key themselves.
func (a *app) client() (*gateway.Client, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := a.logger
	if logger == nil {
		logger = logging.Discard()
	}

	gc := gateway.Config{
		BaseURL:    cfg.Client.ProxyURL,
		UserAgent:  "difychat/" + a.info.Version,
		Timeout:    cfg.Remote.Timeout(),
		MaxRetries: cfg.Remote.MaxRetries,
		Logger:     logger,
	}
	if cfg.Client.Direct {
		gc.BaseURL = cfg.Remote.BaseURL
		gc.APIKey = cfg.Remote.APIKey
	}
	return gateway.New(gc), nil
}

// manager builds a session manager for the resolved user.
func (a *app) manager(ctx context.Context, onActivate func(id string)) (*session.Manager, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	gw, err := a.client()
	if err != nil {
		return nil, err
	}
	user, err := a.user(ctx)
	if err != nil {
		return nil, err
	}
	logger := a.logger
	if logger == nil {
		logger = logging.Discard()
	}

	return session.NewManager(gw, session.Config{
		User:         user,
		Inputs:       cfg.Client.Inputs,
		PageLimit:    cfg.Client.PageLimit,
		PendingName:  cfg.Client.DefaultName,
		IdleTimeout:  cfg.Stream.IdleTimeout(),
		MaxBlockSize: cfg.Stream.MaxBlockSize,
		Logger:       logger,
		OnActivate:   onActivate,
	}), nil
}

// rememberActive returns an OnActivate hook that persists the active
// conversation for the next chat session.
func (a *app) rememberActive(ctx context.Context) func(id string) {
	return func(id string) {
		if a.store == nil {
			return
		}
		var err error
		if id == "" {
			err = a.store.Delete(ctx, storage.KeyLastConversation)
		} else {
			err = a.store.Set(ctx, storage.KeyLastConversation, id)
		}
		if err != nil && a.logger != nil {
			a.logger.Warn("failed to persist active conversation", "conversation", id, "error", err)
		}
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCommand builds the difychat command tree.
func NewRootCommand(info BuildInfo) *cobra.Command {
	root, _ := newRoot(info)
	return root
}

func newRoot(info BuildInfo) (*cobra.Command, *app) {
	a := &app{info: info}

	root := &cobra.Command{
		Use:   "difychat",
		Short: "Terminal chat client and proxy for a hosted conversational AI service",
		Long: `difychat talks to a hosted conversational AI service, either directly or
through its own small proxy that keeps the API key on the server.

Replies stream in token by token. Conversations are listed, renamed and
deleted on the service; nothing but your user id, the last open
conversation and your input history is kept locally.`,
		Example: `  # Run the proxy in front of the service
  $ difychat serve

  # Full-screen chat
  $ difychat chat

  # One question, answer on stdout
  $ difychat ask "What is the capital of Portugal?"`,
		Version:       info.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("difychat %s (commit: %s, built: %s)\n", info.Version, info.GitCommit, info.BuildDate))

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default $DIFYCHAT_CONFIG or ~/.difychat/config.toml)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "print machine-readable JSON")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newServeCommand(a),
		newChatCommand(a),
		newReplCommand(a),
		newAskCommand(a),
		newConversationsCommand(a),
		newHistoryCommand(a),
		newConfigCommand(a),
		newVersionCommand(a),
	)
	return root, a
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(ctx context.Context, args []string, info BuildInfo) int {
	root, a := newRoot(info)
	defer a.close()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	DisplayError(os.Stderr, err, a.jsonOutput)
	return GetExitCode(err)
}
