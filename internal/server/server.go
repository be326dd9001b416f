// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/difychat/internal/config"
	"github.com/jeranaias/difychat/internal/gateway"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the listen address of the original deployment.
	DefaultAddr = ":3000"

	// MaxRequestBodySize caps client request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// relayBufferSize is the read size for relayed streams.
	relayBufferSize = 4 * 1024

	// Version is the server version.
	Version = "0.3.0"
)

// Failure messages, one per route.
const (
	msgChatFailed     = "Failed to fetch from API"
	msgListFailed     = "Failed to fetch conversations"
	msgMessagesFailed = "Failed to fetch messages"
	msgDeleteFailed   = "Failed to delete conversation"
	msgRenameFailed   = "Failed to rename conversation"
)

// ============================================================================
// UPSTREAM
// ============================================================================

// Upstream sends a request to the remote service and returns the raw
// response. *gateway.Client implements it.
type Upstream interface {
	Forward(ctx context.Context, method, path string, query url.Values, body any, streaming bool) (*http.Response, error)
}

// upstreamRef boxes an Upstream for atomic.Pointer.
type upstreamRef struct {
	up Upstream
}

// NewUpstream builds the gateway client the proxy forwards through.
func NewUpstream(cfg *config.Config, logger *slog.Logger) *gateway.Client {
	return gateway.New(gateway.Config{
		BaseURL:    cfg.Remote.BaseURL,
		APIKey:     cfg.Remote.APIKey,
		UserAgent:  "difychat-proxy/" + Version,
		Timeout:    cfg.Remote.Timeout(),
		MaxRetries: cfg.Remote.MaxRetries,
		Logger:     logger,
	})
}

// ============================================================================
// SERVER
// ============================================================================

// Config configures a Server.
type Config struct {
	Addr           string
	StaticDir      string
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Logger         *slog.Logger
}

// ConfigFrom maps the [server] section of cfg.
func ConfigFrom(cfg *config.Config, logger *slog.Logger) Config {
	s := cfg.Server
	return Config{
		Addr:           s.Addr,
		StaticDir:      s.StaticDir,
		RateLimitRPS:   s.RateLimitRPS,
		RateLimitBurst: s.RateLimitBurst,
		CORSOrigins:    s.CORSOrigins,
		ReadTimeout:    time.Duration(s.ReadTimeoutSecs) * time.Second,
		WriteTimeout:   time.Duration(s.WriteTimeoutSecs) * time.Second,
		Logger:         logger,
	}
}

// Server is the chat proxy.
type Server struct {
	cfg      Config
	router   *http.ServeMux
	upstream atomic.Pointer[upstreamRef]
	limiter  *RateLimiter
	cors     CORSPolicy
	logger   *slog.Logger
	started  time.Time

	activeStreams atomic.Int64
	totalRequests atomic.Int64

	mu     sync.Mutex
	server *http.Server
}

// New creates a Server that forwards to up.
func New(cfg Config, up Upstream) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cors := DefaultCORSPolicy()
	if len(cfg.CORSOrigins) > 0 {
		cors.Origins = cfg.CORSOrigins
	}

	s := &Server{
		cfg:     cfg,
		router:  http.NewServeMux(),
		limiter: NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		cors:    cors,
		logger:  cfg.Logger.With("component", "server"),
		started: time.Now(),
	}
	s.SetUpstream(up)
	s.setupRoutes()
	return s
}

// SetUpstream replaces the upstream. Requests already in flight keep the
// upstream they started with.
func (s *Server) SetUpstream(up Upstream) {
	s.upstream.Store(&upstreamRef{up: up})
}

func (s *Server) currentUpstream() Upstream {
	return s.upstream.Load().up
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// Limiter returns the per-IP rate limiter.
func (s *Server) Limiter() *RateLimiter {
	return s.limiter
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /v1/chat-messages", s.handleChatMessages)
	s.router.HandleFunc("GET /v1/conversations", s.handleListConversations)
	s.router.HandleFunc("GET /v1/messages", s.handleListMessages)
	s.router.HandleFunc("DELETE /v1/conversations/{id}", s.handleDeleteConversation)
	s.router.HandleFunc("POST /v1/conversations/{id}/name", s.handleRenameConversation)
	s.router.HandleFunc("GET /health", s.handleHealth)

	if s.cfg.StaticDir != "" {
		s.router.Handle("GET /", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		CORSMiddleware(s.cors),
		LoggingMiddleware(s.logger),
		RateLimitMiddleware(s.limiter, s.logger),
	)(s.router)
}

// ============================================================================
// CHAT HANDLER
// ============================================================================

// handleChatMessages handles POST /v1/chat-messages.
func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	s.totalRequests.Add(1)

	var req gateway.ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeFailure(w, msgChatFailed, err)
		return
	}
	fillChatDefaults(&req)
	streaming := req.ResponseMode == gateway.ModeStreaming

	resp, err := s.currentUpstream().Forward(r.Context(), http.MethodPost, "/chat-messages", nil, req, streaming)
	if err != nil {
		s.logger.Warn("upstream request failed", "route", "chat-messages", "error", err)
		s.writeFailure(w, msgChatFailed, err)
		return
	}
	defer resp.Body.Close()

	if streaming {
		s.relayStream(w, r, resp)
		return
	}
	s.relayJSON(w, resp, msgChatFailed)
}

// fillChatDefaults applies the defaults the remote service expects.
func fillChatDefaults(req *gateway.ChatRequest) {
	if req.Inputs == nil {
		req.Inputs = map[string]any{}
	}
	if req.ResponseMode == "" {
		req.ResponseMode = gateway.ModeBlocking
	}
	if req.User == "" {
		req.User = gateway.DefaultUser
	}
}

// relayStream copies an event stream to the client, flushing after every
// read so deltas arrive as they are produced.
func (s *Server) relayStream(w http.ResponseWriter, r *http.Request, resp *http.Response) {
	s.activeStreams.Add(1)
	defer s.activeStreams.Add(-1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(resp.StatusCode)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	buf := make([]byte, relayBufferSize)
	var relayed int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				s.logger.Debug("client went away", "error", err, "bytes", relayed)
				return
			}
			relayed += int64(n)
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) && r.Context().Err() == nil {
				s.logger.Warn("upstream stream ended early", "error", readErr, "bytes", relayed)
			}
			return
		}
	}
}

// relayJSON copies a JSON answer to the client with the upstream status.
// A body that is not JSON is a failure.
func (s *Server) relayJSON(w http.ResponseWriter, resp *http.Response, failMsg string) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, gateway.MaxResponseSize+1))
	if err != nil {
		s.writeFailure(w, failMsg, err)
		return
	}
	if int64(len(raw)) > gateway.MaxResponseSize {
		s.writeFailure(w, failMsg, fmt.Errorf("response exceeded maximum size of %d bytes", gateway.MaxResponseSize))
		return
	}
	if !json.Valid(raw) {
		s.writeFailure(w, failMsg, fmt.Errorf("invalid JSON from upstream (HTTP %d)", resp.StatusCode))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(raw)
}

// ============================================================================
// CONVERSATION HANDLERS
// ============================================================================

// handleListConversations handles GET /v1/conversations.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	s.totalRequests.Add(1)

	in := r.URL.Query()
	q := url.Values{
		"user":    {orDefault(in.Get("user"), gateway.DefaultUser)},
		"last_id": {in.Get("last_id")},
		"limit":   {orDefault(in.Get("limit"), fmt.Sprint(gateway.DefaultPageLimit))},
		"sort_by": {orDefault(in.Get("sort_by"), gateway.DefaultSortBy)},
	}
	s.forwardJSON(w, r, http.MethodGet, "/conversations", q, nil, msgListFailed)
}

// handleListMessages handles GET /v1/messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	s.totalRequests.Add(1)

	in := r.URL.Query()
	q := url.Values{
		"conversation_id": {in.Get("conversation_id")},
		"user":            {orDefault(in.Get("user"), gateway.DefaultUser)},
		"first_id":        {in.Get("first_id")},
		"limit":           {orDefault(in.Get("limit"), fmt.Sprint(gateway.DefaultPageLimit))},
	}
	s.forwardJSON(w, r, http.MethodGet, "/messages", q, nil, msgMessagesFailed)
}

// handleDeleteConversation handles DELETE /v1/conversations/{id}.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	s.totalRequests.Add(1)

	var body gateway.DeleteRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.writeFailure(w, msgDeleteFailed, err)
		return
	}
	body.User = orDefault(body.User, gateway.DefaultUser)

	path := "/conversations/" + url.PathEscape(r.PathValue("id"))
	s.forwardJSON(w, r, http.MethodDelete, path, nil, body, msgDeleteFailed)
}

// handleRenameConversation handles POST /v1/conversations/{id}/name.
func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	s.totalRequests.Add(1)

	var body gateway.RenameRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.writeFailure(w, msgRenameFailed, err)
		return
	}
	body.User = orDefault(body.User, gateway.DefaultUser)

	path := "/conversations/" + url.PathEscape(r.PathValue("id")) + "/name"
	s.forwardJSON(w, r, http.MethodPost, path, nil, body, msgRenameFailed)
}

func (s *Server) forwardJSON(w http.ResponseWriter, r *http.Request, method, path string, q url.Values, body any, failMsg string) {
	resp, err := s.currentUpstream().Forward(r.Context(), method, path, q, body, false)
	if err != nil {
		s.logger.Warn("upstream request failed", "method", method, "path", path, "error", err)
		s.writeFailure(w, failMsg, err)
		return
	}
	defer resp.Body.Close()
	s.relayJSON(w, resp, failMsg)
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Upstream      string  `json:"upstream,omitempty"`
	APIKeySet     bool    `json:"api_key_set"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	ActiveStreams int64   `json:"active_streams"`
	TotalRequests int64   `json:"total_requests"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: time.Since(s.started).Seconds(),
		ActiveStreams: s.activeStreams.Load(),
		TotalRequests: s.totalRequests.Load(),
	}
	if gc, ok := s.currentUpstream().(*gateway.Client); ok {
		health.Upstream = gc.BaseURL()
		health.APIKeySet = gc.HasAPIKey()
		if !health.APIKeySet {
			health.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, health)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown. It
// returns nil after a graceful shutdown.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("SERVER_START", "addr", s.cfg.Addr, "version", Version, "static_dir", s.cfg.StaticDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server. Open streams are given until
// ctx is done to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("SERVER_SHUTDOWN", "active_streams", s.activeStreams.Load())
	return srv.Shutdown(ctx)
}

// WatchConfig reloads path on change and applies the new remote settings and
// rate limits. build creates the upstream for a reloaded configuration.
func (s *Server) WatchConfig(ctx context.Context, path string, build func(*config.Config) Upstream) error {
	return config.Watch(ctx, path, config.WatchOptions{
		Logger: s.logger,
		OnChange: func(cfg *config.Config) {
			s.SetUpstream(build(cfg))
			s.limiter.Update(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
			s.logger.Info("CONFIG_RELOADED", "upstream", cfg.Remote.BaseURL, "rate_limit_rps", cfg.Server.RateLimitRPS)
		},
		OnError: func(err error) {
			s.logger.Warn("config reload rejected", "error", err)
		},
	})
}

// ============================================================================
// HELPERS
// ============================================================================

// ErrorResponse is the failure envelope of the proxy.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// writeFailure answers 500 with the proxy failure envelope.
func (s *Server) writeFailure(w http.ResponseWriter, message string, err error) {
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: message, Details: err.Error()})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
