// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/difychat/internal/config"
	"github.com/jeranaias/difychat/internal/gateway"
	"github.com/jeranaias/difychat/internal/logging"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// recorded is one request seen by the fake remote service.
type recorded struct {
	Method string
	Path   string
	Query  map[string]string
	Auth   string
	Body   map[string]any
}

type fakeRemote struct {
	mu       sync.Mutex
	requests []recorded
	handler  http.HandlerFunc
}

func (f *fakeRemote) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newFakeRemote(t *testing.T, handler http.HandlerFunc) (*fakeRemote, *httptest.Server) {
	t.Helper()
	f := &fakeRemote{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  map[string]string{},
			Auth:   r.Header.Get("Authorization"),
		}
		for k := range r.URL.Query() {
			rec.Query[k] = r.URL.Query().Get(k)
		}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()
		f.handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newProxy(t *testing.T, remoteURL string, mutate func(*Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := Config{Logger: logging.Discard()}
	if mutate != nil {
		mutate(&cfg)
	}
	up := gateway.New(gateway.Config{BaseURL: remoteURL + "/v1", APIKey: "app-secret", MaxRetries: 1, Logger: logging.Discard()})
	s := New(cfg, up)
	proxy := httptest.NewServer(s.Handler())
	t.Cleanup(proxy.Close)
	return s, proxy
}

func decodeJSON(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&out))
	return out
}

// =============================================================================
// CHAT MESSAGES
// =============================================================================

func TestChatMessages_BlockingFillsDefaults(t *testing.T) {
	remote, remoteSrv := newFakeRemote(t, jsonHandler(http.StatusOK,
		`{"event":"message","message_id":"m1","conversation_id":"c1","answer":"hi"}`))
	_, proxy := newProxy(t, remoteSrv.URL, nil)

	resp, err := http.Post(proxy.URL+"/v1/chat-messages", "application/json", strings.NewReader(`{"query":"hello"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp.Body)
	assert.Equal(t, "hi", body["answer"])

	got := remote.last(t)
	assert.Equal(t, "/v1/chat-messages", got.Path)
	assert.Equal(t, "Bearer app-secret", got.Auth)
	assert.Equal(t, "hello", got.Body["query"])
	assert.Equal(t, "blocking", got.Body["response_mode"])
	assert.Equal(t, "anonymous", got.Body["user"])
	assert.Equal(t, "", got.Body["conversation_id"])
	assert.Equal(t, map[string]any{}, got.Body["inputs"])
}

func TestChatMessages_EmptyBody(t *testing.T) {
	remote, remoteSrv := newFakeRemote(t, jsonHandler(http.StatusOK, `{"answer":""}`))
	_, proxy := newProxy(t, remoteSrv.URL, nil)

	resp, err := http.Post(proxy.URL+"/v1/chat-messages", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	got := remote.last(t)
	assert.Equal(t, "", got.Body["query"])
	assert.Equal(t, "anonymous", got.Body["user"])
}

func TestChatMessages_StreamingRelaysChunks(t *testing.T) {
	release := make(chan struct{})
	_, remoteSrv := newFakeRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, "data: {\"event\":\"message\",\"answer\":\"Hel\",\"conversation_id\":\"c1\"}\n\n")
		flusher.Flush()
		<-release
		_, _ = io.WriteString(w, "data: {\"event\":\"message_end\",\"conversation_id\":\"c1\"}\n\n")
		flusher.Flush()
	})
	_, proxy := newProxy(t, remoteSrv.URL, nil)

	resp, err := http.Post(proxy.URL+"/v1/chat-messages", "application/json",
		strings.NewReader(`{"query":"hi","response_mode":"streaming","user":"u1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	// The first chunk must arrive before the remote finishes.
	buf := make([]byte, 256)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `"answer":"Hel"`)

	close(release)
	rest, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(rest), "message_end")
}

func TestChatMessages_RemoteUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	_, proxy := newProxy(t, deadURL, nil)

	resp, err := http.Post(proxy.URL+"/v1/chat-messages", "application/json", strings.NewReader(`{"query":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeJSON(t, resp.Body)
	assert.Equal(t, "Failed to fetch from API", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestChatMessages_NonJSONAnswer(t *testing.T) {
	_, remoteSrv := newFakeRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})
	_, proxy := newProxy(t, remoteSrv.URL, nil)

	resp, err := http.Post(proxy.URL+"/v1/chat-messages", "application/json", strings.NewReader(`{"query":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeJSON(t, resp.Body)
	assert.Equal(t, "Failed to fetch from API", body["error"])
}

func TestChatMessages_RelaysRemoteErrorStatus(t *testing.T) {
	_, remoteSrv := newFakeRemote(t, jsonHandler(http.StatusBadRequest, `{"code":"invalid_param","message":"bad"}`))
	_, proxy := newProxy(t, remoteSrv.URL, nil)

	resp, err := http.Post(proxy.URL+"/v1/chat-messages", "application/json", strings.NewReader(`{"query":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_param", decodeJSON(t, resp.Body)["code"])
}

// =============================================================================
// CONVERSATION ROUTES
// =============================================================================

func TestListConversations_Defaults(t *testing.T) {
	remote, remoteSrv := newFakeRemote(t, jsonHandler(http.StatusOK, `{"data":[],"has_more":false,"limit":20}`))
	_, proxy := newProxy(t, remoteSrv.URL, nil)

	resp, err := http.Get(proxy.URL + "/v1/conversations")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got := remote.last(t)
	assert.Equal(t, "/v1/conversations", got.Path)
	assert.Equal(t, map[string]string{
		"user":    "anonymous",
		"last_id": "",
		"limit":   "20",
		"sort_by": "-updated_at",
	}, got.Query)
}

func TestListConversations_PassesQuery(t *testing.T) {
	remote, remoteSrv := newFakeRemote(t, jsonHandler(http.StatusOK, `{"data":[]}`))
	_, proxy := newProxy(t, remoteSrv.URL, nil)

	resp, err := http.Get(proxy.URL + "/v1/conversations?user=u9&limit=5&last_id=c3&sort_by=created_at")
	require.NoError(t, err)
	resp.Body.Close()

	got := remote.last(t)
	assert.Equal(t, "u9", got.Query["user"])
	assert.Equal(t, "5", got.Query["limit"])
	assert.Equal(t, "c3", got.Query["last_id"])
	assert.Equal(t, "created_at", got.Query["sort_by"])
}

func TestListMessages_Defaults(t *testing.T) {
	remote, remoteSrv := newFakeRemote(t, jsonHandler(http.StatusOK, `{"data":[]}`))
	_, proxy := newProxy(t, remoteSrv.URL, nil)

	resp, err := http.Get(proxy.URL + "/v1/messages?conversation_id=c1")
	require.NoError(t, err)
	resp.Body.Close()

	got := remote.last(t)
	assert.Equal(t, "/v1/messages", got.Path)
	assert.Equal(t, "c1", got.Query["conversation_id"])
	assert.Equal(t, "anonymous", got.Query["user"])
	assert.Equal(t, "20", got.Query["limit"])
	assert.Equal(t, "", got.Query["first_id"])
}

func TestListMessages_RemoteUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	_, proxy := newProxy(t, deadURL, nil)

	resp, err := http.Get(proxy.URL + "/v1/messages?conversation_id=c1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to fetch messages", decodeJSON(t, resp.Body)["error"])
}

func TestDeleteConversation(t *testing.T) {
	remote, remoteSrv := newFakeRemote(t, jsonHandler(http.StatusOK, `{"result":"success"}`))
	_, proxy := newProxy(t, remoteSrv.URL, nil)

	req, err := http.NewRequest(http.MethodDelete, proxy.URL+"/v1/conversations/c42", strings.NewReader(`{"user":"u1"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", decodeJSON(t, resp.Body)["result"])

	got := remote.last(t)
	assert.Equal(t, http.MethodDelete, got.Method)
	assert.Equal(t, "/v1/conversations/c42", got.Path)
	assert.Equal(t, "u1", got.Body["user"])
}

func TestRenameConversation(t *testing.T) {
	remote, remoteSrv := newFakeRemote(t, jsonHandler(http.StatusOK, `{"id":"c42","name":"Trip"}`))
	_, proxy := newProxy(t, remoteSrv.URL, nil)

	resp, err := http.Post(proxy.URL+"/v1/conversations/c42/name", "application/json",
		strings.NewReader(`{"name":"Trip"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Trip", decodeJSON(t, resp.Body)["name"])

	got := remote.last(t)
	assert.Equal(t, "/v1/conversations/c42/name", got.Path)
	assert.Equal(t, "Trip", got.Body["name"])
	assert.Equal(t, false, got.Body["auto_generate"])
	assert.Equal(t, "anonymous", got.Body["user"])
}

// =============================================================================
// HEALTH, STATIC FILES AND UPSTREAM SWAP
// =============================================================================

func TestHealth(t *testing.T) {
	_, remoteSrv := newFakeRemote(t, jsonHandler(http.StatusOK, `{}`))
	_, proxy := newProxy(t, remoteSrv.URL, nil)

	resp, err := http.Get(proxy.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, Version, health.Version)
	assert.Equal(t, remoteSrv.URL+"/v1", health.Upstream)
	assert.True(t, health.APIKeySet)
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>chat</h1>"), 0o644))

	_, remoteSrv := newFakeRemote(t, jsonHandler(http.StatusOK, `{}`))
	_, proxy := newProxy(t, remoteSrv.URL, func(c *Config) { c.StaticDir = dir })

	resp, err := http.Get(proxy.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "<h1>chat</h1>")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestSetUpstream(t *testing.T) {
	_, first := newFakeRemote(t, jsonHandler(http.StatusOK, `{"from":"first"}`))
	_, second := newFakeRemote(t, jsonHandler(http.StatusOK, `{"from":"second"}`))
	s, proxy := newProxy(t, first.URL, nil)

	get := func() string {
		resp, err := http.Get(proxy.URL + "/v1/conversations")
		require.NoError(t, err)
		defer resp.Body.Close()
		return decodeJSON(t, resp.Body)["from"].(string)
	}

	assert.Equal(t, "first", get())
	s.SetUpstream(gateway.New(gateway.Config{BaseURL: second.URL + "/v1", Logger: logging.Discard()}))
	assert.Equal(t, "second", get())
}

func TestWatchConfig_SwapsUpstream(t *testing.T) {
	_, first := newFakeRemote(t, jsonHandler(http.StatusOK, `{}`))
	_, second := newFakeRemote(t, jsonHandler(http.StatusOK, `{}`))
	s, _ := newProxy(t, first.URL, nil)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[remote]\nbase_url = \""+first.URL+"/v1\"\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.WatchConfig(ctx, path, func(cfg *config.Config) Upstream {
		return NewUpstream(cfg, logging.Discard())
	}))

	content := "[remote]\nbase_url = \"" + second.URL + "/v1\"\n\n[server]\nrate_limit_rps = 5\nrate_limit_burst = 7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	require.Eventually(t, func() bool {
		gc, ok := s.currentUpstream().(*gateway.Client)
		return ok && gc.BaseURL() == second.URL+"/v1"
	}, 5*time.Second, 20*time.Millisecond)

	_, burst := s.Limiter().Limits()
	assert.Equal(t, 7, burst)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRateLimit(t *testing.T) {
	_, remoteSrv := newFakeRemote(t, jsonHandler(http.StatusOK, `{"data":[]}`))
	_, proxy := newProxy(t, remoteSrv.URL, func(c *Config) {
		c.RateLimitRPS = 0.01
		c.RateLimitBurst = 2
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Get(proxy.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("10.0.0.1"))
	}
	assert.Equal(t, -1, rl.Remaining("10.0.0.1"))
}

func TestRateLimiter_PerIPAndUpdate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	rl.lastSweep = now

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "buckets are per client")

	rl.Update(1, 3)
	now = now.Add(3 * time.Second)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	rl.lastSweep = now

	rl.Allow("a")
	now = now.Add(visitorTTL + time.Minute)
	rl.Allow("b")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "a")
	assert.Contains(t, rl.visitors, "b")
}

func TestCORS(t *testing.T) {
	handler := CORSMiddleware(CORSPolicy{
		Origins: []string{"http://app.local", "*.example.com"},
		MaxAge:  time.Minute,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"exact origin", http.MethodGet, "http://app.local", "http://app.local", http.StatusTeapot},
		{"subdomain", http.MethodGet, "https://chat.example.com", "https://chat.example.com", http.StatusTeapot},
		{"unknown origin", http.MethodGet, "http://evil.test", "", http.StatusTeapot},
		{"preflight", http.MethodOptions, "http://app.local", "http://app.local", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/conversations", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_Wildcard(t *testing.T) {
	handler := CORSMiddleware(DefaultCORSPolicy())(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://anything.test")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mw("a"), mw("b"), mw("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct", "203.0.113.7:5555", "", "", "203.0.113.7"},
		{"untrusted forwarder ignored", "203.0.113.7:5555", "198.51.100.1", "", "203.0.113.7"},
		{"trusted forwarder", "127.0.0.1:5555", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"invalid forwarded ip", "127.0.0.1:5555", "not-an-ip", "", "127.0.0.1"},
		{"real ip header", "10.1.2.3:80", "", "198.51.100.9", "198.51.100.9"},
		{"no port", "192.0.2.1", "", "", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, GetClientIP(req))
		})
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Default()
	cfg.Server.ReadTimeoutSecs = 12
	sc := ConfigFrom(cfg, logging.Discard())

	assert.Equal(t, cfg.Server.Addr, sc.Addr)
	assert.Equal(t, cfg.Server.StaticDir, sc.StaticDir)
	assert.Equal(t, 12*time.Second, sc.ReadTimeout)
	assert.Equal(t, time.Duration(0), sc.WriteTimeout)
}
