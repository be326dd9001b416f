// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every lookup at an empty temp home.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv(EnvPrefix+"CONFIG", "")
	for suffix := range envBindings {
		t.Setenv(EnvPrefix+suffix, "")
		os.Unsetenv(EnvPrefix + suffix)
	}
	return home
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, path, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, "http://127.0.0.1:80/v1", cfg.Remote.BaseURL)
	assert.Equal(t, "http://localhost:3000/v1", cfg.Client.ProxyURL)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, 60*time.Second, cfg.Stream.IdleTimeout())
	assert.Equal(t, "新对话", cfg.Client.DefaultName)
}

func TestLoad_TOML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[remote]
base_url = "https://dify.example.com/v1"
api_key = "app-secret"

[client]
user_id = "alice"
inputs = { uuid = "42" }

[server]
addr = ":8080"
cors_origins = ["https://chat.example.com"]
`), 0600))

	cfg, got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, "https://dify.example.com/v1", cfg.Remote.BaseURL)
	assert.Equal(t, "app-secret", cfg.Remote.APIKey)
	assert.Equal(t, "alice", cfg.Client.UserID)
	assert.Equal(t, "42", cfg.Client.Inputs["uuid"])
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.Server.CORSOrigins)
	// Untouched sections keep their defaults.
	assert.Equal(t, 20, cfg.Client.PageLimit)
}

func TestLoad_YAML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
client:
  response_mode: blocking
  page_limit: 50
log:
  level: debug
  format: json
`), 0600))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "blocking", cfg.Client.ResponseMode)
	assert.Equal(t, 50, cfg.Client.PageLimit)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("DIFYCHAT_API_KEY", "from-env")
	t.Setenv("DIFYCHAT_DIRECT", "true")
	t.Setenv("DIFYCHAT_RATE_LIMIT_RPS", "2.5")
	t.Setenv("DIFYCHAT_IDLE_TIMEOUT", "not-a-number")

	cfg, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Remote.APIKey)
	assert.True(t, cfg.Client.Direct)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, 60, cfg.Stream.IdleTimeoutSecs)
}

func TestLoad_EnvConfigPath(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "other.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\naddr = \":9999\"\n"), 0600))
	t.Setenv("DIFYCHAT_CONFIG", path)

	cfg, got, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[client]\nresponse_mode = \"carrier-pigeon\"\n"), 0600))

	_, _, err := Load(path)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "client.response_mode", verrs[0].Field)
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad base url", func(c *Config) { c.Remote.BaseURL = "ftp://x" }, "remote.base_url"},
		{"bad proxy url", func(c *Config) { c.Client.ProxyURL = "localhost:3000" }, "client.proxy_url"},
		{"retries", func(c *Config) { c.Remote.MaxRetries = 11 }, "remote.max_retries"},
		{"page limit", func(c *Config) { c.Client.PageLimit = 0 }, "client.page_limit"},
		{"idle timeout", func(c *Config) { c.Stream.IdleTimeoutSecs = 0 }, "stream.idle_timeout_secs"},
		{"block size", func(c *Config) { c.Stream.MaxBlockSize = 10 }, "stream.max_block_size"},
		{"burst", func(c *Config) { c.Server.RateLimitBurst = 0 }, "server.rate_limit_burst"},
		{"log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}

	assert.NoError(t, Default().Validate())
}

// =============================================================================
// KEY ACCESS TESTS
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("remote.base_url", "https://api.example.com/v1"))
	require.NoError(t, cfg.Set("client.page_limit", "30"))
	require.NoError(t, cfg.Set("server.cors_origins", "https://a, https://b"))
	require.NoError(t, cfg.Set("client.inputs", `{"uuid":"7"}`))
	require.NoError(t, cfg.Set("client.direct", true))

	v, err := cfg.Get("remote.base_url")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1", v)
	assert.Equal(t, 30, cfg.Client.PageLimit)
	assert.Equal(t, []string{"https://a", "https://b"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "7", cfg.Client.Inputs["uuid"])
	assert.True(t, cfg.Client.Direct)

	assert.Error(t, cfg.Set("client.page_limit", "many"))
	assert.Error(t, cfg.Set("nope.key", "x"))
	_, err = cfg.Get("remote")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "remote.api_key")
	assert.Contains(t, keys, "state.path")
	for _, key := range keys {
		_, err := Default().Get(key)
		assert.NoError(t, err, key)
	}
}

func TestString_RedactsAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Remote.APIKey = "app-very-secret"
	assert.NotContains(t, cfg.String(), "app-very-secret")
	assert.Equal(t, "app-very-secret", cfg.Remote.APIKey)
}

func TestClone_IsDeep(t *testing.T) {
	cfg := Default()
	cfg.Client.Inputs["k"] = "v"
	clone := cfg.Clone()
	clone.Client.Inputs["k"] = "changed"
	clone.Server.CORSOrigins[0] = "changed"
	assert.Equal(t, "v", cfg.Client.Inputs["k"])
	assert.Equal(t, "*", cfg.Server.CORSOrigins[0])
}

// =============================================================================
// SAVE TESTS
// =============================================================================

func TestSave_RoundTripTOMLAndYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	for _, name := range []string{"config.toml", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Remote.APIKey = "k"
			cfg.Server.Addr = ":4000"
			path := filepath.Join(dir, name)
			require.NoError(t, Save(cfg, path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			if os.PathSeparator == '/' {
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
			}

			loaded, _, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "k", loaded.Remote.APIKey)
			assert.Equal(t, ":4000", loaded.Server.Addr)
		})
	}
}

// =============================================================================
// WATCH TESTS
// =============================================================================

func TestWatch_ReloadsOnChange(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[remote]\napi_key = \"one\"\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, WatchOptions{
		Debounce: 20 * time.Millisecond,
		OnChange: func(c *Config) { changes <- c },
	}))

	cfg := Default()
	cfg.Remote.APIKey = "two"
	require.NoError(t, Save(cfg, path))

	select {
	case got := <-changes:
		assert.Equal(t, "two", got.Remote.APIKey)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the config file changed")
	}
}

// =============================================================================
// GLOBAL TESTS
// =============================================================================

// TestConfig_ConcurrentAccess checks Global and SetGlobal under the race
// detector.
func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}
