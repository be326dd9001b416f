// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/difychat/internal/util"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DIFYCHAT_"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete difychat configuration.
type Config struct {
	Remote RemoteConfig `toml:"remote" yaml:"remote" json:"remote"`
	Client ClientConfig `toml:"client" yaml:"client" json:"client"`
	Stream StreamConfig `toml:"stream" yaml:"stream" json:"stream"`
	Server ServerConfig `toml:"server" yaml:"server" json:"server"`
	Log    LogConfig    `toml:"log" yaml:"log" json:"log"`
	State  StateConfig  `toml:"state" yaml:"state" json:"state"`
}

// RemoteConfig describes the upstream chat service.
type RemoteConfig struct {
	// BaseURL is the API root, including the /v1 suffix.
	BaseURL string `toml:"base_url" yaml:"base_url" json:"base_url"`
	// APIKey is sent as a bearer token. Only the proxy needs it.
	APIKey      string `toml:"api_key" yaml:"api_key" json:"api_key"`
	TimeoutSecs int    `toml:"timeout_secs" yaml:"timeout_secs" json:"timeout_secs"`
	MaxRetries  int    `toml:"max_retries" yaml:"max_retries" json:"max_retries"`
}

// Timeout returns the request timeout.
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

// ClientConfig contains the settings of the terminal clients.
type ClientConfig struct {
	// ProxyURL is the API root of the difychat proxy.
	ProxyURL string `toml:"proxy_url" yaml:"proxy_url" json:"proxy_url"`
	// Direct makes clients talk to Remote.BaseURL instead of the proxy.
	Direct bool `toml:"direct" yaml:"direct" json:"direct"`
	// UserID overrides the generated user identifier.
	UserID string `toml:"user_id" yaml:"user_id" json:"user_id"`
	// Inputs are the structured inputs sent with every query.
	Inputs       map[string]any `toml:"inputs" yaml:"inputs" json:"inputs"`
	ResponseMode string         `toml:"response_mode" yaml:"response_mode" json:"response_mode"`
	PageLimit    int            `toml:"page_limit" yaml:"page_limit" json:"page_limit"`
	// DefaultName labels conversations that have no name yet.
	DefaultName string `toml:"default_name" yaml:"default_name" json:"default_name"`
}

// StreamConfig tunes reply stream decoding.
type StreamConfig struct {
	IdleTimeoutSecs int `toml:"idle_timeout_secs" yaml:"idle_timeout_secs" json:"idle_timeout_secs"`
	MaxBlockSize    int `toml:"max_block_size" yaml:"max_block_size" json:"max_block_size"`
}

// IdleTimeout returns the longest silence tolerated on a reply stream.
func (s StreamConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSecs) * time.Second
}

// ServerConfig contains the proxy server settings.
type ServerConfig struct {
	Addr           string   `toml:"addr" yaml:"addr" json:"addr"`
	StaticDir      string   `toml:"static_dir" yaml:"static_dir" json:"static_dir"`
	RateLimitRPS   float64  `toml:"rate_limit_rps" yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst" yaml:"rate_limit_burst" json:"rate_limit_burst"`
	CORSOrigins    []string `toml:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
	// ReadTimeoutSecs bounds reading a request. Write timeouts are not set
	// on streaming responses.
	ReadTimeoutSecs  int `toml:"read_timeout_secs" yaml:"read_timeout_secs" json:"read_timeout_secs"`
	WriteTimeoutSecs int `toml:"write_timeout_secs" yaml:"write_timeout_secs" json:"write_timeout_secs"`
}

// LogConfig selects the log destination.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"`
	// File receives the log. Empty means stderr, except for the TUI which
	// always logs to a file.
	File string `toml:"file" yaml:"file" json:"file"`
}

// StateConfig locates the local state database.
type StateConfig struct {
	Path string `toml:"path" yaml:"path" json:"path"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with all default values.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:     "http://127.0.0.1:80/v1",
			TimeoutSecs: 30,
			MaxRetries:  3,
		},
		Client: ClientConfig{
			ProxyURL:     "http://localhost:3000/v1",
			Inputs:       map[string]any{},
			ResponseMode: "streaming",
			PageLimit:    20,
			DefaultName:  "新对话",
		},
		Stream: StreamConfig{
			IdleTimeoutSecs: 60,
			MaxBlockSize:    64 * 1024,
		},
		Server: ServerConfig{
			Addr:             ":3000",
			StaticDir:        "public",
			RateLimitRPS:     10,
			RateLimitBurst:   20,
			CORSOrigins:      []string{"*"},
			ReadTimeoutSecs:  30,
			WriteTimeoutSecs: 0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns ~/.difychat.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".difychat"), nil
}

// DefaultPath returns ~/.difychat/config.toml.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Resolve returns the configuration file to use: explicit, then
// $DIFYCHAT_CONFIG, then the first existing file in ConfigDir. It returns ""
// when no file applies.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvPrefix + "CONFIG"); env != "" {
		return env
	}
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads the configuration: defaults, then the resolved file, then
// environment overrides. The result is validated. It returns the path of the
// file that was read, or "" when defaults were used.
func Load(explicit string) (*Config, string, error) {
	cfg := Default()
	path := Resolve(explicit)

	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			if explicit != "" || !errors.Is(err, os.ErrNotExist) {
				return cfg, path, err
			}
			path = ""
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, path, err
	}
	return cfg, path, nil
}

// LoadFile decodes path into cfg. The format follows the file extension:
// .yaml and .yml are YAML, anything else is TOML.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Decode(cfg, data, formatOf(path))
}

// Decode parses data in the given format ("toml" or "yaml") into cfg.
func Decode(cfg *Config, data []byte, format string) error {
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}
	return nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes cfg to path atomically, in the format implied by the extension.
// The file is readable by the owner only because it may hold the API key.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	switch formatOf(path) {
	case "yaml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		enc.Close()
	default:
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}
	if err := util.WritePrivateFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "config validation failed: " + strings.Join(msgs, "; ")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs ValidationErrors

	checkURL := func(field, raw string) {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("must be an http(s) URL, got %q", raw)})
		}
	}
	checkURL("remote.base_url", c.Remote.BaseURL)
	checkURL("client.proxy_url", c.Client.ProxyURL)

	if c.Remote.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "remote.timeout_secs", Message: "must be non-negative"})
	}
	if c.Remote.MaxRetries < 0 || c.Remote.MaxRetries > 10 {
		errs = append(errs, ValidationError{Field: "remote.max_retries", Message: fmt.Sprintf("must be 0-10, got %d", c.Remote.MaxRetries)})
	}

	switch c.Client.ResponseMode {
	case "streaming", "blocking":
	default:
		errs = append(errs, ValidationError{Field: "client.response_mode", Message: fmt.Sprintf("must be streaming or blocking, got %q", c.Client.ResponseMode)})
	}
	if c.Client.PageLimit < 1 || c.Client.PageLimit > 100 {
		errs = append(errs, ValidationError{Field: "client.page_limit", Message: fmt.Sprintf("must be 1-100, got %d", c.Client.PageLimit)})
	}

	if c.Stream.IdleTimeoutSecs < 1 {
		errs = append(errs, ValidationError{Field: "stream.idle_timeout_secs", Message: "must be at least 1"})
	}
	if c.Stream.MaxBlockSize < 1024 {
		errs = append(errs, ValidationError{Field: "stream.max_block_size", Message: "must be at least 1024 bytes"})
	}

	if c.Server.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Message: "must not be empty"})
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit_rps", Message: "must be non-negative"})
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		errs = append(errs, ValidationError{Field: "server.rate_limit_burst", Message: "must be at least 1 when rate limiting is on"})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{Field: "log.level", Message: fmt.Sprintf("invalid level %q", c.Log.Level)})
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{Field: "log.format", Message: fmt.Sprintf("must be text or json, got %q", c.Log.Format)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero-valued fields from Default.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = d.Remote.BaseURL
	}
	if c.Remote.TimeoutSecs == 0 {
		c.Remote.TimeoutSecs = d.Remote.TimeoutSecs
	}
	if c.Client.ProxyURL == "" {
		c.Client.ProxyURL = d.Client.ProxyURL
	}
	if c.Client.Inputs == nil {
		c.Client.Inputs = map[string]any{}
	}
	if c.Client.ResponseMode == "" {
		c.Client.ResponseMode = d.Client.ResponseMode
	}
	if c.Client.PageLimit == 0 {
		c.Client.PageLimit = d.Client.PageLimit
	}
	if c.Client.DefaultName == "" {
		c.Client.DefaultName = d.Client.DefaultName
	}
	if c.Stream.IdleTimeoutSecs == 0 {
		c.Stream.IdleTimeoutSecs = d.Stream.IdleTimeoutSecs
	}
	if c.Stream.MaxBlockSize == 0 {
		c.Stream.MaxBlockSize = d.Stream.MaxBlockSize
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = d.Server.StaticDir
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// envBindings maps environment variable suffixes to configuration keys.
var envBindings = map[string]string{
	"BASE_URL":       "remote.base_url",
	"API_KEY":        "remote.api_key",
	"TIMEOUT_SECS":   "remote.timeout_secs",
	"PROXY_URL":      "client.proxy_url",
	"DIRECT":         "client.direct",
	"USER_ID":        "client.user_id",
	"RESPONSE_MODE":  "client.response_mode",
	"IDLE_TIMEOUT":   "stream.idle_timeout_secs",
	"SERVER_ADDR":    "server.addr",
	"STATIC_DIR":     "server.static_dir",
	"RATE_LIMIT_RPS": "server.rate_limit_rps",
	"LOG_LEVEL":      "log.level",
	"LOG_FORMAT":     "log.format",
	"LOG_FILE":       "log.file",
	"STATE_PATH":     "state.path",
}

// ApplyEnvOverrides applies DIFYCHAT_* environment variables. Values that do
// not parse for their field are ignored.
func (c *Config) ApplyEnvOverrides() {
	for suffix, key := range envBindings {
		if v, ok := os.LookupEnv(EnvPrefix + suffix); ok {
			_ = c.Set(key, v)
		}
	}
}

// =============================================================================
// KEY ACCESS
// =============================================================================

// Get returns the value at a dotted key such as "remote.base_url".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns value to a dotted key. String values are converted to the
// field type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
	}
	section, ok := fieldByTag(reflect.ValueOf(c).Elem(), parts[0])
	if !ok || section.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
	}
	field, ok := fieldByTag(section, parts[1])
	if !ok {
		return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
	}
	return field, nil
}

// fieldByTag finds the struct field whose toml tag is name.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	return strings.Split(f.Tag.Get("toml"), ",")[0]
}

// setFieldValue sets a reflect.Value from value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if s, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(s)
			return nil
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(n)
			return nil
		case reflect.Float64:
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(f)
			return nil
		case reflect.Bool:
			b, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(b)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(s, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		case reflect.Map:
			m := map[string]any{}
			if err := json.Unmarshal([]byte(s), &m); err != nil {
				return fmt.Errorf("invalid JSON object: %v", err)
			}
			field.Set(reflect.ValueOf(m))
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every configuration key in dot notation, sorted.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, tomlName(section)+"."+tomlName(section.Type.Field(j)))
		}
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// COPY AND DISPLAY
// =============================================================================

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Client.Inputs != nil {
		clone.Client.Inputs = make(map[string]any, len(c.Client.Inputs))
		for k, v := range c.Client.Inputs {
			clone.Client.Inputs[k] = v
		}
	}
	if c.Server.CORSOrigins != nil {
		clone.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	}
	return &clone
}

// String renders the configuration as JSON with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Remote.APIKey != "" {
		safe.Remote.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// GLOBAL INSTANCE (THREAD-SAFE)
// =============================================================================

var (
	globalConfig   *Config
	globalConfigMu sync.RWMutex
)

// Global returns the process-wide configuration, loading it from the default
// locations on first use.
func Global() *Config {
	globalConfigMu.RLock()
	cfg := globalConfig
	globalConfigMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	if globalConfig == nil {
		loaded, _, err := Load("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			loaded = Default()
		}
		globalConfig = loaded
	}
	return globalConfig
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting clears the process-wide configuration.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
}
