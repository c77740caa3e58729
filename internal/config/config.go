// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/mindstack-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete mindstack configuration.
type Config struct {
	Version string `toml:"version"`

	// Offline serves projects and captures from the local cache only.
	Offline bool `toml:"offline"`

	API   APIConfig   `toml:"api"`
	Auth  AuthConfig  `toml:"auth"`
	Chat  ChatConfig  `toml:"chat"`
	Cache CacheConfig `toml:"cache"`
	Log   LogConfig   `toml:"log"`
	UI    UIConfig    `toml:"ui"`
}

// APIConfig contains backend API settings.
type APIConfig struct {
	// BaseURL is the backend root; /api/... paths are appended to it.
	BaseURL string `toml:"base_url"`
	// TimeoutSecs bounds non-streaming requests. Streaming chat is bounded
	// by the caller's context and the chat idle timeout instead.
	TimeoutSecs int `toml:"timeout_secs"`
	// RatePerSec limits outgoing requests; burst is fixed at 5.
	RatePerSec float64 `toml:"rate_per_sec"`
}

// AuthConfig contains settings for the hosted auth provider.
type AuthConfig struct {
	URL     string `toml:"url"`
	AnonKey string `toml:"anon_key"`
	// SessionPath is where the sealed session is stored. Empty means
	// ~/.mindstack/session.enc.
	SessionPath string `toml:"session_path"`
}

// ChatConfig contains streaming chat settings.
type ChatConfig struct {
	// StreamIdleTimeoutSecs finalizes a turn when no bytes arrive for this
	// long. 0 disables the timeout.
	StreamIdleTimeoutSecs int `toml:"stream_idle_timeout_secs"`
}

// CacheConfig contains offline cache settings.
type CacheConfig struct {
	Enabled  bool   `toml:"enabled"`
	Path     string `toml:"path"`
	TTLHours int    `toml:"ttl_hours"`
}

// LogConfig contains log file settings.
type LogConfig struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	Theme    string `toml:"theme"`
	WordWrap int    `toml:"word_wrap"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	CurrentVersion = "1"

	DefaultAPIBaseURL        = "https://mind-stack-theta.vercel.app"
	DefaultAPITimeoutSecs    = 30
	DefaultRatePerSec        = 5.0
	DefaultStreamIdleTimeout = 90
	DefaultCacheTTLHours     = 24 * 7
	DefaultLogLevel          = "info"
	DefaultTheme             = "auto"
	DefaultWordWrap          = 80
)

// Default returns a new Config with all default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		API: APIConfig{
			BaseURL:     DefaultAPIBaseURL,
			TimeoutSecs: DefaultAPITimeoutSecs,
			RatePerSec:  DefaultRatePerSec,
		},
		Chat: ChatConfig{
			StreamIdleTimeoutSecs: DefaultStreamIdleTimeout,
		},
		Cache: CacheConfig{
			Enabled:  true,
			TTLHours: DefaultCacheTTLHours,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		UI: UIConfig{
			Theme:    DefaultTheme,
			WordWrap: DefaultWordWrap,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the mindstack configuration directory path.
// MINDSTACK_HOME overrides the default of ~/.mindstack.
func ConfigDir() (string, error) {
	if dir := os.Getenv("MINDSTACK_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".mindstack"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// ensureSecurePermissions tightens a config file to 0600 when needed.
// The file may carry the auth anon key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// SessionPath returns the resolved sealed session path.
func (c *Config) SessionPath() (string, error) {
	return c.resolve(c.Auth.SessionPath, "session.enc")
}

// CachePath returns the resolved sqlite cache path.
func (c *Config) CachePath() (string, error) {
	return c.resolve(c.Cache.Path, "cache.db")
}

// LogPath returns the resolved log file path.
func (c *Config) LogPath() (string, error) {
	return c.resolve(c.Log.Path, "mindstack.log")
}

func (c *Config) resolve(path, name string) (string, error) {
	if path != "" {
		return expandHome(path), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// =============================================================================
// DURATION HELPERS
// =============================================================================

// APITimeout returns the request timeout for non-streaming calls.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// StreamIdleTimeout returns the chat idle timeout; 0 means disabled.
func (c *Config) StreamIdleTimeout() time.Duration {
	return time.Duration(c.Chat.StreamIdleTimeoutSecs) * time.Second
}

// CacheTTL returns how long cached rows are kept.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.mindstack/config.toml, falling back to
// defaults when the file does not exist. Environment overrides are applied
// last, then the result is validated.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg and fills in missing values.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys ignored: %s\n", strings.Join(keys, ", "))
	}
	return fillDefaults(cfg)
}

// fillDefaults fills in zero values a config file may have left out.
// Chat.StreamIdleTimeoutSecs is left alone because 0 is meaningful.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaults.API.BaseURL
	}
	if cfg.API.TimeoutSecs == 0 {
		cfg.API.TimeoutSecs = defaults.API.TimeoutSecs
	}
	if cfg.API.RatePerSec == 0 {
		cfg.API.RatePerSec = defaults.API.RatePerSec
	}
	if cfg.Cache.TTLHours == 0 {
		cfg.Cache.TTLHours = defaults.Cache.TTLHours
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.WordWrap == 0 {
		cfg.UI.WordWrap = defaults.UI.WordWrap
	}

	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	cfg.Auth.URL = strings.TrimRight(cfg.Auth.URL, "/")
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if _, err := EnsureConfigDir(); err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# mindstack configuration file\n")
	buf.WriteString("# Generated by mindstack - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
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

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns ValidateErrors when
// anything is wrong.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := validateURL(c.API.BaseURL, true); err != nil {
		errs = append(errs, ValidationError{Field: "api.base_url", Message: err.Error()})
	}
	if c.API.TimeoutSecs < 1 || c.API.TimeoutSecs > 600 {
		errs = append(errs, ValidationError{
			Field:   "api.timeout_secs",
			Message: fmt.Sprintf("must be between 1 and 600, got %d", c.API.TimeoutSecs),
		})
	}
	if c.API.RatePerSec <= 0 {
		errs = append(errs, ValidationError{
			Field:   "api.rate_per_sec",
			Message: fmt.Sprintf("must be positive, got %g", c.API.RatePerSec),
		})
	}

	if err := validateURL(c.Auth.URL, false); err != nil {
		errs = append(errs, ValidationError{Field: "auth.url", Message: err.Error()})
	}

	if c.Chat.StreamIdleTimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "chat.stream_idle_timeout_secs",
			Message: "cannot be negative (use 0 to disable)",
		})
	}

	if c.Cache.TTLHours < 0 {
		errs = append(errs, ValidationError{Field: "cache.ttl_hours", Message: "cannot be negative"})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	validThemes := map[string]bool{"auto": true, "dark": true, "light": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme),
		})
	}
	if c.UI.WordWrap < 20 || c.UI.WordWrap > 400 {
		errs = append(errs, ValidationError{
			Field:   "ui.word_wrap",
			Message: fmt.Sprintf("must be between 20 and 400, got %d", c.UI.WordWrap),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(raw string, required bool) error {
	if raw == "" {
		if required {
			return errors.New("is required")
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got '%s'", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - MINDSTACK_API_URL: overrides api.base_url
//   - MINDSTACK_AUTH_URL: overrides auth.url
//   - MINDSTACK_ANON_KEY: overrides auth.anon_key
//   - MINDSTACK_LOG_LEVEL: overrides log.level
//   - MINDSTACK_OFFLINE: sets offline ("1" or "true")
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MINDSTACK_API_URL"); v != "" {
		c.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("MINDSTACK_AUTH_URL"); v != "" {
		c.Auth.URL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("MINDSTACK_ANON_KEY"); v != "" {
		c.Auth.AnonKey = v
	}
	if v := os.Getenv("MINDSTACK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MINDSTACK_OFFLINE"); v != "" {
		c.Offline = v == "1" || strings.EqualFold(v, "true")
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value using the TOML key path, e.g. "chat.stream_idle_timeout_secs".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a value using the TOML key path. String values are converted
// to the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct by toml tag.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if strings.EqualFold(tag, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value with type conversion from strings.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				boolVal = strings.EqualFold(strVal, "yes")
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.New("cannot assign nil")
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

// AllKeys returns every settable key in dot notation, sorted.
func AllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
			if tag == "" || tag == "-" {
				continue
			}
			if t.Field(i).Type.Kind() == reflect.Struct {
				walk(t.Field(i).Type, prefix+tag+".")
				continue
			}
			keys = append(keys, prefix+tag)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	sort.Strings(keys)
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the config as TOML with the anon key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Auth.AnonKey != "" {
		safe.Auth.AnonKey = "[REDACTED]"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}
