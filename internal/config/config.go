package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Bind is the interface the HTTP API listens on.
	Bind string `json:"bind,omitempty"`

	// Port is the HTTP API port.
	Port int `json:"port,omitempty"`

	// ServerURL is the base URL the interactive session uses to reach the API.
	ServerURL string `json:"server_url,omitempty"`

	// NoteMaxChars is the maximum character count (runes) of an annotation note.
	NoteMaxChars int `json:"note_max_chars"`

	// AutosaveDebounceMs is the quiet period after the last edit before the study document is saved.
	AutosaveDebounceMs int `json:"autosave_debounce_ms,omitempty"`

	// SavedDisplayMs is how long the "saved" status is shown before reverting to idle.
	SavedDisplayMs int `json:"saved_display_ms,omitempty"`

	// ErrorDisplayMs is how long the "error" status is shown before reverting to idle.
	ErrorDisplayMs int `json:"error_display_ms,omitempty"`

	// ReplyDelayMs is the simulated latency of the assistant reply to a question annotation.
	ReplyDelayMs int `json:"reply_delay_ms,omitempty"`

	// LogMode selects the logger preset: "development" or "production".
	LogMode string `json:"log_mode,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "annotation", "document", "keyword". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Bind:               "127.0.0.1",
		Port:               8470,
		ServerURL:          "http://127.0.0.1:8470",
		NoteMaxChars:       4000,
		AutosaveDebounceMs: 1500,
		SavedDisplayMs:     2000,
		ErrorDisplayMs:     4000,
		ReplyDelayMs:       1500,
		LogMode:            "development",
	}
}

// AutosaveDebounce returns AutosaveDebounceMs as a duration.
func (c *Config) AutosaveDebounce() time.Duration {
	return time.Duration(c.AutosaveDebounceMs) * time.Millisecond
}

// SavedDisplay returns SavedDisplayMs as a duration.
func (c *Config) SavedDisplay() time.Duration {
	return time.Duration(c.SavedDisplayMs) * time.Millisecond
}

// ErrorDisplay returns ErrorDisplayMs as a duration.
func (c *Config) ErrorDisplay() time.Duration {
	return time.Duration(c.ErrorDisplayMs) * time.Millisecond
}

// ReplyDelay returns ReplyDelayMs as a duration.
func (c *Config) ReplyDelay() time.Duration {
	return time.Duration(c.ReplyDelayMs) * time.Millisecond
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.margin.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.margin) and repo (.margin) directories.
// Repo config is found by walking upward from startDir to find the nearest .margin/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .margin/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".margin", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.Bind = pickString(overlay.Bind, base.Bind)
	result.ServerURL = pickString(overlay.ServerURL, base.ServerURL)
	result.LogMode = pickString(overlay.LogMode, base.LogMode)

	result.Port = pickInt(overlay.Port, base.Port)
	result.NoteMaxChars = pickInt(overlay.NoteMaxChars, base.NoteMaxChars)
	result.AutosaveDebounceMs = pickInt(overlay.AutosaveDebounceMs, base.AutosaveDebounceMs)
	result.SavedDisplayMs = pickInt(overlay.SavedDisplayMs, base.SavedDisplayMs)
	result.ErrorDisplayMs = pickInt(overlay.ErrorDisplayMs, base.ErrorDisplayMs)
	result.ReplyDelayMs = pickInt(overlay.ReplyDelayMs, base.ReplyDelayMs)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
