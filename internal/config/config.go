package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Limits for the user-facing history size setting.
const (
	MinHistoryCapacity = 10
	MaxHistoryCapacity = 500
)

// Config holds application configuration.
type Config struct {
	// HistoryCapacity is the default maximum number of history items.
	// A value persisted through the settings store overrides it at runtime.
	HistoryCapacity int `json:"history_capacity"`

	// MaxPinned is the maximum number of simultaneously pinned history items.
	MaxPinned int `json:"max_pinned"`

	// PollIntervalMS is how often the clipboard is checked for changes.
	PollIntervalMS int `json:"poll_interval_ms"`

	// Paused stops clipboard observation without stopping the process.
	Paused bool `json:"paused,omitempty"`

	// WelcomeItems seeds history with two introductory items on start.
	WelcomeItems *bool `json:"welcome_items,omitempty"`

	// InferenceURL is the base URL of the local inference server.
	// Only loopback hosts are accepted.
	InferenceURL string `json:"inference_url"`

	// ModelsPath and GeneratePath are appended to InferenceURL.
	ModelsPath   string `json:"models_path"`
	GeneratePath string `json:"generate_path"`

	// RequestTimeoutSeconds bounds every inference round trip.
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// MaxOutputTokens and Temperature are sent with every generate request.
	MaxOutputTokens int     `json:"max_output_tokens"`
	Temperature     float64 `json:"temperature"`

	// TargetLanguage is the language the translate action writes.
	TargetLanguage string `json:"target_language"`

	// AIDisabled switches off every AI action.
	AIDisabled bool `json:"ai_disabled,omitempty"`

	// DisabledActions lists AI actions hidden from consumers (e.g. "translate").
	DisabledActions []string `json:"disabled_actions,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool groups to disable entirely.
	// Known types: "history", "folder", "tag", "ai".
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// AllowedPaths is an allowlist of directories for folder export/import.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export/import.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`

	// Passphrase, when set (only via WHISPR_PASSPHRASE), derives the vault key
	// instead of the generated key file.
	Passphrase string `json:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	welcome := true
	return &Config{
		HistoryCapacity:       100,
		MaxPinned:             3,
		PollIntervalMS:        500,
		WelcomeItems:          &welcome,
		InferenceURL:          "http://localhost:11434/api",
		ModelsPath:            "/tags",
		GeneratePath:          "/generate",
		RequestTimeoutSeconds: 60,
		MaxOutputTokens:       200,
		Temperature:           0.2,
		TargetLanguage:        "English",
		LogLevel:              "info",
	}
}

// ShowWelcome reports whether welcome items should be seeded.
func (c *Config) ShowWelcome() bool {
	return c.WelcomeItems == nil || *c.WelcomeItems
}

// ActionEnabled reports whether an AI action may be run.
func (c *Config) ActionEnabled(action string) bool {
	if c.AIDisabled {
		return false
	}
	for _, a := range c.DisabledActions {
		if strings.EqualFold(strings.TrimSpace(a), action) {
			return false
		}
	}
	return true
}

// Load loads configuration from baseDir/config.json, then applies baseDir/.env
// and process environment overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.whispr.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(Path(baseDir))
	if err != nil {
		return nil, err
	}
	if err := LoadEnv(baseDir); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the config file location inside baseDir.
func Path(baseDir string) string {
	return filepath.Join(baseDir, "config.json")
}

// LoadEnv loads baseDir/.env into the process environment.
// Variables already set in the environment are left untouched.
func LoadEnv(baseDir string) error {
	envPath := filepath.Join(baseDir, ".env")
	if _, err := os.Stat(envPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("failed to load %s: %w", envPath, err)
	}
	return nil
}

// applyEnv overlays WHISPR_* environment variables.
func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("WHISPR_INFERENCE_URL")); v != "" {
		cfg.InferenceURL = v
	}
	if v := strings.TrimSpace(os.Getenv("WHISPR_HISTORY_CAPACITY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WHISPR_HISTORY_CAPACITY: %w", err)
		}
		cfg.HistoryCapacity = n
	}
	if v := strings.TrimSpace(os.Getenv("WHISPR_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("WHISPR_PASSPHRASE"); v != "" {
		cfg.Passphrase = v
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func Validate(cfg *Config) error {
	if cfg.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be positive, got %d", cfg.HistoryCapacity)
	}
	if cfg.MaxPinned < 0 {
		return fmt.Errorf("max_pinned must not be negative, got %d", cfg.MaxPinned)
	}
	if err := ValidateInferenceURL(cfg.InferenceURL); err != nil {
		return err
	}
	return nil
}

// ValidateInferenceURL accepts only http(s) URLs pointing at a loopback host.
func ValidateInferenceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid inference_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("inference_url must use http or https, got %q", u.Scheme)
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("inference_url must point at localhost, got %q", host)
	}
	return nil
}

// ClampCapacity bounds a user-chosen history size to the supported range.
func ClampCapacity(n int) int {
	if n < MinHistoryCapacity {
		return MinHistoryCapacity
	}
	if n > MaxHistoryCapacity {
		return MaxHistoryCapacity
	}
	return n
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
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

	result.HistoryCapacity = pickInt(overlay.HistoryCapacity, base.HistoryCapacity)
	result.MaxPinned = pickInt(overlay.MaxPinned, base.MaxPinned)
	result.PollIntervalMS = pickInt(overlay.PollIntervalMS, base.PollIntervalMS)
	result.RequestTimeoutSeconds = pickInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds)
	result.MaxOutputTokens = pickInt(overlay.MaxOutputTokens, base.MaxOutputTokens)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.Temperature = overlay.Temperature
	if result.Temperature == 0 {
		result.Temperature = base.Temperature
	}

	result.InferenceURL = pickString(overlay.InferenceURL, base.InferenceURL)
	result.ModelsPath = pickString(overlay.ModelsPath, base.ModelsPath)
	result.GeneratePath = pickString(overlay.GeneratePath, base.GeneratePath)
	result.TargetLanguage = pickString(overlay.TargetLanguage, base.TargetLanguage)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)
	result.Passphrase = pickString(overlay.Passphrase, base.Passphrase)

	result.WelcomeItems = overlay.WelcomeItems
	if result.WelcomeItems == nil {
		result.WelcomeItems = base.WelcomeItems
	}

	// Booleans: overlay wins if true, else base
	result.Paused = base.Paused || overlay.Paused
	result.AIDisabled = base.AIDisabled || overlay.AIDisabled
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.DisabledActions = mergeStringSlice(base.DisabledActions, overlay.DisabledActions)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
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
