package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, socket, and bind address configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	ProfilePath string `toml:"profile_path"`
	HistoryDB   string `toml:"history_db"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// CheckIn describes how the attendance service is reached and how its
// responses are classified.
type CheckIn struct {
	BaseURL         string   `toml:"base_url"`
	CheckInPath     string   `toml:"checkin_path"`
	LoginPath       string   `toml:"login_path"`
	UserAgent       string   `toml:"user_agent"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
	RetryAttempts   int      `toml:"retry_attempts"`
	RetryBackoffMS  int      `toml:"retry_backoff_ms"`
	Concurrency     int      `toml:"concurrency"`
	MessageSelector string   `toml:"message_selector"`
	SuccessMarkers  []string `toml:"success_markers"`
	AlreadyMarkers  []string `toml:"already_markers"`
}

// WeCom contains transport settings for the enterprise WeChat API. The
// credentials themselves live in the profile document.
type WeCom struct {
	APIBaseURL     string `toml:"api_base_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Schedule contains the daily trigger evaluation settings.
type Schedule struct {
	Timezone            string `toml:"timezone"`
	CountdownIntervalMS int    `toml:"countdown_interval_ms"`
	WatchProfile        bool   `toml:"watch_profile"`
}

// History controls run history retention.
type History struct {
	KeepRuns int `toml:"keep_runs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all daemon configuration values.
type Config struct {
	Paths    Paths    `toml:"paths"`
	CheckIn  CheckIn  `toml:"checkin"`
	WeCom    WeCom    `toml:"wecom"`
	Schedule Schedule `toml:"schedule"`
	History  History  `toml:"history"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/autocheck/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err == nil && !info.IsDir() {
			return expanded, true, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", false, fmt.Errorf("stat config %s: %w", expanded, err)
		}
		return expanded, false, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("autocheck.toml")
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, filepath.Dir(c.Paths.ProfilePath), filepath.Dir(c.Paths.HistoryDB)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath is the unix socket the daemon serves JSON-RPC on.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "autocheck.sock")
}

// LockPath is the flock file that enforces a single daemon instance.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "autocheck.lock")
}

// PIDPath is where the daemon records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "autocheck.pid")
}

// CheckInTimeout is the bound applied to every HTTP attempt against the service.
func (c *Config) CheckInTimeout() time.Duration {
	return time.Duration(c.CheckIn.TimeoutSeconds) * time.Second
}

// RetryBackoff is the base delay between transport retries.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.CheckIn.RetryBackoffMS) * time.Millisecond
}

// CountdownInterval is the display refresh period for the schedule countdown.
func (c *Config) CountdownInterval() time.Duration {
	return time.Duration(c.Schedule.CountdownIntervalMS) * time.Millisecond
}

// Location resolves the configured schedule timezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Schedule.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return loc, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
