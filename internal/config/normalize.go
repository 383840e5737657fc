package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCheckIn()
	c.normalizeWeCom()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ProfilePath) == "" {
		c.Paths.ProfilePath = filepath.Join(c.Paths.DataDir, defaultProfileName)
	}
	if c.Paths.ProfilePath, err = expandPath(c.Paths.ProfilePath); err != nil {
		return fmt.Errorf("paths.profile_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryDB) == "" {
		c.Paths.HistoryDB = filepath.Join(c.Paths.DataDir, defaultHistoryName)
	}
	if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("AUTOCHECK_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeCheckIn() {
	c.CheckIn.BaseURL = strings.TrimSpace(c.CheckIn.BaseURL)
	if c.CheckIn.BaseURL == "" {
		if value, ok := os.LookupEnv("AUTOCHECK_BASE_URL"); ok {
			c.CheckIn.BaseURL = strings.TrimSpace(value)
		}
	}
	c.CheckIn.BaseURL = strings.TrimRight(c.CheckIn.BaseURL, "/")
	c.CheckIn.CheckInPath = ensureLeadingSlash(c.CheckIn.CheckInPath, defaultCheckInPath)
	c.CheckIn.LoginPath = ensureLeadingSlash(c.CheckIn.LoginPath, defaultLoginPath)
	if strings.TrimSpace(c.CheckIn.UserAgent) == "" {
		c.CheckIn.UserAgent = defaultUserAgent
	}
	if strings.TrimSpace(c.CheckIn.MessageSelector) == "" {
		c.CheckIn.MessageSelector = defaultMessageSelector
	}
	c.CheckIn.SuccessMarkers = cleanMarkers(c.CheckIn.SuccessMarkers)
	c.CheckIn.AlreadyMarkers = cleanMarkers(c.CheckIn.AlreadyMarkers)
}

func (c *Config) normalizeWeCom() {
	c.WeCom.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.WeCom.APIBaseURL), "/")
	if c.WeCom.APIBaseURL == "" {
		c.WeCom.APIBaseURL = defaultWeComAPIBaseURL
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func ensureLeadingSlash(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if !strings.HasPrefix(value, "/") {
		return "/" + value
	}
	return value
}

func cleanMarkers(markers []string) []string {
	out := markers[:0]
	for _, marker := range markers {
		if trimmed := strings.TrimSpace(marker); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
