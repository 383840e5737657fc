package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCheckIn(); err != nil {
		return err
	}
	if err := c.validateWeCom(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.History.KeepRuns < 0 {
		return errors.New("history.keep_runs must be zero or positive")
	}
	return nil
}

func (c *Config) validateCheckIn() error {
	if c.CheckIn.BaseURL != "" {
		parsed, err := url.Parse(c.CheckIn.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("checkin.base_url must be an absolute URL, got %q", c.CheckIn.BaseURL)
		}
	}
	if c.CheckIn.TimeoutSeconds <= 0 {
		return errors.New("checkin.timeout_seconds must be positive")
	}
	if c.CheckIn.RetryAttempts < 0 || c.CheckIn.RetryAttempts > 10 {
		return errors.New("checkin.retry_attempts must be between 0 and 10")
	}
	if c.CheckIn.RetryBackoffMS < 0 {
		return errors.New("checkin.retry_backoff_ms must be zero or positive")
	}
	if c.CheckIn.Concurrency <= 0 {
		return errors.New("checkin.concurrency must be positive")
	}
	if len(c.CheckIn.SuccessMarkers) == 0 {
		return errors.New("checkin.success_markers must contain at least one marker")
	}
	return nil
}

func (c *Config) validateWeCom() error {
	parsed, err := url.Parse(c.WeCom.APIBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("wecom.api_base_url must be an absolute URL, got %q", c.WeCom.APIBaseURL)
	}
	if c.WeCom.RequestTimeout <= 0 {
		return errors.New("wecom.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Schedule.CountdownIntervalMS < 100 {
		return errors.New("schedule.countdown_interval_ms must be at least 100")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}
