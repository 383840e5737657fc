package checkin

import (
	"time"

	"autocheck/internal/config"
)

// Options configures a Client.
type Options struct {
	BaseURL         string
	CheckInPath     string
	LoginPath       string
	UserAgent       string
	MessageSelector string
	SuccessMarkers  []string
	AlreadyMarkers  []string
	Timeout         time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
}

// OptionsFromConfig maps the [checkin] section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		d := config.Default()
		cfg = &d
	}
	return Options{
		BaseURL:         cfg.CheckIn.BaseURL,
		CheckInPath:     cfg.CheckIn.CheckInPath,
		LoginPath:       cfg.CheckIn.LoginPath,
		UserAgent:       cfg.CheckIn.UserAgent,
		MessageSelector: cfg.CheckIn.MessageSelector,
		SuccessMarkers:  append([]string(nil), cfg.CheckIn.SuccessMarkers...),
		AlreadyMarkers:  append([]string(nil), cfg.CheckIn.AlreadyMarkers...),
		Timeout:         cfg.CheckInTimeout(),
		RetryAttempts:   cfg.CheckIn.RetryAttempts,
		RetryBackoff:    cfg.RetryBackoff(),
	}
}
