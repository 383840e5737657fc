package logging

import (
	"log/slog"
	"strings"
)

// ActivityFeed is the user-visible, append-only progress feed. Each Emit call
// becomes exactly one record, so lines from concurrent runs and the scheduler
// never interleave.
type ActivityFeed struct {
	logger *slog.Logger
	hub    *StreamHub
}

// NewActivityFeed routes activity lines through logger. When logger is nil the
// lines are published straight to hub.
func NewActivityFeed(logger *slog.Logger, hub *StreamHub) *ActivityFeed {
	if logger != nil {
		logger = logger.With(String(FieldComponent, "activity"), Bool(FieldActivity, true))
	}
	return &ActivityFeed{logger: logger, hub: hub}
}

// Emit appends one line to the feed.
func (f *ActivityFeed) Emit(line string) {
	if f == nil {
		return
	}
	line = strings.TrimRight(line, "\r\n")
	if f.logger != nil {
		f.logger.Info(line)
		return
	}
	f.hub.Publish(LogEvent{
		Level:     "INFO",
		Message:   line,
		Component: "activity",
		Activity:  true,
	})
}
