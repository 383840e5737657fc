package daemon

import (
	"context"
	"errors"

	"autocheck/internal/logging"
)

// ActivityQuery selects events from the log stream.
type ActivityQuery struct {
	Since  uint64
	Limit  int
	Follow bool
	// Tail returns the newest Limit events when Since is zero.
	Tail bool
	// All includes diagnostic log records, not only activity lines.
	All bool
}

const defaultActivityLimit = 200

// Activity returns stream events after q.Since plus the cursor for the next
// call. Events that have rolled out of the in-memory hub are read back from
// the archive.
func (d *Daemon) Activity(ctx context.Context, q ActivityQuery) ([]logging.LogEvent, uint64, error) {
	if q.Limit <= 0 {
		q.Limit = defaultActivityLimit
	}
	hub := d.hub
	archive := d.archive
	if hub == nil && archive == nil {
		return nil, q.Since, nil
	}

	match := func(evt logging.LogEvent) bool { return q.All || evt.Activity }

	if archive != nil && q.Since > 0 {
		firstSeq := uint64(0)
		if hub != nil {
			firstSeq = hub.FirstSequence()
		}
		if hub == nil || (firstSeq > 0 && q.Since < firstSeq-1) {
			archived, cursor, err := archive.ReadSince(q.Since, q.Limit, match)
			if err != nil {
				d.logger.Warn("log archive read failed",
					logging.String(logging.FieldEventType, "log_archive_read_failed"),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the events file in log_dir"),
					logging.String(logging.FieldImpact, "older activity is skipped"),
				)
			} else if len(archived) > 0 || hub == nil {
				return archived, cursor, nil
			}
		}
	}

	if q.Tail && q.Since == 0 && !q.Follow {
		raw, cursor := hub.Tail(0)
		events := filterEvents(raw, match)
		if len(events) > q.Limit {
			events = events[len(events)-q.Limit:]
		}
		return events, cursor, nil
	}

	cursor := q.Since
	for {
		raw, next, err := hub.Fetch(ctx, cursor, q.Limit, q.Follow)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return filterEvents(raw, match), next, nil
			}
			return nil, cursor, err
		}
		events := filterEvents(raw, match)
		// A follow call only returns once something matching arrives.
		if len(events) > 0 || !q.Follow || next == cursor {
			return events, next, nil
		}
		cursor = next
	}
}

func filterEvents(events []logging.LogEvent, match func(logging.LogEvent) bool) []logging.LogEvent {
	out := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if match(evt) {
			out = append(out, evt)
		}
	}
	return out
}
