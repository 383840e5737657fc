package runner

import (
	"fmt"
	"strings"
	"time"

	"autocheck/internal/checkin"
)

const summaryTimeLayout = "2006-01-02 15:04:05"

// FormatSummary renders the notification text for a run. Failures are listed
// in declaration order, one per line.
func FormatSummary(at time.Time, outcomes []checkin.Outcome) string {
	succeeded, failed := 0, 0
	var failures []string
	for _, outcome := range outcomes {
		if outcome.Succeeded() {
			succeeded++
			continue
		}
		failed++
		failures = append(failures, fmt.Sprintf("- %s @ %s: %s", outcome.AccountName, outcome.LocationName, outcome.Detail))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Check-in run %s: %d succeeded, %d failed", at.Format(summaryTimeLayout), succeeded, failed)
	for _, line := range failures {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	return b.String()
}

// FormatOutcome renders the activity line for one outcome.
func FormatOutcome(outcome checkin.Outcome) string {
	label := "FAIL"
	if outcome.Succeeded() {
		label = "OK"
	}
	return fmt.Sprintf("[%s] %s @ %s: %s", label, outcome.AccountName, outcome.LocationName, outcome.Detail)
}
