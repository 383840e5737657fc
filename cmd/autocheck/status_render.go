package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"autocheck/internal/daemonctl"
	"autocheck/internal/history"
	"autocheck/internal/preflight"
	"autocheck/internal/scheduler"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
	timeLayout       = "2006-01-02 15:04:05"
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// statusLines renders a snapshot as grouped status lines.
func statusLines(snapshot daemonctl.StatusSnapshot, colorize bool) []string {
	var lines []string
	section := func(title string) {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, renderSectionHeader(title, colorize)...)
	}

	section("Daemon")
	var (
		schedule      scheduler.Status
		enabledTasks  int
		notifyEnabled bool
	)
	switch {
	case snapshot.Daemon != nil:
		d := snapshot.Daemon
		detail := fmt.Sprintf("Running (pid %d", d.PID)
		if !d.StartedAt.IsZero() {
			detail += ", since " + d.StartedAt.Local().Format(timeLayout)
		}
		detail += ")"
		kind := statusOK
		if !d.Running {
			kind = statusWarn
			detail = fmt.Sprintf("Stopped (pid %d answers, scheduler disarmed)", d.PID)
		}
		lines = append(lines, renderStatusLine("Autocheck", kind, detail, colorize))
		if d.RunInProgress {
			lines = append(lines, renderStatusLine("Run", statusInfo, "In progress", colorize))
		}
		if d.Debug {
			lines = append(lines, renderStatusLine("Debug", statusInfo, "Enabled (log level debug)", colorize))
		}
		if d.ReloadError != "" {
			lines = append(lines, renderStatusLine("Profile", statusError, d.ReloadError, colorize))
		}
		if d.APIAddress != "" {
			lines = append(lines, renderStatusLine("HTTP API", statusOK, d.APIAddress, colorize))
		}
		schedule, enabledTasks, notifyEnabled = d.Schedule, d.EnabledTasks, d.NotifyEnabled
		if d.LastRun != nil {
			run := d.LastRun.HistoryRun()
			lines = append(lines, historyRunLine(&run, colorize))
		}
	case snapshot.Offline != nil:
		lines = append(lines, renderStatusLine("Autocheck", statusWarn, "Not running (start with `autocheck start`)", colorize))
		off := snapshot.Offline
		if off.ProfileError != "" {
			lines = append(lines, renderStatusLine("Profile", statusError, off.ProfileError, colorize))
		}
		schedule, enabledTasks, notifyEnabled = off.Schedule, off.EnabledTasks, off.NotifyEnabled
		if off.LastRun != nil {
			lines = append(lines, historyRunLine(off.LastRun, colorize))
		}
	}

	section("Schedule")
	lines = append(lines, scheduleLines(schedule, colorize)...)
	taskKind := statusOK
	if enabledTasks == 0 {
		taskKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Enabled tasks", taskKind, fmt.Sprintf("%d", enabledTasks), colorize))
	if notifyEnabled {
		lines = append(lines, renderStatusLine("Notifications", statusOK, "WeCom configured", colorize))
	} else {
		lines = append(lines, renderStatusLine("Notifications", statusInfo, "Disabled (wecom not configured)", colorize))
	}

	section("System")
	lines = append(lines, checkLines(snapshot.Checks, colorize)...)
	return lines
}

func scheduleLines(status scheduler.Status, colorize bool) []string {
	if status.State == scheduler.StateIdle || status.State == "" {
		message := status.Message
		if message == "" {
			message = scheduler.MessageInvalidTime
		}
		return []string{renderStatusLine("State", statusWarn, message, colorize)}
	}
	lines := []string{renderStatusLine("State", statusOK, status.Message, colorize)}
	if !status.Next.IsZero() {
		lines = append(lines, renderStatusLine("Next run", statusInfo, status.Next.Format(timeLayout), colorize))
	}
	lines = append(lines, renderStatusLine("Countdown", statusInfo, status.Countdown, colorize))
	return lines
}

func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
	return lines
}

func historyRunLine(run *history.Run, colorize bool) string {
	kind := statusOK
	if run.Failed > 0 {
		kind = statusWarn
	}
	detail := fmt.Sprintf("%s (%s): %d ok, %d failed", run.FinishedAt.Local().Format(timeLayout), run.Trigger, run.Succeeded, run.Failed)
	return renderStatusLine("Last run", kind, detail, colorize)
}
