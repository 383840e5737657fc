package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"autocheck/internal/ipc"
	"autocheck/internal/logging"
)

const followWaitMillis = 1000

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var all bool
	var daemonLog bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display the check-in activity feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if daemonLog {
					return tailDaemonLog(cmd, client, lines, follow)
				}
				return streamActivity(cmd, client, lines, follow, all)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow new entries")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of entries to show (0 for all buffered)")
	cmd.Flags().BoolVar(&all, "all", false, "Include diagnostic log records, not only activity lines")
	cmd.Flags().BoolVar(&daemonLog, "daemon", false, "Tail the raw daemon log file instead of the activity feed")
	return cmd
}

func streamActivity(cmd *cobra.Command, client *ipc.Client, lines int, follow, all bool) error {
	out := cmd.OutOrStdout()
	req := ipc.ActivityRequest{Limit: lines, Tail: true, All: all}
	if lines <= 0 {
		req.Limit = 0
		req.Tail = false
	}
	printed := false
	for {
		resp, err := client.Activity(req)
		if err != nil {
			return fmt.Errorf("fetch activity: %w", err)
		}
		if resp == nil {
			return errors.New("activity response missing")
		}
		for _, evt := range resp.Events {
			fmt.Fprintln(out, formatEvent(evt, all))
			printed = true
		}
		if !follow {
			if !printed {
				fmt.Fprintln(out, "No activity yet")
			}
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return nil
		default:
		}
		req = ipc.ActivityRequest{
			Since:      resp.Next,
			Follow:     true,
			All:        all,
			WaitMillis: followWaitMillis,
		}
	}
}

func tailDaemonLog(cmd *cobra.Command, client *ipc.Client, lines int, follow bool) error {
	out := cmd.OutOrStdout()
	offset := int64(-1)
	limit := max(lines, 0)
	if limit == 0 {
		offset = 0
	}
	printed := false
	for {
		resp, err := client.LogTail(ipc.LogTailRequest{
			Offset:     offset,
			Limit:      limit,
			Follow:     follow,
			WaitMillis: followWaitMillis,
		})
		if err != nil {
			return fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return errors.New("log tail response missing")
		}
		printLines(out, resp.Lines)
		printed = printed || len(resp.Lines) > 0
		offset = resp.Offset
		limit = 0
		if !follow {
			if !printed {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return nil
		default:
		}
	}
}

// formatEvent renders an activity line as "HH:MM:SS message"; verbose mode
// adds the level and component of diagnostic records.
func formatEvent(evt logging.LogEvent, verbose bool) string {
	ts := evt.Timestamp.Local().Format("15:04:05")
	if !verbose || evt.Activity {
		return ts + " " + evt.Message
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s", ts, evt.Level)
	if evt.Component != "" {
		fmt.Fprintf(&b, " [%s]", evt.Component)
	}
	b.WriteString(" " + evt.Message)
	if v, ok := evt.Fields[logging.FieldEventType]; ok {
		fmt.Fprintf(&b, " (%s)", v)
	}
	return b.String()
}
