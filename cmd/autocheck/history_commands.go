package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autocheck/internal/config"
	"autocheck/internal/history"
	"autocheck/internal/ipc"
	"autocheck/internal/services"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent check-in runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runs, err := recentRuns(cmd.Context(), cfg, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprint(out, renderTable(
				[]string{"Run", "Started", "Trigger", "OK", "Failed", "Notified", "Duration"},
				historyRows(runs),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the outcomes of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			run, err := runDetail(cmd.Context(), cfg, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, run)
			}
			printRunDetail(cmd.OutOrStdout(), run)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// recentRuns reads history through the daemon when it is up and straight
// from the database otherwise.
func recentRuns(ctx context.Context, cfg *config.Config, limit int) ([]history.Run, error) {
	if client, err := ipc.Dial(cfg.SocketPath()); err == nil {
		defer client.Close()
		resp, err := client.History(limit)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		return resp.Runs, nil
	}
	store, err := history.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Recent(ctx, limit)
}

func runDetail(ctx context.Context, cfg *config.Config, id string) (history.Run, error) {
	if id == "" {
		return history.Run{}, errors.New("run id is required")
	}
	if client, err := ipc.Dial(cfg.SocketPath()); err == nil {
		defer client.Close()
		resp, err := client.RunDetail(id)
		if err != nil {
			return history.Run{}, fmt.Errorf("history show: %w", err)
		}
		return resp.Run, nil
	}
	store, err := history.Open(cfg)
	if err != nil {
		return history.Run{}, err
	}
	defer store.Close()
	run, ok, err := store.Get(ctx, id)
	if err != nil {
		return history.Run{}, err
	}
	if !ok {
		return history.Run{}, services.Wrap(services.ErrNotFound, "cli", "history show", fmt.Sprintf("run %q", id), nil)
	}
	return run, nil
}

func historyRows(runs []history.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.StartedAt.Local().Format(timeLayout),
			run.Trigger,
			strconv.Itoa(run.Succeeded),
			strconv.Itoa(run.Failed),
			notifyLabel(run),
			run.Duration().Round(100 * time.Millisecond).String(),
		})
	}
	return rows
}

func printRunDetail(out io.Writer, run history.Run) {
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Trigger:  %s\n", run.Trigger)
	fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(timeLayout))
	fmt.Fprintf(out, "Finished: %s\n", run.FinishedAt.Local().Format(timeLayout))
	fmt.Fprintf(out, "Notified: %s\n", notifyLabel(run))
	if run.NotifyError != "" {
		fmt.Fprintf(out, "Notify error: %s\n", run.NotifyError)
	}
	if len(run.Outcomes) == 0 {
		fmt.Fprintln(out, "No tasks were attempted")
		return
	}
	fmt.Fprintln(out)
	rows := make([][]string, 0, len(run.Outcomes))
	for _, outcome := range run.Outcomes {
		class := string(outcome.Class)
		if class == "" {
			class = "-"
		}
		rows = append(rows, []string{
			outcome.AccountName,
			outcome.LocationName,
			string(outcome.Status),
			class,
			strconv.Itoa(outcome.Attempts),
			yesNo(outcome.Reauthed),
			outcome.Detail,
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Account", "Location", "Status", "Class", "Attempts", "Re-login", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	if run.Summary != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, run.Summary)
	}
}

func notifyLabel(run history.Run) string {
	switch {
	case run.NotifyDelivered:
		return "yes"
	case run.NotifyAttempted:
		return "failed"
	default:
		return "-"
	}
}
