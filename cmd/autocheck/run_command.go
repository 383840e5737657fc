package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"autocheck/internal/checkin"
	"autocheck/internal/config"
	"autocheck/internal/history"
	"autocheck/internal/ipc"
	"autocheck/internal/logging"
	"autocheck/internal/notifications"
	"autocheck/internal/profile"
	"autocheck/internal/runner"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var local bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every enabled check-in task now",
		Long: "Run every enabled check-in task now.\n\n" +
			"By default the daemon performs the run, sharing its run lock with the scheduler.\n" +
			"With --local the run happens in this process and the daemon must be stopped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if local {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				result, err := runLocal(cmd, cfg, ctx.logLevel(cfg), jsonOutput)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, result)
				}
				return nil
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Run()
				if err != nil {
					return fmt.Errorf("run: %w", err)
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Skipped {
					fmt.Fprintln(out, "Run skipped: another run is in progress")
					return nil
				}
				printRunResult(out, resp.Result)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Run in this process instead of the daemon")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runLocal(cmd *cobra.Command, cfg *config.Config, level string, quiet bool) (runner.RunResult, error) {
	if client, err := ipc.Dial(cfg.SocketPath()); err == nil {
		client.Close()
		return runner.RunResult{}, errors.New("daemon is running; use `autocheck run` or stop it first")
	}
	loc, err := cfg.Location()
	if err != nil {
		return runner.RunResult{}, err
	}
	if strings.TrimSpace(level) == "" {
		level = "warn"
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		return runner.RunResult{}, fmt.Errorf("init logger: %w", err)
	}

	profileStore, err := profile.Open(cfg.Paths.ProfilePath, logger)
	if err != nil {
		return runner.RunResult{}, err
	}
	historyStore, err := history.Open(cfg)
	if err != nil {
		return runner.RunResult{}, err
	}
	defer historyStore.Close()

	var sink runner.LogSink = discardSink{}
	if !quiet {
		sink = &writerSink{out: cmd.OutOrStdout()}
	}
	client := checkin.New(checkin.OptionsFromConfig(cfg), nil, logger)
	provider := notifications.NewProvider(cfg, nil)
	r := runner.New(profileStore, client, provider, historyStore, sink, logger, runner.Options{
		Concurrency: cfg.CheckIn.Concurrency,
		KeepRuns:    cfg.History.KeepRuns,
		Location:    loc,
	})
	return r.Run(cmd.Context(), runner.TriggerManual)
}

// writerSink prints activity lines; Emit may be called from several tasks.
type writerSink struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *writerSink) Emit(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, strings.TrimRight(line, "\r\n"))
}

type discardSink struct{}

func (discardSink) Emit(string) {}

func printRunResult(out io.Writer, result runner.RunResult) {
	if len(result.Outcomes) == 0 {
		fmt.Fprintln(out, "Nothing to do: no enabled tasks")
		return
	}
	for _, outcome := range result.Outcomes {
		fmt.Fprintln(out, runner.FormatOutcome(outcome))
	}
	fmt.Fprintln(out, result.Summary)
	switch {
	case result.Notification.Delivered:
		fmt.Fprintln(out, "Notification sent")
	case result.Notification.Error != "":
		fmt.Fprintf(out, "Notification failed: %s\n", result.Notification.Error)
	}
}
