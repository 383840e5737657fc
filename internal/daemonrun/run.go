package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"autocheck/internal/config"
	"autocheck/internal/daemon"
	"autocheck/internal/history"
	"autocheck/internal/ipc"
	"autocheck/internal/logging"
	"autocheck/internal/preflight"
	"autocheck/internal/profile"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Diagnostic tees a debug-level JSON log into log_dir/debug.
	Diagnostic bool
}

// ErrAlreadyRunning reports that another daemon answers on the socket.
var ErrAlreadyRunning = errors.New("autocheck daemon already running")

// Run starts the autocheck daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	socketPath := cfg.SocketPath()
	if client, err := ipc.Dial(socketPath); err == nil {
		client.Close()
		return fmt.Errorf("%w on %s", ErrAlreadyRunning, socketPath)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("autocheck-%s.log", stamp))
	eventsPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("autocheck-%s.events", stamp))
	logHub := logging.NewStreamHub(4096)
	eventArchive, archiveErr := logging.NewEventArchive(eventsPath)
	if archiveErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize event archive: %v\n", archiveErr)
	} else if eventArchive != nil {
		logHub.AddSink(eventArchive)
		defer eventArchive.Close()
	}

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	levelVar := new(slog.LevelVar)
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Stream:           logHub,
		LevelVar:         levelVar,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if opts.Diagnostic {
		logger = attachDiagnosticLog(logger, cfg.Paths.LogDir, stamp)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, "autocheck.log", logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update autocheck.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "autocheck-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "autocheck-*.events", Exclude: []string{eventsPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "debug"), Pattern: "autocheck-*.log"},
	)
	logPreflightSnapshot(signalCtx, logger, cfg)

	profileStore, err := profile.Open(cfg.Paths.ProfilePath, logger)
	if err != nil {
		logger.Error("open profile store", logging.Error(err))
		return err
	}
	historyStore, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, profileStore, historyStore, logger, daemon.Options{
		LogPath:  logPath,
		Hub:      logHub,
		Archive:  eventArchive,
		LevelVar: levelVar,
	})
	if err != nil {
		historyStore.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check the lock file and profile path, then run `autocheck start`"),
			logging.String(logging.FieldImpact, "no scheduled check-ins until the daemon starts"),
		)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("autocheck daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	d.Stop()
	return nil
}

func attachDiagnosticLog(logger *slog.Logger, logDir, stamp string) *slog.Logger {
	debugDir := filepath.Join(logDir, "debug")
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to create debug log directory: %v\n", err)
		return logger
	}
	debugLogPath := filepath.Join(debugDir, fmt.Sprintf("autocheck-%s.log", stamp))
	debugLogger, err := logging.New(logging.Options{
		Level:            "debug",
		Format:           "json",
		OutputPaths:      []string{debugLogPath},
		ErrorOutputPaths: []string{debugLogPath},
		Development:      true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", err)
		return logger
	}
	if err := ensureCurrentLogPointer(debugDir, "autocheck.log", debugLogPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update debug/autocheck.log link: %v\n", err)
	}
	sessionID := uuid.NewString()
	logger = logging.TeeLogger(logger, debugLogger.Handler()).With(logging.String(logging.FieldCorrelationID, sessionID))
	logger.Info("diagnostic mode enabled",
		logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
		logging.String("debug_log_path", debugLogPath),
	)
	return logger
}

func ensureCurrentLogPointer(logDir, name, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, name)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logPreflightSnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg)
	attrs := make([]any, 0, len(results)+2)
	attrs = append(attrs, logging.String(logging.FieldEventType, "preflight_snapshot"))
	for _, result := range results {
		attrs = append(attrs, logging.Bool(strings.ToLower(strings.ReplaceAll(result.Name, " ", "_"))+"_ok", result.Passed))
	}
	failed := preflight.Failed(results)
	attrs = append(attrs, logging.Int("failed", len(failed)))
	logger.Info("preflight snapshot", attrs...)
	for _, result := range failed {
		logger.Warn("preflight check failed",
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "check-ins may fail until resolved"),
		)
	}
}
