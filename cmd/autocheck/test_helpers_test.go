package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"autocheck/internal/config"
	"autocheck/internal/daemon"
	"autocheck/internal/history"
	"autocheck/internal/ipc"
	"autocheck/internal/logging"
	"autocheck/internal/profile"
	"autocheck/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	profile    *profile.Store
	history    *history.Store
	daemon     *daemon.Daemon
	calls      *atomic.Int32
}

// setupCLITestEnv writes a config pointing at a fake check-in service. The
// in-process daemon and IPC server are only started when withDaemon is set.
func setupCLITestEnv(t *testing.T, withDaemon bool) *cliTestEnv {
	t.Helper()

	calls := new(atomic.Int32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><div class="msg">签到成功</div></body></html>`))
	}))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(srv.URL))
	cfg.Schedule.Timezone = "UTC"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	testsupport.WriteFile(t, configPath, string(data))

	env := &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		profile:    testsupport.MustOpenProfile(t, cfg),
		calls:      calls,
	}
	if !withDaemon {
		return env
	}

	hist := testsupport.MustOpenHistory(t, cfg)
	hub := logging.NewStreamHub(256)
	logPath := filepath.Join(cfg.Paths.LogDir, "cli-test.log")
	logger, err := logging.New(logging.Options{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
		Stream:           hub,
	})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	d, err := daemon.New(cfg, env.profile, hist, logger, daemon.Options{LogPath: logPath, Hub: hub})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srvIPC, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srvIPC.Serve()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
		cancel()
		srvIPC.Close()
		d.Close()
	})

	env.history = hist
	env.daemon = d
	return env
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return stdout.String(), err
}

func seedTask(t *testing.T, env *cliTestEnv) {
	t.Helper()
	testsupport.SeedTask(t, env.profile,
		profile.Account{Name: "alice", ClassID: "42", Cookie: "sid=1"},
		profile.Location{Name: "lab", Lat: "30.25", Lng: "120.16", Acc: "10"},
	)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
