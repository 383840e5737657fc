package ipc_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autocheck/internal/daemon"
	"autocheck/internal/history"
	"autocheck/internal/ipc"
	"autocheck/internal/logging"
	"autocheck/internal/profile"
	"autocheck/internal/scheduler"
	"autocheck/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	checkin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"msg":"已签到"}`))
	}))
	t.Cleanup(checkin.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(checkin.URL))
	store := testsupport.MustOpenProfile(t, cfg)
	testsupport.SeedTask(t, store,
		profile.Account{Name: "bob", ClassID: "7", Cookie: "sid=2"},
		profile.Location{Name: "gate", Lat: "31.2", Lng: "121.4"},
	)
	hist, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}

	hub := logging.NewStreamHub(128)
	logPath := filepath.Join(cfg.Paths.LogDir, "ipc-test.log")
	logger, err := logging.New(logging.Options{
		Format:           "json",
		OutputPaths:      []string{filepath.Join(cfg.Paths.LogDir, "daemon.log")},
		ErrorOutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "daemon.log")},
		Stream:           hub,
	})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	d, err := daemon.New(cfg, store, hist, logger, daemon.Options{LogPath: logPath, Hub: hub})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.Schedule.State != scheduler.StateArmed {
		t.Fatalf("unexpected status %+v", status)
	}

	runResp, err := client.Run()
	if err != nil {
		t.Fatalf("Run RPC failed: %v", err)
	}
	if runResp.Skipped || len(runResp.Result.Outcomes) != 1 {
		t.Fatalf("unexpected run response %+v", runResp)
	}
	if outcome := runResp.Result.Outcomes[0]; !outcome.Succeeded() || outcome.AccountName != "bob" {
		t.Fatalf("expected already-checked-in success, got %+v", outcome)
	}

	historyResp, err := client.History(5)
	if err != nil {
		t.Fatalf("History RPC failed: %v", err)
	}
	if len(historyResp.Runs) != 1 || historyResp.Runs[0].ID != runResp.Result.RunID {
		t.Fatalf("unexpected history %+v", historyResp.Runs)
	}
	detail, err := client.RunDetail(runResp.Result.RunID)
	if err != nil {
		t.Fatalf("RunDetail RPC failed: %v", err)
	}
	if len(detail.Run.Outcomes) != 1 {
		t.Fatalf("expected one outcome in detail, got %d", len(detail.Run.Outcomes))
	}
	if _, err := client.RunDetail("missing"); err == nil {
		t.Fatal("expected error for unknown run")
	}

	activity, err := client.Activity(ipc.ActivityRequest{Tail: true, Limit: 50})
	if err != nil {
		t.Fatalf("Activity RPC failed: %v", err)
	}
	var sawSummary bool
	for _, evt := range activity.Events {
		if strings.HasPrefix(evt.Message, "Check-in run ") {
			sawSummary = true
		}
	}
	if !sawSummary {
		t.Fatalf("summary missing from activity: %+v", activity.Events)
	}

	if err := store.Save(map[string]any{profile.KeyScheduleTime: "09:10"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reload, err := client.Reload()
	if err != nil {
		t.Fatalf("Reload RPC failed: %v", err)
	}
	if reload.Error != "" || reload.Schedule.ScheduleTime != "09:10" {
		t.Fatalf("unexpected reload %+v", reload)
	}

	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail initial failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}

	followDone := make(chan struct{})
	go func(offset int64) {
		defer close(followDone)
		resp, err := client.LogTail(ipc.LogTailRequest{Offset: offset, Follow: true, WaitMillis: 2000})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Lines) != 1 || resp.Lines[0] != "fourth" {
			t.Errorf("unexpected follow lines: %#v", resp.Lines)
		}
	}(logResp.Offset)

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("append log: %v", err)
	}
	_, _ = f.WriteString("fourth\n")
	_ = f.Close()

	select {
	case <-followDone:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp.Sent || notifyResp.Message == "" {
		t.Fatalf("expected unconfigured notification message, got %#v", notifyResp)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}

	status2, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status2.Running {
		t.Fatal("expected daemon to be stopped")
	}
}
