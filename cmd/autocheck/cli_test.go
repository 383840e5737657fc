package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"autocheck/internal/history"
	"autocheck/internal/profile"
)

func TestProfileEditors(t *testing.T) {
	env := setupCLITestEnv(t, false)

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"account", "add", "alice", "--class-id", "42", "--cookie", "sid=1"}, `Saved account "alice"`},
		{[]string{"location", "add", "lab", "--lat", "30.25", "--lng", "120.16"}, `Saved location "lab"`},
		{[]string{"task", "add", "alice", "lab"}, "Added task alice @ lab"},
		{[]string{"task", "add", "bob", "lab", "--disabled"}, "Added task bob @ lab"},
		{[]string{"task", "list"}, "account not found"},
		{[]string{"account", "list"}, "alice"},
		{[]string{"location", "list"}, "120.16"},
		{[]string{"task", "disable", "1"}, "Task 1 disabled"},
	}
	for _, step := range steps {
		out, err := runCLI(t, env, step.args...)
		if err != nil {
			t.Fatalf("%v: %v", step.args, err)
		}
		requireContains(t, out, step.want)
	}

	snap, err := env.profile.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Tasks) != 2 || snap.Tasks[0].Enable || snap.Tasks[1].Enable {
		t.Fatalf("unexpected tasks %+v", snap.Tasks)
	}
	if snap.Locations[0].Acc != profile.DefaultAccuracy {
		t.Fatalf("location accuracy = %q, want default", snap.Locations[0].Acc)
	}

	if _, err := runCLI(t, env, "task", "remove", "2"); err != nil {
		t.Fatalf("task remove: %v", err)
	}
	if _, err := runCLI(t, env, "task", "remove", "5"); err == nil {
		t.Fatal("expected removing a missing task to fail")
	}
	if _, err := runCLI(t, env, "location", "add", "bad", "--lat", "north", "--lng", "1"); err == nil {
		t.Fatal("expected invalid latitude to fail")
	}
	if _, err := runCLI(t, env, "account", "remove", "alice"); err != nil {
		t.Fatalf("account remove: %v", err)
	}
	if _, err := runCLI(t, env, "account", "remove", "alice"); err == nil {
		t.Fatal("expected removing a missing account to fail")
	}
}

func TestSettingsSetAndShow(t *testing.T) {
	env := setupCLITestEnv(t, false)

	for _, args := range [][]string{
		{"settings", "set", "scheduletime", "7:05"},
		{"settings", "set", "debug", "true"},
		{"settings", "set", "wecom.corpid", "corp"},
		{"settings", "set", "wecom.secret", "s3cr3tvalue"},
		{"settings", "set", "wecom.agentid", "1000002"},
	} {
		if _, err := runCLI(t, env, args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
	if _, err := runCLI(t, env, "settings", "set", "scheduletime", "25:00"); err == nil {
		t.Fatal("expected invalid scheduletime to fail")
	}
	if _, err := runCLI(t, env, "settings", "set", "color", "blue"); err == nil {
		t.Fatal("expected unknown setting to fail")
	}

	snap, err := env.profile.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Settings.ScheduleTime != "07:05" || !snap.Settings.Debug {
		t.Fatalf("unexpected settings %+v", snap.Settings)
	}
	if !snap.Settings.WeCom.Configured() || snap.Settings.WeCom.Recipient() != profile.DefaultToUser {
		t.Fatalf("unexpected wecom settings %+v", snap.Settings.WeCom)
	}

	out, err := runCLI(t, env, "settings", "show")
	if err != nil {
		t.Fatalf("settings show: %v", err)
	}
	requireContains(t, out, "07:05")
	requireContains(t, out, "s3*******ue")
	if strings.Contains(out, "s3cr3tvalue") {
		t.Fatalf("secret leaked in output:\n%s", out)
	}
}

func TestStatusOffline(t *testing.T) {
	env := setupCLITestEnv(t, false)
	out, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "Scheduled daily at 08:00")
	requireContains(t, out, "Check-in service")
}

func TestStatusWithDaemon(t *testing.T) {
	env := setupCLITestEnv(t, true)
	out, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "Countdown")
}

func TestRunThroughDaemon(t *testing.T) {
	env := setupCLITestEnv(t, true)
	seedTask(t, env)

	out, err := runCLI(t, env, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "[OK] alice @ lab")
	if env.calls.Load() == 0 {
		t.Fatal("expected the check-in service to be called")
	}

	runs, err := env.history.Recent(context.Background(), 5)
	if err != nil || len(runs) != 1 {
		t.Fatalf("history: runs=%d err=%v", len(runs), err)
	}

	out, err = runCLI(t, env, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, runs[0].ID)
	requireContains(t, out, "manual")

	out, err = runCLI(t, env, "history", "show", runs[0].ID)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out, "alice")
	requireContains(t, out, "success")

	if _, err := runCLI(t, env, "history", "show", "missing"); err == nil {
		t.Fatal("expected unknown run id to fail")
	}

	out, err = runCLI(t, env, "logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "[OK] alice @ lab")
}

func TestRunLocalRefusedWhileDaemonRuns(t *testing.T) {
	env := setupCLITestEnv(t, true)
	_, err := runCLI(t, env, "run", "--local")
	if err == nil || !strings.Contains(err.Error(), "daemon is running") {
		t.Fatalf("expected daemon running error, got %v", err)
	}
}

func TestRunLocal(t *testing.T) {
	env := setupCLITestEnv(t, false)
	seedTask(t, env)

	out, err := runCLI(t, env, "run", "--local")
	if err != nil {
		t.Fatalf("run --local: %v", err)
	}
	requireContains(t, out, "[OK] alice @ lab")

	store, err := history.Open(env.cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer store.Close()
	n, err := store.Count(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("history count = %d err=%v, want 1", n, err)
	}

	out, err = runCLI(t, env, "history")
	if err != nil {
		t.Fatalf("history offline: %v", err)
	}
	requireContains(t, out, "manual")
}

func TestSettingsReloadDaemon(t *testing.T) {
	env := setupCLITestEnv(t, true)
	out, err := runCLI(t, env, "settings", "set", "scheduletime", "09:30")
	if err != nil {
		t.Fatalf("settings set: %v", err)
	}
	requireContains(t, out, "Daemon reloaded: Scheduled daily at 09:30")

	status := env.daemon.Status(context.Background())
	if status.Schedule.ScheduleTime != "09:30" {
		t.Fatalf("daemon schedule = %q, want 09:30", status.Schedule.ScheduleTime)
	}

	out, err = runCLI(t, env, "reload")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	requireContains(t, out, "Scheduled daily at 09:30")
}

func TestCommandsRequireDaemon(t *testing.T) {
	env := setupCLITestEnv(t, false)
	_, err := runCLI(t, env, "reload")
	if err == nil || !strings.Contains(err.Error(), "autocheck start") {
		t.Fatalf("expected start hint, got %v", err)
	}
	out, err := runCLI(t, env, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestTestNotifyUnconfigured(t *testing.T) {
	env := setupCLITestEnv(t, false)
	out, err := runCLI(t, env, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "wecom credentials not configured")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, false)

	out, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, err = runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}
