package profile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autocheck/internal/profile"
	"autocheck/internal/services"
)

func openStore(t *testing.T) *profile.Store {
	t.Helper()
	store, err := profile.Open(filepath.Join(t.TempDir(), "profile.json"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func TestGetLeavesDefaultWhenKeyMissing(t *testing.T) {
	store := openStore(t)
	schedule := "08:00"
	found, err := store.Get(profile.KeyScheduleTime, &schedule)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected key to be absent")
	}
	if schedule != "08:00" {
		t.Fatalf("default overwritten: %q", schedule)
	}
}

func TestSaveMergesTopLevelKeys(t *testing.T) {
	store := openStore(t)
	if err := store.Save(map[string]any{"scheduletime": "07:30", "debug": true}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(map[string]any{"scheduletime": "09:15"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var schedule string
	if _, err := store.Get(profile.KeyScheduleTime, &schedule); err != nil || schedule != "09:15" {
		t.Fatalf("scheduletime = %q err=%v", schedule, err)
	}
	var debug bool
	found, err := store.Get(profile.KeyDebug, &debug)
	if err != nil || !found || !debug {
		t.Fatalf("expected debug key preserved, found=%v debug=%v err=%v", found, debug, err)
	}

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestSaveIsVisibleToSecondStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	writer, _ := profile.Open(path, nil)
	reader, _ := profile.Open(path, nil)
	if err := writer.Save(map[string]any{"wecom": map[string]string{"corpid": "c1"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	snap, err := reader.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Settings.WeCom.CorpID != "c1" {
		t.Fatalf("unexpected corpid %q", snap.Settings.WeCom.CorpID)
	}
}

func TestSnapshotAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	doc := `{
  "accounts": [{"name": "alice", "class_id": "42", "cookie": "sid=1"}],
  "locations": [{"name": "lab", "lat": "30.1", "lng": "120.2", "acc": ""}],
  "tasks": [
    {"account_name": "alice", "location_name": "lab"},
    {"account_name": "alice", "location_name": "lab", "enable": false}
  ],
  "wecom": {"corpid": "c", "secret": "s", "agentid": 1000002}
}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := profile.Open(path, nil)
	snap, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Settings.ScheduleTime != profile.DefaultScheduleTime {
		t.Fatalf("unexpected schedule %q", snap.Settings.ScheduleTime)
	}
	if snap.Locations[0].Acc != "0.0" {
		t.Fatalf("expected default accuracy, got %q", snap.Locations[0].Acc)
	}
	if !snap.Tasks[0].Enable || snap.Tasks[1].Enable {
		t.Fatalf("unexpected enable flags %+v", snap.Tasks)
	}
	if snap.EnabledTasks() != 1 {
		t.Fatalf("EnabledTasks = %d", snap.EnabledTasks())
	}
	if snap.Settings.WeCom.AgentID != "1000002" {
		t.Fatalf("numeric agentid not accepted: %q", snap.Settings.WeCom.AgentID)
	}
	if !snap.Settings.WeCom.Configured() {
		t.Fatal("expected wecom configured")
	}
	if snap.Settings.WeCom.Recipient() != "@all" {
		t.Fatalf("unexpected recipient %q", snap.Settings.WeCom.Recipient())
	}
}

func TestSnapshotRejectsMalformedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	if err := os.WriteFile(path, []byte(`{"accounts": "nope"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := profile.Open(path, nil)
	_, err := store.Snapshot()
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEditors(t *testing.T) {
	store := openStore(t)
	if err := store.PutAccount(profile.Account{Name: "alice", ClassID: "1", Cookie: "a"}); err != nil {
		t.Fatalf("PutAccount: %v", err)
	}
	if err := store.PutAccount(profile.Account{Name: "alice", ClassID: "2", Cookie: "b"}); err != nil {
		t.Fatalf("PutAccount replace: %v", err)
	}
	if err := store.PutAccount(profile.Account{Name: "  "}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
	if err := store.PutLocation(profile.Location{Name: "lab", Lat: "1", Lng: "2"}); err != nil {
		t.Fatalf("PutLocation: %v", err)
	}
	if err := store.AddTask(profile.Task{AccountName: "alice", LocationName: "lab", Enable: true}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := store.AddTask(profile.Task{AccountName: "bob", LocationName: "lab", Enable: true}); err != nil {
		t.Fatalf("AddTask with dangling account: %v", err)
	}
	if err := store.SetTaskEnabled(1, false); err != nil {
		t.Fatalf("SetTaskEnabled: %v", err)
	}
	if err := store.RemoveTask(5); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	snap, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Accounts) != 1 || snap.Accounts[0].ClassID != "2" {
		t.Fatalf("expected replaced account, got %+v", snap.Accounts)
	}
	if snap.Locations[0].Acc != "0.0" {
		t.Fatalf("expected default accuracy, got %q", snap.Locations[0].Acc)
	}
	if len(snap.Tasks) != 2 || snap.Tasks[1].Enable {
		t.Fatalf("unexpected tasks %+v", snap.Tasks)
	}

	if err := store.RemoveAccount("alice"); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}
	if err := store.RemoveLocation("nowhere"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	snap, _ = store.Snapshot()
	if len(snap.Accounts) != 0 || len(snap.Tasks) != 2 {
		t.Fatalf("remove account should keep tasks, got %+v", snap)
	}
}

func TestWatcherReportsSave(t *testing.T) {
	store := openStore(t)
	changed := make(chan struct{}, 4)
	watcher, err := profile.NewWatcher(store.Path(), func() { changed <- struct{}{} }, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	watcher.SetDebounce(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)
	defer watcher.Close()

	if err := store.Save(map[string]any{"scheduletime": "08:05"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report change")
	}
}
