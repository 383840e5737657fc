package testsupport

import (
	"testing"

	"autocheck/internal/config"
	"autocheck/internal/history"
	"autocheck/internal/profile"
)

// MustOpenHistory opens a history.Store for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenProfile opens the profile document configured in cfg.
func MustOpenProfile(t testing.TB, cfg *config.Config) *profile.Store {
	t.Helper()

	store, err := profile.Open(cfg.Paths.ProfilePath, nil)
	if err != nil {
		t.Fatalf("profile.Open: %v", err)
	}
	return store
}

// SeedTask stores one account, one location and an enabled task binding them.
func SeedTask(t testing.TB, store *profile.Store, account profile.Account, location profile.Location) {
	t.Helper()

	if err := store.PutAccount(account); err != nil {
		t.Fatalf("put account: %v", err)
	}
	if err := store.PutLocation(location); err != nil {
		t.Fatalf("put location: %v", err)
	}
	if err := store.AddTask(profile.Task{AccountName: account.Name, LocationName: location.Name, Enable: true}); err != nil {
		t.Fatalf("add task: %v", err)
	}
}
