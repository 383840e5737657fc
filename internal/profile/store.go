package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"autocheck/internal/logging"
	"autocheck/internal/services"
)

// Store provides serialized access to the profile document on disk. Writes
// from other processes (the CLI editors and the daemon) are coordinated with
// an advisory lock file next to the document.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
	lock   *flock.Flock
}

// Open returns a Store backed by path. The document is created lazily on the
// first Save.
func Open(path string, logger *slog.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, services.Wrap(services.ErrConfiguration, "profile", "open", "profile path is empty", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		path:   path,
		logger: logging.NewComponentLogger(logger, "profile"),
		lock:   flock.New(path + ".lock"),
	}, nil
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Get decodes key into dst. dst should already hold the caller's default; it
// is left untouched when the key is absent, in which case found is false.
func (s *Store) Get(key string, dst any) (bool, error) {
	s.mu.Lock()
	doc, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	raw, ok := doc[key]
	if !ok || isNull(raw) {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, services.Wrap(services.ErrValidation, "profile", "get", fmt.Sprintf("decode %q", key), err)
	}
	return true, nil
}

// Save merges partial into the document at top-level granularity and
// replaces the file atomically. Keys not named in partial keep their values.
func (s *Store) Save(partial map[string]any) error {
	if len(partial) == 0 {
		return nil
	}
	encoded := make(map[string]json.RawMessage, len(partial))
	for key, value := range partial {
		key = strings.TrimSpace(key)
		if key == "" {
			return services.Wrap(services.ErrValidation, "profile", "save", "empty key", nil)
		}
		data, err := json.Marshal(value)
		if err != nil {
			return services.Wrap(services.ErrValidation, "profile", "save", fmt.Sprintf("encode %q", key), err)
		}
		encoded[key] = data
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock profile: %w", err)
	}
	defer func() {
		_ = s.lock.Unlock()
	}()

	doc, err := s.read()
	if err != nil {
		return err
	}
	for key, value := range encoded {
		doc[key] = value
	}
	if err := s.write(doc); err != nil {
		return err
	}

	keys := make([]string, 0, len(encoded))
	for key := range encoded {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	s.logger.Debug("profile saved",
		logging.String(logging.FieldEventType, "profile_saved"),
		logging.String("keys", strings.Join(keys, ",")),
	)
	return nil
}

// Snapshot decodes the whole document in one read so a run sees a consistent
// view even while editors write concurrently.
func (s *Store) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	doc, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Accounts:  []Account{},
		Locations: []Location{},
		Tasks:     []Task{},
		Settings: Settings{
			ScheduleTime: DefaultScheduleTime,
			WeCom:        WeCom{ToUser: DefaultToUser},
		},
	}
	fields := []struct {
		key string
		dst any
	}{
		{KeyAccounts, &snap.Accounts},
		{KeyLocations, &snap.Locations},
		{KeyTasks, &snap.Tasks},
		{KeyScheduleTime, &snap.Settings.ScheduleTime},
		{KeyWeCom, &snap.Settings.WeCom},
		{KeyDebug, &snap.Settings.Debug},
	}
	for _, field := range fields {
		raw, ok := doc[field.key]
		if !ok || isNull(raw) {
			continue
		}
		if err := json.Unmarshal(raw, field.dst); err != nil {
			return Snapshot{}, services.Wrap(services.ErrValidation, "profile", "snapshot", fmt.Sprintf("decode %q", field.key), err)
		}
	}
	normalizeSnapshot(&snap)
	return snap, nil
}

func (s *Store) read() (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, services.Wrap(services.ErrValidation, "profile", "read", "profile is not a JSON object", err)
	}
	return doc, nil
}

// write replaces the document via temp file, fsync and rename.
func (s *Store) write(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp profile: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp profile: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp profile: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp profile: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp profile: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func normalizeSnapshot(snap *Snapshot) {
	if strings.TrimSpace(snap.Settings.ScheduleTime) == "" {
		snap.Settings.ScheduleTime = DefaultScheduleTime
	}
	snap.Settings.ScheduleTime = strings.TrimSpace(snap.Settings.ScheduleTime)
	for i := range snap.Locations {
		if strings.TrimSpace(snap.Locations[i].Acc) == "" {
			snap.Locations[i].Acc = DefaultAccuracy
		}
	}
}
