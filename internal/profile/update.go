package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"autocheck/internal/logging"
	"autocheck/internal/services"
)

// Update performs a locked read-modify-write of a single key. dst holds the
// default used when the key is absent; mutate edits it in place and its
// error aborts the write.
func (s *Store) Update(key string, dst any, mutate func() error) error {
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
	if raw, ok := doc[key]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, dst); err != nil {
			return services.Wrap(services.ErrValidation, "profile", "update", fmt.Sprintf("decode %q", key), err)
		}
	}
	if err := mutate(); err != nil {
		return err
	}
	data, err := json.Marshal(dst)
	if err != nil {
		return services.Wrap(services.ErrValidation, "profile", "update", fmt.Sprintf("encode %q", key), err)
	}
	doc[key] = data
	if err := s.write(doc); err != nil {
		return err
	}
	s.logger.Debug("profile updated",
		logging.String(logging.FieldEventType, "profile_updated"),
		logging.String("keys", key),
	)
	return nil
}
